package journal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/vaamb/gaia/internal/domain"
	"github.com/vaamb/gaia/internal/ports"
)

const recordHeaderLen = 12

// FileJournal is an append-only on-disk buffer for telemetry events
// that could not be delivered to the dispatcher. Events are replayed
// in order after the dispatcher recovers; Commit advances the
// delivered watermark and Compact reclaims delivered space so the
// journal stays within its configured size bound.
type FileJournal struct {
	mu        sync.Mutex
	path      string
	metaPath  string
	file      *os.File
	writer    *bufio.Writer
	nextID    ports.JournalEntryID
	committed ports.JournalEntryID
	sizeBytes int64
}

func NewFileJournal(dir string) (*FileJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "telemetry.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	j := &FileJournal{
		path:     path,
		metaPath: filepath.Join(dir, "telemetry.meta"),
		file:     f,
		writer:   bufio.NewWriterSize(f, 1<<18),
	}
	if err := j.bootstrap(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *FileJournal) bootstrap() error {
	if err := j.scanExisting(); err != nil {
		return err
	}
	if err := j.loadCommitted(); err != nil {
		return err
	}
	if j.nextID < j.committed {
		j.nextID = j.committed
	}
	_, err := j.file.Seek(0, io.SeekEnd)
	return err
}

// scanExisting walks the log to find the last appended id and truncates
// a torn tail record left by a crash mid-append.
func (j *FileJournal) scanExisting() error {
	stat, err := os.Stat(j.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err != nil || stat.Size() == 0 {
		return nil
	}

	rf, err := os.Open(j.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	reader := bufio.NewReader(rf)
	var (
		offset int64
		lastID ports.JournalEntryID
	)

	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				if err := j.file.Truncate(offset); err != nil {
					return err
				}
				break
			}
			return fmt.Errorf("journal scan header: %w", err)
		}
		id := ports.JournalEntryID(binary.BigEndian.Uint64(hdr[0:8]))
		length := binary.BigEndian.Uint32(hdr[8:12])
		offset += recordHeaderLen

		if length > 0 {
			if _, err := io.CopyN(io.Discard, reader, int64(length)); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					if err := j.file.Truncate(offset); err != nil {
						return err
					}
					break
				}
				return fmt.Errorf("journal scan body: %w", err)
			}
			offset += int64(length)
		}
		lastID = id
	}

	if err := j.file.Truncate(offset); err != nil {
		return err
	}
	j.sizeBytes = offset
	j.nextID = lastID
	return nil
}

func (j *FileJournal) loadCommitted() error {
	data, err := os.ReadFile(j.metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	val := strings.TrimSpace(string(data))
	if val == "" {
		return nil
	}
	u, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return fmt.Errorf("journal meta parse: %w", err)
	}
	j.committed = ports.JournalEntryID(u)
	return nil
}

func (j *FileJournal) Append(ev *domain.Event) (ports.JournalEntryID, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := j.nextID + 1

	b, err := json.Marshal(ev)
	if err != nil {
		return 0, err
	}

	// entry format: [8 bytes id][4 bytes len][len bytes json]
	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(b)))

	if _, err := j.writer.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := j.writer.Write(b); err != nil {
		return 0, err
	}

	j.nextID = id
	j.sizeBytes += int64(len(b) + len(hdr))

	return id, nil
}

func (j *FileJournal) Iterate(from ports.JournalEntryID, fn func(id ports.JournalEntryID, ev *domain.Event) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return err
	}

	f, err := os.Open(j.path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)

	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("journal iterate truncated header: %w", err)
		}
		id := ports.JournalEntryID(binary.BigEndian.Uint64(hdr[0:8]))
		l := binary.BigEndian.Uint32(hdr[8:12])

		b := make([]byte, l)
		if _, err := io.ReadFull(r, b); err != nil {
			return fmt.Errorf("corrupt journal entry: %w", err)
		}
		if id < from {
			continue
		}

		var ev domain.Event
		if err := json.Unmarshal(b, &ev); err != nil {
			return fmt.Errorf("corrupt journal entry: %w", err)
		}
		if err := fn(id, &ev); err != nil {
			return err
		}
	}
}

func (j *FileJournal) Commit(upto ports.JournalEntryID) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if upto > j.committed {
		j.committed = upto
	}
	return j.persistMetaLocked()
}

// Compact rewrites the log keeping only entries past the committed
// watermark. Called by the dispatch pump after a successful replay.
func (j *FileJournal) Compact() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rewriteLocked(j.committed + 1)
}

// TruncateOldest drops the oldest entries, delivered or not, until the
// journal fits within maxBytes. The committed watermark advances past
// the discarded entries so replay never resurrects a dropped event.
// Returns how many undelivered entries were lost; the newest entry is
// always kept.
func (j *FileJournal) TruncateOldest(maxBytes int64) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return 0, err
	}
	if j.sizeBytes <= maxBytes {
		return 0, nil
	}

	type rec struct {
		id   ports.JournalEntryID
		size int64
	}
	var recs []rec
	err := j.iterateLocked(0, func(id ports.JournalEntryID, raw []byte) error {
		recs = append(recs, rec{id: id, size: int64(len(raw) + recordHeaderLen)})
		return nil
	})
	if err != nil {
		return 0, err
	}

	remaining := j.sizeBytes
	cut := 0
	for cut < len(recs)-1 && remaining > maxBytes {
		remaining -= recs[cut].size
		cut++
	}
	if cut == 0 {
		return 0, nil
	}

	dropped := 0
	for _, r := range recs[:cut] {
		if r.id > j.committed {
			dropped++
		}
	}

	from := recs[cut].id
	if err := j.rewriteLocked(from); err != nil {
		return 0, err
	}
	if from-1 > j.committed {
		j.committed = from - 1
		if err := j.persistMetaLocked(); err != nil {
			return dropped, err
		}
	}
	return dropped, nil
}

// rewriteLocked replaces the log with the entries at or after from.
// The caller holds j.mu.
func (j *FileJournal) rewriteLocked(from ports.JournalEntryID) error {
	if err := j.writer.Flush(); err != nil {
		return err
	}

	tmpPath := j.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriterSize(tmp, 1<<18)

	var kept int64
	err = j.iterateLocked(from, func(id ports.JournalEntryID, raw []byte) error {
		var hdr [recordHeaderLen]byte
		binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
		binary.BigEndian.PutUint32(hdr[8:12], uint32(len(raw)))
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := w.Write(raw); err != nil {
			return err
		}
		kept += int64(len(raw) + recordHeaderLen)
		return nil
	})
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := j.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, j.path); err != nil {
		return err
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	j.file = f
	j.writer = bufio.NewWriterSize(f, 1<<18)
	j.sizeBytes = kept
	return nil
}

// iterateLocked yields raw record bodies without unmarshalling; the
// caller holds j.mu.
func (j *FileJournal) iterateLocked(from ports.JournalEntryID, fn func(id ports.JournalEntryID, raw []byte) error) error {
	f, err := os.Open(j.path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		id := ports.JournalEntryID(binary.BigEndian.Uint64(hdr[0:8]))
		l := binary.BigEndian.Uint32(hdr[8:12])
		b := make([]byte, l)
		if _, err := io.ReadFull(r, b); err != nil {
			return fmt.Errorf("corrupt journal entry: %w", err)
		}
		if id < from {
			continue
		}
		if err := fn(id, b); err != nil {
			return err
		}
	}
}

func (j *FileJournal) Stats() ports.JournalStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ports.JournalStats{
		OldestUncommitted: j.committed + 1,
		LatestAppended:    j.nextID,
		SizeBytes:         j.sizeBytes,
	}
}

func (j *FileJournal) persistMetaLocked() error {
	data := []byte(fmt.Sprintf("%d\n", j.committed))
	return os.WriteFile(j.metaPath, data, 0o644)
}

var _ ports.Journal = (*FileJournal)(nil)
