package config

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Notification is one entry on the change feed: a freshly loaded
// snapshot, or a recoverable load failure (previous snapshot stays
// active).
type Notification struct {
	Snapshot *Snapshot
	Err      error
}

// Service owns the parsed environment definitions and secrets. It
// publishes immutable snapshots through an atomic pointer so readers
// never block, and detects on-disk changes by polling a content hash
// on a fixed interval: hashing beats mtime, whose granularity can mask
// rapid successive edits.
type Service struct {
	ecoPath     string
	secretsPath string
	interval    time.Duration
	knownModel  func(string) bool

	current  atomic.Pointer[Snapshot]
	version  atomic.Uint64
	loadedMu sync.Mutex
	loaded   uint64 // checksum of the last successfully loaded content
}

// NewService builds a config service for the given files. knownModel
// injects the registered hardware model set used during schema
// validation; nil skips model validation.
func NewService(ecoPath, secretsPath string, pollInterval time.Duration, knownModel func(string) bool) *Service {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &Service{
		ecoPath:     ecoPath,
		secretsPath: secretsPath,
		interval:    pollInterval,
		knownModel:  knownModel,
	}
}

// Load parses both files and publishes a new snapshot. On failure the
// previous snapshot stays current and the error is returned for
// reporting.
func (s *Service) Load() (*Snapshot, error) {
	ecoRaw, secretsRaw, sum, err := s.readFiles()
	if err != nil {
		return nil, err
	}

	snap, err := parseSnapshot(s.ecoPath, ecoRaw, secretsRaw, s.knownModel)
	if err != nil {
		return nil, err
	}

	snap.Version = s.version.Add(1)
	snap.Checksum = sum
	s.current.Store(snap)

	s.loadedMu.Lock()
	s.loaded = sum
	s.loadedMu.Unlock()

	return snap, nil
}

// Current returns the latest snapshot, or nil before the first
// successful Load. Reads are lock-free.
func (s *Service) Current() *Snapshot { return s.current.Load() }

// Watch polls the change signature and sends a notification whenever
// the content differs from the last successful load. The feed is lazy
// and restartable: cancelling the context ends it, and a new Watch can
// be started at any time. Send is non-blocking per tick; the engine is
// expected to consume promptly.
func (s *Service) Watch(ctx context.Context) <-chan Notification {
	ch := make(chan Notification, 1)

	go func() {
		defer close(ch)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			changed, err := s.changedSinceLoad()
			if err != nil {
				select {
				case ch <- Notification{Err: err}:
				default:
				}
				continue
			}
			if !changed {
				continue
			}

			snap, err := s.Load()
			select {
			case ch <- Notification{Snapshot: snap, Err: err}:
			default:
			}
		}
	}()

	return ch
}

func (s *Service) changedSinceLoad() (bool, error) {
	_, _, sum, err := s.readFiles()
	if err != nil {
		return false, err
	}
	s.loadedMu.Lock()
	defer s.loadedMu.Unlock()
	return sum != s.loaded, nil
}

// readFiles reads both config files and computes the combined content
// signature. The secrets file is optional.
func (s *Service) readFiles() (ecoRaw, secretsRaw []byte, sum uint64, err error) {
	ecoRaw, err = os.ReadFile(s.ecoPath)
	if err != nil {
		return nil, nil, 0, &Error{Kind: ErrIO, Path: s.ecoPath, Err: err}
	}

	if s.secretsPath != "" {
		secretsRaw, err = os.ReadFile(s.secretsPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, nil, 0, &Error{Kind: ErrIO, Path: s.secretsPath, Err: err}
			}
			secretsRaw = nil
		}
	}

	h := xxhash.New()
	_, _ = h.Write(ecoRaw)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(secretsRaw)
	return ecoRaw, secretsRaw, h.Sum64(), nil
}
