package ports

import "github.com/vaamb/gaia/internal/domain"

// JournalEntryID uniquely identifies a journal entry.
type JournalEntryID uint64

// Journal is the on-disk buffer for telemetry that could not be
// delivered. Events are appended when the dispatcher is unreachable
// and replayed in order once it recovers; Commit advances the
// delivered watermark.
type Journal interface {
	Append(ev *domain.Event) (JournalEntryID, error)
	Iterate(from JournalEntryID, fn func(id JournalEntryID, ev *domain.Event) error) error
	Commit(upto JournalEntryID) error
	Stats() JournalStats
}

// JournalStats exposes journal metadata for observability and for the
// size-bound eviction decision.
type JournalStats struct {
	OldestUncommitted JournalEntryID
	LatestAppended    JournalEntryID
	SizeBytes         int64
}
