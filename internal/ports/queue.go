package ports

import "github.com/vaamb/gaia/internal/domain"

// EventQueue buffers telemetry between the control loops (single
// producer side) and the dispatch pump. Bounded; when full the oldest
// event is evicted, since live control state matters more than
// historical telemetry gaps.
type EventQueue interface {
	// Enqueue always accepts the event; it returns the number of
	// older events evicted to make room.
	Enqueue(ev domain.Event) int
	DequeueBatch(max int) []domain.Event
	Len() int
}
