package queue

import (
	"sync"

	"github.com/vaamb/gaia/internal/domain"
	"github.com/vaamb/gaia/internal/ports"
)

// MemQueue is a bounded in-memory event queue that preserves FIFO
// ordering. When full it evicts the oldest events rather than
// blocking: control loops must never stall on telemetry backpressure.
type MemQueue struct {
	mu   sync.Mutex
	data []domain.Event
	cap  int
}

func NewMemQueue(capacity int) *MemQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemQueue{
		data: make([]domain.Event, 0, capacity),
		cap:  capacity,
	}
}

func (q *MemQueue) Enqueue(ev domain.Event) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var evicted int
	for len(q.data) >= q.cap {
		q.data = append(q.data[:0], q.data[1:]...)
		evicted++
	}
	q.data = append(q.data, ev)
	return evicted
}

func (q *MemQueue) DequeueBatch(max int) []domain.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]domain.Event, max)
	copy(out, q.data[:max])
	q.data = append(q.data[:0], q.data[max:]...)
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

var _ ports.EventQueue = (*MemQueue)(nil)
