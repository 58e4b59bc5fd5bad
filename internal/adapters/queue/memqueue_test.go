package queue

import (
	"testing"

	"github.com/vaamb/gaia/internal/domain"
)

func TestMemQueueEnqueueDequeueOrder(t *testing.T) {
	q := NewMemQueue(4)

	e1 := domain.Event{ID: "e1"}
	e2 := domain.Event{ID: "e2"}

	if q.Enqueue(e1) != 0 || q.Enqueue(e2) != 0 {
		t.Fatalf("expected enqueue without eviction")
	}

	batch := q.DequeueBatch(1)
	if len(batch) != 1 || batch[0].ID != "e1" {
		t.Fatalf("unexpected first batch: %+v", batch)
	}

	remaining := q.DequeueBatch(10)
	if len(remaining) != 1 || remaining[0].ID != "e2" {
		t.Fatalf("unexpected second batch: %+v", remaining)
	}

	if q.Len() != 0 {
		t.Fatalf("queue should be empty, got %d", q.Len())
	}
}

func TestMemQueueDropsOldestWhenFull(t *testing.T) {
	q := NewMemQueue(2)

	q.Enqueue(domain.Event{ID: "a"})
	q.Enqueue(domain.Event{ID: "b"})

	if evicted := q.Enqueue(domain.Event{ID: "c"}); evicted != 1 {
		t.Fatalf("expected one eviction, got %d", evicted)
	}

	batch := q.DequeueBatch(10)
	if len(batch) != 2 || batch[0].ID != "b" || batch[1].ID != "c" {
		t.Fatalf("expected oldest event dropped, got %+v", batch)
	}
}
