package subroutine

import (
	"sync"
	"time"

	"github.com/vaamb/gaia/internal/domain"
)

// ReadingStore holds the latest aggregated reading per quantity for
// one ecosystem. The sensing unit writes, actuator units read; it is
// the only data shared between units.
type ReadingStore struct {
	mu     sync.RWMutex
	latest map[domain.Quantity]reading
}

type reading struct {
	value float64
	at    time.Time
}

func NewReadingStore() *ReadingStore {
	return &ReadingStore{latest: map[domain.Quantity]reading{}}
}

// Record aggregates a batch of measurements and stores the mean per
// quantity. Measurements from faulted drivers are expected to be
// filtered out by the caller.
func (s *ReadingStore) Record(now time.Time, measurements []domain.Measurement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[domain.Quantity]bool{}
	for _, m := range measurements {
		if seen[m.Quantity] {
			continue
		}
		if mean, ok := domain.MeanByQuantity(measurements, m.Quantity); ok {
			s.latest[m.Quantity] = reading{value: mean, at: now}
		}
		seen[m.Quantity] = true
	}
}

// Latest returns the stored mean for one quantity and when it was
// taken.
func (s *ReadingStore) Latest(q domain.Quantity) (float64, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.latest[q]
	return r.value, r.at, ok
}

// Fresh returns the stored mean only when it is younger than maxAge.
func (s *ReadingStore) Fresh(q domain.Quantity, now time.Time, maxAge time.Duration) (float64, bool) {
	v, at, ok := s.Latest(q)
	if !ok || now.Sub(at) > maxAge {
		return 0, false
	}
	return v, true
}
