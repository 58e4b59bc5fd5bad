package ports

import (
	"context"

	"github.com/vaamb/gaia/internal/domain"
)

// Recorder is the append-only persistence boundary. The core writes
// measurements and status transitions and never reads them back.
type Recorder interface {
	Name() string
	AppendMeasurements(ctx context.Context, batch []domain.Measurement) error
	AppendStatus(ctx context.Context, ev domain.Event) error
}
