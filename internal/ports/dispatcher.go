package ports

import (
	"context"

	"github.com/vaamb/gaia/internal/domain"
)

// Dispatcher delivers telemetry events to the remote supervisor. The
// transport is an external concern; implementations only honor the
// message contract. A failed Publish is retried out of the journal by
// the engine's dispatch pump.
type Dispatcher interface {
	Name() string
	Publish(ctx context.Context, ev domain.Event) error
}

// CommandSource exposes inbound supervisor commands. A nil channel
// (or an implementation that never sends) is valid: inbound control
// is optional.
type CommandSource interface {
	Commands() <-chan domain.Command
}
