package ports

import (
	"context"

	"github.com/vaamb/gaia/internal/domain"
)

// Driver is the uniform contract for one physical device bound to one
// bus address. Construction claims the address exclusively; Close
// releases it. Drivers never retry internally: retry policy belongs to
// the owning subroutine so the contract stays uniform across
// transports.
type Driver interface {
	ID() string
	Model() string
	Address() domain.Address
	Close() error
}

// Sensor produces measurements. A single read may yield several
// quantities (e.g. a temperature + humidity combo sensor).
type Sensor interface {
	Driver
	Measures() []domain.Quantity
	Read(ctx context.Context) ([]domain.Measurement, error)
}

// Actuator accepts a setpoint in the 0-100 range. On/off hardware
// treats anything > 0 as "on".
type Actuator interface {
	Driver
	Write(ctx context.Context, level float64) error
}
