package subroutine

import (
	"context"
	"time"

	"github.com/vaamb/gaia/internal/app/config"
	"github.com/vaamb/gaia/internal/domain"
)

// Light drives the lighting fixtures. A fixture whose quantity has a
// configured target is regulated toward it like any other loop; a
// fixture without one follows the ecosystem's day window: full on
// during the day, off at night.
type Light struct {
	base
	reg *regulator
}

var _ Unit = (*Light)(nil)

func newLight(rt Runtime, cfg config.UnitConfig) *Light {
	return &Light{base: newBase(rt, domain.UnitLight, cfg), reg: newRegulator()}
}

func (u *Light) Start(ctx context.Context) error { return u.start(ctx) }

func (u *Light) Stop(ctx context.Context) error {
	u.reg.reset()
	return u.stop(ctx)
}

func (u *Light) ApplyConfig(cfg config.UnitConfig) error { return u.applyConfig(cfg) }

func (u *Light) Tick(ctx context.Context, now time.Time) error {
	measurements := u.readSensors(ctx, now)
	if u.rt.Readings != nil && len(measurements) > 0 {
		u.rt.Readings.Record(now, measurements)
	}

	outputs := u.regulate(ctx, now, u.reg)
	outputs = append(outputs, u.scheduled(ctx, now)...)

	u.refreshStatus()
	u.emit(now, measurements, outputs)

	if u.status == domain.StatusError {
		return &domain.UnitError{
			EcosystemID: u.rt.EcosystemID,
			Unit:        u.kind,
			Reason:      "all drivers faulted",
		}
	}
	return nil
}

// scheduled switches every untargeted fixture by day window.
func (u *Light) scheduled(ctx context.Context, now time.Time) []domain.ActuatorOutput {
	day := true
	if u.rt.Window != nil {
		day = u.rt.Window().Contains(now)
	}

	var outputs []domain.ActuatorOutput
	for _, a := range u.actuators {
		if _, targeted := u.cfg.Targets[a.regulates]; targeted {
			continue
		}
		var level float64
		if day != a.inverted {
			level = 100
		}
		if out, ok := u.writeActuator(ctx, a, level); ok {
			outputs = append(outputs, out)
		}
	}
	return outputs
}
