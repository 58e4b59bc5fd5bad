package subroutine

import (
	"context"
	"time"

	"github.com/vaamb/gaia/internal/app/config"
	"github.com/vaamb/gaia/internal/domain"
)

// Climate regulates temperature and humidity. Each actuator binding
// declares the quantity it drives and its direction, so one unit can
// run a heater, a cooler and a humidifier side by side without the
// loops interfering.
type Climate struct {
	base
	reg *regulator
}

var _ Unit = (*Climate)(nil)

func newClimate(rt Runtime, cfg config.UnitConfig) *Climate {
	return &Climate{base: newBase(rt, domain.UnitClimate, cfg), reg: newRegulator()}
}

func (u *Climate) Start(ctx context.Context) error { return u.start(ctx) }

func (u *Climate) Stop(ctx context.Context) error {
	u.reg.reset()
	return u.stop(ctx)
}

func (u *Climate) ApplyConfig(cfg config.UnitConfig) error { return u.applyConfig(cfg) }

func (u *Climate) Tick(ctx context.Context, now time.Time) error {
	// Own sensors feed the shared store first so the control step can
	// act on this tick's reading.
	measurements := u.readSensors(ctx, now)
	if u.rt.Readings != nil && len(measurements) > 0 {
		u.rt.Readings.Record(now, measurements)
	}

	outputs := u.regulate(ctx, now, u.reg)
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
