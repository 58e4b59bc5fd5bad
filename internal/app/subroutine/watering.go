package subroutine

import (
	"context"
	"time"

	"github.com/vaamb/gaia/internal/app/config"
	"github.com/vaamb/gaia/internal/domain"
)

// Watering regulates soil moisture. Pumps are plain on/off hardware,
// so moisture targets normally carry a hysteresis band; the unit's own
// moisture probes feed the reading store on every tick.
type Watering struct {
	base
	reg *regulator
}

var _ Unit = (*Watering)(nil)

func newWatering(rt Runtime, cfg config.UnitConfig) *Watering {
	return &Watering{base: newBase(rt, domain.UnitWatering, cfg), reg: newRegulator()}
}

func (u *Watering) Start(ctx context.Context) error { return u.start(ctx) }

func (u *Watering) Stop(ctx context.Context) error {
	u.reg.reset()
	return u.stop(ctx)
}

func (u *Watering) ApplyConfig(cfg config.UnitConfig) error { return u.applyConfig(cfg) }

func (u *Watering) Tick(ctx context.Context, now time.Time) error {
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
