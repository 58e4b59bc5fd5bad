package subroutine

import (
	"context"
	"time"

	"github.com/vaamb/gaia/internal/app/config"
	"github.com/vaamb/gaia/internal/domain"
)

// Sensors is the sensing subroutine: it polls every configured sensor
// on its interval, aggregates redundant readings into the ecosystem's
// reading store and emits the batch as telemetry. It starts before the
// actuator units so their first decision has data.
type Sensors struct {
	base
}

var _ Unit = (*Sensors)(nil)

func newSensors(rt Runtime, cfg config.UnitConfig) *Sensors {
	return &Sensors{base: newBase(rt, domain.UnitSensors, cfg)}
}

func (u *Sensors) Start(ctx context.Context) error { return u.start(ctx) }

func (u *Sensors) Stop(ctx context.Context) error { return u.stop(ctx) }

func (u *Sensors) ApplyConfig(cfg config.UnitConfig) error { return u.applyConfig(cfg) }

func (u *Sensors) Tick(ctx context.Context, now time.Time) error {
	measurements := u.readSensors(ctx, now)
	if u.rt.Readings != nil && len(measurements) > 0 {
		u.rt.Readings.Record(now, measurements)
	}
	u.refreshStatus()
	u.emit(now, measurements, nil)

	if u.status == domain.StatusError {
		return &domain.UnitError{
			EcosystemID: u.rt.EcosystemID,
			Unit:        u.kind,
			Reason:      "all sensors faulted",
		}
	}
	return nil
}
