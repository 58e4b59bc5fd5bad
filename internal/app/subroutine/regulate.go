package subroutine

import (
	"context"
	"time"

	"github.com/vaamb/gaia/internal/app/control"
	"github.com/vaamb/gaia/internal/domain"
)

// Default PID gains for proportional actuators. Loops that need tuning
// override them through hardware options; the defaults keep a slow
// thermal plant stable.
const (
	defaultKp = 10
	defaultKi = 0.05
	defaultKd = 0
)

// regulator owns one controller per actuator so redundant actuators on
// the same quantity never share accumulator state. Controllers survive
// config updates: a target edit moves the setpoint without resetting a
// converged loop.
type regulator struct {
	pids  map[string]*control.PID
	bands map[string]*control.Hysteresis
}

func newRegulator() *regulator {
	return &regulator{
		pids:  map[string]*control.PID{},
		bands: map[string]*control.Hysteresis{},
	}
}

func (r *regulator) pid(id string) *control.PID {
	p, ok := r.pids[id]
	if !ok {
		p = &control.PID{Kp: defaultKp, Ki: defaultKi, Kd: defaultKd, OutMin: 0, OutMax: 100}
		r.pids[id] = p
	}
	return p
}

func (r *regulator) band(id string, band float64, inverted bool) *control.Hysteresis {
	h, ok := r.bands[id]
	if !ok {
		h = &control.Hysteresis{}
		r.bands[id] = h
	}
	h.Band = band
	h.Inverted = inverted
	return h
}

// reset opens every switch and clears every accumulator; used when the
// owning unit restarts.
func (r *regulator) reset() {
	for _, p := range r.pids {
		p.Reset()
	}
	for _, h := range r.bands {
		h.Reset()
	}
}

// regulate runs one control step for every actuator that has a target
// and a fresh measurement. A target with a hysteresis band drives the
// actuator as an on/off switch; without one the actuator gets the
// continuous PID output.
func (b *base) regulate(ctx context.Context, now time.Time, reg *regulator) []domain.ActuatorOutput {
	if b.rt.Readings == nil {
		return nil
	}
	var outputs []domain.ActuatorOutput
	for _, a := range b.actuators {
		tgt, ok := b.cfg.Targets[a.regulates]
		if !ok {
			continue
		}
		measured, ok := b.rt.Readings.Fresh(a.regulates, now, staleAfter)
		if !ok {
			continue
		}
		setpoint := b.setpointFor(tgt, now)

		var level float64
		if tgt.Hysteresis > 0 {
			if reg.band(a.drv.ID(), tgt.Hysteresis, a.inverted).Update(setpoint, measured) {
				level = 100
			}
		} else {
			p := reg.pid(a.drv.ID())
			if a.inverted {
				level = p.Update(measured, setpoint, now)
			} else {
				level = p.Update(setpoint, measured, now)
			}
		}

		if out, ok := b.writeActuator(ctx, a, level); ok {
			outputs = append(outputs, out)
		}
	}
	return outputs
}
