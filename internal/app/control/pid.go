package control

import "time"

// PID is a proportional-integral-derivative controller with output
// clamping and integral freeze while saturated (anti-windup). It keeps
// its accumulators across config updates so an unrelated edit never
// resets a converged loop.
type PID struct {
	Kp, Ki, Kd     float64
	OutMin, OutMax float64

	integral  float64
	lastError float64
	lastTime  time.Time
	primed    bool
}

// Update advances the controller by one step and returns the clamped
// output. The first call after construction or Reset only applies the
// proportional term since no time base exists yet.
func (p *PID) Update(setpoint, measured float64, now time.Time) float64 {
	err := setpoint - measured

	var dt float64
	if p.primed {
		dt = now.Sub(p.lastTime).Seconds()
		if dt < 0 {
			dt = 0
		}
	}

	var derivative float64
	if dt > 0 {
		derivative = (err - p.lastError) / dt
	}

	candidate := p.integral + err*dt
	out := p.Kp*err + p.Ki*candidate + p.Kd*derivative

	switch {
	case out > p.OutMax:
		out = p.OutMax
	case out < p.OutMin:
		out = p.OutMin
	default:
		// Accumulate only while unsaturated.
		p.integral = candidate
	}

	p.lastError = err
	p.lastTime = now
	p.primed = true
	return out
}

// Reset clears the accumulators; used when a unit is restarted.
func (p *PID) Reset() {
	p.integral = 0
	p.lastError = 0
	p.primed = false
}

// Integral exposes the accumulator for telemetry and tests.
func (p *PID) Integral() float64 { return p.integral }
