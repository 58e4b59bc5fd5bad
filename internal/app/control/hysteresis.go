package control

// Hysteresis drives an on/off actuator toward a target with a dead
// band around it, so the actuator never toggles twice without the
// measurement re-crossing the opposite threshold.
//
// In the default (increase) direction the actuator turns on below
// target-band and off above target+band, matching a heater or
// humidifier. Inverted flips the comparisons for coolers and
// dehumidifiers.
type Hysteresis struct {
	Band     float64
	Inverted bool

	on bool
}

// Update advances the controller and returns the desired switch state.
func (h *Hysteresis) Update(target, measured float64) bool {
	low := target - h.Band
	high := target + h.Band

	if h.Inverted {
		switch {
		case measured > high:
			h.on = true
		case measured < low:
			h.on = false
		}
		return h.on
	}

	switch {
	case measured < low:
		h.on = true
	case measured > high:
		h.on = false
	}
	return h.on
}

// On reports the current switch state without advancing.
func (h *Hysteresis) On() bool { return h.on }

// Reset opens the switch; used when a unit is restarted.
func (h *Hysteresis) Reset() { h.on = false }
