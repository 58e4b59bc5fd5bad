package domain

import "time"

// Quantity names a physical quantity produced by a sensor or regulated
// by an actuator.
type Quantity string

const (
	QuantityTemperature Quantity = "temperature"
	QuantityHumidity    Quantity = "humidity"
	QuantityLight       Quantity = "light"
	QuantityMoisture    Quantity = "moisture"
)

// Measurement is one reading taken from one sensor driver. It is
// immutable once produced: the owning subroutine aggregates it, the
// telemetry path forwards copies upward.
type Measurement struct {
	DriverID  string    `json:"driver_id"`
	Quantity  Quantity  `json:"quantity"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"ts"`
}

// ActuatorOutput records the setpoint last written to one actuator
// driver. On reflects the effective switch state for on/off hardware;
// Value carries the continuous level for dimmable hardware (0-100).
type ActuatorOutput struct {
	DriverID string  `json:"driver_id"`
	Value    float64 `json:"value"`
	On       bool    `json:"on"`
}

// MeanByQuantity averages redundant measurements of the same quantity.
// Faulted sensors are expected to be excluded by the caller before
// aggregation.
func MeanByQuantity(measurements []Measurement, q Quantity) (float64, bool) {
	var (
		sum float64
		n   int
	)
	for _, m := range measurements {
		if m.Quantity != q {
			continue
		}
		sum += m.Value
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
