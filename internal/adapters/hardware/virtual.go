package hardware

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/vaamb/gaia/internal/domain"
	"github.com/vaamb/gaia/internal/ports"
)

func init() {
	RegisterModel("virtualSensor", newVirtualSensor)
	RegisterModel("virtualSwitch", newVirtualSwitch)
	RegisterModel("virtualDimmable", newVirtualDimmable)
}

// VirtualSensor produces synthetic measurements: a slow sine around a
// baseline per quantity, or a pinned value set through SetValue. It
// backs development setups and the simulated scenarios in tests.
type VirtualSensor struct {
	base
	mu       sync.Mutex
	measures []domain.Quantity
	pinned   map[domain.Quantity]float64
	epoch    time.Time
}

var virtualBaselines = map[domain.Quantity]float64{
	domain.QuantityTemperature: 20,
	domain.QuantityHumidity:    55,
	domain.QuantityLight:       5000,
	domain.QuantityMoisture:    40,
}

func newVirtualSensor(cfg Config, release func()) (ports.Driver, error) {
	measures := cfg.Measures
	if len(measures) == 0 {
		measures = []domain.Quantity{domain.QuantityTemperature}
	}
	return &VirtualSensor{
		base:     base{id: cfg.ID, model: cfg.Model, addr: cfg.Address, release: release},
		measures: measures,
		pinned:   map[domain.Quantity]float64{},
		epoch:    time.Now(),
	}, nil
}

func (s *VirtualSensor) Measures() []domain.Quantity { return s.measures }

func (s *VirtualSensor) Read(_ context.Context) ([]domain.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	out := make([]domain.Measurement, 0, len(s.measures))
	for _, q := range s.measures {
		v, pinned := s.pinned[q]
		if !pinned {
			base := virtualBaselines[q]
			phase := time.Since(s.epoch).Seconds() / 3600 * 2 * math.Pi
			v = base + base*0.05*math.Sin(phase)
		}
		out = append(out, domain.Measurement{
			DriverID:  s.id,
			Quantity:  q,
			Value:     v,
			Timestamp: now,
		})
	}
	return out, nil
}

// SetValue pins the reading for one quantity; subsequent Reads return
// it until changed.
func (s *VirtualSensor) SetValue(q domain.Quantity, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned[q] = v
}

// VirtualSwitch records the last on/off state written to it.
type VirtualSwitch struct {
	base
	mu sync.Mutex
	on bool
}

func newVirtualSwitch(cfg Config, release func()) (ports.Driver, error) {
	return &VirtualSwitch{
		base: base{id: cfg.ID, model: cfg.Model, addr: cfg.Address, release: release},
	}, nil
}

func (s *VirtualSwitch) Write(_ context.Context, level float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on = level > 0
	return nil
}

func (s *VirtualSwitch) On() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on
}

// VirtualDimmable records the last continuous level written to it.
type VirtualDimmable struct {
	base
	mu    sync.Mutex
	level float64
}

func newVirtualDimmable(cfg Config, release func()) (ports.Driver, error) {
	return &VirtualDimmable{
		base: base{id: cfg.ID, model: cfg.Model, addr: cfg.Address, release: release},
	}, nil
}

func (d *VirtualDimmable) Write(_ context.Context, level float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	d.level = level
	return nil
}

func (d *VirtualDimmable) Level() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}

var (
	_ ports.Sensor   = (*VirtualSensor)(nil)
	_ ports.Actuator = (*VirtualSwitch)(nil)
	_ ports.Actuator = (*VirtualDimmable)(nil)
)
