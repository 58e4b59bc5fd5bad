package subroutine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vaamb/gaia/internal/adapters/hardware"
	"github.com/vaamb/gaia/internal/app/config"
	"github.com/vaamb/gaia/internal/app/control"
	"github.com/vaamb/gaia/internal/domain"
	"github.com/vaamb/gaia/internal/ports"
)

type nopObs struct{}

func (nopObs) LogInfo(string, ...ports.Field)            {}
func (nopObs) LogError(string, error, ...ports.Field)    {}
func (nopObs) LogCritical(string, error, ...ports.Field) {}
func (nopObs) IncCounter(string, float64)                {}
func (nopObs) ObserveLatency(string, float64)            {}
func (nopObs) SetGauge(string, float64)                  {}

// fake drivers register as hardware models once and record the built
// instances so tests can steer them after a unit claims them.

type fakeSensor struct {
	mu       sync.Mutex
	id       string
	addr     domain.Address
	release  func()
	measures []domain.Quantity
	value    float64
	readErr  error
}

func (f *fakeSensor) ID() string                  { return f.id }
func (f *fakeSensor) Model() string               { return "testSensor" }
func (f *fakeSensor) Address() domain.Address     { return f.addr }
func (f *fakeSensor) Measures() []domain.Quantity { return f.measures }

func (f *fakeSensor) Close() error {
	if f.release != nil {
		f.release()
	}
	return nil
}

func (f *fakeSensor) Read(context.Context) ([]domain.Measurement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([]domain.Measurement, 0, len(f.measures))
	for _, q := range f.measures {
		out = append(out, domain.Measurement{DriverID: f.id, Quantity: q, Value: f.value})
	}
	return out, nil
}

func (f *fakeSensor) set(v float64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = v
	f.readErr = err
}

type fakeActuator struct {
	mu      sync.Mutex
	id      string
	addr    domain.Address
	release func()
	levels  []float64
}

func (f *fakeActuator) ID() string              { return f.id }
func (f *fakeActuator) Model() string           { return "testActuator" }
func (f *fakeActuator) Address() domain.Address { return f.addr }

func (f *fakeActuator) Close() error {
	if f.release != nil {
		f.release()
	}
	return nil
}

func (f *fakeActuator) Write(_ context.Context, level float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, level)
	return nil
}

func (f *fakeActuator) last() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.levels) == 0 {
		return 0, false
	}
	return f.levels[len(f.levels)-1], true
}

var builtDrivers = struct {
	mu        sync.Mutex
	sensors   map[string]*fakeSensor
	actuators map[string]*fakeActuator
}{
	sensors:   map[string]*fakeSensor{},
	actuators: map[string]*fakeActuator{},
}

func init() {
	hardware.RegisterModel("testSensor", func(cfg hardware.Config, release func()) (ports.Driver, error) {
		s := &fakeSensor{id: cfg.ID, addr: cfg.Address, release: release, measures: cfg.Measures, value: 20}
		builtDrivers.mu.Lock()
		builtDrivers.sensors[cfg.ID] = s
		builtDrivers.mu.Unlock()
		return s, nil
	})
	hardware.RegisterModel("testActuator", func(cfg hardware.Config, release func()) (ports.Driver, error) {
		a := &fakeActuator{id: cfg.ID, addr: cfg.Address, release: release}
		builtDrivers.mu.Lock()
		builtDrivers.actuators[cfg.ID] = a
		builtDrivers.mu.Unlock()
		return a, nil
	})
}

func builtSensor(t *testing.T, id string) *fakeSensor {
	t.Helper()
	builtDrivers.mu.Lock()
	defer builtDrivers.mu.Unlock()
	s, ok := builtDrivers.sensors[id]
	if !ok {
		t.Fatalf("sensor %s was never built", id)
	}
	return s
}

func builtActuator(t *testing.T, id string) *fakeActuator {
	t.Helper()
	builtDrivers.mu.Lock()
	defer builtDrivers.mu.Unlock()
	a, ok := builtDrivers.actuators[id]
	if !ok {
		t.Fatalf("actuator %s was never built", id)
	}
	return a
}

func testRuntime(events *[]domain.Event) Runtime {
	return Runtime{
		EcosystemID: "eco-1",
		Registry:    hardware.NewRegistry(),
		Obs:         nopObs{},
		Policy:      ports.Policy{DriverFaultAfter: 3},
		Emit: func(ev domain.Event) {
			if events != nil {
				*events = append(*events, ev)
			}
		},
		Readings: NewReadingStore(),
		Window: func() control.DayWindow {
			return control.DayWindow{
				Start: control.TimeOfDay{Hour: 8},
				End:   control.TimeOfDay{Hour: 20},
			}
		},
	}
}

func at(hour int) time.Time {
	return time.Date(2026, 8, 30, hour, 0, 0, 0, time.UTC)
}

func TestSensorsTickFeedsStoreAndEmits(t *testing.T) {
	var events []domain.Event
	rt := testRuntime(&events)
	unit, err := New(domain.UnitSensors, rt, config.UnitConfig{
		Enabled: true,
		Hardware: []config.HardwareConfig{
			{ID: "temp-1", Address: "gpio:0:11", Model: "testSensor", Measures: []domain.Quantity{domain.QuantityTemperature}},
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := unit.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer unit.Stop(context.Background())

	builtSensor(t, "temp-1").set(21.5, nil)
	if err := unit.Tick(context.Background(), at(12)); err != nil {
		t.Fatalf("tick: %v", err)
	}

	v, ok := rt.Readings.Fresh(domain.QuantityTemperature, at(12), staleAfter)
	if !ok || v != 21.5 {
		t.Fatalf("expected store to hold 21.5, got %v ok=%v", v, ok)
	}
	if len(events) != 1 || len(events[0].Measurements) != 1 {
		t.Fatalf("expected one event with one measurement, got %+v", events)
	}
	if events[0].Status != domain.StatusRunning {
		t.Fatalf("expected running status, got %s", events[0].Status)
	}
}

func TestClimatePIDOutputRisesWhenBelowSetpoint(t *testing.T) {
	rt := testRuntime(nil)
	unit, err := New(domain.UnitClimate, rt, config.UnitConfig{
		Enabled: true,
		Targets: map[domain.Quantity]control.Target{
			domain.QuantityTemperature: {Day: 22, Night: 18},
		},
		Hardware: []config.HardwareConfig{
			{ID: "heater-1", Address: "pwm:0:17", Model: "testActuator", Regulates: domain.QuantityTemperature},
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := unit.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer unit.Stop(context.Background())

	now := at(12)
	rt.Readings.Record(now, []domain.Measurement{
		{DriverID: "probe", Quantity: domain.QuantityTemperature, Value: 19},
	})
	if err := unit.Tick(context.Background(), now); err != nil {
		t.Fatalf("tick: %v", err)
	}

	first, ok := builtActuator(t, "heater-1").last()
	if !ok {
		t.Fatal("heater never written")
	}
	if first <= 0 {
		t.Fatalf("expected positive output 3C below setpoint, got %v", first)
	}

	// Still below setpoint: the integral term keeps pushing the
	// output up.
	later := now.Add(5 * time.Second)
	rt.Readings.Record(later, []domain.Measurement{
		{DriverID: "probe", Quantity: domain.QuantityTemperature, Value: 19},
	})
	if err := unit.Tick(context.Background(), later); err != nil {
		t.Fatalf("tick: %v", err)
	}
	second, _ := builtActuator(t, "heater-1").last()
	if second <= first {
		t.Fatalf("expected output to rise under persistent error, got %v then %v", first, second)
	}
}

func TestClimateUsesNightSetpointOutsideDayWindow(t *testing.T) {
	rt := testRuntime(nil)
	unit, err := New(domain.UnitClimate, rt, config.UnitConfig{
		Enabled: true,
		Targets: map[domain.Quantity]control.Target{
			domain.QuantityTemperature: {Day: 22, Night: 18, Hysteresis: 0.5},
		},
		Hardware: []config.HardwareConfig{
			{ID: "heater-n", Address: "pwm:0:18", Model: "testActuator", Regulates: domain.QuantityTemperature},
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := unit.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer unit.Stop(context.Background())

	// 19C at night is above the 18C target: heater stays off. The
	// same reading during the day sits far below 22C: heater turns on.
	night := at(23)
	rt.Readings.Record(night, []domain.Measurement{
		{DriverID: "probe", Quantity: domain.QuantityTemperature, Value: 19},
	})
	if err := unit.Tick(context.Background(), night); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if level, _ := builtActuator(t, "heater-n").last(); level != 0 {
		t.Fatalf("expected heater off at night with 19C, got level %v", level)
	}

	day := at(12)
	rt.Readings.Record(day, []domain.Measurement{
		{DriverID: "probe", Quantity: domain.QuantityTemperature, Value: 19},
	})
	if err := unit.Tick(context.Background(), day); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if level, _ := builtActuator(t, "heater-n").last(); level != 100 {
		t.Fatalf("expected heater on during day with 19C, got level %v", level)
	}
}

func TestApplyConfigMovesTargetWithoutResettingController(t *testing.T) {
	rt := testRuntime(nil)
	cfg := config.UnitConfig{
		Enabled: true,
		Targets: map[domain.Quantity]control.Target{
			domain.QuantityTemperature: {Day: 22, Night: 22, Hysteresis: 0.5},
		},
		Hardware: []config.HardwareConfig{
			{ID: "heater-2", Address: "pwm:0:19", Model: "testActuator", Regulates: domain.QuantityTemperature},
		},
	}
	unit, err := New(domain.UnitClimate, rt, cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := unit.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer unit.Stop(context.Background())

	now := at(12)
	rt.Readings.Record(now, []domain.Measurement{
		{DriverID: "probe", Quantity: domain.QuantityTemperature, Value: 20},
	})
	if err := unit.Tick(context.Background(), now); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if level, _ := builtActuator(t, "heater-2").last(); level != 100 {
		t.Fatalf("expected heater on below band, got %v", level)
	}

	// Raise the target. Only the setpoint moves: the latched switch
	// state survives and the reading is now even further below the
	// band, so the heater stays on.
	cfg.Targets = map[domain.Quantity]control.Target{
		domain.QuantityTemperature: {Day: 24, Night: 24, Hysteresis: 0.5},
	}
	if err := unit.ApplyConfig(cfg); err != nil {
		t.Fatalf("apply config: %v", err)
	}

	later := now.Add(time.Second)
	rt.Readings.Record(later, []domain.Measurement{
		{DriverID: "probe", Quantity: domain.QuantityTemperature, Value: 20},
	})
	if err := unit.Tick(context.Background(), later); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if level, _ := builtActuator(t, "heater-2").last(); level != 100 {
		t.Fatalf("expected heater still on after target change, got %v", level)
	}
}

func TestApplyConfigHardwareChangeRequiresRestart(t *testing.T) {
	rt := testRuntime(nil)
	cfg := config.UnitConfig{
		Enabled: true,
		Hardware: []config.HardwareConfig{
			{ID: "temp-3", Address: "gpio:0:12", Model: "testSensor", Measures: []domain.Quantity{domain.QuantityTemperature}},
		},
	}
	unit, err := New(domain.UnitSensors, rt, cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := unit.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer unit.Stop(context.Background())

	cfg.Hardware = []config.HardwareConfig{
		{ID: "temp-3", Address: "gpio:0:13", Model: "testSensor", Measures: []domain.Quantity{domain.QuantityTemperature}},
	}
	if err := unit.ApplyConfig(cfg); !errors.Is(err, ErrRestartRequired) {
		t.Fatalf("expected ErrRestartRequired, got %v", err)
	}
}

func TestDriverFaultsAfterThresholdAndClearsOnSuccess(t *testing.T) {
	var events []domain.Event
	rt := testRuntime(&events)
	unit, err := New(domain.UnitSensors, rt, config.UnitConfig{
		Enabled: true,
		Hardware: []config.HardwareConfig{
			{ID: "temp-4", Address: "gpio:0:14", Model: "testSensor", Measures: []domain.Quantity{domain.QuantityTemperature}},
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := unit.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer unit.Stop(context.Background())

	builtSensor(t, "temp-4").set(0, errors.New("bus timeout"))
	for i := 0; i < 3; i++ {
		unit.Tick(context.Background(), at(12).Add(time.Duration(i)*time.Second))
	}
	h := unit.Health()["temp-4"]
	if !h.Faulted() || h.Failures != 3 {
		t.Fatalf("expected fault after 3 failures, got %+v", h)
	}
	if unit.Status() != domain.StatusError {
		t.Fatalf("expected error status with sole sensor faulted, got %s", unit.Status())
	}

	builtSensor(t, "temp-4").set(20, nil)
	if err := unit.Tick(context.Background(), at(12).Add(5*time.Second)); err != nil {
		t.Fatalf("tick after recovery: %v", err)
	}
	h = unit.Health()["temp-4"]
	if h.Faulted() || h.Failures != 0 {
		t.Fatalf("expected single success to clear fault, got %+v", h)
	}
	if unit.Status() != domain.StatusRunning {
		t.Fatalf("expected running after recovery, got %s", unit.Status())
	}
}

func TestLightFollowsDayWindow(t *testing.T) {
	rt := testRuntime(nil)
	unit, err := New(domain.UnitLight, rt, config.UnitConfig{
		Enabled: true,
		Hardware: []config.HardwareConfig{
			{ID: "lamp-1", Address: "gpio:0:15", Model: "testActuator", Regulates: domain.QuantityLight},
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := unit.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer unit.Stop(context.Background())

	if err := unit.Tick(context.Background(), at(12)); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if level, _ := builtActuator(t, "lamp-1").last(); level != 100 {
		t.Fatalf("expected lamp on during day, got %v", level)
	}

	if err := unit.Tick(context.Background(), at(22)); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if level, _ := builtActuator(t, "lamp-1").last(); level != 0 {
		t.Fatalf("expected lamp off at night, got %v", level)
	}
}

func TestWateringHysteresisOnMoisture(t *testing.T) {
	rt := testRuntime(nil)
	unit, err := New(domain.UnitWatering, rt, config.UnitConfig{
		Enabled: true,
		Targets: map[domain.Quantity]control.Target{
			domain.QuantityMoisture: {Day: 40, Night: 40, Hysteresis: 5},
		},
		Hardware: []config.HardwareConfig{
			{ID: "probe-1", Address: "gpio:0:20", Model: "testSensor", Measures: []domain.Quantity{domain.QuantityMoisture}},
			{ID: "pump-1", Address: "gpio:0:21", Model: "testActuator", Regulates: domain.QuantityMoisture},
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := unit.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer unit.Stop(context.Background())

	builtSensor(t, "probe-1").set(30, nil)
	if err := unit.Tick(context.Background(), at(10)); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if level, _ := builtActuator(t, "pump-1").last(); level != 100 {
		t.Fatalf("expected pump on dry soil, got %v", level)
	}

	// Inside the band: pump stays latched on.
	builtSensor(t, "probe-1").set(42, nil)
	if err := unit.Tick(context.Background(), at(10).Add(time.Minute)); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if level, _ := builtActuator(t, "pump-1").last(); level != 100 {
		t.Fatalf("expected pump latched inside band, got %v", level)
	}

	builtSensor(t, "probe-1").set(46, nil)
	if err := unit.Tick(context.Background(), at(10).Add(2*time.Minute)); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if level, _ := builtActuator(t, "pump-1").last(); level != 0 {
		t.Fatalf("expected pump off above band, got %v", level)
	}
}

func TestStopWritesSafeLevelAndReleasesAddress(t *testing.T) {
	rt := testRuntime(nil)
	cfg := config.UnitConfig{
		Enabled: true,
		Targets: map[domain.Quantity]control.Target{
			domain.QuantityTemperature: {Day: 22, Night: 22, Hysteresis: 0.5},
		},
		Hardware: []config.HardwareConfig{
			{ID: "heater-5", Address: "gpio:0:4", Model: "testActuator", Regulates: domain.QuantityTemperature},
		},
	}
	unit, err := New(domain.UnitClimate, rt, cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := unit.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// A second unit on the same registry cannot claim the address
	// while the first holds it.
	second, err := New(domain.UnitWatering, rt, config.UnitConfig{
		Enabled: true,
		Hardware: []config.HardwareConfig{
			{ID: "pump-5", Address: "gpio:0:4", Model: "testActuator", Regulates: domain.QuantityMoisture},
		},
	})
	if err != nil {
		t.Fatalf("new second: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected second unit to fail on claimed address")
	}

	if err := unit.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if level, ok := builtActuator(t, "heater-5").last(); !ok || level != 0 {
		t.Fatalf("expected safe level 0 written on stop, got %v ok=%v", level, ok)
	}
	if unit.Status() != domain.StatusStopped {
		t.Fatalf("expected stopped, got %s", unit.Status())
	}

	// Released address is acquirable again.
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("restart on released address: %v", err)
	}
	second.Stop(context.Background())
}

func TestStartFailsWholeUnitOnHeldAddress(t *testing.T) {
	rt := testRuntime(nil)
	first, err := New(domain.UnitClimate, rt, config.UnitConfig{
		Enabled: true,
		Hardware: []config.HardwareConfig{
			{ID: "heater-6", Address: "gpio:0:4", Model: "testActuator", Regulates: domain.QuantityTemperature},
		},
	})
	if err != nil {
		t.Fatalf("new first: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("start first: %v", err)
	}
	defer first.Stop(context.Background())

	// The second unit has a perfectly good sensor of its own, but its
	// actuator address is held: the whole start must fail, not degrade.
	second, err := New(domain.UnitWatering, rt, config.UnitConfig{
		Enabled: true,
		Hardware: []config.HardwareConfig{
			{ID: "probe-6", Address: "gpio:0:22", Model: "testSensor", Measures: []domain.Quantity{domain.QuantityMoisture}},
			{ID: "pump-6", Address: "gpio:0:4", Model: "testActuator", Regulates: domain.QuantityMoisture},
		},
	})
	if err != nil {
		t.Fatalf("new second: %v", err)
	}
	startErr := second.Start(context.Background())
	if startErr == nil {
		t.Fatalf("expected start to fail on held address, got nil (status %s)", second.Status())
	}
	var addrErr *domain.AddressError
	if !errors.As(startErr, &addrErr) {
		t.Fatalf("expected AddressError, got %v", startErr)
	}
	if second.Status() != domain.StatusError {
		t.Fatalf("expected error status after failed start, got %s", second.Status())
	}

	// The partial acquisition was rolled back: the sensor address is
	// free for another unit.
	third, err := New(domain.UnitSensors, rt, config.UnitConfig{
		Enabled: true,
		Hardware: []config.HardwareConfig{
			{ID: "probe-7", Address: "gpio:0:22", Model: "testSensor", Measures: []domain.Quantity{domain.QuantityMoisture}},
		},
	})
	if err != nil {
		t.Fatalf("new third: %v", err)
	}
	if err := third.Start(context.Background()); err != nil {
		t.Fatalf("expected released sensor address to be acquirable, got %v", err)
	}
	third.Stop(context.Background())
}

func TestCapabilityMismatchLeavesNoHealthEntry(t *testing.T) {
	rt := testRuntime(nil)
	unit, err := New(domain.UnitClimate, rt, config.UnitConfig{
		Enabled: true,
		Hardware: []config.HardwareConfig{
			// A sensor model in an actuator role is closed and discarded;
			// it must not linger in the health map.
			{ID: "bogus-1", Address: "gpio:0:30", Model: "testSensor", Regulates: domain.QuantityTemperature},
			{ID: "temp-8", Address: "gpio:0:31", Model: "testSensor", Measures: []domain.Quantity{domain.QuantityTemperature}},
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := unit.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer unit.Stop(context.Background())

	health := unit.Health()
	if _, ok := health["bogus-1"]; ok {
		t.Fatalf("discarded driver must not appear in health: %+v", health)
	}
	if _, ok := health["temp-8"]; !ok {
		t.Fatalf("built driver missing from health: %+v", health)
	}

	// With the phantom entry gone, faulting the only real driver drives
	// the unit to error instead of sticking at degraded.
	builtSensor(t, "temp-8").set(0, errors.New("bus timeout"))
	for i := 0; i < 3; i++ {
		unit.Tick(context.Background(), at(12).Add(time.Duration(i)*time.Second))
	}
	if unit.Status() != domain.StatusError {
		t.Fatalf("expected error with every live driver faulted, got %s", unit.Status())
	}
}

func TestIntervalDefaultsComeFromPolicy(t *testing.T) {
	rt := testRuntime(nil)
	rt.Policy.SensorInterval = 30 * time.Second
	rt.Policy.ActuatorInterval = 5 * time.Second

	sensing, err := New(domain.UnitSensors, rt, config.UnitConfig{Enabled: true})
	if err != nil {
		t.Fatalf("new sensors: %v", err)
	}
	if got := sensing.Interval(); got != 30*time.Second {
		t.Fatalf("expected policy sensor interval, got %v", got)
	}

	acting, err := New(domain.UnitClimate, rt, config.UnitConfig{Enabled: true})
	if err != nil {
		t.Fatalf("new climate: %v", err)
	}
	if got := acting.Interval(); got != 5*time.Second {
		t.Fatalf("expected policy actuator interval, got %v", got)
	}

	// An explicit per-unit interval still wins over the policy default.
	explicit, err := New(domain.UnitClimate, rt, config.UnitConfig{Enabled: true, Interval: config.Duration(2 * time.Second)})
	if err != nil {
		t.Fatalf("new explicit: %v", err)
	}
	if got := explicit.Interval(); got != 2*time.Second {
		t.Fatalf("expected per-unit interval to win, got %v", got)
	}
}
