package subroutine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vaamb/gaia/internal/adapters/hardware"
	"github.com/vaamb/gaia/internal/app/config"
	"github.com/vaamb/gaia/internal/app/control"
	"github.com/vaamb/gaia/internal/domain"
	"github.com/vaamb/gaia/internal/ports"
)

// ErrRestartRequired is returned by ApplyConfig when the new unit
// config rebinds hardware. The owning ecosystem reacts with a full
// stop/start so drivers are rebuilt against the address registry.
var ErrRestartRequired = errors.New("hardware bindings changed, restart required")

// Unit is one control subroutine inside an ecosystem. Implementations
// are not safe for concurrent use; the ecosystem serializes Start,
// Stop, Tick and ApplyConfig on each unit.
type Unit interface {
	Kind() domain.UnitKind
	Status() domain.Status
	Interval() time.Duration

	// Start builds and claims the unit's drivers. An address that is
	// malformed or already held fails the whole start, releasing any
	// partial acquisition. Other build failures degrade the unit
	// instead, except when no driver at all could be built.
	Start(ctx context.Context) error
	// Stop writes safe levels to actuators, closes every driver and
	// releases their addresses.
	Stop(ctx context.Context) error
	// Tick runs one control cycle at the given instant.
	Tick(ctx context.Context, now time.Time) error
	// ApplyConfig applies a new unit config in place. Target, interval
	// and priority changes take effect without disturbing controller
	// state; hardware changes return ErrRestartRequired.
	ApplyConfig(cfg config.UnitConfig) error

	Health() map[string]domain.DriverHealth
}

// Runtime bundles the dependencies an ecosystem hands to each of its
// units.
type Runtime struct {
	EcosystemID string
	Registry    *hardware.Registry
	Obs         ports.Observability
	Policy      ports.Policy
	// Emit publishes one telemetry event upward. It must not block.
	Emit func(domain.Event)
	// Readings is the per-ecosystem store linking the sensing unit to
	// the actuator units.
	Readings *ReadingStore
	// Window resolves the current day window so hot-reloaded schedules
	// reach running loops.
	Window func() control.DayWindow
}

// New constructs the unit for one kind.
func New(kind domain.UnitKind, rt Runtime, cfg config.UnitConfig) (Unit, error) {
	switch kind {
	case domain.UnitSensors:
		return newSensors(rt, cfg), nil
	case domain.UnitClimate:
		return newClimate(rt, cfg), nil
	case domain.UnitLight:
		return newLight(rt, cfg), nil
	case domain.UnitWatering:
		return newWatering(rt, cfg), nil
	}
	return nil, fmt.Errorf("unknown unit kind %q", kind)
}

// staleAfter bounds how old a shared reading may be before actuator
// loops stop acting on it.
const staleAfter = 2 * time.Minute

// base carries the lifecycle, driver set and health bookkeeping shared
// by every unit kind.
type base struct {
	rt     Runtime
	kind   domain.UnitKind
	cfg    config.UnitConfig
	status domain.Status

	sensors   []ports.Sensor
	actuators []actuatorBinding
	health    map[string]*domain.DriverHealth
}

// actuatorBinding pairs an actuator driver with the quantity it
// regulates and its direction.
type actuatorBinding struct {
	drv       ports.Actuator
	regulates domain.Quantity
	inverted  bool
}

func newBase(rt Runtime, kind domain.UnitKind, cfg config.UnitConfig) base {
	return base{
		rt:     rt,
		kind:   kind,
		cfg:    cfg,
		status: domain.StatusStopped,
		health: map[string]*domain.DriverHealth{},
	}
}

func (b *base) Kind() domain.UnitKind { return b.kind }

func (b *base) Status() domain.Status { return b.status }

func (b *base) Interval() time.Duration {
	if b.cfg.Interval > 0 {
		return b.cfg.Interval.Std()
	}
	if b.kind == domain.UnitSensors {
		if b.rt.Policy.SensorInterval > 0 {
			return b.rt.Policy.SensorInterval
		}
		return 15 * time.Second
	}
	if b.rt.Policy.ActuatorInterval > 0 {
		return b.rt.Policy.ActuatorInterval
	}
	return time.Second
}

func (b *base) Health() map[string]domain.DriverHealth {
	out := make(map[string]domain.DriverHealth, len(b.health))
	for id, h := range b.health {
		out[id] = *h
	}
	return out
}

// start builds every configured driver. Address errors fail the whole
// start: ownership is exclusive, so a claimed or malformed address is a
// configuration conflict, not a transient fault. Other build failures
// degrade the unit; only a unit with hardware configured and nothing
// built at all errors out.
func (b *base) start(_ context.Context) error {
	b.status = domain.StatusStarting

	var buildErrs []error
	for _, hw := range b.cfg.Hardware {
		addr, err := domain.ParseAddress(hw.Address)
		if err != nil {
			b.releaseBuilt()
			b.status = domain.StatusError
			b.rt.Obs.LogError("hardware_address_invalid", err,
				ports.Field{Key: "ecosystem", Value: b.rt.EcosystemID},
				ports.Field{Key: "hardware", Value: hw.ID})
			return err
		}
		drv, err := b.rt.Registry.Build(hardware.Config{
			ID:       hw.ID,
			Model:    hw.Model,
			Address:  addr,
			Measures: hw.Measures,
			Options:  hw.Options,
		})
		if err != nil {
			var addrErr *domain.AddressError
			if errors.As(err, &addrErr) {
				b.releaseBuilt()
				b.status = domain.StatusError
				b.rt.Obs.LogError("hardware_address_conflict", err,
					ports.Field{Key: "ecosystem", Value: b.rt.EcosystemID},
					ports.Field{Key: "hardware", Value: hw.ID})
				return err
			}
			buildErrs = append(buildErrs, err)
			b.rt.Obs.LogError("hardware_build_failed", err,
				ports.Field{Key: "ecosystem", Value: b.rt.EcosystemID},
				ports.Field{Key: "hardware", Value: hw.ID})
			continue
		}

		if hw.Regulates != "" {
			act, ok := drv.(ports.Actuator)
			if !ok {
				drv.Close()
				buildErrs = append(buildErrs, fmt.Errorf("hardware %s: model %s is not an actuator", hw.ID, hw.Model))
				continue
			}
			b.health[drv.ID()] = &domain.DriverHealth{State: domain.HealthOK}
			b.actuators = append(b.actuators, actuatorBinding{
				drv:       act,
				regulates: hw.Regulates,
				inverted:  hw.Inverted,
			})
			continue
		}
		sen, ok := drv.(ports.Sensor)
		if !ok {
			drv.Close()
			buildErrs = append(buildErrs, fmt.Errorf("hardware %s: model %s is not a sensor", hw.ID, hw.Model))
			continue
		}
		b.health[drv.ID()] = &domain.DriverHealth{State: domain.HealthOK}
		b.sensors = append(b.sensors, sen)
	}

	if len(b.cfg.Hardware) > 0 && len(b.sensors) == 0 && len(b.actuators) == 0 {
		b.status = domain.StatusError
		return &domain.UnitError{
			EcosystemID: b.rt.EcosystemID,
			Unit:        b.kind,
			Reason:      "no usable hardware",
			Err:         errors.Join(buildErrs...),
		}
	}

	if len(buildErrs) > 0 {
		b.status = domain.StatusDegraded
	} else {
		b.status = domain.StatusRunning
	}
	return nil
}

// releaseBuilt closes whatever start managed to build so a failed
// start leaves no addresses claimed.
func (b *base) releaseBuilt() {
	for _, a := range b.actuators {
		a.drv.Close()
	}
	for _, s := range b.sensors {
		s.Close()
	}
	b.sensors = nil
	b.actuators = nil
	b.health = map[string]*domain.DriverHealth{}
}

// stop drives actuators to their safe level, then closes and releases
// every driver.
func (b *base) stop(ctx context.Context) error {
	b.status = domain.StatusStopping

	var errs []error
	for _, a := range b.actuators {
		if err := a.drv.Write(ctx, 0); err != nil {
			errs = append(errs, &domain.DriverError{DriverID: a.drv.ID(), Op: "write", Err: err})
		}
		if err := a.drv.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range b.sensors {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.sensors = nil
	b.actuators = nil
	b.health = map[string]*domain.DriverHealth{}
	b.status = domain.StatusStopped
	return errors.Join(errs...)
}

// applyConfig swaps in the new config when only soft fields changed.
func (b *base) applyConfig(cfg config.UnitConfig) error {
	if b.status != domain.StatusStopped && hardwareChanged(b.cfg.Hardware, cfg.Hardware) {
		b.cfg = cfg
		return ErrRestartRequired
	}
	b.cfg = cfg
	return nil
}

func hardwareChanged(old, next []config.HardwareConfig) bool {
	if len(old) != len(next) {
		return true
	}
	prev := make(map[string]config.HardwareConfig, len(old))
	for _, hw := range old {
		prev[hw.ID] = hw
	}
	for _, hw := range next {
		p, ok := prev[hw.ID]
		if !ok || p.Address != hw.Address || p.Model != hw.Model {
			return true
		}
	}
	return false
}

// readSensors reads every owned sensor, even faulted ones, so a single
// successful read can clear a fault. Failed reads count toward the
// fault threshold; measurements from faulted drivers are discarded.
func (b *base) readSensors(ctx context.Context, now time.Time) []domain.Measurement {
	var out []domain.Measurement
	for _, s := range b.sensors {
		h := b.health[s.ID()]
		ms, err := s.Read(ctx)
		if err != nil {
			wasFaulted := h.Faulted()
			h.RecordFailure(err, b.faultThreshold())
			if h.Faulted() && !wasFaulted {
				b.rt.Obs.IncCounter("gaia_driver_faults_total", 1)
				b.rt.Obs.LogError("driver_faulted",
					&domain.DriverError{DriverID: s.ID(), Op: "read", Err: err},
					ports.Field{Key: "ecosystem", Value: b.rt.EcosystemID},
					ports.Field{Key: "unit", Value: string(b.kind)})
			}
			continue
		}
		h.RecordSuccess()
		for i := range ms {
			if ms[i].Timestamp.IsZero() {
				ms[i].Timestamp = now
			}
		}
		out = append(out, ms...)
	}
	b.rt.Obs.IncCounter("gaia_measurements_total", float64(len(out)))
	return out
}

// writeActuator applies one level with fault accounting. It returns
// the output record and whether the write landed.
func (b *base) writeActuator(ctx context.Context, a actuatorBinding, level float64) (domain.ActuatorOutput, bool) {
	h := b.health[a.drv.ID()]
	if err := a.drv.Write(ctx, level); err != nil {
		wasFaulted := h.Faulted()
		h.RecordFailure(err, b.faultThreshold())
		if h.Faulted() && !wasFaulted {
			b.rt.Obs.IncCounter("gaia_driver_faults_total", 1)
			b.rt.Obs.LogError("driver_faulted",
				&domain.DriverError{DriverID: a.drv.ID(), Op: "write", Err: err},
				ports.Field{Key: "ecosystem", Value: b.rt.EcosystemID},
				ports.Field{Key: "unit", Value: string(b.kind)})
		}
		return domain.ActuatorOutput{}, false
	}
	h.RecordSuccess()
	return domain.ActuatorOutput{DriverID: a.drv.ID(), Value: level, On: level > 0}, true
}

func (b *base) faultThreshold() int {
	if b.rt.Policy.DriverFaultAfter > 0 {
		return b.rt.Policy.DriverFaultAfter
	}
	return 3
}

// refreshStatus reflects driver health into the unit status after a
// tick.
func (b *base) refreshStatus() {
	if b.status != domain.StatusRunning && b.status != domain.StatusDegraded {
		return
	}
	total := len(b.health)
	faulted := 0
	for _, h := range b.health {
		if h.Faulted() {
			faulted++
		}
	}
	switch {
	case total > 0 && faulted == total:
		b.status = domain.StatusError
	case faulted > 0:
		b.status = domain.StatusDegraded
	default:
		b.status = domain.StatusRunning
	}
}

// emit publishes one telemetry event for this unit.
func (b *base) emit(now time.Time, measurements []domain.Measurement, outputs []domain.ActuatorOutput) {
	if b.rt.Emit == nil {
		return
	}
	b.rt.Emit(domain.Event{
		ID:           uuid.NewString(),
		EcosystemID:  b.rt.EcosystemID,
		Unit:         b.kind,
		Timestamp:    now,
		Measurements: measurements,
		Outputs:      outputs,
		Status:       b.status,
	})
}

// setpointFor resolves the active setpoint for one regulated quantity.
func (b *base) setpointFor(t control.Target, now time.Time) float64 {
	if b.rt.Window == nil {
		return t.Day
	}
	return t.Setpoint(now, b.rt.Window())
}
