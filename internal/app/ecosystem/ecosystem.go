package ecosystem

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaamb/gaia/internal/adapters/hardware"
	"github.com/vaamb/gaia/internal/app/config"
	"github.com/vaamb/gaia/internal/app/control"
	"github.com/vaamb/gaia/internal/app/subroutine"
	"github.com/vaamb/gaia/internal/domain"
	"github.com/vaamb/gaia/internal/ports"
)

// Deps are the shared dependencies every ecosystem receives from the
// engine. The hardware registry is process-wide so address exclusivity
// holds across ecosystems.
type Deps struct {
	Registry *hardware.Registry
	Obs      ports.Observability
	Policy   ports.Policy
	Emit     func(domain.Event)
}

// Ecosystem manages the subroutines of one enclosure. All operations
// serialize on one mutex, so a reconcile never interleaves with a
// control tick on the same enclosure.
type Ecosystem struct {
	id   string
	deps Deps

	mu       sync.Mutex
	cfg      config.EcosystemConfig
	units    map[domain.UnitKind]subroutine.Unit
	failed   map[domain.UnitKind]error
	status   domain.Status
	readings *subroutine.ReadingStore

	winMu  sync.RWMutex
	window control.DayWindow
}

func New(id string, deps Deps) *Ecosystem {
	return &Ecosystem{
		id:       id,
		deps:     deps,
		units:    map[domain.UnitKind]subroutine.Unit{},
		failed:   map[domain.UnitKind]error{},
		status:   domain.StatusStopped,
		readings: subroutine.NewReadingStore(),
	}
}

func (e *Ecosystem) ID() string { return e.id }

func (e *Ecosystem) Status() domain.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// UnitInfo is the engine-facing view of one running subroutine, enough
// to drive its ticker.
type UnitInfo struct {
	Kind     domain.UnitKind
	Interval time.Duration
	Status   domain.Status
}

// Units lists the running subroutines in start order.
func (e *Ecosystem) Units() []UnitInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	kinds := e.orderedKinds()
	out := make([]UnitInfo, 0, len(kinds))
	for _, k := range kinds {
		u, ok := e.units[k]
		if !ok {
			continue
		}
		out = append(out, UnitInfo{Kind: k, Interval: u.Interval(), Status: u.Status()})
	}
	return out
}

// Tick runs one control cycle for the named subroutine. A tick on a
// unit that was reconciled away since the ticker fired is a no-op.
func (e *Ecosystem) Tick(ctx context.Context, kind domain.UnitKind, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	u, ok := e.units[kind]
	if !ok {
		return nil
	}
	start := time.Now()
	err := u.Tick(ctx, now)
	e.deps.Obs.ObserveLatency("gaia_tick_duration_seconds", time.Since(start).Seconds())
	e.refreshStatusLocked()
	return err
}

// Reconcile drives the unit set to match the given config: units gone
// from the config stop, surviving units get the new config in place
// (restarting only when their hardware changed), new units start in
// priority order. A unit that fails to start degrades the ecosystem
// and never blocks its siblings.
func (e *Ecosystem) Reconcile(ctx context.Context, cfg config.EcosystemConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.winMu.Lock()
	e.window = cfg.DayWindow
	e.winMu.Unlock()
	e.cfg = cfg

	desired := map[domain.UnitKind]config.UnitConfig{}
	for kind, uc := range cfg.Units {
		if uc.Enabled {
			desired[kind] = uc
		}
	}

	var errs []error

	// Stop removed units first so their addresses free up for any new
	// bindings. Actuator units stop before the sensing unit.
	kinds := e.orderedKinds()
	for i := len(kinds) - 1; i >= 0; i-- {
		kind := kinds[i]
		if _, keep := desired[kind]; keep {
			continue
		}
		if err := e.stopUnitLocked(ctx, kind); err != nil {
			errs = append(errs, err)
		}
	}
	for kind := range e.failed {
		if _, keep := desired[kind]; !keep {
			delete(e.failed, kind)
		}
	}

	for _, kind := range orderKinds(desired) {
		uc := desired[kind]
		u, exists := e.units[kind]
		if exists {
			err := u.ApplyConfig(uc)
			if errors.Is(err, subroutine.ErrRestartRequired) {
				if err := e.stopUnitLocked(ctx, kind); err != nil {
					errs = append(errs, err)
				}
				if err := e.startUnitLocked(ctx, kind, uc); err != nil {
					errs = append(errs, err)
				}
				continue
			}
			if err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := e.startUnitLocked(ctx, kind, uc); err != nil {
			errs = append(errs, err)
		}
	}

	e.refreshStatusLocked()
	return errors.Join(errs...)
}

// ApplyCommand applies one inbound instruction through the same paths
// a config change takes.
func (e *Ecosystem) ApplyCommand(ctx context.Context, cmd domain.Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	uc, ok := e.cfg.Units[cmd.Unit]
	if !ok {
		return &domain.UnitError{EcosystemID: e.id, Unit: cmd.Unit, Reason: "unit not configured"}
	}

	switch cmd.Kind {
	case domain.CommandSetTarget:
		if cmd.Target == nil {
			return fmt.Errorf("set_target for %s/%s without payload", e.id, cmd.Unit)
		}
		targets := make(map[domain.Quantity]control.Target, len(uc.Targets)+1)
		for q, t := range uc.Targets {
			targets[q] = t
		}
		targets[cmd.Target.Quantity] = control.Target{
			Day:        cmd.Target.Day,
			Night:      cmd.Target.Night,
			Hysteresis: cmd.Target.Hysteresis,
		}
		uc.Targets = targets
	case domain.CommandEnable:
		uc.Enabled = true
	case domain.CommandDisable:
		uc.Enabled = false
	default:
		return fmt.Errorf("unknown command %q for %s/%s", cmd.Kind, e.id, cmd.Unit)
	}

	if e.cfg.Units == nil {
		e.cfg.Units = map[domain.UnitKind]config.UnitConfig{}
	}
	e.cfg.Units[cmd.Unit] = uc

	// Converge just this unit.
	u, running := e.units[cmd.Unit]
	switch {
	case uc.Enabled && running:
		if err := u.ApplyConfig(uc); errors.Is(err, subroutine.ErrRestartRequired) {
			if err := e.stopUnitLocked(ctx, cmd.Unit); err != nil {
				return err
			}
			return e.startUnitLocked(ctx, cmd.Unit, uc)
		} else if err != nil {
			return err
		}
	case uc.Enabled && !running:
		defer e.refreshStatusLocked()
		return e.startUnitLocked(ctx, cmd.Unit, uc)
	case !uc.Enabled && running:
		defer e.refreshStatusLocked()
		return e.stopUnitLocked(ctx, cmd.Unit)
	}
	return nil
}

// Stop shuts every unit down, actuators before sensing, and emits the
// final status transition.
func (e *Ecosystem) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.status = domain.StatusStopping
	var errs []error
	kinds := e.orderedKinds()
	for i := len(kinds) - 1; i >= 0; i-- {
		if err := e.stopUnitLocked(ctx, kinds[i]); err != nil {
			errs = append(errs, err)
		}
	}
	e.status = domain.StatusStopped
	e.emitStatusLocked("stopped")
	return errors.Join(errs...)
}

func (e *Ecosystem) startUnitLocked(ctx context.Context, kind domain.UnitKind, uc config.UnitConfig) error {
	rt := subroutine.Runtime{
		EcosystemID: e.id,
		Registry:    e.deps.Registry,
		Obs:         e.deps.Obs,
		Policy:      e.deps.Policy,
		Emit:        e.deps.Emit,
		Readings:    e.readings,
		Window: func() control.DayWindow {
			e.winMu.RLock()
			defer e.winMu.RUnlock()
			return e.window
		},
	}
	u, err := subroutine.New(kind, rt, uc)
	if err != nil {
		return err
	}
	if err := u.Start(ctx); err != nil {
		e.failed[kind] = err
		e.deps.Obs.LogError("unit_start_failed", err,
			ports.Field{Key: "ecosystem", Value: e.id},
			ports.Field{Key: "unit", Value: string(kind)})
		return err
	}
	delete(e.failed, kind)
	e.units[kind] = u
	e.deps.Obs.LogInfo("unit_started",
		ports.Field{Key: "ecosystem", Value: e.id},
		ports.Field{Key: "unit", Value: string(kind)})
	return nil
}

func (e *Ecosystem) stopUnitLocked(ctx context.Context, kind domain.UnitKind) error {
	u, ok := e.units[kind]
	if !ok {
		return nil
	}
	delete(e.units, kind)
	if err := u.Stop(ctx); err != nil {
		e.deps.Obs.LogError("unit_stop_failed", err,
			ports.Field{Key: "ecosystem", Value: e.id},
			ports.Field{Key: "unit", Value: string(kind)})
		return err
	}
	e.deps.Obs.LogInfo("unit_stopped",
		ports.Field{Key: "ecosystem", Value: e.id},
		ports.Field{Key: "unit", Value: string(kind)})
	return nil
}

// orderedKinds returns the running kinds sorted by start priority.
func (e *Ecosystem) orderedKinds() []domain.UnitKind {
	running := map[domain.UnitKind]config.UnitConfig{}
	for k := range e.units {
		running[k] = e.cfg.Units[k]
	}
	return orderKinds(running)
}

func orderKinds(set map[domain.UnitKind]config.UnitConfig) []domain.UnitKind {
	kinds := make([]domain.UnitKind, 0, len(set))
	for k := range set {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		return effectivePriority(kinds[i], set[kinds[i]]) < effectivePriority(kinds[j], set[kinds[j]])
	})
	return kinds
}

func effectivePriority(kind domain.UnitKind, uc config.UnitConfig) int {
	if uc.Priority > 0 {
		return uc.Priority
	}
	return kind.DefaultPriority()
}

func (e *Ecosystem) refreshStatusLocked() {
	prev := e.status
	switch {
	case len(e.units) == 0 && len(e.failed) == 0:
		e.status = domain.StatusStopped
	case len(e.units) == 0:
		e.status = domain.StatusError
	default:
		e.status = domain.StatusRunning
		degraded := len(e.failed)
		for _, u := range e.units {
			switch u.Status() {
			case domain.StatusDegraded, domain.StatusError:
				degraded++
			}
		}
		if degraded > 0 {
			e.status = domain.StatusDegraded
		}
	}
	if e.status != prev {
		e.emitStatusLocked(fmt.Sprintf("was %s", prev))
	}
}

func (e *Ecosystem) emitStatusLocked(detail string) {
	if e.deps.Emit == nil {
		return
	}
	e.deps.Emit(domain.Event{
		ID:          uuid.NewString(),
		EcosystemID: e.id,
		Timestamp:   time.Now().UTC(),
		Status:      e.status,
		Detail:      detail,
	})
}
