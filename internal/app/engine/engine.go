package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vaamb/gaia/internal/adapters/hardware"
	"github.com/vaamb/gaia/internal/app/config"
	"github.com/vaamb/gaia/internal/app/ecosystem"
	"github.com/vaamb/gaia/internal/domain"
	"github.com/vaamb/gaia/internal/ports"
)

// Deps wires the engine to its adapters. Queue and Obs are required;
// everything else is optional and simply disables the matching
// behavior when nil.
type Deps struct {
	Registry   *hardware.Registry
	Obs        ports.Observability
	Queue      ports.EventQueue
	Journal    ports.Journal
	Dispatcher ports.Dispatcher
	Recorder   ports.Recorder
	Commands   ports.CommandSource
	Policy     ports.Policy
}

// Engine is the process root: it owns the ecosystems, drives their
// control tickers, applies config snapshots and pumps telemetry from
// the queue to the dispatcher.
type Engine struct {
	cfg  *config.Service
	deps Deps

	mu         sync.Mutex
	ecosystems map[string]*ecosystem.Ecosystem
	tickers    map[tickerKey]*unitTicker

	wg sync.WaitGroup
}

type tickerKey struct {
	eco  string
	kind domain.UnitKind
}

type unitTicker struct {
	interval time.Duration
	cancel   context.CancelFunc
}

func New(cfg *config.Service, deps Deps) *Engine {
	if deps.Registry == nil {
		deps.Registry = hardware.NewRegistry()
	}
	return &Engine{
		cfg:        cfg,
		deps:       deps,
		ecosystems: map[string]*ecosystem.Ecosystem{},
		tickers:    map[tickerKey]*unitTicker{},
	}
}

// emit is the single entry point for telemetry from the hierarchy.
// It never blocks a control loop: the queue evicts its oldest events
// when full.
func (e *Engine) emit(ev domain.Event) {
	if e.deps.Queue == nil {
		return
	}
	if evicted := e.deps.Queue.Enqueue(ev); evicted > 0 {
		e.deps.Obs.IncCounter("gaia_events_dropped_total", float64(evicted))
	}
	e.deps.Obs.SetGauge("gaia_queue_length", float64(e.deps.Queue.Len()))
}

// Reconcile drives the ecosystem set to match the snapshot: enabled
// ecosystems are created or updated, the rest stopped and removed.
// Reconciling the same snapshot twice is a no-op.
func (e *Engine) Reconcile(ctx context.Context, snap *config.Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error

	for id, eco := range e.ecosystems {
		cfg, ok := snap.Ecosystems[id]
		if ok && cfg.Enabled {
			continue
		}
		e.stopTickersLocked(id)
		if err := eco.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		delete(e.ecosystems, id)
		e.deps.Obs.LogInfo("ecosystem_removed", ports.Field{Key: "ecosystem", Value: id})
	}

	for id, cfg := range snap.Ecosystems {
		if !cfg.Enabled {
			continue
		}
		eco, ok := e.ecosystems[id]
		if !ok {
			eco = ecosystem.New(id, ecosystem.Deps{
				Registry: e.deps.Registry,
				Obs:      e.deps.Obs,
				Policy:   e.deps.Policy,
				Emit:     e.emit,
			})
			e.ecosystems[id] = eco
			e.deps.Obs.LogInfo("ecosystem_created",
				ports.Field{Key: "ecosystem", Value: id},
				ports.Field{Key: "name", Value: cfg.Name})
		}
		if err := eco.Reconcile(ctx, cfg); err != nil {
			errs = append(errs, err)
		}
		e.syncTickersLocked(ctx, eco)
	}

	return errors.Join(errs...)
}

// Ecosystem returns one managed ecosystem, mainly for inspection.
func (e *Engine) Ecosystem(id string) (*ecosystem.Ecosystem, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	eco, ok := e.ecosystems[id]
	return eco, ok
}

// syncTickersLocked aligns the running tickers of one ecosystem with
// its current unit set and intervals.
func (e *Engine) syncTickersLocked(ctx context.Context, eco *ecosystem.Ecosystem) {
	desired := map[tickerKey]time.Duration{}
	for _, u := range eco.Units() {
		desired[tickerKey{eco: eco.ID(), kind: u.Kind}] = u.Interval
	}

	for key, t := range e.tickers {
		if key.eco != eco.ID() {
			continue
		}
		want, ok := desired[key]
		if ok && want == t.interval {
			delete(desired, key)
			continue
		}
		t.cancel()
		delete(e.tickers, key)
		if ok {
			// Interval changed: restart below.
			desired[key] = want
		}
	}

	for key, interval := range desired {
		tctx, cancel := context.WithCancel(ctx)
		e.tickers[key] = &unitTicker{interval: interval, cancel: cancel}
		e.wg.Add(1)
		go e.runTicker(tctx, eco, key.kind, interval)
	}
}

func (e *Engine) stopTickersLocked(ecoID string) {
	for key, t := range e.tickers {
		if key.eco == ecoID {
			t.cancel()
			delete(e.tickers, key)
		}
	}
}

func (e *Engine) runTicker(ctx context.Context, eco *ecosystem.Ecosystem, kind domain.UnitKind, interval time.Duration) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := eco.Tick(ctx, kind, now); err != nil {
				e.deps.Obs.LogError("tick_failed", err,
					ports.Field{Key: "ecosystem", Value: eco.ID()},
					ports.Field{Key: "unit", Value: string(kind)})
			}
		}
	}
}

// Run loads the initial snapshot, then serves until the context ends:
// config watch, inbound commands and the dispatch pump each run on
// their own goroutine while the per-unit tickers drive control.
func (e *Engine) Run(ctx context.Context) error {
	snap := e.cfg.Current()
	if snap == nil {
		var err error
		snap, err = e.cfg.Load()
		if err != nil {
			return err
		}
	}
	if err := e.Reconcile(ctx, snap); err != nil {
		e.deps.Obs.LogError("initial_reconcile_degraded", err)
	}

	e.wg.Add(1)
	go e.watchConfig(ctx)

	if e.deps.Commands != nil {
		e.wg.Add(1)
		go e.watchCommands(ctx)
	}

	e.wg.Add(1)
	go e.pumpDispatch(ctx)

	<-ctx.Done()
	e.shutdown()
	e.wg.Wait()
	return ctx.Err()
}

// shutdown stops all control within the grace period, leaving
// actuators at their safe level.
func (e *Engine) shutdown() {
	grace := e.deps.Policy.StopGracePeriod
	if grace <= 0 {
		grace = 5 * time.Second
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	e.mu.Lock()
	defer e.mu.Unlock()
	for key, t := range e.tickers {
		t.cancel()
		delete(e.tickers, key)
	}
	for id, eco := range e.ecosystems {
		if err := eco.Stop(stopCtx); err != nil {
			e.deps.Obs.LogError("ecosystem_stop_failed", err,
				ports.Field{Key: "ecosystem", Value: id})
		}
		delete(e.ecosystems, id)
	}
}

func (e *Engine) watchConfig(ctx context.Context) {
	defer e.wg.Done()

	for n := range e.cfg.Watch(ctx) {
		if n.Err != nil {
			// The previous snapshot stays active on a failed reload.
			e.deps.Obs.LogError("config_reload_failed", n.Err)
			continue
		}
		e.deps.Obs.LogInfo("config_reloaded",
			ports.Field{Key: "version", Value: n.Snapshot.Version})
		if err := e.Reconcile(ctx, n.Snapshot); err != nil {
			e.deps.Obs.LogError("reconcile_degraded", err)
		}
	}
}

func (e *Engine) watchCommands(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-e.deps.Commands.Commands():
			if !ok {
				return
			}
			if err := e.ApplyCommand(ctx, cmd); err != nil {
				e.deps.Obs.LogError("command_rejected", err,
					ports.Field{Key: "ecosystem", Value: cmd.EcosystemID},
					ports.Field{Key: "command", Value: string(cmd.Kind)})
			}
		}
	}
}

// ApplyCommand routes one inbound command to its ecosystem.
func (e *Engine) ApplyCommand(ctx context.Context, cmd domain.Command) error {
	e.mu.Lock()
	eco, ok := e.ecosystems[cmd.EcosystemID]
	e.mu.Unlock()
	if !ok {
		return &domain.UnitError{
			EcosystemID: cmd.EcosystemID,
			Unit:        cmd.Unit,
			Reason:      "unknown ecosystem",
		}
	}
	if err := eco.ApplyCommand(ctx, cmd); err != nil {
		return err
	}
	// Enable/disable may have changed the unit set.
	e.mu.Lock()
	e.syncTickersLocked(ctx, eco)
	e.mu.Unlock()
	return nil
}
