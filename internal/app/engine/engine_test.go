package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vaamb/gaia/internal/adapters/hardware"
	"github.com/vaamb/gaia/internal/adapters/journal"
	"github.com/vaamb/gaia/internal/adapters/queue"
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

type engSensor struct {
	id      string
	addr    domain.Address
	release func()
}

func (s *engSensor) ID() string                  { return s.id }
func (s *engSensor) Model() string               { return "engSensor" }
func (s *engSensor) Address() domain.Address     { return s.addr }
func (s *engSensor) Measures() []domain.Quantity { return []domain.Quantity{domain.QuantityTemperature} }

func (s *engSensor) Close() error {
	if s.release != nil {
		s.release()
	}
	return nil
}

func (s *engSensor) Read(context.Context) ([]domain.Measurement, error) {
	return []domain.Measurement{{DriverID: s.id, Quantity: domain.QuantityTemperature, Value: 20}}, nil
}

func init() {
	hardware.RegisterModel("engSensor", func(cfg hardware.Config, release func()) (ports.Driver, error) {
		return &engSensor{id: cfg.ID, addr: cfg.Address, release: release}, nil
	})
}

// flakyDispatcher fails every Publish until healed.
type flakyDispatcher struct {
	mu        sync.Mutex
	failing   bool
	delivered []string
}

func (d *flakyDispatcher) Name() string { return "flaky" }

func (d *flakyDispatcher) Publish(_ context.Context, ev domain.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failing {
		return errors.New("supervisor unreachable")
	}
	d.delivered = append(d.delivered, ev.ID)
	return nil
}

func (d *flakyDispatcher) setFailing(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing = v
}

func (d *flakyDispatcher) ids() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.delivered...)
}

func snapshotWith(ecoIDs ...string) *config.Snapshot {
	ecos := map[string]config.EcosystemConfig{}
	for i, id := range ecoIDs {
		ecos[id] = config.EcosystemConfig{
			Name:    id,
			Enabled: true,
			DayWindow: control.DayWindow{
				Start: control.TimeOfDay{Hour: 8},
				End:   control.TimeOfDay{Hour: 20},
			},
			Units: map[domain.UnitKind]config.UnitConfig{
				domain.UnitSensors: {
					Enabled:  true,
					Interval: config.Duration(time.Hour),
					Hardware: []config.HardwareConfig{
						{
							ID:       id + "-temp",
							Address:  domain.Address{Bus: domain.BusGPIO, Pin: 60 + i}.String(),
							Model:    "engSensor",
							Measures: []domain.Quantity{domain.QuantityTemperature},
						},
					},
				},
			},
		}
	}
	return &config.Snapshot{Ecosystems: ecos}
}

func testEngine(disp ports.Dispatcher, jnl ports.Journal) *Engine {
	return New(nil, Deps{
		Registry:   hardware.NewRegistry(),
		Obs:        nopObs{},
		Queue:      queue.NewMemQueue(64),
		Journal:    jnl,
		Dispatcher: disp,
		Policy: ports.Policy{
			DriverFaultAfter:   3,
			MaxBatchSize:       16,
			DispatchBackoff:    5 * time.Millisecond,
			DispatchBackoffMax: 20 * time.Millisecond,
		},
	})
}

func TestReconcileCreatesAndRemovesEcosystems(t *testing.T) {
	e := testEngine(nil, nil)
	ctx := context.Background()

	if err := e.Reconcile(ctx, snapshotWith("eco-a", "eco-b")); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	for _, id := range []string{"eco-a", "eco-b"} {
		eco, ok := e.Ecosystem(id)
		if !ok {
			t.Fatalf("ecosystem %s missing", id)
		}
		if eco.Status() != domain.StatusRunning {
			t.Fatalf("ecosystem %s not running: %s", id, eco.Status())
		}
	}

	if err := e.Reconcile(ctx, snapshotWith("eco-a")); err != nil {
		t.Fatalf("reconcile removal: %v", err)
	}
	if _, ok := e.Ecosystem("eco-b"); ok {
		t.Fatal("eco-b should be removed")
	}
	if _, ok := e.Ecosystem("eco-a"); !ok {
		t.Fatal("eco-a should survive")
	}

	// Same snapshot again: nothing to do.
	if err := e.Reconcile(ctx, snapshotWith("eco-a")); err != nil {
		t.Fatalf("idempotent reconcile: %v", err)
	}
	e.shutdown()
	e.wg.Wait()
}

func TestApplyCommandUnknownEcosystem(t *testing.T) {
	e := testEngine(nil, nil)
	err := e.ApplyCommand(context.Background(), domain.Command{
		EcosystemID: "ghost",
		Unit:        domain.UnitClimate,
		Kind:        domain.CommandDisable,
	})
	var uerr *domain.UnitError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UnitError, got %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPumpDeliversQueuedEvents(t *testing.T) {
	disp := &flakyDispatcher{}
	e := testEngine(disp, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.wg.Add(1)
	go e.pumpDispatch(ctx)

	e.emit(domain.Event{ID: "ev-1", EcosystemID: "eco-a", Status: domain.StatusRunning})
	e.emit(domain.Event{ID: "ev-2", EcosystemID: "eco-a", Status: domain.StatusRunning})

	waitFor(t, 2*time.Second, func() bool { return len(disp.ids()) == 2 })
	ids := disp.ids()
	if ids[0] != "ev-1" || ids[1] != "ev-2" {
		t.Fatalf("expected in-order delivery, got %v", ids)
	}
	cancel()
	e.wg.Wait()
}

func TestPumpJournalsFailedDispatchAndReplaysInOrder(t *testing.T) {
	jnl, err := journal.NewFileJournal(t.TempDir())
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	disp := &flakyDispatcher{failing: true}
	e := testEngine(disp, jnl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.wg.Add(1)
	go e.pumpDispatch(ctx)

	e.emit(domain.Event{ID: "ev-1", EcosystemID: "eco-a", Status: domain.StatusRunning})
	e.emit(domain.Event{ID: "ev-2", EcosystemID: "eco-a", Status: domain.StatusRunning})

	// With the supervisor down, failed events land in the journal.
	waitFor(t, 2*time.Second, func() bool {
		st := jnl.Stats()
		return st.LatestAppended >= 1
	})
	if len(disp.ids()) != 0 {
		t.Fatalf("nothing should be delivered while failing, got %v", disp.ids())
	}

	// Recovery: the backlog replays ahead of new traffic, in order.
	disp.setFailing(false)
	e.emit(domain.Event{ID: "ev-3", EcosystemID: "eco-a", Status: domain.StatusRunning})

	waitFor(t, 2*time.Second, func() bool { return len(disp.ids()) == 3 })
	ids := disp.ids()
	if ids[0] != "ev-1" || ids[1] != "ev-2" || ids[2] != "ev-3" {
		t.Fatalf("expected ordered replay then fresh event, got %v", ids)
	}

	// The watermark advanced past the replayed entries.
	st := jnl.Stats()
	if st.OldestUncommitted < 2 {
		t.Fatalf("expected committed watermark past replayed entries, got %+v", st)
	}
	cancel()
	e.wg.Wait()
}

func TestJournalBatchBoundsSizeDuringOutage(t *testing.T) {
	jnl, err := journal.NewFileJournal(t.TempDir())
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	e := testEngine(&flakyDispatcher{failing: true}, jnl)
	e.deps.Policy.MaxJournalBytes = 2048

	// Nothing is ever committed while the supervisor is down, so keeping
	// the bound means sacrificing the oldest undelivered events.
	var events []domain.Event
	for i := 0; i < 100; i++ {
		events = append(events, domain.Event{
			ID:          fmt.Sprintf("ev-%03d", i),
			EcosystemID: "eco-a",
			Status:      domain.StatusRunning,
		})
	}
	e.journalBatch(events)

	st := jnl.Stats()
	if st.SizeBytes > e.deps.Policy.MaxJournalBytes {
		t.Fatalf("journal over bound during outage: size=%d max=%d", st.SizeBytes, e.deps.Policy.MaxJournalBytes)
	}
	if st.LatestAppended != 100 {
		t.Fatalf("newest events must survive, latest=%d", st.LatestAppended)
	}
	if st.OldestUncommitted <= 1 {
		t.Fatalf("expected oldest undelivered events dropped, watermark=%d", st.OldestUncommitted)
	}

	// Replay starts at the first surviving entry; nothing dropped comes back.
	var first ports.JournalEntryID
	err = jnl.Iterate(st.OldestUncommitted, func(id ports.JournalEntryID, ev *domain.Event) error {
		if first == 0 {
			first = id
		}
		return nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if first != st.OldestUncommitted {
		t.Fatalf("expected replay to resume at %d, got %d", st.OldestUncommitted, first)
	}
}
