package gaia

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vaamb/gaia/internal/adapters/hardware"
	"github.com/vaamb/gaia/internal/adapters/journal"
	"github.com/vaamb/gaia/internal/adapters/observability"
	"github.com/vaamb/gaia/internal/adapters/queue"
	"github.com/vaamb/gaia/internal/adapters/store"
	"github.com/vaamb/gaia/internal/app/config"
	"github.com/vaamb/gaia/internal/app/engine"
	"github.com/vaamb/gaia/internal/ports"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	dispatcher    ports.Dispatcher
	commands      ports.CommandSource
	recorder      ports.Recorder
	queue         ports.EventQueue
	journal       ports.Journal
	observability ports.Observability
	registry      *hardware.Registry
}

// WithDispatcher injects the telemetry transport (MQTT, websocket,
// test doubles, etc.).
func WithDispatcher(d ports.Dispatcher) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.dispatcher = d
	}
}

// WithCommandSource injects the inbound command channel.
func WithCommandSource(c ports.CommandSource) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.commands = c
	}
}

// WithRecorder injects a custom persistence backend instead of the
// default Timescale recorder.
func WithRecorder(r ports.Recorder) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.recorder = r
	}
}

// WithQueue injects a custom event queue implementation.
func WithQueue(q ports.EventQueue) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithJournal lets callers bring their own journal or reuse an
// existing instance.
func WithJournal(j ports.Journal) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.journal = j
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs ports.Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithRegistry shares one hardware address registry across runtimes,
// mainly for tests and embedders with their own driver models.
func WithRegistry(r *hardware.Registry) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.registry = r
	}
}

// Runtime wires the config service, engine and telemetry adapters into
// one embeddable unit with simple lifecycle hooks.
type Runtime struct {
	cfg        *Config
	svc        *config.Service
	eng        *engine.Engine
	obs        ports.Observability
	journal    ports.Journal
	queue      ports.EventQueue
	db         *sql.DB
	logger     *zap.Logger
	promReg    *prometheus.Registry
	metricsSrv *http.Server
}

// NewRuntime bootstraps the default adapters (hardware registry with
// the built-in models, file journal, in-memory queue, Timescale
// recorder, Prometheus observability). RuntimeOption values override
// any dependency.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	r := &Runtime{cfg: cfg}

	obs := overrides.observability
	if obs == nil {
		logger, err := zap.NewProduction()
		if err != nil {
			return nil, err
		}
		r.logger = logger
		r.promReg = prometheus.NewRegistry()
		obs = observability.NewPromObs(r.promReg, logger)
	}
	r.obs = obs

	jnl := overrides.journal
	if jnl == nil {
		var err error
		jnl, err = journal.NewFileJournal(cfg.Journal.Dir)
		if err != nil {
			return nil, err
		}
	}
	r.journal = jnl

	q := overrides.queue
	if q == nil {
		q = queue.NewMemQueue(cfg.Policy.MaxQueueLen)
	}
	r.queue = q

	rec := overrides.recorder
	if rec == nil && cfg.Timescale.ConnString != "" {
		db, err := sql.Open("postgres", cfg.Timescale.ConnString)
		if err != nil {
			return nil, err
		}
		r.db = db
		rec = store.NewTimescaleRecorder(db, cfg.Timescale.MeasureTable, cfg.Timescale.StatusTable)
	}

	registry := overrides.registry
	if registry == nil {
		registry = hardware.NewRegistry()
	}

	r.svc = config.NewService(cfg.Ecosystems, cfg.Secrets, cfg.Poll.Std(), hardware.KnownModel)
	r.eng = engine.New(r.svc, engine.Deps{
		Registry:   registry,
		Obs:        obs,
		Queue:      q,
		Journal:    jnl,
		Dispatcher: overrides.dispatcher,
		Recorder:   rec,
		Commands:   overrides.commands,
		Policy:     cfg.PortsPolicy(),
	})
	return r, nil
}

// Snapshot returns the current environment definition, loading it on
// first use.
func (r *Runtime) Snapshot() (*Snapshot, error) {
	if s := r.svc.Current(); s != nil {
		return s, nil
	}
	return r.svc.Load()
}

// Engine exposes the underlying engine for inspection.
func (r *Runtime) Engine() *engine.Engine { return r.eng }

// Run blocks until the context is cancelled: config watch, control
// tickers and the dispatch pump all live inside. On return every
// actuator has been driven to its safe level.
func (r *Runtime) Run(ctx context.Context) error {
	if r.cfg.Metrics.Addr != "" && r.promReg != nil {
		r.startMetrics()
	}
	err := r.eng.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return errors.Join(err, r.close())
}

func (r *Runtime) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.promReg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.metricsSrv = &http.Server{
		Addr:    r.cfg.Metrics.Addr,
		Handler: mux,
	}
	go func() {
		if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("metrics_server_exited", err)
		}
	}()
}

func (r *Runtime) close() error {
	var errs []error

	if r.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.metricsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.logger != nil {
		_ = r.logger.Sync()
	}
	return errors.Join(errs...)
}
