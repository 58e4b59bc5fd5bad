package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vaamb/gaia/internal/ports"
)

// PromObs pairs Prometheus metrics with zap structured logs. It is the
// default Observability implementation; embedders can swap it for
// their own backend through the runtime options.
type PromObs struct {
	log      *zap.SugaredLogger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the gaia metric set on the given registerer
// (nil means the default registry) and logs through the given zap
// logger (nil means zap's production config).
func NewPromObs(reg prometheus.Registerer, logger *zap.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	measurements := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gaia_measurements_total",
		Help: "Total sensor measurements aggregated by control loops.",
	})
	driverFaults := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gaia_driver_faults_total",
		Help: "Drivers declared faulted after consecutive failures.",
	})
	dispatched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gaia_events_dispatched_total",
		Help: "Telemetry events delivered to the dispatcher.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gaia_events_dropped_total",
		Help: "Telemetry events lost to queue or journal bounds.",
	})
	queueLen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gaia_queue_length",
		Help: "Events currently buffered in the telemetry queue.",
	})
	journalSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gaia_journal_size_bytes",
		Help: "Size of the telemetry journal on disk.",
	})
	tickLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gaia_tick_duration_seconds",
		Help:    "Duration of one subroutine control-loop tick.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	reg.MustRegister(
		measurements, driverFaults, dispatched, dropped,
		queueLen, journalSize, tickLatency,
	)

	return &PromObs{
		log: logger.Sugar(),
		counters: map[string]prometheus.Counter{
			"gaia_measurements_total":      measurements,
			"gaia_driver_faults_total":     driverFaults,
			"gaia_events_dispatched_total": dispatched,
			"gaia_events_dropped_total":    dropped,
		},
		gauges: map[string]prometheus.Gauge{
			"gaia_queue_length":       queueLen,
			"gaia_journal_size_bytes": journalSize,
		},
		histos: map[string]prometheus.Observer{
			"gaia_tick_duration_seconds": tickLatency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Infow(msg, flatten(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log.Errorw(msg, append(flatten(fields), "error", err)...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log.Errorw(msg, append(flatten(fields), "error", err, "critical", true)...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func flatten(fields []ports.Field) []any {
	if len(fields) == 0 {
		return nil
	}
	out := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
