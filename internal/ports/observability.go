package ports

// Observability emits structured logs and metrics about control loops,
// reconciliation, and the telemetry path.
type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)
}

// Field is a structured log field used by Observability implementations.
type Field struct {
	Key   string
	Value any
}
