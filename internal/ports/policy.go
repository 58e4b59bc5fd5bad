package ports

import "time"

// Policy bounds the telemetry path (queue, journal, dispatch retries)
// and the hardware fault thresholds. Values come from configuration;
// zero values are replaced by defaults at load time.
type Policy struct {
	MaxQueueLen        int
	MaxJournalBytes    int64
	MaxBatchSize       int
	DriverFaultAfter   int           // consecutive failures before a driver is faulted
	DispatchBackoff    time.Duration // initial retry backoff after a failed publish
	DispatchBackoffMax time.Duration
	StopGracePeriod    time.Duration // bound on cooperative stop before forced release
	SensorInterval     time.Duration // default tick for sensing units
	ActuatorInterval   time.Duration // default tick for actuator units
}
