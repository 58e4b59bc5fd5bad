package domain

// Status is the operating state shared by ecosystems and subroutines.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusDegraded Status = "degraded"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// UnitKind is the closed set of subroutine kinds. Each kind maps to
// one control concern inside an ecosystem.
type UnitKind string

const (
	UnitSensors  UnitKind = "sensors"
	UnitLight    UnitKind = "light"
	UnitClimate  UnitKind = "climate"
	UnitWatering UnitKind = "watering"
)

// UnitKinds lists all kinds in their default start order: sensing
// first so actuator loops have a reading before their first decision.
var UnitKinds = []UnitKind{UnitSensors, UnitLight, UnitClimate, UnitWatering}

func (k UnitKind) Valid() bool {
	switch k {
	case UnitSensors, UnitLight, UnitClimate, UnitWatering:
		return true
	}
	return false
}

// DefaultPriority returns the start priority used when the config does
// not declare one. Lower starts earlier.
func (k UnitKind) DefaultPriority() int {
	for i, kind := range UnitKinds {
		if kind == k {
			return (i + 1) * 10
		}
	}
	return 100
}

// HealthState tracks one driver's last-known condition.
type HealthState string

const (
	HealthOK      HealthState = "ok"
	HealthFaulted HealthState = "faulted"
)

// DriverHealth carries the consecutive-failure bookkeeping for one
// driver. A read or write failure increments Failures; crossing the
// owning subroutine's threshold marks the driver faulted; a single
// success resets everything.
type DriverHealth struct {
	State     HealthState `json:"state"`
	Failures  int         `json:"failures"`
	LastError string      `json:"last_error,omitempty"`
}

func (h *DriverHealth) RecordFailure(err error, threshold int) {
	h.Failures++
	if err != nil {
		h.LastError = err.Error()
	}
	if h.Failures >= threshold {
		h.State = HealthFaulted
	}
}

func (h *DriverHealth) RecordSuccess() {
	h.Failures = 0
	h.LastError = ""
	h.State = HealthOK
}

func (h *DriverHealth) Faulted() bool { return h.State == HealthFaulted }
