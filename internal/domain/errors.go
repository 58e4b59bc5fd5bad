package domain

import "fmt"

// DriverError is a transient read or write failure on one driver. The
// owning subroutine retries on the next tick and only declares the
// driver faulted after its consecutive-failure threshold.
type DriverError struct {
	DriverID string
	Op       string // "read" or "write"
	Err      error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("driver %s: %s: %v", e.DriverID, e.Op, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// UnitError means a subroutine can no longer operate: all required
// drivers faulted, or required hardware missing. It is reported upward
// and never stops sibling subroutines.
type UnitError struct {
	EcosystemID string
	Unit        UnitKind
	Reason      string
	Err         error
}

func (e *UnitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.EcosystemID, e.Unit, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.EcosystemID, e.Unit, e.Reason)
}

func (e *UnitError) Unwrap() error { return e.Err }

// DispatchError wraps a telemetry delivery failure. Delivery is
// retried with backoff out of the journal; it is never fatal to
// control loops.
type DispatchError struct {
	Err error
}

func (e *DispatchError) Error() string { return fmt.Sprintf("dispatch: %v", e.Err) }

func (e *DispatchError) Unwrap() error { return e.Err }
