package domain

import "time"

// Event is one telemetry record emitted by a subroutine after a tick,
// or a status transition raised by any level of the hierarchy. Events
// flow ecosystem → engine → dispatcher and are never read back.
type Event struct {
	ID           string           `json:"id"`
	EcosystemID  string           `json:"ecosystem_id"`
	Unit         UnitKind         `json:"unit_kind,omitempty"`
	Timestamp    time.Time        `json:"ts"`
	Measurements []Measurement    `json:"measurements,omitempty"`
	Outputs      []ActuatorOutput `json:"actuator_outputs,omitempty"`
	Status       Status           `json:"status"`
	// Detail carries the human-readable failure description for
	// degraded/error transitions.
	Detail string `json:"detail,omitempty"`
}

// CommandKind enumerates the inbound commands a dispatcher may deliver.
type CommandKind string

const (
	CommandSetTarget CommandKind = "set_target"
	CommandEnable    CommandKind = "enable"
	CommandDisable   CommandKind = "disable"
)

// Command is an inbound instruction from the remote supervisor. It is
// applied through the same reconciliation and control paths as a
// config change, never by mutating entities directly.
type Command struct {
	EcosystemID string      `json:"ecosystem_id"`
	Unit        UnitKind    `json:"unit_kind"`
	Kind        CommandKind `json:"command"`
	Target      *Target     `json:"payload,omitempty"`
}

// Target is the payload of a set_target command.
type Target struct {
	Quantity   Quantity `json:"quantity"`
	Day        float64  `json:"day"`
	Night      float64  `json:"night"`
	Hysteresis float64  `json:"hysteresis,omitempty"`
}
