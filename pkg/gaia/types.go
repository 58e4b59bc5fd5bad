package gaia

import (
	"github.com/vaamb/gaia/internal/domain"
	"github.com/vaamb/gaia/internal/ports"
)

// Event is one telemetry record flowing from the control loops to the
// dispatcher. It mirrors internal/domain.Event but is exported so
// custom adapters can reference it.
type Event = domain.Event

// Measurement is one sensor reading inside an Event.
type Measurement = domain.Measurement

// ActuatorOutput is the level last written to one actuator.
type ActuatorOutput = domain.ActuatorOutput

// Command is an inbound supervisor instruction.
type Command = domain.Command

// Target is the payload of a set_target command.
type Target = domain.Target

// Quantity names a measured or regulated physical quantity.
type Quantity = domain.Quantity

// UnitKind identifies one control subroutine kind.
type UnitKind = domain.UnitKind

// Status is the operating state of an ecosystem or subroutine.
type Status = domain.Status

// Dispatcher delivers telemetry to any remote supervisor.
type Dispatcher = ports.Dispatcher

// CommandSource exposes inbound supervisor commands.
type CommandSource = ports.CommandSource

// Recorder is the append-only persistence boundary.
type Recorder = ports.Recorder

// EventQueue is the bounded buffer between control and dispatch.
type EventQueue = ports.EventQueue

// Journal is the on-disk buffer replayed after dispatcher outages.
type Journal = ports.Journal

// JournalStats exposes journal metadata.
type JournalStats = ports.JournalStats

// JournalEntryID uniquely identifies a journal entry.
type JournalEntryID = ports.JournalEntryID

// Observability emits metrics and structured logs.
type Observability = ports.Observability

// Field is a structured log field.
type Field = ports.Field

const (
	QuantityTemperature = domain.QuantityTemperature
	QuantityHumidity    = domain.QuantityHumidity
	QuantityLight       = domain.QuantityLight
	QuantityMoisture    = domain.QuantityMoisture

	UnitSensors  = domain.UnitSensors
	UnitLight    = domain.UnitLight
	UnitClimate  = domain.UnitClimate
	UnitWatering = domain.UnitWatering

	CommandSetTarget = domain.CommandSetTarget
	CommandEnable    = domain.CommandEnable
	CommandDisable   = domain.CommandDisable
)
