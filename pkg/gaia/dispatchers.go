package gaia

import (
	"github.com/vaamb/gaia/internal/adapters/dispatch"
)

// ErrChannelClosed is returned when a channel dispatcher is published
// to after being closed.
var ErrChannelClosed = dispatch.ErrChannelClosed

// EventFunc is invoked with each outbound telemetry event.
type EventFunc = dispatch.EventFunc

// NewCallbackDispatcher adapts a plain function into a Dispatcher so
// callers can forward events anywhere without defining structs.
func NewCallbackDispatcher(name string, fn EventFunc) Dispatcher {
	return dispatch.NewCallbackDispatcher(name, fn)
}

// NewChannelDispatcher exposes events via a channel; it returns the
// dispatcher, the read-only channel, and a close function the caller
// should invoke during shutdown.
func NewChannelDispatcher(name string, buffer int) (Dispatcher, <-chan Event, func()) {
	return dispatch.NewChannelDispatcher(name, buffer)
}

// CommandFeed is an in-process CommandSource with a bounded buffer.
type CommandFeed = dispatch.CommandFeed

// NewCommandFeed builds a CommandFeed for pushing supervisor commands
// into a runtime.
func NewCommandFeed(buffer int) *CommandFeed {
	return dispatch.NewCommandFeed(buffer)
}
