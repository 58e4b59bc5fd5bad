package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vaamb/gaia/internal/domain"
	"github.com/vaamb/gaia/internal/ports"
)

// ErrChannelClosed is returned when a channel dispatcher is published
// to after being closed.
var ErrChannelClosed = errors.New("gaia: channel dispatcher closed")

// EventFunc is invoked with each outbound telemetry event.
type EventFunc func(domain.Event) error

// NewCallbackDispatcher adapts a plain function into a Dispatcher so
// embedders can forward events anywhere without defining structs.
func NewCallbackDispatcher(name string, fn EventFunc) ports.Dispatcher {
	if name == "" {
		name = "callback"
	}
	return &callbackDispatcher{name: name, fn: fn}
}

// NewChannelDispatcher exposes events via a channel; it returns the
// dispatcher, the read-only channel, and a close function the caller
// should invoke during shutdown.
func NewChannelDispatcher(name string, buffer int) (ports.Dispatcher, <-chan domain.Event, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan domain.Event, buffer)
	d := &channelDispatcher{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return d, ch, func() { d.close() }
}

type callbackDispatcher struct {
	name string
	fn   EventFunc
}

func (d *callbackDispatcher) Name() string { return d.name }

func (d *callbackDispatcher) Publish(_ context.Context, ev domain.Event) error {
	if d.fn == nil {
		return &domain.DispatchError{Err: fmt.Errorf("callback dispatcher %q: nil handler", d.name)}
	}
	if err := d.fn(ev); err != nil {
		return &domain.DispatchError{Err: err}
	}
	return nil
}

type channelDispatcher struct {
	name   string
	ch     chan domain.Event
	closed chan struct{}
	once   sync.Once
}

func (d *channelDispatcher) Name() string { return d.name }

func (d *channelDispatcher) Publish(ctx context.Context, ev domain.Event) error {
	select {
	case <-d.closed:
		return &domain.DispatchError{Err: ErrChannelClosed}
	default:
	}

	select {
	case <-d.closed:
		return &domain.DispatchError{Err: ErrChannelClosed}
	case <-ctx.Done():
		return &domain.DispatchError{Err: ctx.Err()}
	case d.ch <- ev:
		return nil
	}
}

func (d *channelDispatcher) close() {
	d.once.Do(func() {
		close(d.closed)
		close(d.ch)
	})
}

// CommandFeed is an in-memory CommandSource for embedders and tests.
type CommandFeed struct {
	ch chan domain.Command
}

func NewCommandFeed(buffer int) *CommandFeed {
	if buffer <= 0 {
		buffer = 16
	}
	return &CommandFeed{ch: make(chan domain.Command, buffer)}
}

func (f *CommandFeed) Commands() <-chan domain.Command { return f.ch }

// Send queues a command for the engine; it drops the command if the
// buffer is full rather than blocking the caller.
func (f *CommandFeed) Send(cmd domain.Command) bool {
	select {
	case f.ch <- cmd:
		return true
	default:
		return false
	}
}

var _ ports.CommandSource = (*CommandFeed)(nil)
