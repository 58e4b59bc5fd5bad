package gaia

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vaamb/gaia/internal/adapters/journal"
	"github.com/vaamb/gaia/internal/domain"
	"github.com/vaamb/gaia/internal/ports"
)

// EventBatchSink is invoked with ordered batches drained from the
// publisher's journal.
type EventBatchSink func([]Event) error

// PublisherConfig configures the journal-backed publisher.
type PublisherConfig struct {
	Policy  Policy
	Journal JournalConfig
}

func (c *PublisherConfig) applyDefaults() {
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 256
	}
	if c.Policy.MaxJournalBytes == 0 {
		c.Policy.MaxJournalBytes = 256 << 20
	}
	if c.Policy.DispatchBackoff == 0 {
		c.Policy.DispatchBackoff = time.Second
	}
	if c.Policy.DispatchBackoffMax == 0 {
		c.Policy.DispatchBackoffMax = time.Minute
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = "./data/journal"
	}
}

// Publisher exposes the journal → sink path to external producers:
// events survive process restarts and sink outages, and reach the sink
// in publish order. It is for sidecar processes that want gaia's
// delivery guarantees without running control loops.
type Publisher struct {
	policy  Policy
	journal ports.Journal
	sink    EventBatchSink

	wake   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	stopOnce sync.Once
}

// NewPublisher opens (or resumes) the journal and starts the drain
// loop. A backlog left by a previous run is delivered first.
func NewPublisher(cfg *PublisherConfig, sink EventBatchSink) (*Publisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink callback is required")
	}
	cfg.applyDefaults()

	jnl, err := journal.NewFileJournal(cfg.Journal.Dir)
	if err != nil {
		return nil, err
	}

	p := &Publisher{
		policy:  cfg.Policy,
		journal: jnl,
		sink:    sink,
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go p.drain()
	return p, nil
}

// Publish appends the event to the journal. Delivery to the sink is
// asynchronous.
func (p *Publisher) Publish(ev Event) error {
	if _, err := p.journal.Append(&ev); err != nil {
		return err
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// Stats exposes the journal backlog.
func (p *Publisher) Stats() JournalStats { return p.journal.Stats() }

// Close stops the drain loop, respecting the provided context.
func (p *Publisher) Close(ctx context.Context) error {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	select {
	case <-p.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) drain() {
	defer close(p.doneCh)

	delay := p.policy.DispatchBackoff

	for {
		stats := p.journal.Stats()
		if stats.LatestAppended < stats.OldestUncommitted {
			select {
			case <-p.stopCh:
				return
			case <-p.wake:
			}
			continue
		}

		batch := make([]Event, 0, p.policy.MaxBatchSize)
		var last ports.JournalEntryID
		err := p.journal.Iterate(stats.OldestUncommitted, func(id ports.JournalEntryID, ev *domain.Event) error {
			batch = append(batch, *ev)
			last = id
			if len(batch) >= p.policy.MaxBatchSize {
				return errBatchFull
			}
			return nil
		})
		if err != nil && err != errBatchFull {
			return
		}
		if len(batch) == 0 {
			continue
		}

		if err := p.sink(batch); err != nil {
			p.enforceBound()
			select {
			case <-p.stopCh:
				return
			case <-time.After(delay):
			}
			if delay *= 2; delay > p.policy.DispatchBackoffMax {
				delay = p.policy.DispatchBackoffMax
			}
			continue
		}
		delay = p.policy.DispatchBackoff

		if err := p.journal.Commit(last); err != nil {
			return
		}
		if c, ok := p.journal.(interface{ Compact() error }); ok {
			if p.journal.Stats().SizeBytes > p.policy.MaxJournalBytes {
				_ = c.Compact()
			}
		}
	}
}

// enforceBound drops the oldest undelivered entries when a sink outage
// has pushed the journal past its size bound.
func (p *Publisher) enforceBound() {
	t, ok := p.journal.(interface{ TruncateOldest(int64) (int, error) })
	if !ok {
		return
	}
	if p.journal.Stats().SizeBytes > p.policy.MaxJournalBytes {
		_, _ = t.TruncateOldest(p.policy.MaxJournalBytes)
	}
}

var errBatchFull = fmt.Errorf("batch full")
