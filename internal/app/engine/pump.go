package engine

import (
	"context"
	"errors"
	"time"

	"github.com/vaamb/gaia/internal/domain"
	"github.com/vaamb/gaia/internal/ports"
)

const pumpIdleSleep = 250 * time.Millisecond

var errJournalOverflow = errors.New("journal size bound exceeded, oldest undelivered events dropped")

// pumpDispatch moves telemetry from the queue to the dispatcher. A
// failed publish diverts the batch to the journal; the journal backlog
// is then replayed, in order, ahead of fresh queue traffic, with
// exponential backoff between attempts. Persistence through the
// recorder is independent of dispatch and never retried.
func (e *Engine) pumpDispatch(ctx context.Context) {
	defer e.wg.Done()

	backoff := e.deps.Policy.DispatchBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	maxBackoff := e.deps.Policy.DispatchBackoffMax
	if maxBackoff < backoff {
		maxBackoff = backoff
	}
	delay := backoff

	for {
		if ctx.Err() != nil {
			return
		}

		if e.deps.Journal != nil {
			e.deps.Obs.SetGauge("gaia_journal_size_bytes", float64(e.deps.Journal.Stats().SizeBytes))
			ok, err := e.replayJournal(ctx)
			if err != nil {
				e.deps.Obs.LogError("journal_replay_failed", err)
			}
			if !ok {
				delay = e.sleep(ctx, delay, maxBackoff)
				continue
			}
		}
		delay = backoff

		batchSize := e.deps.Policy.MaxBatchSize
		if batchSize <= 0 {
			batchSize = 256
		}
		batch := e.deps.Queue.DequeueBatch(batchSize)
		e.deps.Obs.SetGauge("gaia_queue_length", float64(e.deps.Queue.Len()))
		if len(batch) == 0 {
			if !sleepCtx(ctx, pumpIdleSleep) {
				return
			}
			continue
		}

		e.record(ctx, batch)

		if e.deps.Dispatcher == nil {
			continue
		}
		for i := range batch {
			if err := e.deps.Dispatcher.Publish(ctx, batch[i]); err != nil {
				e.deps.Obs.LogError("dispatch_failed", &domain.DispatchError{Err: err},
					ports.Field{Key: "dispatcher", Value: e.deps.Dispatcher.Name()})
				e.journalBatch(batch[i:])
				delay = e.sleep(ctx, delay, maxBackoff)
				break
			}
			e.deps.Obs.IncCounter("gaia_events_dispatched_total", 1)
		}
	}
}

// replayJournal publishes the uncommitted backlog. It reports whether
// the backlog is clear so fresh queue traffic keeps its ordering.
func (e *Engine) replayJournal(ctx context.Context) (bool, error) {
	stats := e.deps.Journal.Stats()
	if stats.LatestAppended < stats.OldestUncommitted {
		return true, nil
	}
	if e.deps.Dispatcher == nil {
		return true, nil
	}

	var delivered ports.JournalEntryID
	err := e.deps.Journal.Iterate(stats.OldestUncommitted, func(id ports.JournalEntryID, ev *domain.Event) error {
		if err := e.deps.Dispatcher.Publish(ctx, *ev); err != nil {
			return err
		}
		delivered = id
		e.deps.Obs.IncCounter("gaia_events_dispatched_total", 1)
		return nil
	})

	if delivered > 0 {
		if cerr := e.deps.Journal.Commit(delivered); cerr != nil {
			e.deps.Obs.LogCritical("journal_commit_failed", cerr)
		}
	}
	if err != nil {
		return false, err
	}
	e.compactJournal()
	return true, nil
}

// journalBatch persists undelivered events for later replay. Losing an
// event here is logged as critical: it means both the dispatcher and
// the disk failed.
func (e *Engine) journalBatch(events []domain.Event) {
	if e.deps.Journal == nil {
		return
	}
	for i := range events {
		if _, err := e.deps.Journal.Append(&events[i]); err != nil {
			e.deps.Obs.LogCritical("journal_append_failed", err)
		}
	}
	if max := e.deps.Policy.MaxJournalBytes; max > 0 && e.deps.Journal.Stats().SizeBytes > max {
		e.compactJournal()
		e.truncateJournal(max)
	}
}

func (e *Engine) compactJournal() {
	c, ok := e.deps.Journal.(interface{ Compact() error })
	if !ok {
		return
	}
	if err := c.Compact(); err != nil {
		e.deps.Obs.LogError("journal_compact_failed", err)
	}
}

// truncateJournal enforces the size bound when compaction alone cannot:
// during a sustained outage nothing is committed, so the oldest
// undelivered events are sacrificed to keep the journal within max.
func (e *Engine) truncateJournal(max int64) {
	t, ok := e.deps.Journal.(interface{ TruncateOldest(int64) (int, error) })
	if !ok {
		return
	}
	if e.deps.Journal.Stats().SizeBytes <= max {
		return
	}
	dropped, err := t.TruncateOldest(max)
	if err != nil {
		e.deps.Obs.LogError("journal_truncate_failed", err)
		return
	}
	if dropped > 0 {
		e.deps.Obs.IncCounter("gaia_events_dropped_total", float64(dropped))
		e.deps.Obs.LogError("journal_overflow", &domain.DispatchError{Err: errJournalOverflow},
			ports.Field{Key: "dropped", Value: dropped})
	}
}

// record hands a batch to the recorder, splitting measurements from
// status transitions. Recorder failures are logged and dropped; the
// journal only guards the dispatch path.
func (e *Engine) record(ctx context.Context, batch []domain.Event) {
	if e.deps.Recorder == nil {
		return
	}
	var measurements []domain.Measurement
	for i := range batch {
		measurements = append(measurements, batch[i].Measurements...)
		if len(batch[i].Measurements) == 0 && len(batch[i].Outputs) == 0 {
			if err := e.deps.Recorder.AppendStatus(ctx, batch[i]); err != nil {
				e.deps.Obs.LogError("recorder_status_failed", err,
					ports.Field{Key: "recorder", Value: e.deps.Recorder.Name()})
			}
		}
	}
	if len(measurements) == 0 {
		return
	}
	if err := e.deps.Recorder.AppendMeasurements(ctx, measurements); err != nil {
		e.deps.Obs.LogError("recorder_measurements_failed", err,
			ports.Field{Key: "recorder", Value: e.deps.Recorder.Name()})
	}
}

// sleep waits for the current backoff and returns the next one.
func (e *Engine) sleep(ctx context.Context, delay, max time.Duration) time.Duration {
	if !sleepCtx(ctx, delay) {
		return delay
	}
	next := delay * 2
	if next > max {
		next = max
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
