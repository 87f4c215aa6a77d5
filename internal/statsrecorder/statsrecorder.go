// Package statsrecorder moves access-statistics writes off the redirect hot
// path. Redirect handlers enqueue one record per resolution; a background
// worker coalesces records per link and flushes them to the storage in
// batches. Each enqueued record is counted exactly once: a failed flush keeps
// the batch for the next tick, and stopping the worker flushes the remainder.
package statsrecorder

import (
	"context"
	"time"

	"github.com/undefined7887/shortlink/internal/logger"
)

type accessKeeper interface {
	RecordAccess(ctx context.Context, linkID string, count int64, accessedAt time.Time) error
}

type access struct {
	linkID string
	at     time.Time
}

type pendingAccess struct {
	count        int64
	lastAccessAt time.Time
}

// StatsRecorder is the background worker recording link access statistics.
type StatsRecorder struct {
	queue                    chan access
	db                       accessKeeper
	delayBetweenQueueFetches time.Duration
	errorChannel             chan error
	done                     chan struct{}
}

// New creates a recorder writing through the given storage.
func New(
	db accessKeeper,
	channelCapacity int,
	delayBetweenQueueFetches time.Duration,
) *StatsRecorder {
	return &StatsRecorder{
		db:                       db,
		queue:                    make(chan access, channelCapacity),
		delayBetweenQueueFetches: delayBetweenQueueFetches,
		errorChannel:             make(chan error, channelCapacity),
		done:                     make(chan struct{}),
	}
}

// Enqueue registers one resolved redirect of the given link.
// It blocks when the queue is full rather than dropping the record.
func (r *StatsRecorder) Enqueue(linkID string, accessedAt time.Time) {
	r.queue <- access{
		linkID: linkID,
		at:     accessedAt,
	}
}

// ListenErrors delivers flush errors to the callback in a separate goroutine.
func (r *StatsRecorder) ListenErrors(callback func(error)) {
	go func() {
		for err := range r.errorChannel {
			callback(err)
		}
	}()
}

// Run starts the worker. It returns immediately; the worker stops when the
// context is canceled, flushing whatever is still buffered.
func (r *StatsRecorder) Run(ctx context.Context) {
	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.delayBetweenQueueFetches)
		defer ticker.Stop()

		batch := map[string]pendingAccess{}

		for {
			select {
			case a := <-r.queue:
				collect(batch, a)

			case <-ticker.C:
				r.flush(ctx, batch)

			case <-ctx.Done():
				r.drainQueue(batch)
				r.flush(context.Background(), batch)
				return
			}
		}
	}()
}

// Wait blocks until the worker started by Run has performed its final flush
// and exited. Callers must cancel the Run context first.
func (r *StatsRecorder) Wait() {
	<-r.done
}

func collect(batch map[string]pendingAccess, a access) {
	pending := batch[a.linkID]
	pending.count++
	if a.at.After(pending.lastAccessAt) {
		pending.lastAccessAt = a.at
	}
	batch[a.linkID] = pending
}

func (r *StatsRecorder) drainQueue(batch map[string]pendingAccess) {
	for {
		select {
		case a := <-r.queue:
			collect(batch, a)
		default:
			return
		}
	}
}

// flush writes the batched records. Entries written successfully are removed
// from the batch; failed entries stay and are retried on the next tick.
func (r *StatsRecorder) flush(ctx context.Context, batch map[string]pendingAccess) {
	if len(batch) == 0 {
		return
	}

	flushed := 0
	for linkID, pending := range batch {
		err := r.db.RecordAccess(ctx, linkID, pending.count, pending.lastAccessAt)
		if err != nil {
			r.errorChannel <- err
			continue
		}
		delete(batch, linkID)
		flushed += int(pending.count)
	}

	if flushed > 0 {
		logger.Log.Debugf("recorded %d link accesses", flushed)
	}
}
