package replay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/worklink/offline-sync/internal/domain"
	"github.com/worklink/offline-sync/internal/store"
)

// MetricHooks carries the metric callback functions injected by main.
// Using a struct keeps the replayer constructor signature clean.
type MetricHooks struct {
	OnReplayed  func(q domain.Queue, latency time.Duration)
	OnFailed    func(q domain.Queue)
	OnAbandoned func(q domain.Queue)
}

// AbandonNotifier is invoked when a record exhausts its attempt cap.
// The user-facing layer uses it to surface "this action needs a manual
// retry"; the record itself is retained, never silently dropped.
type AbandonNotifier func(a *domain.QueuedAction)

// Replayer drains the persistent queues against the remote API.
//
// Each queue is replayed in enqueue order. A record's failure is isolated:
// it is counted against that record and the replay moves on, so one bad
// record cannot block the rest of its queue or another queue. Replaying the
// same record twice is safe because the server deduplicates on the record's
// idempotency key.
type Replayer struct {
	store   store.QueueStore
	sender  Sender
	timeout time.Duration
	logger  *zap.Logger
	hooks   MetricHooks
	notify  AbandonNotifier
}

// NewReplayer constructs a replayer. hooks fields and notify are optional
// (nil = no-op). timeout bounds each record's network call so a single
// unreachable record cannot stall the whole queue.
func NewReplayer(
	st store.QueueStore,
	sender Sender,
	timeout time.Duration,
	logger *zap.Logger,
	hooks MetricHooks,
	notify AbandonNotifier,
) *Replayer {
	if hooks.OnReplayed == nil {
		hooks.OnReplayed = func(domain.Queue, time.Duration) {}
	}
	if hooks.OnFailed == nil {
		hooks.OnFailed = func(domain.Queue) {}
	}
	if hooks.OnAbandoned == nil {
		hooks.OnAbandoned = func(domain.Queue) {}
	}
	if notify == nil {
		notify = func(*domain.QueuedAction) {}
	}
	return &Replayer{
		store: st, sender: sender, timeout: timeout,
		logger: logger, hooks: hooks, notify: notify,
	}
}

// ReplayAll replays every queue and returns the number of records delivered.
func (r *Replayer) ReplayAll(ctx context.Context) int {
	total := 0
	for _, q := range domain.Queues() {
		total += r.ReplayQueue(ctx, q)
	}
	return total
}

// ReplayQueue replays one queue in FIFO order and returns the number of
// records delivered. Stops early only on context cancellation; per-record
// errors are recorded and skipped.
func (r *Replayer) ReplayQueue(ctx context.Context, q domain.Queue) int {
	items, err := r.store.GetAllItems(ctx, q)
	if err != nil {
		r.logger.Error("replay read failed", zap.String("queue", string(q)), zap.Error(err))
		return 0
	}
	if len(items) == 0 {
		return 0
	}

	r.logger.Info("replaying queue",
		zap.String("queue", string(q)),
		zap.Int("pending", len(items)),
	)

	delivered := 0
	for _, a := range items {
		if ctx.Err() != nil {
			// Teardown mid-replay: remaining records stay persisted and the
			// next sync opportunity resumes from here.
			return delivered
		}
		if r.replayOne(ctx, a) {
			delivered++
		}
	}
	return delivered
}

// replayOne attempts a single record's network call. Returns true when the
// record was delivered and removed.
func (r *Replayer) replayOne(ctx context.Context, a *domain.QueuedAction) bool {
	log := r.logger.With(
		zap.Int64("action_id", a.ID),
		zap.String("queue", string(a.Queue)),
	)

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	err := r.sender.Send(callCtx, a)
	cancel()
	elapsed := time.Since(start)

	if err == nil {
		// The record may already be gone if an interrupted replay resumed
		// concurrently; DeleteItem treats that as a no-op, and so do we.
		if delErr := r.store.DeleteItem(ctx, a.Queue, a.ID); delErr != nil {
			log.Error("failed to remove replayed action", zap.Error(delErr))
		}
		r.hooks.OnReplayed(a.Queue, elapsed)
		log.Info("action replayed", zap.Duration("latency", elapsed))
		return true
	}

	log.Warn("replay attempt failed",
		zap.Error(err),
		zap.Int("attempts", a.Attempts),
	)

	if a.Attempts+1 >= a.MaxAttempts {
		if markErr := r.store.MarkAbandoned(ctx, a.Queue, a.ID, err.Error()); markErr != nil {
			log.Error("failed to abandon action", zap.Error(markErr))
			return false
		}
		a.Status = domain.StatusAbandoned
		a.Attempts++
		r.hooks.OnAbandoned(a.Queue)
		r.notify(a)
		log.Warn("action abandoned after attempt cap", zap.Int("attempts", a.Attempts))
		return false
	}

	if recErr := r.store.RecordFailure(ctx, a.Queue, a.ID, err.Error()); recErr != nil {
		log.Error("failed to record replay failure", zap.Error(recErr))
	}
	r.hooks.OnFailed(a.Queue)
	return false
}
