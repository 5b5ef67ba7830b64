package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/worklink/offline-sync/internal/clock"
	"github.com/worklink/offline-sync/internal/domain"
	"github.com/worklink/offline-sync/internal/replay"
	"github.com/worklink/offline-sync/internal/store"
)

// SyncRequester asks the platform to invoke the background worker for a tag
// once connectivity allows. Implementations return domain.ErrSyncUnsupported
// when no background execution facility is available.
type SyncRequester interface {
	RequestSync(ctx context.Context, tag string) error
}

// ConnectivityView is the read side of the connectivity monitor.
type ConnectivityView interface {
	IsConnected() bool
}

// Scheduler turns "user action failed because offline" into "action will be
// retried automatically".
//
// The normal path writes the action durably and registers a sync tag with
// the background worker. When background sync is unsupported or registration
// fails, the fallback path replays in-process: a reconnect signal from the
// connectivity monitor or the periodic flush tick drains the queues.
type Scheduler struct {
	store       store.QueueStore
	requester   SyncRequester
	replayer    *replay.Replayer
	conn        ConnectivityView
	maxAttempts int
	flushEvery  time.Duration
	clk         clock.Clock
	logger      *zap.Logger
	onQueued    func(q domain.Queue)

	kick chan struct{}
}

func New(
	st store.QueueStore,
	requester SyncRequester,
	replayer *replay.Replayer,
	conn ConnectivityView,
	maxAttempts int,
	flushEvery time.Duration,
	clk clock.Clock,
	logger *zap.Logger,
	onQueued func(q domain.Queue),
) *Scheduler {
	if onQueued == nil {
		onQueued = func(domain.Queue) {}
	}
	return &Scheduler{
		store:       st,
		requester:   requester,
		replayer:    replayer,
		conn:        conn,
		maxAttempts: maxAttempts,
		flushEvery:  flushEvery,
		clk:         clk,
		logger:      logger,
		onQueued:    onQueued,
		kick:        make(chan struct{}, 1),
	}
}

// QueueApplication durably records a failed job-application submission.
func (s *Scheduler) QueueApplication(ctx context.Context, payload json.RawMessage, authToken string) (*domain.QueuedAction, error) {
	return s.Enqueue(ctx, domain.EnqueueRequest{
		Queue:     domain.QueueApplications,
		Payload:   payload,
		AuthToken: authToken,
	})
}

// QueueMessage durably records a failed message submission.
func (s *Scheduler) QueueMessage(ctx context.Context, payload json.RawMessage, authToken string) (*domain.QueuedAction, error) {
	return s.Enqueue(ctx, domain.EnqueueRequest{
		Queue:     domain.QueueMessages,
		Payload:   payload,
		AuthToken: authToken,
	})
}

// Enqueue validates and persists one deferred action, then requests a
// background sync for its queue. The sync registration is best effort:
// its failure leaves the record queued for the fallback replay paths.
func (s *Scheduler) Enqueue(ctx context.Context, req domain.EnqueueRequest) (*domain.QueuedAction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := s.clk.Now().UTC()
	a := &domain.QueuedAction{
		Queue:          req.Queue,
		Payload:        req.Payload,
		AuthToken:      req.AuthToken,
		IdempotencyKey: uuid.New().String(),
		Status:         domain.StatusPending,
		MaxAttempts:    s.maxAttempts,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.AddItem(ctx, a); err != nil {
		return nil, fmt.Errorf("persist queued action: %w", err)
	}
	s.onQueued(a.Queue)

	s.logger.Info("action queued",
		zap.Int64("action_id", a.ID),
		zap.String("queue", string(a.Queue)),
	)

	s.RequestSync(ctx, req.Queue.SyncTag())
	return a, nil
}

// RequestSync registers a sync tag with the platform. Returns false (and
// logs, does not throw) when deferred background execution is unavailable;
// the caller's fallback is the in-process reconnect replay.
func (s *Scheduler) RequestSync(ctx context.Context, tag string) bool {
	err := s.requester.RequestSync(ctx, tag)
	if err == nil {
		return true
	}
	if errors.Is(err, domain.ErrSyncUnsupported) {
		s.logger.Debug("background sync unsupported, relying on in-process replay",
			zap.String("tag", tag))
	} else {
		s.logger.Warn("sync registration failed",
			zap.String("tag", tag), zap.Error(err))
	}
	return false
}

// OnConnectivityChange is wired as the connectivity monitor's verdict
// callback. A reconnect kicks an immediate replay; a disconnect is ignored.
func (s *Scheduler) OnConnectivityChange(connected bool) {
	if !connected {
		return
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// SyncNow replays all queues immediately and returns the delivered count.
func (s *Scheduler) SyncNow(ctx context.Context) int {
	return s.replayer.ReplayAll(ctx)
}

// Run drives the fallback replay paths until ctx is cancelled: reconnect
// kicks and the periodic flush tick. Stops cleanly when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()

	s.logger.Info("sync scheduler started", zap.Duration("flush_interval", s.flushEvery))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync scheduler stopping")
			return
		case <-s.kick:
			s.flush(ctx, "reconnect")
		case <-ticker.C:
			if s.conn.IsConnected() {
				s.flush(ctx, "flush-tick")
			}
		}
	}
}

func (s *Scheduler) flush(ctx context.Context, reason string) {
	delivered := s.replayer.ReplayAll(ctx)
	if delivered > 0 {
		s.logger.Info("replayed queued actions",
			zap.String("trigger", reason),
			zap.Int("delivered", delivered),
		)
	}
}
