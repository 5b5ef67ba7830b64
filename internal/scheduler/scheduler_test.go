package scheduler_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/worklink/offline-sync/internal/clock"
	"github.com/worklink/offline-sync/internal/domain"
	"github.com/worklink/offline-sync/internal/replay"
	"github.com/worklink/offline-sync/internal/scheduler"
	"github.com/worklink/offline-sync/internal/store"
)

// fakeRequester records sync registrations; scriptable to refuse.
type fakeRequester struct {
	mu   sync.Mutex
	tags []string
	err  error
}

func (f *fakeRequester) RequestSync(_ context.Context, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tags = append(f.tags, tag)
	return nil
}

// fakeConn is a settable ConnectivityView.
type fakeConn struct {
	mu        sync.Mutex
	connected bool
}

func (f *fakeConn) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConn) set(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

// countingSender counts successful sends; scriptable to fail while "offline".
type countingSender struct {
	mu    sync.Mutex
	fail  bool
	sends int
}

func (c *countingSender) Send(_ context.Context, _ *domain.QueuedAction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("network unreachable")
	}
	c.sends++
	return nil
}

func (c *countingSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sends
}

func newScheduler(st store.QueueStore, req scheduler.SyncRequester, sender replay.Sender, conn scheduler.ConnectivityView) *scheduler.Scheduler {
	r := replay.NewReplayer(st, sender, time.Second, zap.NewNop(), replay.MetricHooks{}, nil)
	return scheduler.New(st, req, r, conn, 5, time.Hour, clock.Real{}, zap.NewNop(), nil)
}

func TestScheduler_QueueMessageWhileOffline(t *testing.T) {
	st := store.NewMockQueueStore()
	req := &fakeRequester{}
	sch := newScheduler(st, req, &countingSender{fail: true}, &fakeConn{})
	ctx := context.Background()

	a, err := sch.QueueMessage(ctx, json.RawMessage(`{"body":"hi"}`), "tok-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Queue != domain.QueueMessages {
		t.Fatalf("expected pending-messages, got %s", a.Queue)
	}
	if a.Attempts != 0 {
		t.Fatalf("expected attempts=0 at enqueue, got %d", a.Attempts)
	}
	if a.IdempotencyKey == "" {
		t.Fatal("expected a client-generated idempotency key")
	}
	if a.AuthToken != "tok-1" {
		t.Fatal("expected the auth token snapshot to be captured")
	}

	items, err := st.GetAllItems(ctx, domain.QueueMessages)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 record in pending-messages, got %d", len(items))
	}

	req.mu.Lock()
	defer req.mu.Unlock()
	if len(req.tags) != 1 || req.tags[0] != "sync-pending-messages" {
		t.Fatalf("expected a sync registration for the queue, got %v", req.tags)
	}
}

func TestScheduler_EnqueueValidates(t *testing.T) {
	sch := newScheduler(store.NewMockQueueStore(), &fakeRequester{}, &countingSender{}, &fakeConn{})

	_, err := sch.Enqueue(context.Background(), domain.EnqueueRequest{
		Queue:   "pending-unknown",
		Payload: json.RawMessage(`{}`),
	})
	if err != domain.ErrInvalidQueue {
		t.Fatalf("expected ErrInvalidQueue, got %v", err)
	}
}

func TestScheduler_EnqueueSurfacesStorageFailure(t *testing.T) {
	st := store.NewMockQueueStore()
	st.AddItemErr = domain.ErrStorageUnavailable
	sch := newScheduler(st, &fakeRequester{}, &countingSender{}, &fakeConn{})

	_, err := sch.QueueMessage(context.Background(), json.RawMessage(`{}`), "tok")
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestScheduler_RequestSyncUnsupportedReturnsFalse(t *testing.T) {
	req := &fakeRequester{err: domain.ErrSyncUnsupported}
	sch := newScheduler(store.NewMockQueueStore(), req, &countingSender{}, &fakeConn{})

	if sch.RequestSync(context.Background(), "sync-pending-messages") {
		t.Fatal("expected false when background sync is unsupported")
	}
}

func TestScheduler_EnqueueSucceedsWhenSyncUnsupported(t *testing.T) {
	// Queueing must keep working without background sync; only the
	// registration is skipped.
	req := &fakeRequester{err: domain.ErrSyncUnsupported}
	st := store.NewMockQueueStore()
	sch := newScheduler(st, req, &countingSender{}, &fakeConn{})

	if _, err := sch.QueueApplication(context.Background(), json.RawMessage(`{"job_id":1}`), "tok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items, _ := st.GetAllItems(context.Background(), domain.QueueApplications)
	if len(items) != 1 {
		t.Fatal("expected the record queued despite unsupported sync")
	}
}

func TestScheduler_ReconnectTriggersReplay(t *testing.T) {
	st := store.NewMockQueueStore()
	sender := &countingSender{fail: true}
	conn := &fakeConn{}
	sch := newScheduler(st, &fakeRequester{err: domain.ErrSyncUnsupported}, sender, conn)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Submit while offline.
	if _, err := sch.QueueMessage(ctx, json.RawMessage(`{"body":"hi"}`), "tok"); err != nil {
		t.Fatal(err)
	}

	go sch.Run(ctx)

	// Connectivity restored.
	sender.mu.Lock()
	sender.fail = false
	sender.mu.Unlock()
	conn.set(true)
	sch.OnConnectivityChange(true)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sender.count() == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if sender.count() != 1 {
		t.Fatalf("expected 1 send after reconnect, got %d", sender.count())
	}

	items, _ := st.GetAllItems(context.Background(), domain.QueueMessages)
	if len(items) != 0 {
		t.Fatalf("expected queue drained after replay, got %d records", len(items))
	}
}

func TestScheduler_DisconnectDoesNotTriggerReplay(t *testing.T) {
	st := store.NewMockQueueStore()
	sender := &countingSender{}
	sch := newScheduler(st, &fakeRequester{}, sender, &fakeConn{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := sch.QueueMessage(ctx, json.RawMessage(`{}`), "tok"); err != nil {
		t.Fatal(err)
	}
	go sch.Run(ctx)

	sch.OnConnectivityChange(false)
	time.Sleep(50 * time.Millisecond)

	if sender.count() != 0 {
		t.Fatal("expected no replay on a disconnect signal")
	}
}

func TestScheduler_SyncNow(t *testing.T) {
	st := store.NewMockQueueStore()
	sender := &countingSender{}
	sch := newScheduler(st, &fakeRequester{}, sender, &fakeConn{})
	ctx := context.Background()

	if _, err := sch.QueueMessage(ctx, json.RawMessage(`{"body":"a"}`), "tok"); err != nil {
		t.Fatal(err)
	}
	if _, err := sch.QueueApplication(ctx, json.RawMessage(`{"job_id":2}`), "tok"); err != nil {
		t.Fatal(err)
	}

	if got := sch.SyncNow(ctx); got != 2 {
		t.Fatalf("expected 2 delivered, got %d", got)
	}
}
