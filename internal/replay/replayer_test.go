package replay_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/worklink/offline-sync/internal/domain"
	"github.com/worklink/offline-sync/internal/replay"
	"github.com/worklink/offline-sync/internal/store"
)

// scriptedSender fails a configurable number of times per record before
// succeeding, and records the order of idempotency keys it saw.
type scriptedSender struct {
	mu       sync.Mutex
	failures map[string]int // idempotency key -> remaining failures
	seen     []string
}

func (s *scriptedSender) Send(_ context.Context, a *domain.QueuedAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, a.IdempotencyKey)
	if s.failures[a.IdempotencyKey] > 0 {
		s.failures[a.IdempotencyKey]--
		return errors.New("connection refused")
	}
	return nil
}

func enqueue(t *testing.T, st store.QueueStore, q domain.Queue, payload string) *domain.QueuedAction {
	t.Helper()
	now := time.Now().UTC()
	a := &domain.QueuedAction{
		Queue:          q,
		Payload:        json.RawMessage(payload),
		AuthToken:      "tok",
		IdempotencyKey: uuid.New().String(),
		Status:         domain.StatusPending,
		MaxAttempts:    5,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := st.AddItem(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	return a
}

func newReplayer(st store.QueueStore, sender replay.Sender) *replay.Replayer {
	return replay.NewReplayer(st, sender, time.Second, zap.NewNop(), replay.MetricHooks{}, nil)
}

func TestReplayer_FIFOWithinQueue(t *testing.T) {
	st := store.NewMockQueueStore()
	sender := &scriptedSender{failures: map[string]int{}}
	r := newReplayer(st, sender)

	var keys []string
	for i := 0; i < 3; i++ {
		a := enqueue(t, st, domain.QueueMessages, `"m"`)
		keys = append(keys, a.IdempotencyKey)
	}

	if got := r.ReplayQueue(context.Background(), domain.QueueMessages); got != 3 {
		t.Fatalf("expected 3 delivered, got %d", got)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	for i, want := range keys {
		if sender.seen[i] != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, sender.seen[i])
		}
	}
}

func TestReplayer_SuccessRemovesRecord(t *testing.T) {
	st := store.NewMockQueueStore()
	sender := &scriptedSender{failures: map[string]int{}}
	r := newReplayer(st, sender)
	ctx := context.Background()

	enqueue(t, st, domain.QueueMessages, `"hello"`)
	r.ReplayQueue(ctx, domain.QueueMessages)

	items, _ := st.GetAllItems(ctx, domain.QueueMessages)
	if len(items) != 0 {
		t.Fatalf("expected empty queue after successful replay, got %d items", len(items))
	}
}

func TestReplayer_FailureIncrementsAttempts(t *testing.T) {
	st := store.NewMockQueueStore()
	r := newReplayer(st, &scriptedSender{failures: map[string]int{}})
	ctx := context.Background()

	a := enqueue(t, st, domain.QueueApplications, `"x"`)
	sender := &scriptedSender{failures: map[string]int{a.IdempotencyKey: 1}}
	r = newReplayer(st, sender)

	if got := r.ReplayQueue(ctx, domain.QueueApplications); got != 0 {
		t.Fatalf("expected 0 delivered, got %d", got)
	}

	got, err := st.GetItem(ctx, a.Queue, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", got.Attempts)
	}
	if got.Status != domain.StatusPending {
		t.Fatalf("expected record left pending for the next opportunity, got %s", got.Status)
	}
	if got.LastError == nil {
		t.Fatal("expected last error recorded")
	}
}

func TestReplayer_AbandonAfterCap(t *testing.T) {
	st := store.NewMockQueueStore()
	ctx := context.Background()

	a := enqueue(t, st, domain.QueueMessages, `"x"`)
	sender := &scriptedSender{failures: map[string]int{a.IdempotencyKey: 100}}

	var abandoned []*domain.QueuedAction
	r := replay.NewReplayer(st, sender, time.Second, zap.NewNop(), replay.MetricHooks{},
		func(a *domain.QueuedAction) { abandoned = append(abandoned, a) })

	// Five consecutive failing sync opportunities.
	for i := 0; i < 5; i++ {
		r.ReplayQueue(ctx, domain.QueueMessages)
	}

	got, err := st.GetItem(ctx, a.Queue, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusAbandoned {
		t.Fatalf("expected abandoned after 5 failures, got %s (attempts=%d)", got.Status, got.Attempts)
	}
	if len(abandoned) != 1 || abandoned[0].ID != a.ID {
		t.Fatalf("expected abandon notification for the record, got %v", abandoned)
	}

	// Excluded from further automatic replay.
	sender.mu.Lock()
	calls := len(sender.seen)
	sender.mu.Unlock()
	r.ReplayQueue(ctx, domain.QueueMessages)
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.seen) != calls {
		t.Fatal("abandoned record was replayed again")
	}
}

func TestReplayer_OneBadRecordDoesNotBlockQueue(t *testing.T) {
	st := store.NewMockQueueStore()
	ctx := context.Background()

	bad := enqueue(t, st, domain.QueueMessages, `"bad"`)
	enqueue(t, st, domain.QueueMessages, `"good"`)
	sender := &scriptedSender{failures: map[string]int{bad.IdempotencyKey: 100}}
	r := newReplayer(st, sender)

	if got := r.ReplayQueue(ctx, domain.QueueMessages); got != 1 {
		t.Fatalf("expected the good record delivered despite the bad one, got %d", got)
	}

	items, _ := st.GetAllItems(ctx, domain.QueueMessages)
	if len(items) != 1 || items[0].ID != bad.ID {
		t.Fatalf("expected only the bad record left pending")
	}
}

func TestReplayer_RecordVanishingMidReplayIsSuccess(t *testing.T) {
	st := store.NewMockQueueStore()
	sender := &scriptedSender{failures: map[string]int{}}
	r := newReplayer(st, sender)
	ctx := context.Background()

	a := enqueue(t, st, domain.QueueMessages, `"x"`)

	// A concurrent resumed replay deletes the record between our read and
	// our delete. The second delete must be treated as success.
	if err := st.DeleteItem(ctx, a.Queue, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := st.DeleteItem(ctx, a.Queue, a.ID); err != nil {
		t.Fatalf("double delete must be tolerated, got %v", err)
	}

	if got := r.ReplayQueue(ctx, domain.QueueMessages); got != 0 {
		t.Fatalf("expected nothing to replay, got %d", got)
	}
}

func TestReplayer_ContextCancelStopsButKeepsRecords(t *testing.T) {
	st := store.NewMockQueueStore()
	sender := &scriptedSender{failures: map[string]int{}}
	r := newReplayer(st, sender)

	for i := 0; i < 3; i++ {
		enqueue(t, st, domain.QueueMessages, `"m"`)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.ReplayQueue(ctx, domain.QueueMessages)

	items, _ := st.GetAllItems(context.Background(), domain.QueueMessages)
	if len(items) != 3 {
		t.Fatalf("expected all records retained after cancelled replay, got %d", len(items))
	}
}

func TestHTTPSender_IdempotentEffect(t *testing.T) {
	// Server enforcing the client-generated idempotency key: the second
	// submission of the same key answers 409 and produces no second effect.
	var mu sync.Mutex
	effects := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		mu.Lock()
		defer mu.Unlock()
		if effects[key] > 0 {
			w.WriteHeader(http.StatusConflict)
			return
		}
		effects[key]++
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sender := replay.NewHTTPSender(srv.URL, time.Second)
	a := &domain.QueuedAction{
		Queue:          domain.QueueMessages,
		Payload:        json.RawMessage(`{"body":"hi"}`),
		AuthToken:      "tok",
		IdempotencyKey: uuid.New().String(),
	}

	// Interrupted-then-resumed sync: the same record is sent twice.
	if err := sender.Send(context.Background(), a); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := sender.Send(context.Background(), a); err != nil {
		t.Fatalf("second send must be treated as success, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if effects[a.IdempotencyKey] != 1 {
		t.Fatalf("expected exactly one server-side effect, got %d", effects[a.IdempotencyKey])
	}
}

func TestHTTPSender_SetsHeaders(t *testing.T) {
	var gotAuth, gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("Idempotency-Key")
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := replay.NewHTTPSender(srv.URL, time.Second)
	a := &domain.QueuedAction{
		Queue:          domain.QueueApplications,
		Payload:        json.RawMessage(`{}`),
		AuthToken:      "snapshot-token",
		IdempotencyKey: "key-1",
	}
	if err := sender.Send(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer snapshot-token" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotKey != "key-1" {
		t.Fatalf("unexpected idempotency key %q", gotKey)
	}
	if gotPath != "/api/v1/applications" {
		t.Fatalf("unexpected path %q", gotPath)
	}
}
