package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/worklink/offline-sync/internal/domain"
	"github.com/worklink/offline-sync/internal/lifecycle"
)

// fakeRuntime is a scriptable WorkerRuntime.
type fakeRuntime struct {
	mu             sync.Mutex
	registerErr    error
	waitingVersion string
	skipSignalled  bool
	syncTags       []string
}

func (f *fakeRuntime) Register(context.Context) (*lifecycle.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &lifecycle.Registration{Version: "v1"}, nil
}

func (f *fakeRuntime) CheckForUpdate(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waitingVersion, nil
}

func (f *fakeRuntime) SignalSkipWaiting(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skipSignalled = true
	return nil
}

func (f *fakeRuntime) RegisterSyncTag(_ context.Context, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncTags = append(f.syncTags, tag)
	return nil
}

func newManager(rt lifecycle.WorkerRuntime, restart func()) *lifecycle.Manager {
	return lifecycle.NewManager(rt, time.Hour, restart, zap.NewNop())
}

func TestManager_RegisterNormalPath(t *testing.T) {
	m := newManager(&fakeRuntime{}, nil)

	if m.State() != lifecycle.StateUnregistered {
		t.Fatalf("expected unregistered initially, got %s", m.State())
	}

	m.Register(context.Background())

	if m.State() != lifecycle.StateActive {
		t.Fatalf("expected active after registration, got %s", m.State())
	}
	if reg := m.Registration(); reg == nil || reg.Version != "v1" {
		t.Fatalf("unexpected registration %+v", reg)
	}
}

func TestManager_RegistrationFailureDegrades(t *testing.T) {
	m := newManager(&fakeRuntime{registerErr: errors.New("runtime down")}, nil)
	m.Register(context.Background())

	if m.State() != lifecycle.StateUnregistered {
		t.Fatalf("expected unregistered after failed registration, got %s", m.State())
	}
	// Degraded: sync registrations report unsupported, queueing falls back.
	if err := m.RequestSync(context.Background(), "sync-pending-messages"); err != domain.ErrSyncUnsupported {
		t.Fatalf("expected ErrSyncUnsupported, got %v", err)
	}
}

func TestManager_RegisterIsOncePerStart(t *testing.T) {
	rt := &fakeRuntime{}
	m := newManager(rt, nil)
	ctx := context.Background()

	m.Register(ctx)
	m.Register(ctx) // second call is a no-op

	if m.State() != lifecycle.StateActive {
		t.Fatalf("expected active, got %s", m.State())
	}
}

func TestManager_RequestSyncForwardsTag(t *testing.T) {
	rt := &fakeRuntime{}
	m := newManager(rt, nil)
	ctx := context.Background()
	m.Register(ctx)

	if err := m.RequestSync(ctx, "sync-pending-applications"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if len(rt.syncTags) != 1 || rt.syncTags[0] != "sync-pending-applications" {
		t.Fatalf("expected the tag forwarded, got %v", rt.syncTags)
	}
}

func TestManager_UpdatePath(t *testing.T) {
	rt := &fakeRuntime{}
	restarted := false
	m := newManager(rt, func() { restarted = true })
	ctx := context.Background()

	m.Register(ctx)
	if m.UpdateAvailable() {
		t.Fatal("no update should be available yet")
	}

	// A new version finishes installing while v1 is still in control.
	rt.mu.Lock()
	rt.waitingVersion = "v2"
	rt.mu.Unlock()
	m.CheckForUpdate(ctx)

	// The manager surfaces the update instead of activating immediately.
	if !m.UpdateAvailable() {
		t.Fatal("expected updateAvailable=true")
	}
	if m.WaitingVersion() != "v2" {
		t.Fatalf("expected waiting version v2, got %q", m.WaitingVersion())
	}
	if reg := m.Registration(); reg.Version != "v1" {
		t.Fatalf("expected v1 still in control, got %s", reg.Version)
	}
	if restarted {
		t.Fatal("restart must wait for the explicit update call")
	}

	// Explicit activation: signal the waiting worker, then restart.
	if err := m.UpdateWorker(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rt.mu.Lock()
	signalled := rt.skipSignalled
	rt.mu.Unlock()
	if !signalled {
		t.Fatal("expected the skip-waiting signal")
	}
	if !restarted {
		t.Fatal("expected the restart hook to run")
	}
	if m.UpdateAvailable() {
		t.Fatal("expected updateAvailable cleared after activation")
	}
	if reg := m.Registration(); reg.Version != "v2" {
		t.Fatalf("expected v2 in control, got %s", reg.Version)
	}
}

func TestManager_UpdateWorkerNoOpWithoutWaiting(t *testing.T) {
	m := newManager(&fakeRuntime{}, nil)
	m.Register(context.Background())

	if err := m.UpdateWorker(context.Background()); err != domain.ErrNoWaitingWorker {
		t.Fatalf("expected ErrNoWaitingWorker, got %v", err)
	}
}

func TestManager_CheckForUpdateIgnoredWhileUnregistered(t *testing.T) {
	rt := &fakeRuntime{waitingVersion: "v9"}
	m := newManager(rt, nil)

	m.CheckForUpdate(context.Background())
	if m.UpdateAvailable() {
		t.Fatal("unregistered manager must not report updates")
	}
}
