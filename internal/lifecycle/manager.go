package lifecycle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/worklink/offline-sync/internal/domain"
)

// State of the background worker registration.
type State string

const (
	StateUnregistered State = "unregistered"
	StateRegistering  State = "registering"
	StateActive       State = "active"
)

// Registration is the handle for an installed worker version.
type Registration struct {
	Version string `json:"version"`
}

// WorkerRuntime abstracts the platform facility hosting the long-lived
// background worker: the script that performs replay and caching while the
// application itself may not be running. The worker is an external actor;
// the manager only installs it, keeps it current, and forwards sync tags.
type WorkerRuntime interface {
	// Register installs the worker, or returns the existing registration.
	Register(ctx context.Context) (*Registration, error)

	// CheckForUpdate returns the version of a newly installed worker
	// waiting to take control, or "" when the active version is current.
	CheckForUpdate(ctx context.Context) (string, error)

	// SignalSkipWaiting tells the waiting worker version to take control.
	SignalSkipWaiting(ctx context.Context) error

	// RegisterSyncTag asks the active worker to run a deferred sync for the
	// tag once connectivity allows.
	RegisterSyncTag(ctx context.Context, tag string) error
}

// UnsupportedRuntime is the degraded runtime for hosts without a background
// execution facility. Queueing still works; only in-process reconnect replay
// is available.
type UnsupportedRuntime struct{}

func (UnsupportedRuntime) Register(context.Context) (*Registration, error) {
	return nil, domain.ErrSyncUnsupported
}
func (UnsupportedRuntime) CheckForUpdate(context.Context) (string, error) {
	return "", domain.ErrSyncUnsupported
}
func (UnsupportedRuntime) SignalSkipWaiting(context.Context) error {
	return domain.ErrSyncUnsupported
}
func (UnsupportedRuntime) RegisterSyncTag(context.Context, string) error {
	return domain.ErrSyncUnsupported
}

var _ WorkerRuntime = UnsupportedRuntime{}

// Manager installs the background worker and keeps it current.
//
// State machine: unregistered -> registering -> active on the normal path.
// On the update path a newly installed version is NOT activated while the
// previous version is still in control — swapping the network-handling code
// under in-flight requests is exactly what must not happen mid-session.
// Instead UpdateAvailable flips true and activation waits for an explicit
// UpdateWorker call.
type Manager struct {
	runtime    WorkerRuntime
	checkEvery time.Duration
	restart    func()
	logger     *zap.Logger

	mu             sync.RWMutex
	state          State
	reg            *Registration
	waitingVersion string
}

// NewManager constructs a manager. restart is the application-restart hook
// invoked after a waiting worker takes control (the page-reload equivalent);
// nil means no restart.
func NewManager(runtime WorkerRuntime, checkEvery time.Duration, restart func(), logger *zap.Logger) *Manager {
	if restart == nil {
		restart = func() {}
	}
	return &Manager{
		runtime:    runtime,
		checkEvery: checkEvery,
		restart:    restart,
		logger:     logger,
		state:      StateUnregistered,
	}
}

// Register attempts the once-per-start worker installation. Failure is
// logged, not returned: the subsystem degrades to in-process replay and the
// manager stays unregistered.
func (m *Manager) Register(ctx context.Context) {
	m.mu.Lock()
	if m.state != StateUnregistered {
		m.mu.Unlock()
		return
	}
	m.state = StateRegistering
	m.mu.Unlock()

	reg, err := m.runtime.Register(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = StateUnregistered
		m.logger.Warn("worker registration failed, background replay unavailable", zap.Error(err))
		return
	}

	m.state = StateActive
	m.reg = reg
	m.logger.Info("worker registered", zap.String("version", reg.Version))
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Registration returns the active registration, or nil.
func (m *Manager) Registration() *Registration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reg
}

// UpdateAvailable reports whether a new worker version is installed and
// waiting for explicit activation.
func (m *Manager) UpdateAvailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.waitingVersion != ""
}

// WaitingVersion returns the version waiting to activate, or "".
func (m *Manager) WaitingVersion() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.waitingVersion
}

// RequestSync forwards a sync-tag registration to the active worker.
// Satisfies scheduler.SyncRequester. Returns domain.ErrSyncUnsupported while
// no worker is active.
func (m *Manager) RequestSync(ctx context.Context, tag string) error {
	if m.State() != StateActive {
		return domain.ErrSyncUnsupported
	}
	return m.runtime.RegisterSyncTag(ctx, tag)
}

// UpdateWorker signals the waiting worker version to take control and then
// invokes the restart hook, giving the new version a clean start. It is an
// explicit user- or app-triggered action and a no-op error if nothing waits.
func (m *Manager) UpdateWorker(ctx context.Context) error {
	m.mu.RLock()
	waiting := m.waitingVersion
	m.mu.RUnlock()
	if waiting == "" {
		return domain.ErrNoWaitingWorker
	}

	if err := m.runtime.SignalSkipWaiting(ctx); err != nil {
		m.logger.Error("failed to signal waiting worker", zap.Error(err))
		return err
	}

	m.mu.Lock()
	m.reg = &Registration{Version: waiting}
	m.waitingVersion = ""
	m.mu.Unlock()

	m.logger.Info("worker updated", zap.String("version", waiting))
	m.restart()
	return nil
}

// Run performs the registration attempt and then checks for updates on a
// fixed interval, in addition to whatever detection the platform does on
// its own. Stops cleanly when ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	m.Register(ctx)

	ticker := time.NewTicker(m.checkEvery)
	defer ticker.Stop()

	m.logger.Info("worker lifecycle manager started", zap.Duration("update_check_interval", m.checkEvery))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("worker lifecycle manager stopping")
			return
		case <-ticker.C:
			m.CheckForUpdate(ctx)
		}
	}
}

// CheckForUpdate polls the runtime for a newly installed waiting version.
// Errors are logged only; the application keeps working without updates.
func (m *Manager) CheckForUpdate(ctx context.Context) {
	if m.State() != StateActive {
		return
	}

	version, err := m.runtime.CheckForUpdate(ctx)
	if err != nil {
		m.logger.Warn("worker update check failed", zap.Error(err))
		return
	}
	if version == "" {
		return
	}

	m.mu.Lock()
	already := m.waitingVersion == version
	m.waitingVersion = version
	m.mu.Unlock()

	if !already {
		m.logger.Info("worker update installed, waiting for activation",
			zap.String("version", version))
	}
}
