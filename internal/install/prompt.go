// Package install surfaces the platform's "install as app" opportunity
// exactly once per eligible session.
package install

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/worklink/offline-sync/internal/domain"
)

// PromptEvent is the platform's deferred install event. Prompt replays it
// to the user and resolves to whether they accepted.
type PromptEvent interface {
	Prompt(ctx context.Context) (accepted bool, err error)
}

// Manager captures the deferred install event and exposes the single-use
// prompt. When the app already runs in an installed context no prompt is
// ever offered.
type Manager struct {
	standalone bool
	logger     *zap.Logger

	mu       sync.Mutex
	deferred PromptEvent
	used     bool
}

// NewManager constructs a manager. standalone is the startup detection of
// an installed context.
func NewManager(standalone bool, logger *zap.Logger) *Manager {
	return &Manager{standalone: standalone, logger: logger}
}

// Capture stores the platform's deferred install event (whose default UI
// the caller has already suppressed). Ignored in an installed context or
// after a prompt has been spent.
func (m *Manager) Capture(ev PromptEvent) {
	if m.standalone {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used {
		return
	}
	m.deferred = ev
	m.logger.Debug("install prompt captured")
}

// CanInstall reports whether a prompt is currently available.
func (m *Manager) CanInstall() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deferred != nil
}

// PromptInstall replays the captured event and resolves to whether the user
// accepted. The event is single-use: it is discarded after one prompt
// regardless of outcome.
func (m *Manager) PromptInstall(ctx context.Context) (bool, error) {
	m.mu.Lock()
	ev := m.deferred
	m.deferred = nil
	if ev != nil {
		m.used = true
	}
	m.mu.Unlock()

	if ev == nil {
		return false, domain.ErrPromptUnavailable
	}

	accepted, err := ev.Prompt(ctx)
	if err != nil {
		m.logger.Warn("install prompt failed", zap.Error(err))
		return false, err
	}

	m.logger.Info("install prompt answered", zap.Bool("accepted", accepted))
	return accepted, nil
}
