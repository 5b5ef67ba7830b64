package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/worklink/offline-sync/internal/clock"
	"github.com/worklink/offline-sync/internal/domain"
)

// Monitor continuously estimates whether outbound requests will succeed,
// distinguishing "device has no link" from "device has a link but the API
// is down".
//
// It combines two signals:
//   - the coarse link state delivered by a LinkMonitor
//   - a health probe issued on every link-up transition and on a fixed
//     interval while the link is up
//
// The change callback fires only when the combined verdict (link up AND
// API reachable) flips, so rapid flapping of either input does not cause
// a notification storm.
type Monitor struct {
	prober   Prober
	link     LinkMonitor
	interval time.Duration
	limiter  *rate.Limiter
	clk      clock.Clock
	logger   *zap.Logger

	mu       sync.RWMutex
	snap     domain.ConnectivitySnapshot
	onChange func(connected bool)
}

// NewMonitor constructs a Monitor. probeRate bounds on-demand CheckNow calls
// (tokens per second); the periodic probes are not subject to it.
func NewMonitor(
	prober Prober,
	link LinkMonitor,
	interval time.Duration,
	probeRate int,
	clk clock.Clock,
	logger *zap.Logger,
) *Monitor {
	if probeRate <= 0 {
		probeRate = 1
	}
	return &Monitor{
		prober:   prober,
		link:     link,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Limit(probeRate), probeRate),
		clk:      clk,
		logger:   logger,
	}
}

// OnChange registers the verdict-change callback. Must be called before Run.
func (m *Monitor) OnChange(fn func(connected bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Snapshot returns the current connectivity estimate.
func (m *Monitor) Snapshot() domain.ConnectivitySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// IsConnected reports the combined verdict.
func (m *Monitor) IsConnected() bool {
	return m.Snapshot().IsConnected()
}

// CheckNow issues an on-demand probe and returns the resulting combined
// verdict. Probes are rate-limited; when the budget is exhausted the current
// verdict is returned without touching the network. Never returns an error.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	m.mu.RLock()
	online := m.snap.IsOnline
	m.mu.RUnlock()

	if !online {
		return false
	}
	if !m.limiter.Allow() {
		return m.IsConnected()
	}

	reachable := m.prober.Probe(ctx)
	m.update(online, reachable)
	return m.IsConnected()
}

// Run consumes link transitions and drives the periodic probe until ctx is
// cancelled. Intended to run as a goroutine.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("connectivity monitor started", zap.Duration("probe_interval", m.interval))

	events := m.link.Events(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("connectivity monitor stopping")
			return

		case online, ok := <-events:
			if !ok {
				return
			}
			if online {
				// Probe immediately on a link-up transition; the link alone
				// does not prove the API answers.
				m.update(true, m.prober.Probe(ctx))
			} else {
				m.update(false, false)
			}

		case <-ticker.C:
			m.mu.RLock()
			online := m.snap.IsOnline
			m.mu.RUnlock()
			if online {
				m.update(true, m.prober.Probe(ctx))
			}
		}
	}
}

// update records a new estimate and fires the callback when the combined
// verdict changed.
func (m *Monitor) update(online, apiReachable bool) {
	m.mu.Lock()
	before := m.snap.IsConnected()
	m.snap = domain.ConnectivitySnapshot{
		IsOnline:     online,
		APIReachable: apiReachable,
		LastChecked:  m.clk.Now(),
	}
	after := m.snap.IsConnected()
	fn := m.onChange
	m.mu.Unlock()

	if before == after {
		return
	}

	m.logger.Info("connectivity changed",
		zap.Bool("is_online", online),
		zap.Bool("api_reachable", apiReachable),
		zap.Bool("connected", after),
	)
	if fn != nil {
		fn(after)
	}
}
