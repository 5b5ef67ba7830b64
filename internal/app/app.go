// Package app assembles the offline-sync subsystem into one explicitly
// constructed context object with a defined lifecycle: created at start,
// torn down at shutdown, and injected into collaborators instead of being
// reached for as ambient globals.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/worklink/offline-sync/internal/clock"
	"github.com/worklink/offline-sync/internal/config"
	"github.com/worklink/offline-sync/internal/connectivity"
	"github.com/worklink/offline-sync/internal/domain"
	"github.com/worklink/offline-sync/internal/install"
	"github.com/worklink/offline-sync/internal/lifecycle"
	"github.com/worklink/offline-sync/internal/metrics"
	"github.com/worklink/offline-sync/internal/replay"
	"github.com/worklink/offline-sync/internal/scheduler"
	"github.com/worklink/offline-sync/internal/store"
)

// Options carries the host-environment hooks the subsystem cannot provide
// for itself. Zero values select the degraded defaults.
type Options struct {
	// Runtime hosts the background worker; nil means the platform has no
	// background execution facility and only in-process replay is used.
	Runtime lifecycle.WorkerRuntime

	// Standalone reports whether the app already runs installed.
	Standalone bool

	// Restart is invoked after a waiting worker version takes control.
	Restart func()
}

// App owns every component of the subsystem and their background loops.
type App struct {
	Store     store.QueueStore
	Monitor   *connectivity.Monitor
	Replayer  *replay.Replayer
	Scheduler *scheduler.Scheduler
	Lifecycle *lifecycle.Manager
	Install   *install.Manager
	Metrics   *metrics.Metrics
	Registry  *prometheus.Registry

	logger *zap.Logger
	wg     sync.WaitGroup
}

// New wires all components. The store is opened here; a failure surfaces
// immediately rather than on first enqueue.
func New(cfg *config.Config, opts Options, logger *zap.Logger) (*App, error) {
	st, err := store.Open(cfg.StoragePath)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	clk := clock.Real{}

	prober := connectivity.NewHTTPProber(cfg.ProbeURL, cfg.ProbeTimeout)
	link := connectivity.NewInterfacePoller(cfg.ProbeInterval / 6)
	monitor := connectivity.NewMonitor(prober, link, cfg.ProbeInterval, cfg.ProbeRate, clk,
		logger.With(zap.String("component", "connectivity")))

	runtime := opts.Runtime
	if runtime == nil {
		runtime = lifecycle.UnsupportedRuntime{}
	}
	manager := lifecycle.NewManager(runtime, cfg.UpdateCheckInterval, opts.Restart,
		logger.With(zap.String("component", "lifecycle")))

	sender := replay.NewHTTPSender(cfg.SubmitBaseURL, cfg.ReplayTimeout)
	replayLogger := logger.With(zap.String("component", "replay"))
	replayer := replay.NewReplayer(st, sender, cfg.ReplayTimeout, replayLogger, m.ReplayHooks(),
		func(a *domain.QueuedAction) {
			replayLogger.Warn("action requires manual retry",
				zap.Int64("action_id", a.ID),
				zap.String("queue", string(a.Queue)),
			)
		})

	sch := scheduler.New(st, manager, replayer, monitor,
		cfg.MaxAttempts, cfg.FlushInterval, clk,
		logger.With(zap.String("component", "scheduler")), m.OnQueued())

	// Chain the verdict change into both the scheduler kick and the gauge.
	connGauge := m.OnConnectivityChange()
	monitor.OnChange(func(connected bool) {
		connGauge(connected)
		sch.OnConnectivityChange(connected)
	})

	installMgr := install.NewManager(opts.Standalone,
		logger.With(zap.String("component", "install")))

	return &App{
		Store:     st,
		Monitor:   monitor,
		Replayer:  replayer,
		Scheduler: sch,
		Lifecycle: manager,
		Install:   installMgr,
		Metrics:   m,
		Registry:  reg,
		logger:    logger,
	}, nil
}

// Start launches all background loops. Cancelling ctx stops them; call Wait
// to block until they have drained, then Close to release the store.
func (a *App) Start(ctx context.Context) {
	a.run(ctx, a.Monitor.Run)
	a.run(ctx, a.Scheduler.Run)
	a.run(ctx, a.Lifecycle.Run)
	a.run(ctx, a.refreshDepths)
}

// Wait blocks until every background loop has returned after ctx cancel.
func (a *App) Wait() {
	a.wg.Wait()
}

// Close releases the persistent store.
func (a *App) Close() error {
	return a.Store.Close()
}

func (a *App) run(ctx context.Context, fn func(context.Context)) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn(ctx)
	}()
}

// refreshDepths keeps the queue-depth gauges current.
func (a *App) refreshDepths(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, _, err := a.Store.Depths(ctx)
			if err != nil {
				a.logger.Warn("queue depth refresh failed", zap.Error(err))
				continue
			}
			a.Metrics.SetQueueDepths(pending)
		}
	}
}
