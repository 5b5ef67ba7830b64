package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/worklink/offline-sync/internal/api/handler"
	apimw "github.com/worklink/offline-sync/internal/api/middleware"
	"github.com/worklink/offline-sync/internal/connectivity"
	"github.com/worklink/offline-sync/internal/install"
	"github.com/worklink/offline-sync/internal/lifecycle"
	"github.com/worklink/offline-sync/internal/scheduler"
	"github.com/worklink/offline-sync/internal/store"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	sch *scheduler.Scheduler,
	st store.QueueStore,
	monitor *connectivity.Monitor,
	manager *lifecycle.Manager,
	installMgr *install.Manager,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	qh := handler.NewQueueHandler(sch, st, logger)
	sh := handler.NewStatusHandler(monitor, manager, st)
	wh := handler.NewWorkerHandler(manager, installMgr, logger)
	hh := handler.NewHealthHandler()

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", sh.GetStatus)

		r.Post("/queue", qh.Enqueue)
		r.Post("/sync", qh.SyncNow)

		r.Route("/queues/{queue}", func(r chi.Router) {
			r.Delete("/", qh.Clear)
			r.Get("/abandoned", qh.ListAbandoned)
			r.Post("/abandoned/{id}/retry", qh.RetryAbandoned)
		})

		r.Post("/worker/update", wh.Update)
		r.Get("/install", wh.CanInstall)
		r.Post("/install/prompt", wh.PromptInstall)
	})

	return r
}
