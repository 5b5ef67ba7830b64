package handler

import (
	"context"
	"net/http"

	"github.com/worklink/offline-sync/internal/connectivity"
	"github.com/worklink/offline-sync/internal/domain"
	"github.com/worklink/offline-sync/internal/lifecycle"
)

// DepthReader is the read-only slice of the queue store the status endpoint
// needs.
type DepthReader interface {
	Depths(ctx context.Context) (pending, abandoned map[domain.Queue]int, err error)
}

// StatusHandler serves a human-readable JSON snapshot of the subsystem:
// connectivity estimate, worker lifecycle state, and per-queue depths.
// Raw Prometheus metrics are available at /metrics via promhttp and are
// separate from this endpoint.
type StatusHandler struct {
	monitor *connectivity.Monitor
	manager *lifecycle.Manager
	depths  DepthReader
}

func NewStatusHandler(monitor *connectivity.Monitor, manager *lifecycle.Manager, depths DepthReader) *StatusHandler {
	return &StatusHandler{monitor: monitor, manager: manager, depths: depths}
}

// GetStatus handles GET /api/v1/status
//
// @Summary  Subsystem status snapshot
// @Tags     system
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/status [get]
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	pending, abandoned, err := h.depths.Depths(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read queue depths")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"connectivity": h.monitor.Snapshot(),
		"worker": map[string]any{
			"state":            h.manager.State(),
			"registration":     h.manager.Registration(),
			"update_available": h.manager.UpdateAvailable(),
			"waiting_version":  h.manager.WaitingVersion(),
		},
		"queues": map[string]any{
			"pending":   pending,
			"abandoned": abandoned,
		},
	})
}
