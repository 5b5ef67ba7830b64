package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/worklink/offline-sync/internal/install"
	"github.com/worklink/offline-sync/internal/lifecycle"
)

// WorkerHandler exposes the explicit worker-update action and the install
// prompt surface.
type WorkerHandler struct {
	manager *lifecycle.Manager
	install *install.Manager
	logger  *zap.Logger
}

func NewWorkerHandler(manager *lifecycle.Manager, installMgr *install.Manager, logger *zap.Logger) *WorkerHandler {
	return &WorkerHandler{manager: manager, install: installMgr, logger: logger}
}

// Update handles POST /api/v1/worker/update
//
// Signals the waiting worker version to take control; the manager's restart
// hook then gives it a clean start.
//
// @Summary  Activate the waiting worker version
// @Tags     worker
// @Success  204
// @Failure  409  {object}  map[string]string
// @Router   /api/v1/worker/update [post]
func (h *WorkerHandler) Update(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.UpdateWorker(r.Context()); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CanInstall handles GET /api/v1/install
//
// @Summary  Whether an install prompt is currently available
// @Tags     install
// @Produce  json
// @Success  200  {object}  map[string]bool
// @Router   /api/v1/install [get]
func (h *WorkerHandler) CanInstall(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"can_install": h.install.CanInstall()})
}

// PromptInstall handles POST /api/v1/install/prompt
//
// @Summary  Show the captured install prompt
// @Tags     install
// @Produce  json
// @Success  200  {object}  map[string]bool
// @Failure  409  {object}  map[string]string
// @Router   /api/v1/install/prompt [post]
func (h *WorkerHandler) PromptInstall(w http.ResponseWriter, r *http.Request) {
	accepted, err := h.install.PromptInstall(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
}
