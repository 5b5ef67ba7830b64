package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/worklink/offline-sync/internal/api/middleware"
	"github.com/worklink/offline-sync/internal/domain"
	"github.com/worklink/offline-sync/internal/scheduler"
	"github.com/worklink/offline-sync/internal/store"
)

// QueueHandler exposes the enqueue and replay operations plus the abandoned-
// action surface the UI layer uses for "this needs a manual retry".
type QueueHandler struct {
	sch    *scheduler.Scheduler
	store  store.QueueStore
	logger *zap.Logger
}

func NewQueueHandler(sch *scheduler.Scheduler, st store.QueueStore, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{sch: sch, store: st, logger: logger}
}

// Enqueue handles POST /api/v1/queue
//
// The UI calls this only after a direct network attempt has already failed,
// passing the exact payload and a snapshot of the current auth token.
//
// @Summary     Queue an action for deferred delivery
// @Tags        queue
// @Accept      json
// @Produce     json
// @Param       body  body      domain.EnqueueRequest  true  "Action to queue"
// @Success     201   {object}  domain.QueuedAction
// @Failure     422   {object}  map[string]string
// @Failure     503   {object}  map[string]string
// @Router      /api/v1/queue [post]
func (h *QueueHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req domain.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	a, err := h.sch.Enqueue(r.Context(), req)
	if err != nil {
		h.logger.Warn("enqueue failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

// SyncNow handles POST /api/v1/sync
//
// @Summary  Replay all pending actions immediately
// @Tags     queue
// @Produce  json
// @Success  200  {object}  map[string]int
// @Router   /api/v1/sync [post]
func (h *QueueHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	delivered := h.sch.SyncNow(r.Context())
	respondJSON(w, http.StatusOK, map[string]int{"delivered": delivered})
}

// ListAbandoned handles GET /api/v1/queues/{queue}/abandoned
//
// @Summary  List actions that exhausted their delivery attempts
// @Tags     queue
// @Produce  json
// @Param    queue  path      string  true  "Queue name"
// @Success  200    {object}  map[string]any
// @Failure  422    {object}  map[string]string
// @Router   /api/v1/queues/{queue}/abandoned [get]
func (h *QueueHandler) ListAbandoned(w http.ResponseWriter, r *http.Request) {
	q := domain.Queue(chi.URLParam(r, "queue"))
	if !q.IsValid() {
		mapError(w, domain.ErrInvalidQueue)
		return
	}

	items, err := h.store.ListAbandoned(r.Context(), q)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list abandoned actions")
		return
	}
	if items == nil {
		items = []*domain.QueuedAction{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": items, "total": len(items)})
}

// RetryAbandoned handles POST /api/v1/queues/{queue}/abandoned/{id}/retry
//
// @Summary  Put an abandoned action back into its queue
// @Tags     queue
// @Param    queue  path  string  true  "Queue name"
// @Param    id     path  int     true  "Action ID"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Failure  409  {object}  map[string]string
// @Router   /api/v1/queues/{queue}/abandoned/{id}/retry [post]
func (h *QueueHandler) RetryAbandoned(w http.ResponseWriter, r *http.Request) {
	q := domain.Queue(chi.URLParam(r, "queue"))
	if !q.IsValid() {
		mapError(w, domain.ErrInvalidQueue)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid action id")
		return
	}

	if err := h.store.RequeueAbandoned(r.Context(), q, id); err != nil {
		mapError(w, err)
		return
	}

	// Requeued: ask for a sync opportunity the same way a fresh enqueue does.
	h.sch.RequestSync(r.Context(), q.SyncTag())
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /api/v1/queues/{queue}
//
// Administrative reset only; not part of the normal replay flow.
//
// @Summary  Remove every item from a queue
// @Tags     queue
// @Param    queue  path  string  true  "Queue name"
// @Success  204
// @Failure  422  {object}  map[string]string
// @Router   /api/v1/queues/{queue} [delete]
func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	q := domain.Queue(chi.URLParam(r, "queue"))
	if !q.IsValid() {
		mapError(w, domain.ErrInvalidQueue)
		return
	}
	if err := h.store.ClearStore(r.Context(), q); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to clear queue")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
