package handler

import (
	"errors"
	"net/http"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// ExecutionHandler serves in-flight and historical executions. The store
// is optional; without it the history endpoints report 503.
type ExecutionHandler struct {
	executor ExecutorView
	store    domain.ExecutionStore
}

// NewExecutionHandler creates an ExecutionHandler.
func NewExecutionHandler(ex ExecutorView, store domain.ExecutionStore) *ExecutionHandler {
	return &ExecutionHandler{executor: ex, store: store}
}

// ListLive returns the executions currently running in the coordinator.
// GET /api/executions
func (h *ExecutionHandler) ListLive(w http.ResponseWriter, r *http.Request) {
	execs := h.executor.Live()
	writeJSON(w, http.StatusOK, map[string]any{
		"executions": execs,
		"count":      len(execs),
	})
}

// ListRecent returns persisted executions, newest first.
// GET /api/executions/recent
func (h *ExecutionHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}
	execs, err := h.store.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list executions failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"executions": execs,
		"count":      len(execs),
	})
}

// Get returns one persisted execution with its trades attached.
// GET /api/executions/{id}
func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}
	id := r.PathValue("id")
	exec, err := h.store.GetByID(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "get execution failed")
		return
	}
	writeJSON(w, http.StatusOK, exec)
}
