package handler

import (
	"net/http"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// OpportunityHandler serves live and historical opportunities. The store
// is optional; without it the recent endpoint reports 503.
type OpportunityHandler struct {
	scanner ScannerView
	store   domain.OpportunityStore
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(sc ScannerView, store domain.OpportunityStore) *OpportunityHandler {
	return &OpportunityHandler{scanner: sc, store: store}
}

// ListActive returns the opportunities currently tracked by the scanner.
// GET /api/opportunities
func (h *OpportunityHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	ops := h.scanner.Active()
	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": ops,
		"count":         len(ops),
	})
}

// ListRecent returns persisted opportunities, newest first.
// GET /api/opportunities/recent
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}
	ops, err := h.store.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list opportunities failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": ops,
		"count":         len(ops),
	})
}
