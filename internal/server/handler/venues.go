package handler

import (
	"net/http"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// VenueSet exposes the registry reads the venue endpoints need.
type VenueSet interface {
	Venues() []domain.Venue
	HealthAll() map[string]domain.VenueHealth
}

// VenueHandler serves the configured venues and their connection health.
type VenueHandler struct {
	set      VenueSet
	balances domain.BalanceStore
}

// NewVenueHandler creates a VenueHandler. The balance store is optional.
func NewVenueHandler(set VenueSet, balances domain.BalanceStore) *VenueHandler {
	return &VenueHandler{set: set, balances: balances}
}

// List returns every configured venue with its current health.
// GET /api/venues
func (h *VenueHandler) List(w http.ResponseWriter, r *http.Request) {
	venues := h.set.Venues()
	health := h.set.HealthAll()

	type entry struct {
		domain.Venue
		Health domain.VenueHealth `json:"health"`
	}
	out := make([]entry, 0, len(venues))
	for _, v := range venues {
		out = append(out, entry{Venue: v, Health: health[v.ID]})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"venues": out,
		"count":  len(out),
	})
}

// Balances returns the last reconciled balances across venues.
// GET /api/venues/balances
func (h *VenueHandler) Balances(w http.ResponseWriter, r *http.Request) {
	if h.balances == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}
	balances, err := h.balances.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list balances failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"balances": balances,
		"count":    len(balances),
	})
}
