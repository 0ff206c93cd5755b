package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
	"github.com/DecentralizedMoney/matreshka/internal/risk"
)

// GateControl exposes the stop switch of the risk gate.
type GateControl interface {
	GateView
	EmergencyStop(reason string)
}

// PortfolioView exposes exposure reads.
type PortfolioView interface {
	Snapshot(at time.Time) risk.Snapshot
}

// BreakerView exposes per-venue circuit state.
type BreakerView interface {
	Open(venue string, at time.Time) bool
}

// VenueDirectory lists the configured venue IDs.
type VenueDirectory interface {
	IDs() []string
}

// RiskHandler serves the risk surface: exposure, circuits, persisted risk
// events and the manual emergency stop.
type RiskHandler struct {
	gate      GateControl
	portfolio PortfolioView
	breaker   BreakerView
	venues    VenueDirectory
	store     domain.RiskEventStore
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(gate GateControl, pf PortfolioView, br BreakerView, venues VenueDirectory, store domain.RiskEventStore) *RiskHandler {
	return &RiskHandler{gate: gate, portfolio: pf, breaker: br, venues: venues, store: store}
}

// State reports exposure, the daily result and circuit status per venue.
// GET /api/risk
func (h *RiskHandler) State(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	snap := h.portfolio.Snapshot(now)

	circuits := make(map[string]bool)
	if h.venues != nil {
		for _, id := range h.venues.IDs() {
			circuits[id] = h.breaker.Open(id, now)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"emergencyStop": h.gate.Stopped(),
		"totalExposure": snap.TotalExposure,
		"venueExposure": snap.VenueExposure,
		"dailyRealized": snap.DailyRealized,
		"positions":     snap.Positions,
		"circuits":      circuits,
	})
}

// ListEvents returns persisted risk events, newest first.
// GET /api/risk/events
func (h *RiskHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence disabled")
		return
	}
	events, err := h.store.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list risk events failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// Stop trips the emergency stop with an operator-supplied reason.
// POST /api/risk/stop
func (h *RiskHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}
	h.gate.EmergencyStop(body.Reason)
	writeJSON(w, http.StatusOK, map[string]any{"emergencyStop": true})
}
