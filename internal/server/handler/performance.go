package handler

import (
	"net/http"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// PerfView exposes the performance tracker to the API.
type PerfView interface {
	Snapshot() domain.PerfSnapshot
}

// PerformanceHandler serves the live performance snapshot.
type PerformanceHandler struct {
	perf PerfView
}

// NewPerformanceHandler creates a PerformanceHandler.
func NewPerformanceHandler(perf PerfView) *PerformanceHandler {
	return &PerformanceHandler{perf: perf}
}

// Snapshot returns the aggregated execution statistics.
// GET /api/performance
func (h *PerformanceHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.perf.Snapshot())
}
