package handler

import (
	"net/http"
	"time"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// ScannerView exposes the scanner state the API reads.
type ScannerView interface {
	Active() []domain.Opportunity
	ActiveCount() int
}

// ExecutorView exposes the coordinator state the API reads.
type ExecutorView interface {
	Queued() int
	Live() []domain.Execution
}

// GateView exposes the risk gate state the API reads.
type GateView interface {
	Stopped() bool
}

// StatusHandler reports the engine's mode and live pipeline counts.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	scanner   ScannerView
	executor  ExecutorView
	gate      GateView
}

// NewStatusHandler creates a StatusHandler over the given engine views.
func NewStatusHandler(mode string, startedAt time.Time, sc ScannerView, ex ExecutorView, gate GateView) *StatusHandler {
	return &StatusHandler{mode: mode, startedAt: startedAt, scanner: sc, executor: ex, gate: gate}
}

// Status reports mode, uptime and pipeline occupancy.
// GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":          h.mode,
		"uptimeSeconds": int64(time.Since(h.startedAt).Seconds()),
		"activeOpps":    h.scanner.ActiveCount(),
		"queuedExecs":   h.executor.Queued(),
		"inflightExecs": len(h.executor.Live()),
		"emergencyStop": h.gate.Stopped(),
	})
}
