package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind names the events fanned out by the engine bus.
type EventKind string

const (
	EventOpportunityDetected     EventKind = "opportunityDetected"
	EventOpportunityExpired      EventKind = "opportunityExpired"
	EventExecutionStarted        EventKind = "executionStarted"
	EventExecutionCompleted      EventKind = "executionCompleted"
	EventExecutionFailed         EventKind = "executionFailed"
	EventRiskAlert               EventKind = "riskAlert"
	EventEmergencyStop           EventKind = "emergencyStop"
	EventPriceAlert              EventKind = "priceAlert"
	EventVolumeSpike             EventKind = "volumeSpike"
	EventVenueConnectionLost     EventKind = "venueConnectionLost"
	EventVenueConnectionRestored EventKind = "venueConnectionRestored"
	EventHeartbeat               EventKind = "heartbeat"
)

// Event is the envelope published on the bus. Payload is one of the typed
// payload structs below, chosen by Kind.
type Event struct {
	Kind    EventKind `json:"kind"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// NewEvent stamps an event with the current time.
func NewEvent(kind EventKind, payload any) Event {
	return Event{Kind: kind, At: time.Now().UTC(), Payload: payload}
}

// OpportunityEvent carries the opportunity for detection and expiry events.
type OpportunityEvent struct {
	Opportunity Opportunity `json:"opportunity"`
}

// ExecutionEvent carries the execution for start/completion/failure events.
type ExecutionEvent struct {
	Execution Execution `json:"execution"`
}

// RiskAlertEvent reports a risk limit trip. Fatal alerts trigger the
// emergency stop instead of the scan cooldown.
type RiskAlertEvent struct {
	Limit  string          `json:"limit"`
	Value  decimal.Decimal `json:"value"`
	Bound  decimal.Decimal `json:"bound"`
	Reason string          `json:"reason"`
	Fatal  bool            `json:"fatal"`
}

// EmergencyStopEvent announces that trading is halting.
type EmergencyStopEvent struct {
	Reason string `json:"reason"`
}

// PriceAlertEvent reports a single-update price move beyond the alert
// threshold. Change is a percentage.
type PriceAlertEvent struct {
	Venue     string          `json:"venue"`
	Symbol    Symbol          `json:"symbol"`
	Previous  decimal.Decimal `json:"previous"`
	Current   decimal.Decimal `json:"current"`
	ChangePct decimal.Decimal `json:"changePct"`
}

// VolumeSpikeEvent reports 24h volume jumping past the spike multiple.
type VolumeSpikeEvent struct {
	Venue    string          `json:"venue"`
	Symbol   Symbol          `json:"symbol"`
	Previous decimal.Decimal `json:"previous"`
	Current  decimal.Decimal `json:"current"`
	Ratio    decimal.Decimal `json:"ratio"`
}

// VenueConnectionEvent reports a venue going down or recovering.
type VenueConnectionEvent struct {
	Venue  string      `json:"venue"`
	Health VenueHealth `json:"health"`
	Err    string      `json:"err,omitempty"`
}

// HeartbeatEvent is the periodic liveness report from the supervisor.
type HeartbeatEvent struct {
	Uptime        time.Duration `json:"uptime"`
	HeapAllocB    uint64        `json:"heapAllocB"`
	NumGoroutine  int           `json:"numGoroutine"`
	ActiveOpps    int           `json:"activeOpps"`
	QueuedExecs   int           `json:"queuedExecs"`
	InflightExecs int           `json:"inflightExecs"`
}
