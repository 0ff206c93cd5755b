// Package metrics defines the engine's counters behind a tiny interface so
// instrumented code never depends on the Prometheus client directly.
package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	OpportunitiesDetected Counter
	OpportunitiesExpired  Counter
	OpportunitiesRejected Counter
	ExecutionsStarted     Counter
	ExecutionsCompleted   Counter
	ExecutionsFailed      Counter
	OrdersPlaced          Counter
	OrdersCancelled       Counter
	CompensationOrders    Counter
	RiskAlerts            Counter
	EmergencyStops        Counter
	VenueFailures         Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		OpportunitiesDetected: n,
		OpportunitiesExpired:  n,
		OpportunitiesRejected: n,
		ExecutionsStarted:     n,
		ExecutionsCompleted:   n,
		ExecutionsFailed:      n,
		OrdersPlaced:          n,
		OrdersCancelled:       n,
		CompensationOrders:    n,
		RiskAlerts:            n,
		EmergencyStops:        n,
		VenueFailures:         n,
	}
}
