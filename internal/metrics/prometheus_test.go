package metrics

import (
	"testing"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.OpportunitiesDetected.Inc()
	prom.Metrics.ExecutionsStarted.Inc()
	prom.Metrics.ExecutionsStarted.Inc()
	prom.Metrics.VenueFailures.Inc()

	got := gather(t, prom)
	want := map[string]float64{
		"matreshka_opportunities_detected_total": 1,
		"matreshka_executions_started_total":     2,
		"matreshka_venue_failures_total":         1,
		"matreshka_executions_failed_total":      0,
	}
	for name, value := range want {
		if got[name] != value {
			t.Fatalf("%s = %v, want %v", name, got[name], value)
		}
	}
}

func TestNoopMetricsAreComplete(t *testing.T) {
	m := NewNoop()
	for _, c := range []Counter{
		m.OpportunitiesDetected, m.OpportunitiesExpired, m.OpportunitiesRejected,
		m.ExecutionsStarted, m.ExecutionsCompleted, m.ExecutionsFailed,
		m.OrdersPlaced, m.OrdersCancelled, m.CompensationOrders,
		m.RiskAlerts, m.EmergencyStops, m.VenueFailures,
	} {
		if c == nil {
			t.Fatal("noop metrics left a nil counter")
		}
		c.Inc()
	}
}

func gather(t *testing.T, prom *Prometheus) map[string]float64 {
	t.Helper()
	families, err := prom.registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			out[f.GetName()] = m.GetCounter().GetValue()
		}
	}
	return out
}
