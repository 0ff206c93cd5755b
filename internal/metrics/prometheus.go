package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "matreshka"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()

	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(c)
		return c
	}

	detected := counter("opportunities_detected_total", "Total opportunities admitted by the scanner.")
	expired := counter("opportunities_expired_total", "Total opportunities aged out before execution.")
	rejected := counter("opportunities_rejected_total", "Total opportunities refused by the risk gate.")
	started := counter("executions_started_total", "Total executions started.")
	completed := counter("executions_completed_total", "Total executions finished successfully.")
	failed := counter("executions_failed_total", "Total executions that failed or were cancelled.")
	placed := counter("orders_placed_total", "Total venue orders placed.")
	cancelled := counter("orders_cancelled_total", "Total venue orders cancelled on deadline.")
	compensation := counter("compensation_orders_total", "Total unwind orders placed during recovery.")
	riskAlerts := counter("risk_alerts_total", "Total risk limit alerts.")
	stops := counter("emergency_stops_total", "Total emergency stop activations.")
	venueFailures := counter("venue_failures_total", "Total venue API failures.")

	m := &Metrics{
		OpportunitiesDetected: promCounter{detected},
		OpportunitiesExpired:  promCounter{expired},
		OpportunitiesRejected: promCounter{rejected},
		ExecutionsStarted:     promCounter{started},
		ExecutionsCompleted:   promCounter{completed},
		ExecutionsFailed:      promCounter{failed},
		OrdersPlaced:          promCounter{placed},
		OrdersCancelled:       promCounter{cancelled},
		CompensationOrders:    promCounter{compensation},
		RiskAlerts:            promCounter{riskAlerts},
		EmergencyStops:        promCounter{stops},
		VenueFailures:         promCounter{venueFailures},
	}

	return &Prometheus{Metrics: m, registry: registry}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
