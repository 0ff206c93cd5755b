package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DecentralizedMoney/matreshka/internal/bus"
	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// Relay consumes engine events from the bus and turns the operator-facing
// ones into notifications. Event kinds the notifier filters out cost one
// map lookup and nothing else.
type Relay struct {
	bus      *bus.Bus
	notifier *Notifier
	log      *slog.Logger
}

// NewRelay wires a relay between the bus and the notifier.
func NewRelay(b *bus.Bus, n *Notifier, log *slog.Logger) *Relay {
	return &Relay{bus: b, notifier: n, log: log.With("component", "notify")}
}

// Run consumes events until ctx is cancelled or the bus closes.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.bus.Subscribe("notify", 256)
	defer sub.Cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			r.handle(ctx, ev)
		}
	}
}

func (r *Relay) handle(ctx context.Context, ev domain.Event) {
	title, message, ok := Render(ev)
	if !ok {
		return
	}
	if err := r.notifier.Notify(ctx, string(ev.Kind), title, message); err != nil {
		r.log.Warn("notification delivery failed", "kind", string(ev.Kind), "err", err)
	}
}

// Render formats one event for operators. The second return is false for
// kinds that never notify (heartbeats, detections, raw market noise).
func Render(ev domain.Event) (title, message string, ok bool) {
	switch p := ev.Payload.(type) {
	case domain.ExecutionEvent:
		exec := p.Execution
		switch ev.Kind {
		case domain.EventExecutionCompleted:
			return "Execution completed",
				fmt.Sprintf("%s %s: profit %s, fees %s",
					exec.Strategy, exec.ID,
					exec.RealizedProfit.StringFixed(4), exec.TotalFees.StringFixed(4)),
				true
		case domain.EventExecutionFailed:
			msg := fmt.Sprintf("%s %s: realized %s", exec.Strategy, exec.ID,
				exec.RealizedProfit.StringFixed(4))
			if exec.Compensated {
				msg += " (compensated)"
			}
			if len(exec.Errors) > 0 {
				msg += "\n" + exec.Errors[len(exec.Errors)-1]
			}
			return "Execution FAILED", msg, true
		}
	case domain.RiskAlertEvent:
		return "Risk limit tripped",
			fmt.Sprintf("%s: %s (value %s, bound %s)",
				p.Limit, p.Reason, p.Value.StringFixed(2), p.Bound.StringFixed(2)),
			true
	case domain.EmergencyStopEvent:
		return "EMERGENCY STOP", p.Reason, true
	case domain.VenueConnectionEvent:
		if ev.Kind == domain.EventVenueConnectionLost {
			msg := fmt.Sprintf("venue %s is down", p.Venue)
			if p.Err != "" {
				msg += ": " + p.Err
			}
			return "Venue connection lost", msg, true
		}
		return "Venue connection restored",
			fmt.Sprintf("venue %s is back (%s)", p.Venue, p.Health), true
	}
	return "", "", false
}
