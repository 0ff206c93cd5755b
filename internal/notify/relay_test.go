package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

type captureSender struct {
	name   string
	titles []string
	bodies []string
	fail   bool
}

func (s *captureSender) Send(_ context.Context, title, message string) error {
	if s.fail {
		return errors.New("channel down")
	}
	s.titles = append(s.titles, title)
	s.bodies = append(s.bodies, message)
	return nil
}

func (s *captureSender) Name() string { return s.name }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRenderExecutionCompleted(t *testing.T) {
	ev := domain.NewEvent(domain.EventExecutionCompleted, domain.ExecutionEvent{
		Execution: domain.Execution{
			ID:             "exec-1",
			Strategy:       "spread-main",
			RealizedProfit: decimal.RequireFromString("0.2398"),
			TotalFees:      decimal.RequireFromString("0.08"),
		},
	})
	title, message, ok := Render(ev)
	if !ok {
		t.Fatal("completed execution should notify")
	}
	if title != "Execution completed" {
		t.Fatalf("title = %q", title)
	}
	if !strings.Contains(message, "0.2398") || !strings.Contains(message, "spread-main") {
		t.Fatalf("message = %q", message)
	}
}

func TestRenderFailureIncludesLastError(t *testing.T) {
	ev := domain.NewEvent(domain.EventExecutionFailed, domain.ExecutionEvent{
		Execution: domain.Execution{
			ID:          "exec-2",
			Strategy:    "tri-main",
			Compensated: true,
			Errors:      []string{"leg 1 placed", "leg 2: venue beta: place: transient"},
		},
	})
	title, message, ok := Render(ev)
	if !ok {
		t.Fatal("failed execution should notify")
	}
	if title != "Execution FAILED" {
		t.Fatalf("title = %q", title)
	}
	if !strings.Contains(message, "compensated") {
		t.Fatalf("message lacks compensation note: %q", message)
	}
	if !strings.Contains(message, "leg 2") || strings.Contains(message, "leg 1 placed") {
		t.Fatalf("message should carry only the last error: %q", message)
	}
}

func TestRenderSkipsQuietKinds(t *testing.T) {
	for _, ev := range []domain.Event{
		domain.NewEvent(domain.EventHeartbeat, domain.HeartbeatEvent{}),
		domain.NewEvent(domain.EventOpportunityDetected, domain.OpportunityEvent{}),
		domain.NewEvent(domain.EventExecutionStarted, domain.ExecutionEvent{}),
	} {
		if _, _, ok := Render(ev); ok {
			t.Fatalf("kind %s should not notify", ev.Kind)
		}
	}
}

func TestNotifierFiltersByEvent(t *testing.T) {
	sender := &captureSender{name: "telegram"}
	n := NewNotifier([]Sender{sender}, []string{"emergencyStop"}, discard())

	ctx := context.Background()
	if err := n.Notify(ctx, "executionCompleted", "Execution completed", "ignored"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := n.Notify(ctx, "emergencyStop", "EMERGENCY STOP", "breaker"); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if len(sender.titles) != 1 || sender.titles[0] != "EMERGENCY STOP" {
		t.Fatalf("delivered = %v, want only the emergency stop", sender.titles)
	}
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	broken := &captureSender{name: "discord", fail: true}
	working := &captureSender{name: "telegram"}
	n := NewNotifier([]Sender{broken, working}, nil, discard())

	err := n.NotifyAll(context.Background(), "Risk limit tripped", "dailyLossHalt")
	if err == nil {
		t.Fatal("expected combined error from the broken sender")
	}
	if !strings.Contains(err.Error(), "discord") {
		t.Fatalf("error should name the failed channel: %v", err)
	}
	if len(working.titles) != 1 {
		t.Fatal("working sender skipped after a failure")
	}
}
