package scanner

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
	"github.com/DecentralizedMoney/matreshka/internal/strategy"
)

type fakeStrategy struct {
	name string
	ops  []domain.Opportunity
}

func (f *fakeStrategy) Name() string                 { return f.name }
func (f *fakeStrategy) Kind() domain.OpportunityKind { return domain.OpportunityKindSimple }
func (f *fakeStrategy) Synthesize(strategy.MarketView, time.Time) []domain.Opportunity {
	return f.ops
}

type eventLog struct {
	events []domain.Event
}

func (l *eventLog) emit(e domain.Event) { l.events = append(l.events, e) }

func (l *eventLog) count(kind domain.EventKind) int {
	n := 0
	for _, e := range l.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func testScanner(cfg Config, strategies []strategy.Strategy, log *eventLog) *Scanner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, strategies, nil, log.emit, logger)
}

// candidate builds an opportunity whose fingerprint is determined by the
// buy venue, so tests control dedup collisions.
func candidate(id, buyVenue, net string, expiresAt time.Time) domain.Opportunity {
	sym := domain.NewSymbol("BTC", "USDT")
	return domain.Opportunity{
		ID:       id,
		Kind:     domain.OpportunityKindSimple,
		Strategy: "test",
		Legs: []domain.Leg{
			{Step: 1, Venue: buyVenue, Symbol: sym, Side: domain.OrderSideBuy},
			{Step: 2, Venue: "omega", Symbol: sym, Side: domain.OrderSideSell},
		},
		ProjectedProfitQuote: decimal.RequireFromString(net),
		Status:               domain.OpportunityStatusDetected,
		ExpiresAt:            expiresAt,
	}
}

func TestAdmitPublishesAndDeduplicates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(30 * time.Second)
	log := &eventLog{}
	s := testScanner(Config{}, nil, log)

	s.admit(candidate("op-1", "alpha", "1.0", later), now)
	if got := s.ActiveCount(); got != 1 {
		t.Fatalf("active = %d, want 1", got)
	}

	// Same fingerprint, worse price: ignored.
	s.admit(candidate("op-2", "alpha", "0.5", later), now)
	if got := s.ActiveCount(); got != 1 {
		t.Fatalf("active = %d after worse duplicate, want 1", got)
	}

	// Same fingerprint, better price: replaces.
	s.admit(candidate("op-3", "alpha", "2.0", later), now)
	if got := s.ActiveCount(); got != 1 {
		t.Fatalf("active = %d after better duplicate, want 1", got)
	}
	if got := s.Active()[0].ID; got != "op-3" {
		t.Fatalf("surviving opportunity = %s, want op-3", got)
	}
	if got := log.count(domain.EventOpportunityDetected); got != 2 {
		t.Fatalf("detected events = %d, want 2", got)
	}

	// Both admitted candidates were forwarded.
	for _, want := range []string{"op-1", "op-3"} {
		select {
		case op := <-s.Candidates():
			if op.ID != want {
				t.Fatalf("candidate = %s, want %s", op.ID, want)
			}
		default:
			t.Fatalf("candidate %s not forwarded", want)
		}
	}
}

func TestAdmitKeepsInFlightDuplicate(t *testing.T) {
	now := time.Now()
	later := now.Add(30 * time.Second)
	s := testScanner(Config{}, nil, &eventLog{})

	s.admit(candidate("op-1", "alpha", "1.0", later), now)
	if err := s.Transition("op-1", domain.OpportunityStatusApproved); err != nil {
		t.Fatalf("transition: %v", err)
	}

	// A better duplicate may not displace one the pipeline is holding.
	s.admit(candidate("op-2", "alpha", "5.0", later), now)
	if got := s.Active()[0].ID; got != "op-1" {
		t.Fatalf("surviving opportunity = %s, want op-1", got)
	}
}

func TestActiveSetCapEvictsWorstDetected(t *testing.T) {
	now := time.Now()
	later := now.Add(30 * time.Second)
	s := testScanner(Config{MaxActive: 2}, nil, &eventLog{})

	s.admit(candidate("op-1", "alpha", "1.0", later), now)
	s.admit(candidate("op-2", "beta", "2.0", later), now)

	// Worse than everything live: dropped.
	s.admit(candidate("op-3", "gamma", "0.5", later), now)
	if got := s.ActiveCount(); got != 2 {
		t.Fatalf("active = %d, want 2", got)
	}

	// Better than the worst: evicts it.
	s.admit(candidate("op-4", "delta", "3.0", later), now)
	active := s.Active()
	if len(active) != 2 {
		t.Fatalf("active = %d, want 2", len(active))
	}
	if active[0].ID != "op-4" || active[1].ID != "op-2" {
		t.Fatalf("active set = [%s %s], want [op-4 op-2]", active[0].ID, active[1].ID)
	}
}

func TestSweepExpiresDetected(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	log := &eventLog{}
	s := testScanner(Config{}, nil, log)

	s.admit(candidate("op-1", "alpha", "1.0", now.Add(10*time.Second)), now)
	s.admit(candidate("op-2", "beta", "1.0", now.Add(time.Minute)), now)

	s.sweep(now.Add(30 * time.Second))
	if got := s.ActiveCount(); got != 1 {
		t.Fatalf("active = %d after sweep, want 1", got)
	}
	if got := s.Active()[0].ID; got != "op-2" {
		t.Fatalf("survivor = %s, want op-2", got)
	}
	if got := log.count(domain.EventOpportunityExpired); got != 1 {
		t.Fatalf("expired events = %d, want 1", got)
	}
}

func TestSweepLeavesExecuting(t *testing.T) {
	now := time.Now()
	s := testScanner(Config{}, nil, &eventLog{})

	s.admit(candidate("op-1", "alpha", "1.0", now.Add(time.Second)), now)
	if err := s.Transition("op-1", domain.OpportunityStatusApproved); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := s.Transition("op-1", domain.OpportunityStatusExecuting); err != nil {
		t.Fatalf("transition: %v", err)
	}

	s.sweep(now.Add(time.Minute))
	if got := s.ActiveCount(); got != 1 {
		t.Fatalf("executing opportunity was swept, active = %d", got)
	}
}

func TestTransitionLifecycle(t *testing.T) {
	now := time.Now()
	s := testScanner(Config{}, nil, &eventLog{})
	s.admit(candidate("op-1", "alpha", "1.0", now.Add(time.Minute)), now)

	if err := s.Transition("op-1", domain.OpportunityStatusCompleted); err == nil {
		t.Fatal("detected -> completed accepted, want error")
	}
	for _, to := range []domain.OpportunityStatus{
		domain.OpportunityStatusApproved,
		domain.OpportunityStatusExecuting,
		domain.OpportunityStatusCompleted,
	} {
		if err := s.Transition("op-1", to); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
	if got := s.ActiveCount(); got != 0 {
		t.Fatalf("terminal opportunity still active, count = %d", got)
	}

	err := s.Transition("op-1", domain.OpportunityStatusApproved)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPauseSkipsScansUntilDeadline(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeStrategy{name: "test", ops: []domain.Opportunity{
		candidate("op-1", "alpha", "1.0", base.Add(time.Hour)),
	}}
	s := testScanner(Config{}, []strategy.Strategy{st}, &eventLog{})
	s.now = func() time.Time { return base }

	s.Pause(time.Minute, "daily loss limit")
	s.scanOnce(base.Add(30 * time.Second))
	if got := s.ActiveCount(); got != 0 {
		t.Fatalf("scan ran while paused, active = %d", got)
	}

	s.scanOnce(base.Add(2 * time.Minute))
	if got := s.ActiveCount(); got != 1 {
		t.Fatalf("scan did not resume after cooldown, active = %d", got)
	}
}

func TestResumeLiftsPauseEarly(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeStrategy{name: "test", ops: []domain.Opportunity{
		candidate("op-1", "alpha", "1.0", base.Add(time.Hour)),
	}}
	s := testScanner(Config{}, []strategy.Strategy{st}, &eventLog{})
	s.now = func() time.Time { return base }

	s.Pause(time.Hour, "operator hold")
	s.Resume()
	s.scanOnce(base.Add(time.Second))
	if got := s.ActiveCount(); got != 1 {
		t.Fatalf("scan skipped after resume, active = %d", got)
	}
}

func TestStopClearsActiveSet(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Minute)
	s := testScanner(Config{}, nil, &eventLog{})
	s.admit(candidate("op-1", "alpha", "1.0", later), now)
	s.admit(candidate("op-2", "beta", "2.0", later), now)

	s.Stop()
	if got := s.ActiveCount(); got != 0 {
		t.Fatalf("active = %d after stop, want 0", got)
	}
	// The dedup index went with the set: the same shape admits again.
	s.admit(candidate("op-3", "alpha", "1.0", later), now)
	if got := s.ActiveCount(); got != 1 {
		t.Fatalf("readmission after stop failed, active = %d", got)
	}
}
