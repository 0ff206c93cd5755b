package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

func TestBreakerOpensAfterWindowedFailures(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerConfig{Failures: 5, Window: 5 * time.Minute, HalfOpenAfter: 10 * time.Minute})

	for i := 0; i < 4; i++ {
		b.RecordFailure("alpha", base.Add(time.Duration(i)*time.Second))
	}
	if b.Open("alpha", base.Add(5*time.Second)) {
		t.Fatal("open after 4 failures")
	}
	b.RecordFailure("alpha", base.Add(5*time.Second))
	if !b.Open("alpha", base.Add(6*time.Second)) {
		t.Fatal("closed after 5 failures")
	}
	if b.Open("beta", base) {
		t.Fatal("unrelated venue open")
	}
}

func TestBreakerWindowExpiresOldFailures(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerConfig{Failures: 5, Window: 5 * time.Minute})

	for i := 0; i < 4; i++ {
		b.RecordFailure("alpha", base.Add(time.Duration(i)*time.Second))
	}
	// The fifth failure lands after the first four have aged out.
	b.RecordFailure("alpha", base.Add(10*time.Minute))
	if b.Open("alpha", base.Add(10*time.Minute)) {
		t.Fatal("open on stale failure window")
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerConfig{Failures: 2, Window: time.Minute, HalfOpenAfter: 10 * time.Minute})

	b.RecordFailure("alpha", base)
	b.RecordFailure("alpha", base.Add(time.Second))
	if !b.Open("alpha", base.Add(time.Minute)) {
		t.Fatal("closed right after opening")
	}

	// After the delay one probe passes, then the circuit refuses again
	// until the probe resolves.
	probeAt := base.Add(11 * time.Minute)
	if b.Open("alpha", probeAt) {
		t.Fatal("probe refused after half-open delay")
	}
	if !b.Open("alpha", probeAt.Add(time.Second)) {
		t.Fatal("second request allowed while probe in flight")
	}

	// Probe failure restarts a full open period.
	b.RecordFailure("alpha", probeAt.Add(2*time.Second))
	if !b.Open("alpha", probeAt.Add(3*time.Second)) {
		t.Fatal("closed after failed probe")
	}

	// Success closes it.
	halfOpenAgain := probeAt.Add(2*time.Second + 11*time.Minute)
	if b.Open("alpha", halfOpenAgain) {
		t.Fatal("probe refused on second half-open")
	}
	b.RecordSuccess("alpha")
	if b.Open("alpha", halfOpenAgain.Add(time.Second)) {
		t.Fatal("open after successful probe")
	}
}

func TestPortfolioSnapshotAggregates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewPortfolio()

	p.Reserve("exec-1", map[string]decimal.Decimal{"alpha": dec("100"), "beta": dec("50")})
	p.OpenPosition(domain.Position{ID: "pos-1", Venue: "alpha", Asset: "BTC", QuoteValue: dec("25"), OpenedAt: now})
	p.RecordResult(dec("-40"), now)
	p.RecordResult(dec("10"), now)

	s := p.Snapshot(now)
	if !s.TotalExposure.Equal(dec("175")) {
		t.Fatalf("total exposure = %s, want 175", s.TotalExposure)
	}
	if !s.VenueExposure["alpha"].Equal(dec("125")) {
		t.Fatalf("alpha exposure = %s, want 125", s.VenueExposure["alpha"])
	}
	if !s.DailyRealized.Equal(dec("-30")) {
		t.Fatalf("daily realized = %s, want -30", s.DailyRealized)
	}
	if len(s.Positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(s.Positions))
	}

	p.Release("exec-1")
	p.ClosePosition("pos-1")
	s = p.Snapshot(now)
	if !s.TotalExposure.IsZero() {
		t.Fatalf("total exposure after release = %s, want 0", s.TotalExposure)
	}
}

func TestPortfolioDailyRollover(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	p := NewPortfolio()
	p.RecordResult(dec("-300"), now)

	if got := p.Snapshot(now).DailyRealized; !got.Equal(dec("-300")) {
		t.Fatalf("daily realized = %s, want -300", got)
	}
	// Reading across midnight shows a clean day.
	if got := p.Snapshot(now.Add(2 * time.Hour)).DailyRealized; !got.IsZero() {
		t.Fatalf("daily realized next day = %s, want 0", got)
	}
	// Writing across midnight resets the accumulator.
	p.RecordResult(dec("-10"), now.Add(2*time.Hour))
	if got := p.Snapshot(now.Add(2 * time.Hour)).DailyRealized; !got.Equal(dec("-10")) {
		t.Fatalf("daily realized after rollover = %s, want -10", got)
	}
}

func TestPortfolioReserveLegs(t *testing.T) {
	p := NewPortfolio()
	sym := domain.NewSymbol("BTC", "USDT")
	p.ReserveLegs("exec-1", domain.Opportunity{Legs: []domain.Leg{
		{Venue: "alpha", Symbol: sym, Side: domain.OrderSideBuy, Amount: dec("2"), ReferencePrice: dec("100")},
		{Venue: "beta", Symbol: sym, Side: domain.OrderSideSell, Amount: dec("2"), ReferencePrice: dec("101")},
	}})

	s := p.Snapshot(time.Now())
	if !s.VenueExposure["alpha"].Equal(dec("200")) || !s.VenueExposure["beta"].Equal(dec("202")) {
		t.Fatalf("venue exposure = %v", s.VenueExposure)
	}
}
