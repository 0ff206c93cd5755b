package strategy

import (
	"testing"
	"time"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

func basisView(now time.Time, rate string) *fakeView {
	sym := domain.NewSymbol("BTC", "USDT")
	view := newFakeView()
	view.add(market("spot", sym, "100.0", "100.1", "0.0005", "5000000", now))
	view.add(market("perp", sym, "100.2", "100.3", "0.0005", "5000000", now))
	view.addFunding(domain.FundingRate{
		Venue:    "perp",
		Symbol:   sym,
		Rate:     dec(rate),
		Interval: 8 * time.Hour,
		NextAt:   now.Add(2 * time.Hour),
	})
	return view
}

func TestBasisCapturesPositiveFunding(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sym := domain.NewSymbol("BTC", "USDT")

	// 0.01% per 8h annualizes to 10.95%; the perp trades about 0.2% over
	// spot, leaving well over the 5% hurdle.
	view := basisView(now, "0.0001")

	s := NewBasis(BasisConfig{
		Name:             "basis-btc",
		SpotVenue:        "spot",
		PerpVenue:        "perp",
		Symbols:          []domain.Symbol{sym},
		MinAnnualizedPct: dec("5"),
		MaxPositionQuote: dec("1000"),
	})

	ops := s.Synthesize(view, now)
	if len(ops) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(ops))
	}
	op := ops[0]
	if op.Kind != domain.OpportunityKindBasis {
		t.Fatalf("kind = %q", op.Kind)
	}
	if len(op.Legs) != 2 {
		t.Fatalf("got %d legs, want 2", len(op.Legs))
	}
	long, short := op.Legs[0], op.Legs[1]
	if long.Venue != "spot" || long.Side != domain.OrderSideBuy {
		t.Fatalf("leg 1 = %s %s, want buy on spot", long.Side, long.Venue)
	}
	if short.Venue != "perp" || short.Side != domain.OrderSideSell {
		t.Fatalf("leg 2 = %s %s, want sell on perp", short.Side, short.Venue)
	}
	if !long.Amount.Equal(short.Amount) {
		t.Fatalf("legs unbalanced: long %s, short %s", long.Amount, short.Amount)
	}
	notional := long.Amount.Mul(long.ReferencePrice)
	if notional.Sub(dec("1000")).Abs().GreaterThan(dec("0.000001")) {
		t.Fatalf("spot notional = %s, want the full 1000 position cap", notional)
	}
}

func TestBasisIgnoresNegativeFunding(t *testing.T) {
	now := time.Now()
	view := basisView(now, "-0.0001")

	s := NewBasis(BasisConfig{
		Name:             "basis-btc",
		SpotVenue:        "spot",
		PerpVenue:        "perp",
		Symbols:          []domain.Symbol{domain.NewSymbol("BTC", "USDT")},
		MinAnnualizedPct: dec("5"),
		MaxPositionQuote: dec("1000"),
	})

	if ops := s.Synthesize(view, now); len(ops) != 0 {
		t.Fatalf("got %d opportunities on negative funding", len(ops))
	}
}

func TestBasisRejectsWhenBasisEatsTheCarry(t *testing.T) {
	now := time.Now()
	sym := domain.NewSymbol("BTC", "USDT")

	// Perp trades 12% over spot: the annualized 10.95% carry cannot cover
	// closing that gap.
	view := newFakeView()
	view.add(market("spot", sym, "100.0", "100.1", "0.0005", "5000000", now))
	view.add(market("perp", sym, "112.0", "112.1", "0.0005", "5000000", now))
	view.addFunding(domain.FundingRate{
		Venue:    "perp",
		Symbol:   sym,
		Rate:     dec("0.0001"),
		Interval: 8 * time.Hour,
	})

	s := NewBasis(BasisConfig{
		Name:             "basis-btc",
		SpotVenue:        "spot",
		PerpVenue:        "perp",
		Symbols:          []domain.Symbol{sym},
		MinAnnualizedPct: dec("5"),
		MaxPositionQuote: dec("1000"),
	})

	if ops := s.Synthesize(view, now); len(ops) != 0 {
		t.Fatalf("got %d opportunities with a 12%% basis", len(ops))
	}
}

func TestBasisNeedsFundingData(t *testing.T) {
	now := time.Now()
	sym := domain.NewSymbol("BTC", "USDT")

	view := newFakeView()
	view.add(market("spot", sym, "100.0", "100.1", "0.0005", "5000000", now))
	view.add(market("perp", sym, "100.2", "100.3", "0.0005", "5000000", now))

	s := NewBasis(BasisConfig{
		Name:             "basis-btc",
		SpotVenue:        "spot",
		PerpVenue:        "perp",
		Symbols:          []domain.Symbol{sym},
		MinAnnualizedPct: dec("5"),
		MaxPositionQuote: dec("1000"),
	})

	if ops := s.Synthesize(view, now); len(ops) != 0 {
		t.Fatalf("got %d opportunities without a funding rate", len(ops))
	}
}
