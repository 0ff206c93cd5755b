package strategy

import (
	"testing"
	"time"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

func TestSimpleDetectsCrossVenueSpread(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sym := domain.NewSymbol("BTC", "USDT")

	view := newFakeView()
	view.add(market("alpha", sym, "99.9", "100.0", "0.0005", "5000000", now))
	view.add(market("beta", sym, "100.4", "100.5", "0.0005", "5000000", now))

	s := NewSimple(SimpleConfig{
		Name:             "simple-btc",
		Symbols:          []domain.Symbol{sym},
		MinProfitPct:     dec("0.2"),
		MaxPositionQuote: dec("100"),
	})

	ops := s.Synthesize(view, now)
	if len(ops) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(ops))
	}
	op := ops[0]
	if op.Kind != domain.OpportunityKindSimple {
		t.Fatalf("kind = %q", op.Kind)
	}
	if len(op.Legs) != 2 {
		t.Fatalf("got %d legs, want 2", len(op.Legs))
	}
	buy, sell := op.Legs[0], op.Legs[1]
	if buy.Venue != "alpha" || buy.Side != domain.OrderSideBuy {
		t.Fatalf("leg 1 = %s %s, want buy on alpha", buy.Side, buy.Venue)
	}
	if sell.Venue != "beta" || sell.Side != domain.OrderSideSell {
		t.Fatalf("leg 2 = %s %s, want sell on beta", sell.Side, sell.Venue)
	}

	// Position cap is the binding limit: 100 quote at ask 100.0 is one
	// base unit, scaled by the 0.8 safety margin.
	if !buy.Amount.Equal(dec("0.8")) {
		t.Fatalf("size = %s, want 0.8", buy.Amount)
	}
	if !sell.Amount.Equal(buy.Amount) {
		t.Fatalf("leg amounts differ: %s vs %s", buy.Amount, sell.Amount)
	}

	// 0.8 * 0.4 spread = 0.32 gross; fees 0.04 + 0.04016.
	if !op.ProjectedProfitQuote.Equal(dec("0.23984")) {
		t.Fatalf("net = %s, want 0.23984", op.ProjectedProfitQuote)
	}
	if op.ProjectedProfitPct.LessThan(dec("0.2")) {
		t.Fatalf("netPct = %s, below threshold", op.ProjectedProfitPct)
	}
	if op.Confidence != 0.8 {
		t.Fatalf("confidence = %v, want 0.8 for two fresh venues", op.Confidence)
	}
	if !op.ExpiresAt.Equal(now.Add(30 * time.Second)) {
		t.Fatalf("expiresAt = %v", op.ExpiresAt)
	}
}

func TestSimpleProfitMatchesLegPlan(t *testing.T) {
	now := time.Now()
	sym := domain.NewSymbol("ETH", "USDT")

	view := newFakeView()
	view.add(market("alpha", sym, "199.7", "199.8", "0.001", "5000000", now))
	view.add(market("beta", sym, "201.1", "201.3", "0.001", "5000000", now))

	s := NewSimple(SimpleConfig{
		Name:             "simple-eth",
		Symbols:          []domain.Symbol{sym},
		MinProfitPct:     dec("0.1"),
		MaxPositionQuote: dec("150"),
	})

	ops := s.Synthesize(view, now)
	if len(ops) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(ops))
	}
	op := ops[0]
	if got := recomputeProfit(op); !got.Equal(op.ProjectedProfitQuote) {
		t.Fatalf("legs replay to %s, stored projection %s", got, op.ProjectedProfitQuote)
	}
}

func TestSimpleFeesEraseSpread(t *testing.T) {
	now := time.Now()
	sym := domain.NewSymbol("BTC", "USDT")

	view := newFakeView()
	view.add(market("alpha", sym, "99.9", "100.0", "0.003", "5000000", now))
	view.add(market("beta", sym, "100.4", "100.5", "0.003", "5000000", now))

	s := NewSimple(SimpleConfig{
		Name:             "simple-btc",
		Symbols:          []domain.Symbol{sym},
		MinProfitPct:     dec("0.2"),
		MaxPositionQuote: dec("100"),
	})

	if ops := s.Synthesize(view, now); len(ops) != 0 {
		t.Fatalf("got %d opportunities, want none with 0.3%% taker fees", len(ops))
	}
}

func TestSimpleNeedsTwoVenues(t *testing.T) {
	now := time.Now()
	sym := domain.NewSymbol("BTC", "USDT")

	view := newFakeView()
	view.add(market("alpha", sym, "99.9", "100.0", "0.001", "5000000", now))

	s := NewSimple(SimpleConfig{
		Name:             "simple-btc",
		Symbols:          []domain.Symbol{sym},
		MinProfitPct:     dec("0.1"),
		MaxPositionQuote: dec("100"),
	})

	if ops := s.Synthesize(view, now); len(ops) != 0 {
		t.Fatalf("got %d opportunities from a single venue", len(ops))
	}
}

func TestSimpleVenueFilter(t *testing.T) {
	now := time.Now()
	sym := domain.NewSymbol("BTC", "USDT")

	view := newFakeView()
	view.add(market("alpha", sym, "99.9", "100.0", "0.0005", "5000000", now))
	view.add(market("beta", sym, "100.4", "100.5", "0.0005", "5000000", now))

	s := NewSimple(SimpleConfig{
		Name:             "simple-btc",
		Symbols:          []domain.Symbol{sym},
		Venues:           []string{"alpha", "gamma"},
		MinProfitPct:     dec("0.1"),
		MaxPositionQuote: dec("100"),
	})

	if ops := s.Synthesize(view, now); len(ops) != 0 {
		t.Fatalf("got %d opportunities, beta should be excluded by the venue list", len(ops))
	}
}

func TestSimpleTieBreakIsDeterministic(t *testing.T) {
	now := time.Now()
	sym := domain.NewSymbol("BTC", "USDT")

	// Two identical sell venues; the lexicographically smaller pair must
	// win every time.
	build := func() *fakeView {
		v := newFakeView()
		v.add(market("alpha", sym, "99.9", "100.0", "0.0005", "5000000", now))
		v.add(market("beta", sym, "100.4", "100.5", "0.0005", "5000000", now))
		v.add(market("gamma", sym, "100.4", "100.5", "0.0005", "5000000", now))
		return v
	}

	s := NewSimple(SimpleConfig{
		Name:             "simple-btc",
		Symbols:          []domain.Symbol{sym},
		MinProfitPct:     dec("0.1"),
		MaxPositionQuote: dec("100"),
	})

	for i := 0; i < 10; i++ {
		ops := s.Synthesize(build(), now)
		if len(ops) != 1 {
			t.Fatalf("got %d opportunities, want 1", len(ops))
		}
		if got := ops[0].Legs[1].Venue; got != "beta" {
			t.Fatalf("run %d picked sell venue %q, want beta", i, got)
		}
	}
}
