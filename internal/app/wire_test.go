package app

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/DecentralizedMoney/matreshka/internal/config"
)

func demoConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Venues = map[string]config.VenueConfig{
		"alpha": demoVenue(1),
		"beta":  demoVenue(2),
	}
	cfg.Symbols = []config.SymbolConfig{
		{Pair: "BTC/USDT", AmountPrecision: 5, PricePrecision: 2, Venues: []string{"alpha", "beta"}},
	}
	cfg.Strategies.Simple = []config.SimpleStrategyConfig{{
		Name:             "spread-test",
		Enabled:          true,
		Symbols:          []string{"BTC/USDT"},
		Venues:           []string{"alpha", "beta"},
		MinProfitPct:     0.1,
		MaxPositionQuote: 1000,
	}}
	return &cfg
}

func demoVenue(seed int64) config.VenueConfig {
	return config.VenueConfig{
		Kind:         "demo",
		Enabled:      true,
		TakerFeeRate: 0.001,
		Seed:         seed,
		StartPrices:  map[string]float64{"BTC/USDT": 50000},
		SpreadBps:    10,
		Balances:     map[string]float64{"USDT": 10000, "BTC": 1},
	}
}

func TestWireBuildsEngineFromDemoConfig(t *testing.T) {
	cfg := demoConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("fixture config invalid: %v", err)
	}

	deps, cleanup, err := Wire(context.Background(), cfg, slog.Default())
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	defer cleanup()

	if deps.Scanner == nil || deps.Gate == nil || deps.Coordinator == nil {
		t.Fatal("pipeline stages missing")
	}
	if got := deps.Venues.IDs(); len(got) != 2 {
		t.Fatalf("venues = %v", got)
	}
	if len(deps.Specs) != 1 || deps.Specs[0].Symbol.String() != "BTC/USDT" {
		t.Fatalf("specs = %v", deps.Specs)
	}
	if deps.Stores != nil || deps.Mirror != nil || deps.Archiver != nil {
		t.Fatal("optional dependencies wired without being enabled")
	}
}

func TestWireRejectsConfigWithoutVenues(t *testing.T) {
	cfg := demoConfig()
	for name, vc := range cfg.Venues {
		vc.Enabled = false
		cfg.Venues[name] = vc
	}

	if _, _, err := Wire(context.Background(), cfg, slog.Default()); err == nil {
		t.Fatal("expected error for config with no enabled venues")
	}
}

func TestWireRejectsConfigWithoutStrategies(t *testing.T) {
	cfg := demoConfig()
	cfg.Strategies.Simple[0].Enabled = false

	if _, _, err := Wire(context.Background(), cfg, slog.Default()); err == nil {
		t.Fatal("expected error for config with no enabled strategies")
	}
}

func TestShortestPollInterval(t *testing.T) {
	cfg := demoConfig()
	va := cfg.Venues["alpha"]
	va.PollInterval = config.Duration{Duration: 2 * time.Second}
	cfg.Venues["alpha"] = va
	vb := cfg.Venues["beta"]
	vb.PollInterval = config.Duration{Duration: 500 * time.Millisecond}
	cfg.Venues["beta"] = vb

	if got := shortestPollInterval(cfg); got != 500*time.Millisecond {
		t.Fatalf("shortest = %v", got)
	}
}
