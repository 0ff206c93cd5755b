package scanner

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DecentralizedMoney/matreshka/internal/config"
	"github.com/DecentralizedMoney/matreshka/internal/domain"
	"github.com/DecentralizedMoney/matreshka/internal/strategy"
)

// StrategiesFromConfig builds the enabled strategy instances in config
// order: simple spreads first, then triangular cycles, then basis captures.
// ttl is the detection lifetime applied to every candidate.
func StrategiesFromConfig(cfg config.StrategiesConfig, ttl time.Duration) ([]strategy.Strategy, error) {
	var out []strategy.Strategy

	for _, c := range cfg.Simple {
		if !c.Enabled {
			continue
		}
		syms, err := parseSymbols(c.Symbols)
		if err != nil {
			return nil, fmt.Errorf("scanner: strategy %q: %w", c.Name, err)
		}
		out = append(out, strategy.NewSimple(strategy.SimpleConfig{
			Name:             c.Name,
			Symbols:          syms,
			Venues:           c.Venues,
			MinProfitPct:     decimal.NewFromFloat(c.MinProfitPct),
			MaxPositionQuote: decimal.NewFromFloat(c.MaxPositionQuote),
			LegTimeout:       c.LegTimeout.Duration,
			TTL:              ttl,
		}))
	}

	for _, c := range cfg.Triangular {
		if !c.Enabled {
			continue
		}
		cycles := make([][3]string, 0, len(c.Cycles))
		for _, cy := range c.Cycles {
			if len(cy) != 3 {
				return nil, fmt.Errorf("scanner: strategy %q: cycle needs exactly 3 assets, got %d", c.Name, len(cy))
			}
			cycles = append(cycles, [3]string{cy[0], cy[1], cy[2]})
		}
		out = append(out, strategy.NewTriangular(strategy.TriangularConfig{
			Name:             c.Name,
			Venue:            c.Venue,
			Cycles:           cycles,
			MinProfitPct:     decimal.NewFromFloat(c.MinProfitPct),
			MaxPositionQuote: decimal.NewFromFloat(c.MaxPositionQuote),
			LegTimeout:       c.LegTimeout.Duration,
			TTL:              ttl,
		}))
	}

	for _, c := range cfg.Basis {
		if !c.Enabled {
			continue
		}
		syms, err := parseSymbols(c.Symbols)
		if err != nil {
			return nil, fmt.Errorf("scanner: strategy %q: %w", c.Name, err)
		}
		out = append(out, strategy.NewBasis(strategy.BasisConfig{
			Name:             c.Name,
			SpotVenue:        c.SpotVenue,
			PerpVenue:        c.PerpVenue,
			Symbols:          syms,
			MinAnnualizedPct: decimal.NewFromFloat(c.MinAnnualizedPct),
			MaxPositionQuote: decimal.NewFromFloat(c.MaxPositionQuote),
			LegTimeout:       c.LegTimeout.Duration,
			TTL:              ttl,
		}))
	}

	return out, nil
}

func parseSymbols(raw []string) ([]domain.Symbol, error) {
	out := make([]domain.Symbol, 0, len(raw))
	for _, r := range raw {
		sym, err := domain.ParseSymbol(r)
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, nil
}
