// Package strategy holds the synthesis functions that turn market snapshots
// into priced arbitrage candidates. Strategies are pure: they read the
// market view, never touch adapters, and emit nothing. The scanner owns
// scheduling, deduplication and events.
package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// VenueMarket bundles one venue's descriptor with its fresh snapshots for a
// symbol.
type VenueMarket struct {
	Venue  domain.Venue
	Ticker domain.Ticker
	Book   domain.Book
}

// MarketView is the read-only market access handed to strategies. The
// scanner implements it over the market data cache and the venue registry;
// everything returned is already staleness-filtered.
type MarketView interface {
	// FreshVenues returns every venue with paired fresh snapshots for
	// sym, in venue ID order.
	FreshVenues(sym domain.Symbol) []VenueMarket
	// FreshPair returns one venue's fresh snapshots for sym.
	FreshPair(venueID string, sym domain.Symbol) (VenueMarket, bool)
	// Funding returns the perp funding rate for sym on the venue.
	Funding(venueID string, sym domain.Symbol) (domain.FundingRate, bool)
}

// Strategy is one synthesis function. Synthesize may return any number of
// candidates; each must carry a full leg plan and profit figures net of
// estimated fees.
type Strategy interface {
	Name() string
	Kind() domain.OpportunityKind
	Synthesize(view MarketView, now time.Time) []domain.Opportunity
}

// Default sizing constants shared by the strategies.
var (
	// depthQuoteCap bounds the quote notional consumed when measuring
	// book liquidity.
	depthQuoteCap = decimal.NewFromInt(10000)
	// depthBaseCap bounds the base amount consumed when measuring book
	// liquidity; whichever cap is hit first wins.
	depthBaseCap = decimal.NewFromInt(100)
	// safetyMargin is the fraction of the measured tradable size actually
	// planned.
	safetyMargin = decimal.NewFromFloat(0.8)
	// defaultFeeRate is assumed when a venue publishes no taker rate.
	defaultFeeRate = decimal.NewFromFloat(0.001)
	// thinVolumeQuote marks a venue as thin for the liquidity risk tag.
	thinVolumeQuote = decimal.NewFromInt(100000)

	hundred = decimal.NewFromInt(100)
)

// takerRate returns the venue's taker fee rate, or the default fallback.
func takerRate(v domain.Venue) decimal.Decimal {
	if v.Fees.TakerRate.IsPositive() {
		return v.Fees.TakerRate
	}
	return defaultFeeRate
}

// consumableBase walks one book side and returns the base amount available
// within the depth caps: at most depthQuoteCap of notional or depthBaseCap
// of base, whichever limit is reached first.
func consumableBase(levels []domain.PriceLevel) decimal.Decimal {
	base := decimal.Zero
	quote := decimal.Zero
	for _, l := range levels {
		take := l.Size
		if rem := depthBaseCap.Sub(base); take.GreaterThan(rem) {
			take = rem
		}
		if notional := take.Mul(l.Price); quote.Add(notional).GreaterThan(depthQuoteCap) {
			take = depthQuoteCap.Sub(quote).Div(l.Price)
		}
		if !take.IsPositive() {
			break
		}
		base = base.Add(take)
		quote = quote.Add(take.Mul(l.Price))
		if base.GreaterThanOrEqual(depthBaseCap) || quote.GreaterThanOrEqual(depthQuoteCap) {
			break
		}
	}
	return base
}

// confidence scores a candidate in [0.1, 1.0]: scarce cross-venue coverage
// and aging snapshots both cut it down.
func confidence(now time.Time, freshVenueCount int, observed []time.Time) float64 {
	score := 1.0
	if freshVenueCount < 3 {
		score *= 0.8
	}
	for _, at := range observed {
		if now.Sub(at) > 5*time.Second {
			score *= 0.9
		}
	}
	if score < 0.1 {
		score = 0.1
	}
	return score
}

// riskFactors derives the qualitative tags attached at detection.
// thinnestVolume is the smallest 24h quote volume across the venues used.
func riskFactors(kind domain.OpportunityKind, venues []domain.Venue, thinnestVolume decimal.Decimal) []domain.RiskFactor {
	var out []domain.RiskFactor
	if thinnestVolume.LessThan(thinVolumeQuote) {
		out = append(out, domain.RiskFactor{
			Kind:     domain.RiskFactorLiquidity,
			Severity: "medium",
			Impact:   "fills may walk the book past the reference price",
		})
	}
	for _, v := range venues {
		if v.HighRisk {
			out = append(out, domain.RiskFactor{
				Kind:     domain.RiskFactorExchange,
				Severity: "high",
				Impact:   "venue " + v.ID + " is flagged high-risk",
			})
			break
		}
	}
	if kind == domain.OpportunityKindTriangular || kind == domain.OpportunityKindBasis {
		out = append(out, domain.RiskFactor{
			Kind:     domain.RiskFactorTiming,
			Severity: "low",
			Impact:   "sequential legs race the market",
		})
	}
	return out
}
