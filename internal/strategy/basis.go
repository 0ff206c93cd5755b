package strategy

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// BasisConfig configures one funding-capture strategy instance pairing a
// spot venue against a perpetual venue.
type BasisConfig struct {
	Name             string
	SpotVenue        string
	PerpVenue        string
	Symbols          []domain.Symbol
	MinAnnualizedPct decimal.Decimal
	MaxPositionQuote decimal.Decimal
	LegTimeout       time.Duration
	TTL              time.Duration
}

// Basis detects funding-rate captures: long spot, short perp, collecting
// positive funding while the basis between the two stays small. Candidates
// keep the standard 30s detection TTL; the hold itself lasts as long as the
// execution keeps the pair open.
type Basis struct {
	cfg BasisConfig
}

var _ Strategy = (*Basis)(nil)

// NewBasis creates a funding-capture strategy.
func NewBasis(cfg BasisConfig) *Basis {
	if cfg.LegTimeout <= 0 {
		cfg.LegTimeout = 5 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &Basis{cfg: cfg}
}

func (s *Basis) Name() string                 { return s.cfg.Name }
func (s *Basis) Kind() domain.OpportunityKind { return domain.OpportunityKindBasis }

// Synthesize prices every configured symbol.
func (s *Basis) Synthesize(view MarketView, now time.Time) []domain.Opportunity {
	var out []domain.Opportunity
	for _, sym := range s.cfg.Symbols {
		if op, ok := s.price(view, sym, now); ok {
			out = append(out, op)
		}
	}
	return out
}

func (s *Basis) price(view MarketView, sym domain.Symbol, now time.Time) (domain.Opportunity, bool) {
	spot, ok := view.FreshPair(s.cfg.SpotVenue, sym)
	if !ok {
		return domain.Opportunity{}, false
	}
	perp, ok := view.FreshPair(s.cfg.PerpVenue, sym)
	if !ok {
		return domain.Opportunity{}, false
	}
	funding, ok := view.Funding(s.cfg.PerpVenue, sym)
	if !ok || !funding.Rate.IsPositive() {
		// Negative funding pays the longs; that is the mirrored trade
		// and not this strategy's.
		return domain.Opportunity{}, false
	}

	spotMid := spot.Ticker.Mid()
	perpMid := perp.Ticker.Mid()
	if !spotMid.IsPositive() {
		return domain.Opportunity{}, false
	}

	annualizedPct := funding.Rate.Mul(funding.PeriodsPerYear()).Mul(hundred)
	basisPct := perpMid.Sub(spotMid).Div(spotMid).Mul(hundred).Abs()
	if annualizedPct.Sub(basisPct).LessThan(s.cfg.MinAnnualizedPct) {
		return domain.Opportunity{}, false
	}

	spotAsk := spot.Ticker.Ask
	size := s.cfg.MaxPositionQuote.Div(spotAsk)
	if !size.IsPositive() {
		return domain.Opportunity{}, false
	}

	spotNotional := size.Mul(spotAsk)
	perpNotional := size.Mul(perp.Ticker.Bid)
	spotFee := spotNotional.Mul(takerRate(spot.Venue))
	perpFee := perpNotional.Mul(takerRate(perp.Venue))

	// Projected profit is one funding interval's capture, net of the
	// entry fees. The position keeps earning per interval while held.
	net := perpNotional.Mul(funding.Rate).Sub(spotFee).Sub(perpFee)
	netPct := net.Div(spotNotional).Mul(hundred)

	observed := []time.Time{spot.Ticker.ObservedAt, perp.Ticker.ObservedAt}
	op := domain.Opportunity{
		ID:       uuid.New().String(),
		Kind:     domain.OpportunityKindBasis,
		Strategy: s.cfg.Name,
		Legs: []domain.Leg{
			{
				Step:           1,
				Venue:          s.cfg.SpotVenue,
				Symbol:         sym,
				Side:           domain.OrderSideBuy,
				Amount:         size,
				ReferencePrice: spotAsk,
				FeeEstimate:    spotFee,
				MaxLatency:     s.cfg.LegTimeout,
			},
			{
				Step:           2,
				Venue:          s.cfg.PerpVenue,
				Symbol:         sym,
				Side:           domain.OrderSideSell,
				Amount:         size,
				ReferencePrice: perp.Ticker.Bid,
				FeeEstimate:    perpFee,
				MaxLatency:     s.cfg.LegTimeout,
			},
		},
		ProjectedProfitQuote: net,
		ProjectedProfitPct:   netPct,
		VolumeQuote:          spotNotional,
		Confidence:           confidence(now, 2, observed),
		Risks: riskFactors(domain.OpportunityKindBasis,
			[]domain.Venue{spot.Venue, perp.Venue},
			decimal.Min(spot.Ticker.Volume24h, perp.Ticker.Volume24h)),
		Status:    domain.OpportunityStatusDetected,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	return op, true
}
