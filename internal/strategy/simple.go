package strategy

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// SimpleConfig configures one cross-venue spread strategy instance.
type SimpleConfig struct {
	Name             string
	Symbols          []domain.Symbol
	Venues           []string
	MinProfitPct     decimal.Decimal
	MaxPositionQuote decimal.Decimal
	LegTimeout       time.Duration
	TTL              time.Duration
}

// Simple detects two-leg cross-venue spreads: buy where the ask is low,
// sell where the bid is higher, provided the spread survives both taker
// fees.
type Simple struct {
	cfg SimpleConfig
}

var _ Strategy = (*Simple)(nil)

// NewSimple creates a cross-venue spread strategy.
func NewSimple(cfg SimpleConfig) *Simple {
	if cfg.LegTimeout <= 0 {
		cfg.LegTimeout = 5 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &Simple{cfg: cfg}
}

func (s *Simple) Name() string                { return s.cfg.Name }
func (s *Simple) Kind() domain.OpportunityKind { return domain.OpportunityKindSimple }

// Synthesize proposes at most one candidate per symbol: the best ordered
// venue pair by net profit, ties broken by snapshot freshness and then by
// venue pair order.
func (s *Simple) Synthesize(view MarketView, now time.Time) []domain.Opportunity {
	var out []domain.Opportunity
	for _, sym := range s.cfg.Symbols {
		markets := s.filterVenues(view.FreshVenues(sym))
		best, ok := s.bestPair(sym, markets, now)
		if ok {
			out = append(out, best)
		}
	}
	return out
}

func (s *Simple) filterVenues(markets []VenueMarket) []VenueMarket {
	if len(s.cfg.Venues) == 0 {
		return markets
	}
	allowed := make(map[string]bool, len(s.cfg.Venues))
	for _, v := range s.cfg.Venues {
		allowed[v] = true
	}
	out := markets[:0]
	for _, m := range markets {
		if allowed[m.Venue.ID] {
			out = append(out, m)
		}
	}
	return out
}

// pairCandidate carries the numbers needed for tie-breaking alongside the
// built opportunity.
type pairCandidate struct {
	op     domain.Opportunity
	net    decimal.Decimal
	oldest time.Time
	buyID  string
	sellID string
}

func (s *Simple) bestPair(sym domain.Symbol, markets []VenueMarket, now time.Time) (domain.Opportunity, bool) {
	var best *pairCandidate
	for _, buy := range markets {
		for _, sell := range markets {
			if buy.Venue.ID == sell.Venue.ID {
				continue
			}
			cand, ok := s.price(sym, buy, sell, len(markets), now)
			if !ok {
				continue
			}
			if best == nil || betterPair(cand, *best) {
				c := cand
				best = &c
			}
		}
	}
	if best == nil {
		return domain.Opportunity{}, false
	}
	return best.op, true
}

// betterPair orders candidates by net profit, then by fresher snapshots
// (the older of the pair's two tickers decides), then by lexicographic
// (buy, sell) venue pair.
func betterPair(a, b pairCandidate) bool {
	if !a.net.Equal(b.net) {
		return a.net.GreaterThan(b.net)
	}
	if !a.oldest.Equal(b.oldest) {
		return a.oldest.After(b.oldest)
	}
	if a.buyID != b.buyID {
		return a.buyID < b.buyID
	}
	return a.sellID < b.sellID
}

// price evaluates one ordered (buy, sell) venue pair and returns a fully
// planned candidate when the net spread clears the threshold.
func (s *Simple) price(sym domain.Symbol, buy, sell VenueMarket, freshCount int, now time.Time) (pairCandidate, bool) {
	buyAsk := buy.Ticker.Ask
	sellBid := sell.Ticker.Bid
	if !buyAsk.LessThan(sellBid) {
		return pairCandidate{}, false
	}

	// Tradable size: thinnest of the two depth-capped book sides and the
	// position cap, then the safety margin.
	size := decimal.Min(
		consumableBase(buy.Book.Asks),
		consumableBase(sell.Book.Bids),
		s.cfg.MaxPositionQuote.Div(buyAsk),
	).Mul(safetyMargin)
	if !size.IsPositive() {
		return pairCandidate{}, false
	}

	buyNotional := size.Mul(buyAsk)
	sellNotional := size.Mul(sellBid)
	buyFee := buyNotional.Mul(takerRate(buy.Venue))
	sellFee := sellNotional.Mul(takerRate(sell.Venue))

	gross := size.Mul(sellBid.Sub(buyAsk))
	net := gross.Sub(buyFee).Sub(sellFee)
	netPct := net.Div(buyNotional).Mul(hundred)
	if netPct.LessThan(s.cfg.MinProfitPct) {
		return pairCandidate{}, false
	}

	observed := []time.Time{buy.Ticker.ObservedAt, sell.Ticker.ObservedAt}
	oldest := observed[0]
	if observed[1].Before(oldest) {
		oldest = observed[1]
	}

	op := domain.Opportunity{
		ID:       uuid.New().String(),
		Kind:     domain.OpportunityKindSimple,
		Strategy: s.cfg.Name,
		Legs: []domain.Leg{
			{
				Step:           1,
				Venue:          buy.Venue.ID,
				Symbol:         sym,
				Side:           domain.OrderSideBuy,
				Amount:         size,
				ReferencePrice: buyAsk,
				FeeEstimate:    buyFee,
				MaxLatency:     s.cfg.LegTimeout,
			},
			{
				Step:           2,
				Venue:          sell.Venue.ID,
				Symbol:         sym,
				Side:           domain.OrderSideSell,
				Amount:         size,
				ReferencePrice: sellBid,
				FeeEstimate:    sellFee,
				MaxLatency:     s.cfg.LegTimeout,
			},
		},
		ProjectedProfitQuote: net,
		ProjectedProfitPct:   netPct,
		VolumeQuote:          buyNotional,
		Confidence:           confidence(now, freshCount, observed),
		Risks: riskFactors(domain.OpportunityKindSimple,
			[]domain.Venue{buy.Venue, sell.Venue},
			decimal.Min(buy.Ticker.Volume24h, sell.Ticker.Volume24h)),
		Status:    domain.OpportunityStatusDetected,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}

	return pairCandidate{
		op:     op,
		net:    net,
		oldest: oldest,
		buyID:  buy.Venue.ID,
		sellID: sell.Venue.ID,
	}, true
}
