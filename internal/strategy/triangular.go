package strategy

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// TriangularConfig configures one single-venue cycle strategy instance.
// Each cycle lists three assets; trading starts and ends in the first, which
// must be the funding asset (normally the quote currency).
type TriangularConfig struct {
	Name             string
	Venue            string
	Cycles           [][3]string
	MinProfitPct     decimal.Decimal
	MaxPositionQuote decimal.Decimal
	LegTimeout       time.Duration
	TTL              time.Duration
}

// Triangular detects three-leg cycles on a single venue. Both directions of
// each configured cycle are priced with the correct book side per hop (ask
// when buying, bid when selling); the more profitable direction is proposed
// when its net return clears the threshold.
type Triangular struct {
	cfg TriangularConfig
}

var _ Strategy = (*Triangular)(nil)

// NewTriangular creates a single-venue cycle strategy.
func NewTriangular(cfg TriangularConfig) *Triangular {
	if cfg.LegTimeout <= 0 {
		cfg.LegTimeout = 5 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return &Triangular{cfg: cfg}
}

func (s *Triangular) Name() string                 { return s.cfg.Name }
func (s *Triangular) Kind() domain.OpportunityKind { return domain.OpportunityKindTriangular }

// Synthesize prices every configured cycle in both directions.
func (s *Triangular) Synthesize(view MarketView, now time.Time) []domain.Opportunity {
	var out []domain.Opportunity
	for _, cycle := range s.cfg.Cycles {
		forward := []string{cycle[0], cycle[1], cycle[2], cycle[0]}
		reverse := []string{cycle[0], cycle[2], cycle[1], cycle[0]}

		fwd, fwdOK := s.priceCycle(view, forward, now)
		rev, revOK := s.priceCycle(view, reverse, now)

		switch {
		case fwdOK && (!revOK || fwd.ProjectedProfitQuote.GreaterThanOrEqual(rev.ProjectedProfitQuote)):
			out = append(out, fwd)
		case revOK:
			out = append(out, rev)
		}
	}
	return out
}

// hop is one asset conversion resolved against the venue's listed pairs.
type hop struct {
	sym   domain.Symbol
	side  domain.OrderSide
	price decimal.Decimal // reference: ask for buys, bid for sells
	mkt   VenueMarket
}

// resolveHop finds how to convert `from` into `to` on the venue: either buy
// the to/from pair at the ask or sell the from/to pair at the bid.
func (s *Triangular) resolveHop(view MarketView, from, to string) (hop, bool) {
	if m, ok := view.FreshPair(s.cfg.Venue, domain.NewSymbol(to, from)); ok {
		return hop{sym: m.Ticker.Symbol, side: domain.OrderSideBuy, price: m.Ticker.Ask, mkt: m}, true
	}
	if m, ok := view.FreshPair(s.cfg.Venue, domain.NewSymbol(from, to)); ok {
		return hop{sym: m.Ticker.Symbol, side: domain.OrderSideSell, price: m.Ticker.Bid, mkt: m}, true
	}
	return hop{}, false
}

// priceCycle walks assets[0] -> assets[1] -> assets[2] -> assets[3],
// carrying the proceeds of each hop into the next one net of its fee, and
// returns a candidate when the round trip clears the threshold.
func (s *Triangular) priceCycle(view MarketView, assets []string, now time.Time) (domain.Opportunity, bool) {
	hops := make([]hop, 0, 3)
	for i := 0; i < 3; i++ {
		h, ok := s.resolveHop(view, assets[i], assets[i+1])
		if !ok || !h.price.IsPositive() {
			return domain.Opportunity{}, false
		}
		hops = append(hops, h)
	}

	venue := hops[0].mkt.Venue
	feeRate := takerRate(venue)
	start := s.cfg.MaxPositionQuote

	// Each leg is sized from the previous leg's net proceeds, so a fill
	// shortfall upstream shrinks everything downstream proportionally.
	// TODO: reconcile this sizing with the treasury PnL export; older
	// builds sized leg 3 from the leg 1 amount without rescaling.
	amount := start
	legs := make([]domain.Leg, 0, 3)
	observed := make([]time.Time, 0, 3)
	thinnest := hops[0].mkt.Ticker.Volume24h

	for i, h := range hops {
		var baseAmount, gross decimal.Decimal
		if h.side == domain.OrderSideBuy {
			baseAmount = amount.Div(h.price)
			gross = baseAmount
		} else {
			baseAmount = amount
			gross = amount.Mul(h.price)
		}
		fee := gross.Mul(feeRate)
		net := gross.Sub(fee)

		legs = append(legs, domain.Leg{
			Step:           i + 1,
			Venue:          s.cfg.Venue,
			Symbol:         h.sym,
			Side:           h.side,
			Amount:         baseAmount,
			ReferencePrice: h.price,
			FeeEstimate:    fee,
			MaxLatency:     s.cfg.LegTimeout,
		})
		observed = append(observed, h.mkt.Ticker.ObservedAt)
		if h.mkt.Ticker.Volume24h.LessThan(thinnest) {
			thinnest = h.mkt.Ticker.Volume24h
		}
		amount = net
	}

	net := amount.Sub(start)
	netPct := net.Div(start).Mul(hundred)
	if netPct.LessThan(s.cfg.MinProfitPct) {
		return domain.Opportunity{}, false
	}

	op := domain.Opportunity{
		ID:                   uuid.New().String(),
		Kind:                 domain.OpportunityKindTriangular,
		Strategy:             s.cfg.Name,
		Legs:                 legs,
		ProjectedProfitQuote: net,
		ProjectedProfitPct:   netPct,
		VolumeQuote:          start,
		Confidence:           confidence(now, len(view.FreshVenues(hops[0].sym)), observed),
		Risks:                riskFactors(domain.OpportunityKindTriangular, []domain.Venue{venue}, thinnest),
		Status:               domain.OpportunityStatusDetected,
		CreatedAt:            now,
		ExpiresAt:            now.Add(s.cfg.TTL),
	}
	return op, true
}
