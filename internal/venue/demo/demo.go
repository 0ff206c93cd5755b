// Package demo implements an in-process simulated venue used for paper
// trading and integration tests. Prices follow a seeded random walk;
// orders settle against synthesized books and adjust simulated balances,
// so the full detection-to-execution path runs without network access.
package demo

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
	"github.com/DecentralizedMoney/matreshka/internal/venue"
)

// Config describes one simulated venue.
type Config struct {
	ID         string
	QuoteAsset string
	Fees       domain.FeeSchedule
	Limits     domain.TradeLimits
	HighRisk   bool

	// Seed fixes the price walk; runs with the same seed and call
	// sequence reproduce the same prices.
	Seed        int64
	StartPrices map[domain.Symbol]decimal.Decimal

	// SpreadBps is the full bid/ask spread around mid, in basis points.
	SpreadBps float64
	// VolatilityBps bounds the per-step mid move, in basis points.
	VolatilityBps float64
	// LevelNotional is the quote notional synthesized per book level.
	LevelNotional decimal.Decimal
	// BookLevels is the book depth synthesized per side.
	BookLevels int

	// Balances seeds the simulated account, keyed by asset.
	Balances map[string]decimal.Decimal

	// FundingRate, when non-zero, makes the venue report perpetual
	// funding at 8h intervals.
	FundingRate decimal.Decimal

	// TickInterval is the cadence of the push stream.
	TickInterval time.Duration
}

// order is the internal state of one simulated order.
type order struct {
	state domain.OrderState
	req   domain.OrderRequest
}

// Venue is a simulated trading venue.
type Venue struct {
	cfg  Config
	desc domain.Venue
	now  func() time.Time

	mu       sync.Mutex
	rng      *rand.Rand
	mid      map[domain.Symbol]decimal.Decimal
	vol24    map[domain.Symbol]decimal.Decimal
	free     map[string]decimal.Decimal
	locked   map[string]decimal.Decimal
	orders   map[string]*order
	byClient map[string]string
	seq      int64
}

var (
	_ venue.Adapter  = (*Venue)(nil)
	_ venue.Streamer = (*Venue)(nil)
)

// New creates a simulated venue from cfg.
func New(cfg Config) (*Venue, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("demo: venue ID must not be empty")
	}
	if len(cfg.StartPrices) == 0 {
		return nil, fmt.Errorf("demo: venue %s needs start_prices", cfg.ID)
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.SpreadBps <= 0 {
		cfg.SpreadBps = 10
	}
	if cfg.VolatilityBps <= 0 {
		cfg.VolatilityBps = 5
	}
	if cfg.BookLevels <= 0 {
		cfg.BookLevels = 10
	}
	if cfg.LevelNotional.IsZero() {
		cfg.LevelNotional = decimal.NewFromInt(5000)
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 500 * time.Millisecond
	}

	v := &Venue{
		cfg: cfg,
		desc: domain.Venue{
			ID:       cfg.ID,
			Kind:     domain.VenueKindDemo,
			Fees:     cfg.Fees,
			Limits:   cfg.Limits,
			HighRisk: cfg.HighRisk,
		},
		now:      time.Now,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		mid:      make(map[domain.Symbol]decimal.Decimal, len(cfg.StartPrices)),
		vol24:    make(map[domain.Symbol]decimal.Decimal, len(cfg.StartPrices)),
		free:     make(map[string]decimal.Decimal, len(cfg.Balances)),
		locked:   make(map[string]decimal.Decimal),
		orders:   make(map[string]*order),
		byClient: make(map[string]string),
	}
	for sym, px := range cfg.StartPrices {
		if !px.IsPositive() {
			return nil, fmt.Errorf("demo: venue %s start price for %s must be positive", cfg.ID, sym)
		}
		v.mid[sym] = px
		v.vol24[sym] = decimal.NewFromInt(1000)
	}
	for asset, amt := range cfg.Balances {
		v.free[asset] = amt
	}
	return v, nil
}

// Venue returns the static descriptor.
func (v *Venue) Venue() domain.Venue { return v.desc }

// SetClock overrides the clock, for tests.
func (v *Venue) SetClock(now func() time.Time) { v.now = now }

// step advances the random walk for one symbol. Caller holds v.mu.
func (v *Venue) step(sym domain.Symbol) {
	mid, ok := v.mid[sym]
	if !ok {
		return
	}
	// Uniform move in [-vol, +vol] bps.
	u := v.rng.Float64()*2 - 1
	factor := decimal.NewFromFloat(1 + u*v.cfg.VolatilityBps/10000)
	v.mid[sym] = mid.Mul(factor)

	// 24h volume drifts slowly upward with jitter.
	jitter := decimal.NewFromFloat(1 + v.rng.Float64()*0.01)
	v.vol24[sym] = v.vol24[sym].Mul(jitter)
}

// quote returns bid/ask around the current mid. Caller holds v.mu.
func (v *Venue) quote(sym domain.Symbol) (bid, ask decimal.Decimal, ok bool) {
	mid, found := v.mid[sym]
	if !found {
		return decimal.Zero, decimal.Zero, false
	}
	half := decimal.NewFromFloat(v.cfg.SpreadBps / 20000)
	bid = mid.Mul(decimal.NewFromInt(1).Sub(half))
	ask = mid.Mul(decimal.NewFromInt(1).Add(half))
	return bid, ask, true
}

// buildBook synthesizes a depth snapshot around the current quote. Level
// prices step away from the touch by one spread per level; sizes grow so
// each level carries LevelNotional of quote value. Caller holds v.mu.
func (v *Venue) buildBook(sym domain.Symbol, depth int) (domain.Book, bool) {
	bid, ask, ok := v.quote(sym)
	if !ok {
		return domain.Book{}, false
	}
	if depth <= 0 || depth > v.cfg.BookLevels {
		depth = v.cfg.BookLevels
	}

	stepFrac := decimal.NewFromFloat(v.cfg.SpreadBps / 10000)
	book := domain.Book{
		Venue:      v.cfg.ID,
		Symbol:     sym,
		Bids:       make([]domain.PriceLevel, 0, depth),
		Asks:       make([]domain.PriceLevel, 0, depth),
		ObservedAt: v.now(),
	}
	one := decimal.NewFromInt(1)
	for i := 0; i < depth; i++ {
		lvl := decimal.NewFromInt(int64(i))
		down := one.Sub(stepFrac.Mul(lvl))
		up := one.Add(stepFrac.Mul(lvl))

		bp := bid.Mul(down)
		ap := ask.Mul(up)
		book.Bids = append(book.Bids, domain.PriceLevel{
			Price: bp,
			Size:  v.cfg.LevelNotional.Div(bp),
		})
		book.Asks = append(book.Asks, domain.PriceLevel{
			Price: ap,
			Size:  v.cfg.LevelNotional.Div(ap),
		})
	}
	return book, true
}

func (v *Venue) FetchTicker(ctx context.Context, sym domain.Symbol) (domain.Ticker, error) {
	if err := ctx.Err(); err != nil {
		return domain.Ticker{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	v.step(sym)
	bid, ask, ok := v.quote(sym)
	if !ok {
		return domain.Ticker{}, domain.NewVenueError(v.cfg.ID, "fetch_ticker", domain.VenueErrNotFound, fmt.Errorf("unknown symbol %s", sym))
	}
	return domain.Ticker{
		Venue:      v.cfg.ID,
		Symbol:     sym,
		Bid:        bid,
		Ask:        ask,
		Last:       v.mid[sym],
		Volume24h:  v.vol24[sym],
		ObservedAt: v.now(),
	}, nil
}

func (v *Venue) FetchBook(ctx context.Context, sym domain.Symbol, depth int) (domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return domain.Book{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	book, ok := v.buildBook(sym, depth)
	if !ok {
		return domain.Book{}, domain.NewVenueError(v.cfg.ID, "fetch_book", domain.VenueErrNotFound, fmt.Errorf("unknown symbol %s", sym))
	}
	return book, nil
}

func (v *Venue) FetchBalances(ctx context.Context) ([]domain.Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	out := make([]domain.Balance, 0, len(v.free))
	for asset, free := range v.free {
		b := domain.Balance{
			Venue:     v.cfg.ID,
			Asset:     asset,
			Free:      free,
			Locked:    v.locked[asset],
			UpdatedAt: now,
		}
		b.QuoteValue = v.quoteValue(asset, b.Total())
		out = append(out, b)
	}
	return out, nil
}

// quoteValue converts an asset amount to the reporting quote currency at
// the current mid. Caller holds v.mu.
func (v *Venue) quoteValue(asset string, amount decimal.Decimal) decimal.Decimal {
	if asset == v.cfg.QuoteAsset {
		return amount
	}
	if mid, ok := v.mid[domain.NewSymbol(asset, v.cfg.QuoteAsset)]; ok {
		return amount.Mul(mid)
	}
	return decimal.Zero
}

// PlaceOrder simulates order placement. Market orders fill immediately
// against the synthesized book (immediate-or-cancel); limit orders fill at
// the touch when they cross, otherwise rest until the walk crosses them or
// they are cancelled. Submissions are deduplicated on ClientOrderID.
func (v *Venue) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderState, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderState{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if req.ClientOrderID != "" {
		if extID, ok := v.byClient[req.ClientOrderID]; ok {
			return v.orders[extID].state, nil
		}
	}

	if _, ok := v.mid[req.Symbol]; !ok {
		return domain.OrderState{}, domain.NewVenueError(v.cfg.ID, "place_order", domain.VenueErrNotFound, fmt.Errorf("unknown symbol %s", req.Symbol))
	}
	if !req.Amount.IsPositive() {
		return domain.OrderState{}, domain.NewVenueError(v.cfg.ID, "place_order", domain.VenueErrPermanent, domain.ErrOrderRejected)
	}
	if min := v.desc.MinOrderAmount(req.Symbol.Base); min.IsPositive() && req.Amount.LessThan(min) {
		return domain.OrderState{}, domain.NewVenueError(v.cfg.ID, "place_order", domain.VenueErrPermanent,
			fmt.Errorf("amount %s below venue minimum %s: %w", req.Amount, min, domain.ErrOrderRejected))
	}
	if max := v.desc.MaxOrderAmount(req.Symbol.Base); max.IsPositive() && req.Amount.GreaterThan(max) {
		return domain.OrderState{}, domain.NewVenueError(v.cfg.ID, "place_order", domain.VenueErrPermanent,
			fmt.Errorf("amount %s above venue maximum %s: %w", req.Amount, max, domain.ErrOrderRejected))
	}

	v.seq++
	o := &order{
		req: req,
		state: domain.OrderState{
			ExternalID:    v.cfg.ID + "-" + strconv.FormatInt(v.seq, 10),
			ClientOrderID: req.ClientOrderID,
			Status:        domain.TradeStatusOpen,
			UpdatedAt:     v.now(),
		},
	}

	switch req.Type {
	case domain.OrderTypeMarket:
		if err := v.fillMarket(o); err != nil {
			return domain.OrderState{}, err
		}
	default:
		if err := v.placeLimit(o); err != nil {
			return domain.OrderState{}, err
		}
	}

	v.orders[o.state.ExternalID] = o
	if req.ClientOrderID != "" {
		v.byClient[req.ClientOrderID] = o.state.ExternalID
	}
	return o.state, nil
}

// fillMarket fills a market order against the synthesized book as IOC: it
// takes what the book holds and reports the filled amount. Caller holds
// v.mu.
func (v *Venue) fillMarket(o *order) error {
	book, _ := v.buildBook(o.req.Symbol, 0)
	avg, filled := book.FillPrice(o.req.Side, o.req.Amount)
	if filled.IsZero() {
		return domain.NewVenueError(v.cfg.ID, "place_order", domain.VenueErrPermanent,
			fmt.Errorf("empty book for %s: %w", o.req.Symbol, domain.ErrOrderRejected))
	}
	return v.settle(o, avg, filled, v.desc.Fees.TakerRate)
}

// placeLimit fills a crossing limit order at the touch, or rests it after
// locking funds. Caller holds v.mu.
func (v *Venue) placeLimit(o *order) error {
	bid, ask, _ := v.quote(o.req.Symbol)

	crosses := (o.req.Side == domain.OrderSideBuy && o.req.Price.GreaterThanOrEqual(ask)) ||
		(o.req.Side == domain.OrderSideSell && o.req.Price.LessThanOrEqual(bid))
	if crosses {
		px := ask
		if o.req.Side == domain.OrderSideSell {
			px = bid
		}
		return v.settle(o, px, o.req.Amount, v.desc.Fees.TakerRate)
	}

	// Resting order: lock the funds it would consume.
	if err := v.lock(o.req); err != nil {
		return err
	}
	o.state.Status = domain.TradeStatusOpen
	return nil
}

// lock reserves balance for a resting order. Caller holds v.mu.
func (v *Venue) lock(req domain.OrderRequest) error {
	asset, needed := req.Symbol.Base, req.Amount
	if req.Side == domain.OrderSideBuy {
		asset = req.Symbol.Quote
		needed = req.Amount.Mul(req.Price)
	}
	if v.free[asset].LessThan(needed) {
		return domain.NewVenueError(v.cfg.ID, "place_order", domain.VenueErrPermanent,
			fmt.Errorf("need %s %s, have %s: %w", needed, asset, v.free[asset], domain.ErrInsufficientFunds))
	}
	v.free[asset] = v.free[asset].Sub(needed)
	v.locked[asset] = v.locked[asset].Add(needed)
	return nil
}

// unlock releases a resting order's reservation. Caller holds v.mu.
func (v *Venue) unlock(req domain.OrderRequest, remaining decimal.Decimal) {
	asset, amt := req.Symbol.Base, remaining
	if req.Side == domain.OrderSideBuy {
		asset = req.Symbol.Quote
		amt = remaining.Mul(req.Price)
	}
	v.locked[asset] = v.locked[asset].Sub(amt)
	v.free[asset] = v.free[asset].Add(amt)
}

// settle applies a fill to the simulated balances. Fees are charged in the
// quote asset. Caller holds v.mu.
func (v *Venue) settle(o *order, price, amount decimal.Decimal, feeRate decimal.Decimal) error {
	notional := amount.Mul(price)
	fee := notional.Mul(feeRate)
	base, quote := o.req.Symbol.Base, o.req.Symbol.Quote

	if o.req.Side == domain.OrderSideBuy {
		needed := notional.Add(fee)
		if v.free[quote].LessThan(needed) {
			return domain.NewVenueError(v.cfg.ID, "place_order", domain.VenueErrPermanent,
				fmt.Errorf("need %s %s, have %s: %w", needed, quote, v.free[quote], domain.ErrInsufficientFunds))
		}
		v.free[quote] = v.free[quote].Sub(needed)
		v.free[base] = v.free[base].Add(amount)
	} else {
		if v.free[base].LessThan(amount) {
			return domain.NewVenueError(v.cfg.ID, "place_order", domain.VenueErrPermanent,
				fmt.Errorf("need %s %s, have %s: %w", amount, base, v.free[base], domain.ErrInsufficientFunds))
		}
		v.free[base] = v.free[base].Sub(amount)
		v.free[quote] = v.free[quote].Add(notional.Sub(fee))
	}

	o.state.FilledAmount = amount
	o.state.AvgFillPrice = price
	o.state.Fee = fee
	o.state.Status = domain.TradeStatusFilled
	o.state.UpdatedAt = v.now()
	return nil
}

func (v *Venue) CancelOrder(ctx context.Context, externalID string, sym domain.Symbol) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	o, ok := v.orders[externalID]
	if !ok {
		return domain.NewVenueError(v.cfg.ID, "cancel_order", domain.VenueErrNotFound, domain.ErrNotFound)
	}
	if o.state.Terminal() {
		// Cancel after fill is a no-op; FetchOrder reports the truth.
		return nil
	}
	v.unlock(o.req, o.req.Amount.Sub(o.state.FilledAmount))
	o.state.Status = domain.TradeStatusCancelled
	o.state.UpdatedAt = v.now()
	return nil
}

// FetchOrder reports order state. Resting limit orders are re-checked
// against the current quote first, so orders the walk has crossed fill
// here at maker rates.
func (v *Venue) FetchOrder(ctx context.Context, externalID string, sym domain.Symbol) (domain.OrderState, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderState{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	o, ok := v.orders[externalID]
	if !ok {
		return domain.OrderState{}, domain.NewVenueError(v.cfg.ID, "fetch_order", domain.VenueErrNotFound, domain.ErrNotFound)
	}

	if o.state.Status == domain.TradeStatusOpen && o.req.Type == domain.OrderTypeLimit {
		bid, ask, _ := v.quote(o.req.Symbol)
		crosses := (o.req.Side == domain.OrderSideBuy && o.req.Price.GreaterThanOrEqual(ask)) ||
			(o.req.Side == domain.OrderSideSell && o.req.Price.LessThanOrEqual(bid))
		if crosses {
			v.unlock(o.req, o.req.Amount)
			if err := v.settle(o, o.req.Price, o.req.Amount, v.desc.Fees.MakerRate); err != nil {
				return domain.OrderState{}, err
			}
		}
	}
	return o.state, nil
}

func (v *Venue) FundingRate(ctx context.Context, sym domain.Symbol) (domain.FundingRate, error) {
	if err := ctx.Err(); err != nil {
		return domain.FundingRate{}, err
	}
	if v.cfg.FundingRate.IsZero() {
		return domain.FundingRate{}, domain.ErrNotSupported
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.mid[sym]; !ok {
		return domain.FundingRate{}, domain.NewVenueError(v.cfg.ID, "funding_rate", domain.VenueErrNotFound, fmt.Errorf("unknown symbol %s", sym))
	}
	now := v.now()
	return domain.FundingRate{
		Venue:    v.cfg.ID,
		Symbol:   sym,
		Rate:     v.cfg.FundingRate,
		Interval: 8 * time.Hour,
		NextAt:   now.Truncate(8 * time.Hour).Add(8 * time.Hour),
	}, nil
}

// StreamMarketData pushes ticker updates every TickInterval and a book
// snapshot every fourth tick. The channel closes when ctx ends.
func (v *Venue) StreamMarketData(ctx context.Context, symbols []domain.Symbol) (<-chan venue.MarketUpdate, error) {
	out := make(chan venue.MarketUpdate, 64)

	go func() {
		defer close(out)
		ticker := time.NewTicker(v.cfg.TickInterval)
		defer ticker.Stop()

		n := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			n++
			for _, sym := range symbols {
				t, err := v.FetchTicker(ctx, sym)
				if err != nil {
					continue
				}
				select {
				case out <- venue.MarketUpdate{Ticker: &t}:
				default: // drop on slow consumer
				}
				if n%4 == 0 {
					b, err := v.FetchBook(ctx, sym, 0)
					if err != nil {
						continue
					}
					select {
					case out <- venue.MarketUpdate{Book: &b}:
					default:
					}
				}
			}
		}
	}()

	return out, nil
}
