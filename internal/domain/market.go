package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Ticker is one venue's most recent top-of-book quote for a symbol.
type Ticker struct {
	Venue      string          `json:"venue"`
	Symbol     Symbol          `json:"symbol"`
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
	Last       decimal.Decimal `json:"last"`
	Volume24h  decimal.Decimal `json:"volume24h"`
	Change24h  decimal.Decimal `json:"change24h"`
	ObservedAt time.Time       `json:"observedAt"`
}

// Validate rejects quotes that cannot come from a sane order book.
func (t Ticker) Validate() error {
	switch {
	case t.Venue == "" || t.Symbol.IsZero():
		return fmt.Errorf("domain: ticker %s@%s missing identity: %w", t.Symbol, t.Venue, ErrInvalidSnapshot)
	case !t.Bid.IsPositive() || !t.Ask.IsPositive():
		return fmt.Errorf("domain: ticker %s@%s non-positive quote: %w", t.Symbol, t.Venue, ErrInvalidSnapshot)
	case t.Bid.GreaterThan(t.Ask):
		return fmt.Errorf("domain: ticker %s@%s crossed (bid %s > ask %s): %w",
			t.Symbol, t.Venue, t.Bid, t.Ask, ErrInvalidSnapshot)
	case t.ObservedAt.IsZero():
		return fmt.Errorf("domain: ticker %s@%s missing timestamp: %w", t.Symbol, t.Venue, ErrInvalidSnapshot)
	}
	return nil
}

// Mid returns the bid/ask midpoint.
func (t Ticker) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}

// PriceLevel is one order book level: a price and the base amount resting
// at it.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// Book is a depth snapshot for a symbol on one venue. Bids are sorted by
// price descending, asks ascending.
type Book struct {
	Venue      string       `json:"venue"`
	Symbol     Symbol       `json:"symbol"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	ObservedAt time.Time    `json:"observedAt"`
}

// Validate checks level ordering and that the book is not crossed. Levels
// are strict: a duplicated price on either side is as malformed as an
// inverted one, and a bid meeting the ask is a locked market.
func (b Book) Validate() error {
	for i := 1; i < len(b.Bids); i++ {
		if b.Bids[i].Price.GreaterThanOrEqual(b.Bids[i-1].Price) {
			return fmt.Errorf("domain: book %s@%s bids out of order at level %d: %w",
				b.Symbol, b.Venue, i, ErrInvalidSnapshot)
		}
	}
	for i := 1; i < len(b.Asks); i++ {
		if b.Asks[i].Price.LessThanOrEqual(b.Asks[i-1].Price) {
			return fmt.Errorf("domain: book %s@%s asks out of order at level %d: %w",
				b.Symbol, b.Venue, i, ErrInvalidSnapshot)
		}
	}
	if len(b.Bids) > 0 && len(b.Asks) > 0 && b.Bids[0].Price.GreaterThanOrEqual(b.Asks[0].Price) {
		return fmt.Errorf("domain: book %s@%s crossed: %w", b.Symbol, b.Venue, ErrInvalidSnapshot)
	}
	return nil
}

// BestBid returns the highest bid, or false for an empty side.
func (b Book) BestBid() (PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask, or false for an empty side.
func (b Book) BestAsk() (PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// DepthBase sums the base amount resting on the side an order of the given
// side would consume, over at most the first levels entries. Buys consume
// asks, sells consume bids.
func (b Book) DepthBase(side OrderSide, levels int) decimal.Decimal {
	lvls := b.Asks
	if side == OrderSideSell {
		lvls = b.Bids
	}
	if levels < len(lvls) {
		lvls = lvls[:levels]
	}
	total := decimal.Zero
	for _, l := range lvls {
		total = total.Add(l.Size)
	}
	return total
}

// FillPrice walks the book and returns the volume-weighted average price an
// order of the given side and base amount would pay, along with the amount
// actually coverable by the snapshot. The second return falls short of
// amount when the book is too thin.
func (b Book) FillPrice(side OrderSide, amount decimal.Decimal) (avg, filled decimal.Decimal) {
	lvls := b.Asks
	if side == OrderSideSell {
		lvls = b.Bids
	}
	remaining := amount
	cost := decimal.Zero
	for _, l := range lvls {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, l.Size)
		cost = cost.Add(take.Mul(l.Price))
		filled = filled.Add(take)
		remaining = remaining.Sub(take)
	}
	if filled.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	return cost.Div(filled), filled
}

// FundingRate is a perpetual venue's current funding information for a
// symbol. Rate is the per-interval fraction paid by longs to shorts when
// positive.
type FundingRate struct {
	Venue    string          `json:"venue"`
	Symbol   Symbol          `json:"symbol"`
	Rate     decimal.Decimal `json:"rate"`
	Interval time.Duration   `json:"interval"`
	NextAt   time.Time       `json:"nextAt"`
}

// PeriodsPerYear returns how many funding intervals fit in a year, used to
// annualize the rate. Defaults to 8h intervals when unset.
func (f FundingRate) PeriodsPerYear() decimal.Decimal {
	iv := f.Interval
	if iv <= 0 {
		iv = 8 * time.Hour
	}
	return decimal.NewFromFloat(float64(365*24*time.Hour) / float64(iv))
}
