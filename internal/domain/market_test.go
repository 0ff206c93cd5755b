package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func validTicker() Ticker {
	return Ticker{
		Venue:      "alpha",
		Symbol:     NewSymbol("BTC", "USDT"),
		Bid:        dec("49990"),
		Ask:        dec("50010"),
		Last:       dec("50000"),
		Volume24h:  dec("120"),
		ObservedAt: time.Now(),
	}
}

func TestTickerValidate(t *testing.T) {
	if err := validTicker().Validate(); err != nil {
		t.Fatalf("valid ticker rejected: %v", err)
	}

	crossed := validTicker()
	crossed.Bid = dec("50020")
	if err := crossed.Validate(); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("crossed ticker: got %v, want ErrInvalidSnapshot", err)
	}

	zero := validTicker()
	zero.Ask = decimal.Zero
	if err := zero.Validate(); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("zero ask: got %v, want ErrInvalidSnapshot", err)
	}

	stampless := validTicker()
	stampless.ObservedAt = time.Time{}
	if err := stampless.Validate(); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("missing timestamp: got %v, want ErrInvalidSnapshot", err)
	}
}

func testBook() Book {
	return Book{
		Venue:  "alpha",
		Symbol: NewSymbol("BTC", "USDT"),
		Bids: []PriceLevel{
			{Price: dec("49990"), Size: dec("1.0")},
			{Price: dec("49980"), Size: dec("2.0")},
			{Price: dec("49970"), Size: dec("3.0")},
		},
		Asks: []PriceLevel{
			{Price: dec("50010"), Size: dec("0.5")},
			{Price: dec("50020"), Size: dec("1.5")},
		},
		ObservedAt: time.Now(),
	}
}

func TestBookValidate(t *testing.T) {
	if err := testBook().Validate(); err != nil {
		t.Fatalf("valid book rejected: %v", err)
	}

	bad := testBook()
	bad.Bids[1], bad.Bids[2] = bad.Bids[2], bad.Bids[1]
	if err := bad.Validate(); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("unordered bids: got %v, want ErrInvalidSnapshot", err)
	}

	crossed := testBook()
	crossed.Asks[0].Price = dec("49000")
	if err := crossed.Validate(); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("crossed book: got %v, want ErrInvalidSnapshot", err)
	}

	dupBid := testBook()
	dupBid.Bids[1].Price = dupBid.Bids[0].Price
	if err := dupBid.Validate(); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("duplicated bid level: got %v, want ErrInvalidSnapshot", err)
	}

	dupAsk := testBook()
	dupAsk.Asks[1].Price = dupAsk.Asks[0].Price
	if err := dupAsk.Validate(); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("duplicated ask level: got %v, want ErrInvalidSnapshot", err)
	}

	locked := testBook()
	locked.Bids[0].Price = locked.Asks[0].Price
	if err := locked.Validate(); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("locked book: got %v, want ErrInvalidSnapshot", err)
	}
}

func TestBookDepthBase(t *testing.T) {
	b := testBook()
	if got := b.DepthBase(OrderSideSell, 2); !got.Equal(dec("3.0")) {
		t.Fatalf("sell depth over 2 levels = %s, want 3.0", got)
	}
	if got := b.DepthBase(OrderSideBuy, 5); !got.Equal(dec("2.0")) {
		t.Fatalf("buy depth = %s, want 2.0", got)
	}
}

func TestBookFillPrice(t *testing.T) {
	b := testBook()

	// Buying 1.0 consumes 0.5 @ 50010 and 0.5 @ 50020.
	avg, filled := b.FillPrice(OrderSideBuy, dec("1.0"))
	if !filled.Equal(dec("1.0")) {
		t.Fatalf("filled = %s, want 1.0", filled)
	}
	if !avg.Equal(dec("50015")) {
		t.Fatalf("avg = %s, want 50015", avg)
	}

	// Asking for more than the book holds reports the shortfall.
	_, filled = b.FillPrice(OrderSideBuy, dec("10"))
	if !filled.Equal(dec("2.0")) {
		t.Fatalf("thin book filled = %s, want 2.0", filled)
	}
}

func TestFundingPeriodsPerYear(t *testing.T) {
	f := FundingRate{Interval: 8 * time.Hour}
	if got := f.PeriodsPerYear(); !got.Equal(dec("1095")) {
		t.Fatalf("8h interval periods = %s, want 1095", got)
	}
	// Unset interval defaults to 8h.
	if got := (FundingRate{}).PeriodsPerYear(); !got.Equal(dec("1095")) {
		t.Fatalf("default periods = %s, want 1095", got)
	}
}
