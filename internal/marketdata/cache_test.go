package marketdata

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

var btcUSDT = domain.NewSymbol("BTC", "USDT")

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func ticker(venue string, bid, ask, last, vol string, at time.Time) domain.Ticker {
	return domain.Ticker{
		Venue:      venue,
		Symbol:     btcUSDT,
		Bid:        dec(bid),
		Ask:        dec(ask),
		Last:       dec(last),
		Volume24h:  dec(vol),
		ObservedAt: at,
	}
}

func book(venue string, bid, ask string, at time.Time) domain.Book {
	return domain.Book{
		Venue:  venue,
		Symbol: btcUSDT,
		Bids:   []domain.PriceLevel{{Price: dec(bid), Size: dec("1")}},
		Asks:   []domain.PriceLevel{{Price: dec(ask), Size: dec("1")}},
		ObservedAt: at,
	}
}

func newTestCache(emit func(domain.Event)) (*Cache, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewCache(CacheConfig{}, emit)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestPutTickerMonotonic(t *testing.T) {
	c, now := newTestCache(nil)

	first := ticker("alpha", "99.9", "100.0", "99.95", "1000000", now.Add(-2*time.Second))
	if err := c.PutTicker(first); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Same timestamp and older timestamps are dropped.
	if err := c.PutTicker(first); !errors.Is(err, domain.ErrStaleData) {
		t.Fatalf("duplicate timestamp: err = %v", err)
	}
	old := ticker("alpha", "99.0", "99.1", "99.0", "1000000", now.Add(-5*time.Second))
	if err := c.PutTicker(old); !errors.Is(err, domain.ErrStaleData) {
		t.Fatalf("out-of-order: err = %v", err)
	}

	got, ok := c.Ticker("alpha", btcUSDT)
	if !ok {
		t.Fatal("ticker should be readable")
	}
	if !got.ObservedAt.Equal(first.ObservedAt) {
		t.Fatalf("observedAt regressed to %v", got.ObservedAt)
	}
}

func TestPutTickerRejectsInvalid(t *testing.T) {
	c, now := newTestCache(nil)
	crossed := ticker("alpha", "101", "100", "100.5", "1", *now)
	if err := c.PutTicker(crossed); !errors.Is(err, domain.ErrInvalidSnapshot) {
		t.Fatalf("crossed ticker: err = %v", err)
	}
}

func TestStaleTickerExcluded(t *testing.T) {
	c, now := newTestCache(nil)

	if err := c.PutTicker(ticker("alpha", "99.9", "100.0", "99.95", "1e6", now.Add(-time.Second))); err != nil {
		t.Fatalf("put fresh: %v", err)
	}
	if err := c.PutTicker(ticker("beta", "100.4", "100.5", "100.45", "1e6", now.Add(-11*time.Second))); err != nil {
		t.Fatalf("put stale: %v", err)
	}
	if err := c.PutBook(book("alpha", "99.9", "100.0", now.Add(-time.Second))); err != nil {
		t.Fatalf("put book: %v", err)
	}
	if err := c.PutBook(book("beta", "100.4", "100.5", now.Add(-11*time.Second))); err != nil {
		t.Fatalf("put stale book: %v", err)
	}

	if _, ok := c.Ticker("beta", btcUSDT); ok {
		t.Fatal("11s-old ticker must read as missing")
	}

	fresh := c.ListFresh(btcUSDT)
	if len(fresh) != 1 || fresh[0].VenueID != "alpha" {
		t.Fatalf("ListFresh = %+v, want only alpha", fresh)
	}
}

func TestPutBookRejectsBadOrdering(t *testing.T) {
	c, now := newTestCache(nil)
	bad := domain.Book{
		Venue:  "alpha",
		Symbol: btcUSDT,
		Bids: []domain.PriceLevel{
			{Price: dec("99"), Size: dec("1")},
			{Price: dec("100"), Size: dec("1")}, // increasing bids
		},
		Asks:       []domain.PriceLevel{{Price: dec("101"), Size: dec("1")}},
		ObservedAt: *now,
	}
	if err := c.PutBook(bad); !errors.Is(err, domain.ErrInvalidSnapshot) {
		t.Fatalf("bad ordering: err = %v", err)
	}
}

func TestPutBookTruncatesDepth(t *testing.T) {
	now := time.Now()
	c := NewCache(CacheConfig{MaxBookLevels: 2}, nil)

	b := domain.Book{
		Venue:  "alpha",
		Symbol: btcUSDT,
		Bids: []domain.PriceLevel{
			{Price: dec("100"), Size: dec("1")},
			{Price: dec("99"), Size: dec("1")},
			{Price: dec("98"), Size: dec("1")},
		},
		Asks:       []domain.PriceLevel{{Price: dec("101"), Size: dec("1")}},
		ObservedAt: now,
	}
	if err := c.PutBook(b); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok := c.Book("alpha", btcUSDT)
	if !ok {
		t.Fatal("book missing")
	}
	if len(got.Bids) != 2 {
		t.Fatalf("bids = %d levels, want truncation to 2", len(got.Bids))
	}
}

func TestPriceAlertAndVolumeSpike(t *testing.T) {
	var events []domain.Event
	c, now := newTestCache(func(ev domain.Event) { events = append(events, ev) })

	if err := c.PutTicker(ticker("alpha", "99", "100", "100", "1000", now.Add(-2*time.Second))); err != nil {
		t.Fatalf("put: %v", err)
	}
	// +2% last price and 3x volume in one update.
	if err := c.PutTicker(ticker("alpha", "101", "102", "102", "3000", now.Add(-time.Second))); err != nil {
		t.Fatalf("put: %v", err)
	}

	var gotPrice, gotVolume bool
	for _, ev := range events {
		switch ev.Kind {
		case domain.EventPriceAlert:
			gotPrice = true
			p := ev.Payload.(domain.PriceAlertEvent)
			if p.ChangePct.InexactFloat64() < 1.9 || p.ChangePct.InexactFloat64() > 2.1 {
				t.Fatalf("changePct = %s", p.ChangePct)
			}
		case domain.EventVolumeSpike:
			gotVolume = true
		}
	}
	if !gotPrice || !gotVolume {
		t.Fatalf("events = %+v, want priceAlert and volumeSpike", events)
	}
}

func TestSmallMoveEmitsNothing(t *testing.T) {
	var events []domain.Event
	c, now := newTestCache(func(ev domain.Event) { events = append(events, ev) })

	if err := c.PutTicker(ticker("alpha", "99", "100", "100", "1000", now.Add(-2*time.Second))); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := c.PutTicker(ticker("alpha", "99.1", "100.1", "100.5", "1100", now.Add(-time.Second))); err != nil {
		t.Fatalf("put: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestFundingRoundTrip(t *testing.T) {
	c, now := newTestCache(nil)
	f := domain.FundingRate{
		Venue:    "perp",
		Symbol:   btcUSDT,
		Rate:     dec("0.0001"),
		Interval: 8 * time.Hour,
		NextAt:   now.Add(4 * time.Hour),
	}
	if err := c.PutFunding(f); err != nil {
		t.Fatalf("put funding: %v", err)
	}
	got, ok := c.Funding("perp", btcUSDT)
	if !ok {
		t.Fatal("funding missing")
	}
	if !got.Rate.Equal(f.Rate) {
		t.Fatalf("rate = %s", got.Rate)
	}
}
