// Package marketdata holds the in-memory snapshot cache that feeds the
// scanner and the risk gate, plus the ingest loops that keep it filled from
// venue adapters. The cache never polls on its own; adapters push into it.
package marketdata

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// CacheConfig tunes staleness and anomaly detection.
type CacheConfig struct {
	// StaleAfter is the age past which a ticker or book is excluded from
	// reads.
	StaleAfter time.Duration
	// FundingStaleAfter is the separate, longer window for funding rates,
	// which venues only refresh a few times a day.
	FundingStaleAfter time.Duration
	// PriceAlertPct emits a priceAlert when one update moves the last
	// price by more than this percentage.
	PriceAlertPct float64
	// VolumeSpikeRatio emits a volumeSpike when 24h volume jumps past
	// prior * ratio.
	VolumeSpikeRatio float64
	// MaxBookLevels truncates stored books to this depth per side.
	MaxBookLevels int
}

func (c *CacheConfig) setDefaults() {
	if c.StaleAfter <= 0 {
		c.StaleAfter = 10 * time.Second
	}
	if c.FundingStaleAfter <= 0 {
		c.FundingStaleAfter = 15 * time.Minute
	}
	if c.PriceAlertPct <= 0 {
		c.PriceAlertPct = 1.0
	}
	if c.VolumeSpikeRatio <= 1 {
		c.VolumeSpikeRatio = 2.0
	}
	if c.MaxBookLevels <= 0 {
		c.MaxBookLevels = 20
	}
}

type pairKey struct {
	venue string
	sym   domain.Symbol
}

// entry holds the latest snapshots for one (venue, symbol) pair behind its
// own lock, so writers for different pairs never contend.
type entry struct {
	mu      sync.Mutex
	ticker  domain.Ticker
	book    domain.Book
	funding domain.FundingRate
	hasTick bool
	hasBook bool
	hasFund bool
}

// PairSnapshot is one venue's fresh ticker and book for a symbol, as
// returned by ListFresh.
type PairSnapshot struct {
	VenueID string
	Ticker  domain.Ticker
	Book    domain.Book
}

// Cache stores the latest ticker, book and funding rate per (venue, symbol).
// Writers are the ingest loops; readers are the scanner and the risk gate.
// Anomaly events are handed to emit, which must not block; observers run on
// their own goroutines and must not mutate cache state.
type Cache struct {
	cfg  CacheConfig
	emit func(domain.Event)
	now  func() time.Time

	mu      sync.RWMutex
	entries map[pairKey]*entry
}

// NewCache creates a cache. emit may be nil when nothing observes anomalies.
func NewCache(cfg CacheConfig, emit func(domain.Event)) *Cache {
	cfg.setDefaults()
	if emit == nil {
		emit = func(domain.Event) {}
	}
	return &Cache{
		cfg:     cfg,
		emit:    emit,
		now:     time.Now,
		entries: make(map[pairKey]*entry),
	}
}

func (c *Cache) entryFor(venue string, sym domain.Symbol) *entry {
	key := pairKey{venue: venue, sym: sym}
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return e
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.entries[key]; ok {
		return e
	}
	e = &entry{}
	c.entries[key] = e
	return e
}

// PutTicker stores t when it is newer than the held snapshot. Out-of-order
// updates are dropped and reported as domain.ErrStaleData so ingest loops
// can count them; invalid tickers are rejected as DataValidation errors.
func (c *Cache) PutTicker(t domain.Ticker) error {
	if err := t.Validate(); err != nil {
		return err
	}

	e := c.entryFor(t.Venue, t.Symbol)
	e.mu.Lock()
	if e.hasTick && !t.ObservedAt.After(e.ticker.ObservedAt) {
		e.mu.Unlock()
		return fmt.Errorf("marketdata: ticker %s@%s observed %s not after %s: %w",
			t.Symbol, t.Venue, t.ObservedAt.Format(time.RFC3339Nano),
			e.ticker.ObservedAt.Format(time.RFC3339Nano), domain.ErrStaleData)
	}
	prev := e.ticker
	had := e.hasTick
	e.ticker = t
	e.hasTick = true
	e.mu.Unlock()

	if had {
		c.detectAnomalies(prev, t)
	}
	return nil
}

// detectAnomalies compares consecutive snapshots and emits priceAlert and
// volumeSpike events. Runs outside the pair lock.
func (c *Cache) detectAnomalies(prev, cur domain.Ticker) {
	if prev.Last.IsPositive() && cur.Last.IsPositive() {
		changePct := cur.Last.Sub(prev.Last).Div(prev.Last).Mul(decimal.NewFromInt(100))
		if changePct.Abs().GreaterThan(decimal.NewFromFloat(c.cfg.PriceAlertPct)) {
			c.emit(domain.NewEvent(domain.EventPriceAlert, domain.PriceAlertEvent{
				Venue:     cur.Venue,
				Symbol:    cur.Symbol,
				Previous:  prev.Last,
				Current:   cur.Last,
				ChangePct: changePct,
			}))
		}
	}
	if prev.Volume24h.IsPositive() {
		threshold := prev.Volume24h.Mul(decimal.NewFromFloat(c.cfg.VolumeSpikeRatio))
		if cur.Volume24h.GreaterThan(threshold) {
			c.emit(domain.NewEvent(domain.EventVolumeSpike, domain.VolumeSpikeEvent{
				Venue:    cur.Venue,
				Symbol:   cur.Symbol,
				Previous: prev.Volume24h,
				Current:  cur.Volume24h,
				Ratio:    cur.Volume24h.Div(prev.Volume24h),
			}))
		}
	}
}

// PutBook stores b when it is newer than the held snapshot, truncated to the
// configured depth. Books violating level ordering are rejected.
func (c *Cache) PutBook(b domain.Book) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if len(b.Bids) > c.cfg.MaxBookLevels {
		b.Bids = b.Bids[:c.cfg.MaxBookLevels]
	}
	if len(b.Asks) > c.cfg.MaxBookLevels {
		b.Asks = b.Asks[:c.cfg.MaxBookLevels]
	}

	e := c.entryFor(b.Venue, b.Symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hasBook && !b.ObservedAt.After(e.book.ObservedAt) {
		return fmt.Errorf("marketdata: book %s@%s out of order: %w", b.Symbol, b.Venue, domain.ErrStaleData)
	}
	e.book = b
	e.hasBook = true
	return nil
}

// PutFunding stores a funding rate snapshot for a perpetual venue.
func (c *Cache) PutFunding(f domain.FundingRate) error {
	if f.Venue == "" || f.Symbol.IsZero() {
		return fmt.Errorf("marketdata: funding rate missing identity: %w", domain.ErrInvalidSnapshot)
	}
	e := c.entryFor(f.Venue, f.Symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.funding = f
	e.hasFund = true
	return nil
}

func (c *Cache) fresh(at, observed time.Time, window time.Duration) bool {
	return at.Sub(observed) < window
}

// Ticker returns the latest non-stale ticker for the pair.
func (c *Cache) Ticker(venue string, sym domain.Symbol) (domain.Ticker, bool) {
	e := c.entryFor(venue, sym)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasTick || !c.fresh(c.now(), e.ticker.ObservedAt, c.cfg.StaleAfter) {
		return domain.Ticker{}, false
	}
	return e.ticker, true
}

// Book returns the latest non-stale book for the pair.
func (c *Cache) Book(venue string, sym domain.Symbol) (domain.Book, bool) {
	e := c.entryFor(venue, sym)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasBook || !c.fresh(c.now(), e.book.ObservedAt, c.cfg.StaleAfter) {
		return domain.Book{}, false
	}
	return e.book, true
}

// Funding returns the latest funding rate for the pair, within its own
// staleness window.
func (c *Cache) Funding(venue string, sym domain.Symbol) (domain.FundingRate, bool) {
	e := c.entryFor(venue, sym)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hasFund || (!e.funding.NextAt.IsZero() && c.now().After(e.funding.NextAt.Add(c.cfg.FundingStaleAfter))) {
		return domain.FundingRate{}, false
	}
	return e.funding, true
}

// ListFresh returns every venue holding a paired fresh ticker and book for
// sym, sorted by venue ID.
func (c *Cache) ListFresh(sym domain.Symbol) []PairSnapshot {
	now := c.now()

	c.mu.RLock()
	keys := make([]pairKey, 0, len(c.entries))
	for k := range c.entries {
		if k.sym == sym {
			keys = append(keys, k)
		}
	}
	c.mu.RUnlock()

	out := make([]PairSnapshot, 0, len(keys))
	for _, k := range keys {
		e := c.entryFor(k.venue, k.sym)
		e.mu.Lock()
		ok := e.hasTick && e.hasBook &&
			c.fresh(now, e.ticker.ObservedAt, c.cfg.StaleAfter) &&
			c.fresh(now, e.book.ObservedAt, c.cfg.StaleAfter)
		snap := PairSnapshot{VenueID: k.venue, Ticker: e.ticker, Book: e.book}
		e.mu.Unlock()
		if ok {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VenueID < out[j].VenueID })
	return out
}
