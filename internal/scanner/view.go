package scanner

import (
	"github.com/DecentralizedMoney/matreshka/internal/domain"
	"github.com/DecentralizedMoney/matreshka/internal/marketdata"
	"github.com/DecentralizedMoney/matreshka/internal/strategy"
	"github.com/DecentralizedMoney/matreshka/internal/venue"
)

// View adapts the market data cache and the venue registry into the
// read-only market access strategies consume. Venues reported down are
// filtered out even when their snapshots have not aged out yet.
type View struct {
	cache  *marketdata.Cache
	venues *venue.Set
}

var _ strategy.MarketView = (*View)(nil)

// NewView builds the strategies' market view.
func NewView(cache *marketdata.Cache, venues *venue.Set) *View {
	return &View{cache: cache, venues: venues}
}

// FreshVenues returns every tradable venue holding paired fresh snapshots
// for sym, in venue ID order.
func (v *View) FreshVenues(sym domain.Symbol) []strategy.VenueMarket {
	pairs := v.cache.ListFresh(sym)
	out := make([]strategy.VenueMarket, 0, len(pairs))
	for _, p := range pairs {
		desc, ok := v.venues.Venue(p.VenueID)
		if !ok || v.venues.Health(p.VenueID) == domain.VenueHealthDown {
			continue
		}
		out = append(out, strategy.VenueMarket{Venue: desc, Ticker: p.Ticker, Book: p.Book})
	}
	return out
}

// FreshPair returns one venue's fresh snapshots for sym.
func (v *View) FreshPair(venueID string, sym domain.Symbol) (strategy.VenueMarket, bool) {
	desc, ok := v.venues.Venue(venueID)
	if !ok || v.venues.Health(venueID) == domain.VenueHealthDown {
		return strategy.VenueMarket{}, false
	}
	t, ok := v.cache.Ticker(venueID, sym)
	if !ok {
		return strategy.VenueMarket{}, false
	}
	b, ok := v.cache.Book(venueID, sym)
	if !ok {
		return strategy.VenueMarket{}, false
	}
	return strategy.VenueMarket{Venue: desc, Ticker: t, Book: b}, true
}

// Funding returns the perp funding rate for sym on the venue.
func (v *View) Funding(venueID string, sym domain.Symbol) (domain.FundingRate, bool) {
	return v.cache.Funding(venueID, sym)
}
