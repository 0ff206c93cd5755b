// Package venue defines the adapter contract the engine uses to talk to
// trading venues, plus the guard wrapper (rate budget, retries) every
// adapter is mounted behind.
package venue

import (
	"context"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// Adapter is the uniform surface a venue exposes to the engine. Market
// data fetches return validated snapshots; trading calls report failures
// as *domain.VenueError so callers can classify them.
type Adapter interface {
	// Venue returns the static descriptor: identity, fees, limits.
	Venue() domain.Venue

	FetchTicker(ctx context.Context, sym domain.Symbol) (domain.Ticker, error)
	FetchBook(ctx context.Context, sym domain.Symbol, depth int) (domain.Book, error)
	FetchBalances(ctx context.Context) ([]domain.Balance, error)

	// PlaceOrder submits an order. Venues deduplicate on
	// req.ClientOrderID, so retried submissions are safe.
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderState, error)
	CancelOrder(ctx context.Context, externalID string, sym domain.Symbol) error
	FetchOrder(ctx context.Context, externalID string, sym domain.Symbol) (domain.OrderState, error)

	// FundingRate reports the current funding information for perpetual
	// venues. Others return domain.ErrNotSupported.
	FundingRate(ctx context.Context, sym domain.Symbol) (domain.FundingRate, error)
}

// MarketUpdate is one push update from a streaming venue. Exactly one of
// Ticker or Book is set.
type MarketUpdate struct {
	Ticker *domain.Ticker
	Book   *domain.Book
}

// Streamer is implemented by adapters with a native push feed. The market
// data service polls adapters that do not implement it.
type Streamer interface {
	StreamMarketData(ctx context.Context, symbols []domain.Symbol) (<-chan MarketUpdate, error)
}
