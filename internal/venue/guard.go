package venue

import (
	"context"
	"log/slog"
	"time"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
)

// ResultHook observes the outcome of every guarded venue call. The health
// tracker and circuit breaker hang off this.
type ResultHook func(venueID, op string, err error)

// GuardConfig tunes the retry policy applied to retryable venue errors.
type GuardConfig struct {
	// Attempts is the total number of tries per call, including the first.
	Attempts int
	// Budget caps the wall time spent on one call across retries.
	Budget time.Duration
	// InitialBackoff is the delay before the first retry; it doubles per
	// attempt. Rate-limited errors use the venue-provided RetryAfter
	// instead when it is longer.
	InitialBackoff time.Duration
}

// Guard wraps an Adapter with the venue's rate budget and the transient
// error retry policy. All engine code reaches venues through a Guard, so
// callers never implement their own retries.
type Guard struct {
	inner  Adapter
	bucket *TokenBucket
	cfg    GuardConfig
	hook   ResultHook
	log    *slog.Logger
}

var _ Adapter = (*Guard)(nil)

// NewGuard mounts an adapter behind a token bucket and retry policy. hook
// may be nil.
func NewGuard(inner Adapter, bucket *TokenBucket, cfg GuardConfig, hook ResultHook, logger *slog.Logger) *Guard {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 5 * time.Second
	}
	return &Guard{
		inner:  inner,
		bucket: bucket,
		cfg:    cfg,
		hook:   hook,
		log:    logger.With(slog.String("component", "venue_guard"), slog.String("venue", inner.Venue().ID)),
	}
}

// Unwrap returns the adapter behind the guard.
func (g *Guard) Unwrap() Adapter { return g.inner }

func (g *Guard) Venue() domain.Venue { return g.inner.Venue() }

func (g *Guard) FetchTicker(ctx context.Context, sym domain.Symbol) (domain.Ticker, error) {
	var out domain.Ticker
	err := g.do(ctx, "fetch_ticker", func(ctx context.Context) error {
		var err error
		out, err = g.inner.FetchTicker(ctx, sym)
		return err
	})
	return out, err
}

func (g *Guard) FetchBook(ctx context.Context, sym domain.Symbol, depth int) (domain.Book, error) {
	var out domain.Book
	err := g.do(ctx, "fetch_book", func(ctx context.Context) error {
		var err error
		out, err = g.inner.FetchBook(ctx, sym, depth)
		return err
	})
	return out, err
}

func (g *Guard) FetchBalances(ctx context.Context) ([]domain.Balance, error) {
	var out []domain.Balance
	err := g.do(ctx, "fetch_balances", func(ctx context.Context) error {
		var err error
		out, err = g.inner.FetchBalances(ctx)
		return err
	})
	return out, err
}

// PlaceOrder retries like any other call. This is safe because adapters
// deduplicate on ClientOrderID, so a retry after an ambiguous network
// failure cannot double-submit.
func (g *Guard) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderState, error) {
	var out domain.OrderState
	err := g.do(ctx, "place_order", func(ctx context.Context) error {
		var err error
		out, err = g.inner.PlaceOrder(ctx, req)
		return err
	})
	return out, err
}

func (g *Guard) CancelOrder(ctx context.Context, externalID string, sym domain.Symbol) error {
	return g.do(ctx, "cancel_order", func(ctx context.Context) error {
		return g.inner.CancelOrder(ctx, externalID, sym)
	})
}

func (g *Guard) FetchOrder(ctx context.Context, externalID string, sym domain.Symbol) (domain.OrderState, error) {
	var out domain.OrderState
	err := g.do(ctx, "fetch_order", func(ctx context.Context) error {
		var err error
		out, err = g.inner.FetchOrder(ctx, externalID, sym)
		return err
	})
	return out, err
}

func (g *Guard) FundingRate(ctx context.Context, sym domain.Symbol) (domain.FundingRate, error) {
	var out domain.FundingRate
	err := g.do(ctx, "funding_rate", func(ctx context.Context) error {
		var err error
		out, err = g.inner.FundingRate(ctx, sym)
		return err
	})
	return out, err
}

// do runs fn under the rate budget, retrying retryable venue errors with
// exponential backoff until the attempt count or time budget runs out.
func (g *Guard) do(ctx context.Context, op string, fn func(context.Context) error) error {
	deadline := time.Now().Add(g.cfg.Budget)
	backoff := g.cfg.InitialBackoff

	var err error
	for attempt := 1; ; attempt++ {
		if g.bucket != nil {
			if werr := g.bucket.Wait(ctx); werr != nil {
				return werr
			}
		}

		err = fn(ctx)
		g.report(op, err)
		if err == nil {
			return nil
		}

		ve, ok := domain.AsVenueError(err)
		if !ok || !ve.Retryable() || attempt >= g.cfg.Attempts {
			return err
		}

		delay := backoff
		if ve.Kind == domain.VenueErrRateLimited && ve.RetryAfter > delay {
			delay = ve.RetryAfter
		}
		backoff *= 2

		if time.Now().Add(delay).After(deadline) {
			return err
		}

		g.log.Debug("retrying venue call",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (g *Guard) report(op string, err error) {
	if g.hook != nil {
		g.hook(g.inner.Venue().ID, op, err)
	}
}
