package marketdata

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DecentralizedMoney/matreshka/internal/domain"
	"github.com/DecentralizedMoney/matreshka/internal/venue"
)

// IngestConfig tunes the per-venue ingest loops.
type IngestConfig struct {
	// PollInterval is the fetch cadence for venues without a push feed.
	PollInterval time.Duration
	// BookDepth is the depth requested per book fetch.
	BookDepth int
	// FundingInterval is the cadence of funding rate refreshes on
	// perpetual venues.
	FundingInterval time.Duration
	// DegradedAfter consecutive failures mark the venue degraded;
	// 2x that marks it down.
	DegradedAfter int
}

func (c *IngestConfig) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BookDepth <= 0 {
		c.BookDepth = 20
	}
	if c.FundingInterval <= 0 {
		c.FundingInterval = time.Minute
	}
	if c.DegradedAfter <= 0 {
		c.DegradedAfter = 3
	}
}

// Ingester runs one market data loop per (venue, symbol), pushing snapshots
// into the cache. Streaming adapters are consumed directly; the rest are
// polled. Consecutive fetch failures degrade the venue's health in the
// registry, which surfaces as venueConnectionLost events.
type Ingester struct {
	cfg     IngestConfig
	cache   *Cache
	venues  *venue.Set
	symbols map[string][]domain.Symbol // venue ID -> symbols enabled there
	logger  *slog.Logger
}

// NewIngester creates an ingester covering the given symbol specs. Each spec
// restricts the venues a symbol is ingested on.
func NewIngester(cfg IngestConfig, cache *Cache, venues *venue.Set, specs []domain.SymbolSpec, logger *slog.Logger) *Ingester {
	cfg.setDefaults()
	symbols := make(map[string][]domain.Symbol)
	for _, id := range venues.IDs() {
		for _, sp := range specs {
			if sp.EnabledOn(id) {
				symbols[id] = append(symbols[id], sp.Symbol)
			}
		}
	}
	return &Ingester{
		cfg:     cfg,
		cache:   cache,
		venues:  venues,
		symbols: symbols,
		logger:  logger.With(slog.String("component", "marketdata_ingest")),
	}
}

// Run starts every venue loop and blocks until ctx is cancelled.
func (in *Ingester) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range in.venues.IDs() {
		syms := in.symbols[id]
		if len(syms) == 0 {
			continue
		}
		adapter, _ := in.venues.Get(id)
		g.Go(func() error {
			return in.runVenue(ctx, adapter, syms)
		})
		if adapter.Venue().Kind == domain.VenueKindPerpetual {
			g.Go(func() error {
				return in.runFunding(ctx, adapter, syms)
			})
		}
	}
	return g.Wait()
}

func (in *Ingester) runVenue(ctx context.Context, a venue.Adapter, syms []domain.Symbol) error {
	id := a.Venue().ID
	log := in.logger.With(slog.String("venue", id))

	if streamer, ok := streamerOf(a); ok {
		updates, err := streamer.StreamMarketData(ctx, syms)
		if err == nil {
			log.InfoContext(ctx, "consuming push feed", slog.Int("symbols", len(syms)))
			return in.consumeStream(ctx, id, updates, log)
		}
		log.WarnContext(ctx, "push feed unavailable, falling back to polling",
			slog.String("error", err.Error()))
	}

	log.InfoContext(ctx, "polling market data",
		slog.Int("symbols", len(syms)),
		slog.Duration("interval", in.cfg.PollInterval),
	)

	ticker := time.NewTicker(in.cfg.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		ok := true
		for _, sym := range syms {
			if err := in.pollPair(ctx, a, sym); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				ok = false
				log.WarnContext(ctx, "market data fetch failed",
					slog.String("symbol", sym.String()),
					slog.String("error", err.Error()),
				)
			}
		}
		failures = in.trackHealth(id, ok, failures)
	}
}

// streamerOf unwraps guards to find a push-capable adapter underneath.
func streamerOf(a venue.Adapter) (venue.Streamer, bool) {
	for {
		if s, ok := a.(venue.Streamer); ok {
			return s, true
		}
		type unwrapper interface{ Unwrap() venue.Adapter }
		u, ok := a.(unwrapper)
		if !ok {
			return nil, false
		}
		a = u.Unwrap()
	}
}

func (in *Ingester) consumeStream(ctx context.Context, venueID string, updates <-chan venue.MarketUpdate, log *slog.Logger) error {
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				in.venues.SetHealth(venueID, domain.VenueHealthDown, errors.New("market data stream closed"))
				return nil
			}
			var err error
			switch {
			case up.Ticker != nil:
				err = in.cache.PutTicker(*up.Ticker)
			case up.Book != nil:
				err = in.cache.PutBook(*up.Book)
			}
			if err != nil && !errors.Is(err, domain.ErrStaleData) {
				log.WarnContext(ctx, "discarding bad stream update", slog.String("error", err.Error()))
				failures = in.trackHealth(venueID, false, failures)
				continue
			}
			failures = in.trackHealth(venueID, true, failures)
		}
	}
}

func (in *Ingester) pollPair(ctx context.Context, a venue.Adapter, sym domain.Symbol) error {
	t, err := a.FetchTicker(ctx, sym)
	if err != nil {
		return err
	}
	if err := in.cache.PutTicker(t); err != nil && !errors.Is(err, domain.ErrStaleData) {
		return err
	}

	b, err := a.FetchBook(ctx, sym, in.cfg.BookDepth)
	if err != nil {
		return err
	}
	if err := in.cache.PutBook(b); err != nil && !errors.Is(err, domain.ErrStaleData) {
		return err
	}
	return nil
}

func (in *Ingester) runFunding(ctx context.Context, a venue.Adapter, syms []domain.Symbol) error {
	id := a.Venue().ID
	log := in.logger.With(slog.String("venue", id))

	ticker := time.NewTicker(in.cfg.FundingInterval)
	defer ticker.Stop()

	fetch := func() {
		for _, sym := range syms {
			f, err := a.FundingRate(ctx, sym)
			if err != nil {
				if !errors.Is(err, domain.ErrNotSupported) && ctx.Err() == nil {
					log.WarnContext(ctx, "funding rate fetch failed",
						slog.String("symbol", sym.String()),
						slog.String("error", err.Error()),
					)
				}
				continue
			}
			if err := in.cache.PutFunding(f); err != nil {
				log.WarnContext(ctx, "discarding bad funding rate", slog.String("error", err.Error()))
			}
		}
	}

	fetch()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fetch()
		}
	}
}

// trackHealth folds one round's outcome into the venue health state machine
// and returns the updated consecutive-failure count.
func (in *Ingester) trackHealth(venueID string, ok bool, failures int) int {
	if ok {
		in.venues.SetHealth(venueID, domain.VenueHealthActive, nil)
		return 0
	}
	failures++
	switch {
	case failures >= 2*in.cfg.DegradedAfter:
		in.venues.SetHealth(venueID, domain.VenueHealthDown, errors.New("repeated market data failures"))
	case failures >= in.cfg.DegradedAfter:
		in.venues.SetHealth(venueID, domain.VenueHealthDegraded, errors.New("market data failures"))
	}
	return failures
}
