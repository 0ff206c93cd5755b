package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	s3blob "github.com/DecentralizedMoney/matreshka/internal/blob/s3"
	"github.com/DecentralizedMoney/matreshka/internal/bus"
	"github.com/DecentralizedMoney/matreshka/internal/cache/redis"
	"github.com/DecentralizedMoney/matreshka/internal/config"
	"github.com/DecentralizedMoney/matreshka/internal/core"
	"github.com/DecentralizedMoney/matreshka/internal/crypto"
	"github.com/DecentralizedMoney/matreshka/internal/domain"
	"github.com/DecentralizedMoney/matreshka/internal/executor"
	"github.com/DecentralizedMoney/matreshka/internal/marketdata"
	"github.com/DecentralizedMoney/matreshka/internal/metrics"
	"github.com/DecentralizedMoney/matreshka/internal/notify"
	"github.com/DecentralizedMoney/matreshka/internal/perf"
	"github.com/DecentralizedMoney/matreshka/internal/risk"
	"github.com/DecentralizedMoney/matreshka/internal/scanner"
	"github.com/DecentralizedMoney/matreshka/internal/store/postgres"
	"github.com/DecentralizedMoney/matreshka/internal/venue"
	"github.com/DecentralizedMoney/matreshka/internal/venue/demo"
	"github.com/DecentralizedMoney/matreshka/internal/venue/rest"
)

// Dependencies bundles everything the run loop needs. Wire constructs it;
// the returned cleanup tears the external connections down in reverse
// order.
type Dependencies struct {
	Bus         *bus.Bus
	Venues      *venue.Set
	Cache       *marketdata.Cache
	Ingester    *marketdata.Ingester
	Scanner     *scanner.Scanner
	Gate        *risk.Gate
	Coordinator *executor.Coordinator
	Perf        *perf.Tracker
	Prom        *metrics.Prometheus

	Specs []domain.SymbolSpec

	// Persistence, nil unless postgres is enabled.
	Stores    *core.Stores
	Balances  domain.BalanceStore
	PerfStore domain.PerfStore
	Audit     domain.AuditStore

	// Redis mirror and single-instance lock, nil unless redis is enabled.
	Mirror *redis.Mirror
	Lock   *redis.InstanceLock

	// Archiver, nil unless both s3 and postgres are enabled.
	Archiver *s3blob.Archiver

	Notifier *notify.Notifier
}

// Wire constructs every concrete dependency from the configuration.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Bus:  bus.New(logger),
		Prom: metrics.NewPrometheus(),
		Perf: perf.NewTracker(),
	}

	deps.Venues = venue.NewSet(func(id string, h domain.VenueHealth, cause error) {
		kind := domain.EventVenueConnectionRestored
		if h == domain.VenueHealthDown {
			kind = domain.EventVenueConnectionLost
		} else if h != domain.VenueHealthActive {
			return
		}
		ev := domain.VenueConnectionEvent{Venue: id, Health: h}
		if cause != nil {
			ev.Err = cause.Error()
		}
		deps.Bus.Publish(domain.NewEvent(kind, ev))
	})

	if err := mountVenues(cfg, deps, logger); err != nil {
		return fail(err)
	}

	specs, err := symbolSpecs(cfg)
	if err != nil {
		return fail(err)
	}
	deps.Specs = specs

	deps.Cache = marketdata.NewCache(marketdata.CacheConfig{
		StaleAfter:       cfg.MarketData.StaleAfter.Duration,
		PriceAlertPct:    cfg.MarketData.PriceAlertPct,
		VolumeSpikeRatio: cfg.MarketData.VolumeSpikeRatio,
		MaxBookLevels:    cfg.MarketData.MaxBookLevels,
	}, deps.Bus.Publish)

	deps.Ingester = marketdata.NewIngester(marketdata.IngestConfig{
		PollInterval: shortestPollInterval(cfg),
		BookDepth:    cfg.MarketData.MaxBookLevels,
	}, deps.Cache, deps.Venues, specs, logger)

	strategies, err := scanner.StrategiesFromConfig(cfg.Strategies, cfg.Scanner.OpportunityTTL.Duration)
	if err != nil {
		return fail(fmt.Errorf("wire: strategies: %w", err))
	}
	if len(strategies) == 0 {
		return fail(fmt.Errorf("wire: no strategies enabled"))
	}

	view := scanner.NewView(deps.Cache, deps.Venues)
	deps.Scanner = scanner.New(scanner.Config{
		Interval:      cfg.Scanner.Interval.Duration,
		SweepInterval: cfg.Scanner.SweepInterval.Duration,
		MaxActive:     cfg.Scanner.MaxActive,
	}, strategies, view, deps.Bus.Publish, logger)

	breaker := risk.NewBreaker(risk.BreakerConfig{
		Failures:      cfg.Risk.BreakerFailures,
		Window:        cfg.Risk.BreakerWindow.Duration,
		HalfOpenAfter: cfg.Risk.BreakerHalfOpenAfter.Duration,
	})
	deps.Gate = risk.NewGate(risk.Config{
		MinProfitPct:          decimal.NewFromFloat(cfg.Risk.MinProfitPct),
		MaxTotalExposureQuote: decimal.NewFromFloat(cfg.Risk.MaxTotalExposureQuote),
		MaxLossPerDayQuote:    decimal.NewFromFloat(cfg.Risk.MaxLossPerDayQuote),
		MaxPositionAge:        cfg.Risk.MaxPositionAge.Duration,
		BookDepthLevels:       cfg.Risk.BookDepthLevels,
	}, risk.NewPortfolio(), breaker, deps.Cache, deps.Venues, deps.Bus.Publish, logger)

	deps.Coordinator = executor.New(executor.Config{
		MaxConcurrent:      cfg.Executor.MaxConcurrent,
		QueueSize:          cfg.Executor.QueueSize,
		LegTimeout:         cfg.Executor.LegTimeout.Duration,
		PollInterval:       cfg.Executor.PollInterval.Duration,
		EnablePartialFills: cfg.Executor.EnablePartialFills,
		DrainGrace:         cfg.Executor.DrainGrace.Duration,
	}, deps.Venues, deps.Bus.Publish, func(venueID string, err error) {
		if err != nil {
			breaker.RecordFailure(venueID, time.Now())
			return
		}
		breaker.RecordSuccess(venueID)
	}, logger)

	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pg.Pool()
		deps.Stores = &core.Stores{
			Opportunities: postgres.NewOpportunityStore(pool),
			Executions:    postgres.NewExecutionStore(pool),
			Trades:        postgres.NewTradeStore(pool),
			RiskEvents:    postgres.NewRiskEventStore(pool),
			MarketEvents:  postgres.NewMarketEventStore(pool),
		}
		deps.Balances = postgres.NewBalanceStore(pool)
		deps.PerfStore = postgres.NewPerfStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
	}

	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.Mirror = redis.NewMirror(rc)
		deps.Lock = redis.NewInstanceLock(rc)
	}

	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}

		if deps.Stores != nil {
			deps.Archiver = s3blob.NewArchiver(
				s3blob.NewWriter(sc),
				deps.Stores.Opportunities,
				deps.Stores.Executions,
				deps.Stores.Trades,
				deps.Audit,
				logger,
			)
		}
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}

// mountVenues builds one adapter per enabled venue, wraps it in a guard
// and registers it.
func mountVenues(cfg *config.Config, deps *Dependencies, logger *slog.Logger) error {
	for name, vc := range cfg.Venues {
		if !vc.Enabled {
			continue
		}

		adapter, err := buildAdapter(name, vc, cfg.QuoteAsset)
		if err != nil {
			return fmt.Errorf("wire: venue %s: %w", name, err)
		}

		var bucket *venue.TokenBucket
		if vc.RateLimitRPS > 0 {
			bucket = venue.NewTokenBucket(vc.RateLimitRPS, vc.RateLimitBurst)
		}
		hook := func(venueID, op string, err error) {
			if err != nil {
				deps.Prom.Metrics.VenueFailures.Inc()
			}
		}
		deps.Venues.Add(venue.NewGuard(adapter, bucket, venue.GuardConfig{
			Attempts: cfg.Executor.RetryAttempts,
			Budget:   cfg.Executor.RetryBudget.Duration,
		}, hook, logger))
	}
	if len(deps.Venues.IDs()) == 0 {
		return fmt.Errorf("wire: no venues enabled")
	}
	return nil
}

func buildAdapter(name string, vc config.VenueConfig, quoteAsset string) (venue.Adapter, error) {
	fees := domain.FeeSchedule{
		MakerRate:    decimal.NewFromFloat(vc.MakerFeeRate),
		TakerRate:    decimal.NewFromFloat(vc.TakerFeeRate),
		WithdrawFlat: decimalMap(vc.WithdrawFees),
	}
	limits := domain.TradeLimits{
		MinAmount:        decimalMap(vc.MinAmounts),
		MaxAmount:        decimalMap(vc.MaxAmounts),
		MaxPositionQuote: decimal.NewFromFloat(vc.MaxPositionQuote),
	}

	if vc.Kind == "demo" {
		prices := make(map[domain.Symbol]decimal.Decimal, len(vc.StartPrices))
		for pair, p := range vc.StartPrices {
			sym, err := domain.ParseSymbol(pair)
			if err != nil {
				return nil, fmt.Errorf("start price %q: %w", pair, err)
			}
			prices[sym] = decimal.NewFromFloat(p)
		}
		v, err := demo.New(demo.Config{
			ID:            name,
			QuoteAsset:    quoteAsset,
			Fees:          fees,
			Limits:        limits,
			HighRisk:      vc.HighRisk,
			Seed:          vc.Seed,
			StartPrices:   prices,
			SpreadBps:     vc.SpreadBps,
			VolatilityBps: vc.VolatilityBps,
			Balances:      decimalMap(vc.Balances),
			FundingRate:   decimal.NewFromFloat(vc.FundingRate),
			TickInterval:  vc.PollInterval.Duration,
		})
		if err != nil {
			return nil, err
		}
		return v, nil
	}

	rc := rest.Config{
		VenueID:  name,
		Kind:     domain.VenueKind(vc.Kind),
		BaseURL:  vc.BaseURL,
		Fees:     fees,
		Limits:   limits,
		HighRisk: vc.HighRisk,
	}
	if vc.Kind == "dex" {
		key, err := crypto.LoadSecret(crypto.SecretSource{
			Raw:           vc.SigningKey,
			EncryptedPath: vc.EncryptedKeyPath,
			Password:      vc.KeyPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("signing key: %w", err)
		}
		signer, err := crypto.NewSigner(key)
		if err != nil {
			return nil, err
		}
		rc.Signer = signer
	} else if vc.APIKey != "" {
		secret := vc.APISecret
		if vc.EncryptedKeyPath != "" {
			var err error
			secret, err = crypto.LoadSecret(crypto.SecretSource{
				EncryptedPath: vc.EncryptedKeyPath,
				Password:      vc.KeyPassword,
			})
			if err != nil {
				return nil, fmt.Errorf("api secret: %w", err)
			}
		}
		rc.HMAC = &crypto.HMACAuth{Key: vc.APIKey, Secret: secret}
	}
	c, err := rest.New(rc)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func symbolSpecs(cfg *config.Config) ([]domain.SymbolSpec, error) {
	specs := make([]domain.SymbolSpec, 0, len(cfg.Symbols))
	for _, sc := range cfg.Symbols {
		sym, err := domain.ParseSymbol(sc.Pair)
		if err != nil {
			return nil, fmt.Errorf("wire: symbol %q: %w", sc.Pair, err)
		}
		specs = append(specs, domain.SymbolSpec{
			Symbol:          sym,
			AmountPrecision: int32(sc.AmountPrecision),
			PricePrecision:  int32(sc.PricePrecision),
			Venues:          sc.Venues,
		})
	}
	return specs, nil
}

// shortestPollInterval picks the tightest per-venue poll cadence so no
// configured venue is polled slower than asked.
func shortestPollInterval(cfg *config.Config) time.Duration {
	var min time.Duration
	for _, vc := range cfg.Venues {
		if !vc.Enabled || vc.PollInterval.Duration <= 0 {
			continue
		}
		if min == 0 || vc.PollInterval.Duration < min {
			min = vc.PollInterval.Duration
		}
	}
	return min
}

func decimalMap(in map[string]float64) map[string]decimal.Decimal {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = decimal.NewFromFloat(v)
	}
	return out
}
