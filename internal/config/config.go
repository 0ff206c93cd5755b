// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MATRESHKA_* environment
// variables.
type Config struct {
	Mode       string `toml:"mode"`
	LogLevel   string `toml:"log_level"`
	QuoteAsset string `toml:"quote_asset"`

	Venues  map[string]VenueConfig `toml:"venues"`
	Symbols []SymbolConfig         `toml:"symbols"`

	MarketData MarketDataConfig `toml:"marketdata"`
	Scanner    ScannerConfig    `toml:"scanner"`
	Strategies StrategiesConfig `toml:"strategies"`
	Risk       RiskConfig       `toml:"risk"`
	Executor   ExecutorConfig   `toml:"executor"`
	Core       CoreConfig       `toml:"core"`

	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
}

// VenueConfig describes one trading venue: identity, credentials, fees,
// limits, rate budget and (for demo venues) simulation parameters. Fee
// rates are fractions, e.g. 0.001 for 10 bps.
type VenueConfig struct {
	Kind    string `toml:"kind"`
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url"`

	APIKey           string `toml:"api_key"`
	APISecret        string `toml:"api_secret"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	SigningKey       string `toml:"signing_key"`

	MakerFeeRate float64            `toml:"maker_fee_rate"`
	TakerFeeRate float64            `toml:"taker_fee_rate"`
	WithdrawFees map[string]float64 `toml:"withdraw_fees"`

	MinAmounts       map[string]float64 `toml:"min_amounts"`
	MaxAmounts       map[string]float64 `toml:"max_amounts"`
	MaxPositionQuote float64            `toml:"max_position_quote"`
	HighRisk         bool               `toml:"high_risk"`

	RateLimitRPS   float64  `toml:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst"`
	PollInterval   Duration `toml:"poll_interval"`
	BookDepth      int      `toml:"book_depth"`

	// Demo venue simulation parameters.
	Seed          int64              `toml:"seed"`
	StartPrices   map[string]float64 `toml:"start_prices"`
	SpreadBps     float64            `toml:"spread_bps"`
	VolatilityBps float64            `toml:"volatility_bps"`
	Balances      map[string]float64 `toml:"balances"`
	FundingRate   float64            `toml:"funding_rate"`
}

// SymbolConfig enables a trading pair and sets its rounding precisions.
type SymbolConfig struct {
	Pair            string   `toml:"pair"`
	AmountPrecision int      `toml:"amount_precision"`
	PricePrecision  int      `toml:"price_precision"`
	Venues          []string `toml:"venues"`
}

// MarketDataConfig tunes the in-memory market data cache.
type MarketDataConfig struct {
	StaleAfter       Duration `toml:"stale_after"`
	PriceAlertPct    float64  `toml:"price_alert_pct"`
	VolumeSpikeRatio float64  `toml:"volume_spike_ratio"`
	MaxBookLevels    int      `toml:"max_book_levels"`
}

// ScannerConfig tunes the opportunity scanner.
type ScannerConfig struct {
	Interval       Duration `toml:"interval"`
	SweepInterval  Duration `toml:"sweep_interval"`
	MaxActive      int      `toml:"max_active"`
	OpportunityTTL Duration `toml:"opportunity_ttl"`
}

// StrategiesConfig holds the per-kind strategy instances. Each kind has its
// own strongly typed parameter block; unknown keys are rejected at load.
type StrategiesConfig struct {
	Simple     []SimpleStrategyConfig     `toml:"simple"`
	Triangular []TriangularStrategyConfig `toml:"triangular"`
	Basis      []BasisStrategyConfig      `toml:"basis"`
}

// SimpleStrategyConfig configures one cross-venue spread strategy instance.
type SimpleStrategyConfig struct {
	Name             string   `toml:"name"`
	Enabled          bool     `toml:"enabled"`
	Symbols          []string `toml:"symbols"`
	Venues           []string `toml:"venues"`
	MinProfitPct     float64  `toml:"min_profit_pct"`
	MaxPositionQuote float64  `toml:"max_position_quote"`
	LegTimeout       Duration `toml:"leg_timeout"`
}

// TriangularStrategyConfig configures one single-venue cycle strategy
// instance. Each cycle lists three assets starting and ending in the first,
// e.g. ["USDT", "BTC", "ETH"].
type TriangularStrategyConfig struct {
	Name             string     `toml:"name"`
	Enabled          bool       `toml:"enabled"`
	Venue            string     `toml:"venue"`
	Cycles           [][]string `toml:"cycles"`
	MinProfitPct     float64    `toml:"min_profit_pct"`
	MaxPositionQuote float64    `toml:"max_position_quote"`
	LegTimeout       Duration   `toml:"leg_timeout"`
}

// BasisStrategyConfig configures one funding-capture strategy instance
// pairing a spot venue against a perpetual venue.
type BasisStrategyConfig struct {
	Name             string   `toml:"name"`
	Enabled          bool     `toml:"enabled"`
	SpotVenue        string   `toml:"spot_venue"`
	PerpVenue        string   `toml:"perp_venue"`
	Symbols          []string `toml:"symbols"`
	MinAnnualizedPct float64  `toml:"min_annualized_pct"`
	MaxPositionQuote float64  `toml:"max_position_quote"`
	LegTimeout       Duration `toml:"leg_timeout"`
}

// RiskConfig holds the limits enforced by the risk gate.
type RiskConfig struct {
	MinProfitPct          float64  `toml:"min_profit_pct"`
	MaxTotalExposureQuote float64  `toml:"max_total_exposure_quote"`
	MaxLossPerDayQuote    float64  `toml:"max_loss_per_day_quote"`
	MaxPositionAge        Duration `toml:"max_position_age"`
	BookDepthLevels       int      `toml:"book_depth_levels"`
	CooldownAfterBreach   Duration `toml:"cooldown_after_breach"`
	BreakerFailures       int      `toml:"breaker_failures"`
	BreakerWindow         Duration `toml:"breaker_window"`
	BreakerHalfOpenAfter  Duration `toml:"breaker_half_open_after"`
}

// ExecutorConfig tunes the execution coordinator.
type ExecutorConfig struct {
	MaxConcurrent      int      `toml:"max_concurrent"`
	QueueSize          int      `toml:"queue_size"`
	LegTimeout         Duration `toml:"leg_timeout"`
	PollInterval       Duration `toml:"poll_interval"`
	EnablePartialFills bool     `toml:"enable_partial_fills"`
	RetryAttempts      int      `toml:"retry_attempts"`
	RetryBudget        Duration `toml:"retry_budget"`
	DrainGrace         Duration `toml:"drain_grace"`
}

// CoreConfig tunes the supervisor.
type CoreConfig struct {
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
	ReconcileInterval Duration `toml:"reconcile_interval"`
}

// PostgresConfig holds PostgreSQL connection parameters. DSN, when set,
// wins over the individual fields.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the outward event
// mirror.
type RedisConfig struct {
	Enabled       bool   `toml:"enabled"`
	Addr          string `toml:"addr"`
	Password      string `toml:"password"`
	DB            int    `toml:"db"`
	PoolSize      int    `toml:"pool_size"`
	MaxRetries    int    `toml:"max_retries"`
	TLSEnabled    bool   `toml:"tls_enabled"`
	EventStream   string `toml:"event_stream"`
	MirrorTickers bool   `toml:"mirror_tickers"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls cold-storage archival of old rows.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      Duration `toml:"interval"`
}

// ServerConfig holds the dashboard HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	APIToken    string   `toml:"api_token"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification sink credentials and the event filter.
// An empty Events list notifies on every event kind the sinks support.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Duration wraps time.Duration so the TOML decoder can parse strings like
// "5s" or "10m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

var validModes = map[string]bool{
	"monitor": true,
	"execute": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validVenueKinds = map[string]bool{
	"spot":      true,
	"perpetual": true,
	"dex":       true,
	"demo":      true,
}

// Defaults returns the built-in configuration. Values follow conservative
// production settings; demo venues still need explicit [venues.*] blocks.
func Defaults() Config {
	return Config{
		Mode:       "monitor",
		LogLevel:   "info",
		QuoteAsset: "USDT",
		MarketData: MarketDataConfig{
			StaleAfter:       Duration{10 * time.Second},
			PriceAlertPct:    1.0,
			VolumeSpikeRatio: 2.0,
			MaxBookLevels:    20,
		},
		Scanner: ScannerConfig{
			Interval:       Duration{time.Second},
			SweepInterval:  Duration{5 * time.Second},
			MaxActive:      50,
			OpportunityTTL: Duration{30 * time.Second},
		},
		Risk: RiskConfig{
			MinProfitPct:          0.1,
			MaxTotalExposureQuote: 10000,
			MaxLossPerDayQuote:    500,
			MaxPositionAge:        Duration{24 * time.Hour},
			BookDepthLevels:       5,
			CooldownAfterBreach:   Duration{60 * time.Second},
			BreakerFailures:       5,
			BreakerWindow:         Duration{5 * time.Minute},
			BreakerHalfOpenAfter:  Duration{10 * time.Minute},
		},
		Executor: ExecutorConfig{
			MaxConcurrent:      4,
			QueueSize:          16,
			LegTimeout:         Duration{5 * time.Second},
			PollInterval:       Duration{200 * time.Millisecond},
			EnablePartialFills: true,
			RetryAttempts:      3,
			RetryBudget:        Duration{5 * time.Second},
			DrainGrace:         Duration{30 * time.Second},
		},
		Core: CoreConfig{
			HeartbeatInterval: Duration{30 * time.Second},
			ReconcileInterval: Duration{5 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "matreshka",
			User:          "matreshka",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PoolSize:    20,
			MaxRetries:  3,
			EventStream: "matreshka:events",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "matreshka-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 30,
			Interval:      Duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
		},
	}
}

// Validate checks the configuration for internal consistency and returns a
// single error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, execute)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if c.QuoteAsset == "" {
		errs = append(errs, "quote_asset must not be empty")
	}

	enabledVenues := map[string]bool{}
	for name, vc := range c.Venues {
		if !validVenueKinds[vc.Kind] {
			errs = append(errs, fmt.Sprintf("venues.%s: unknown kind %q (valid: spot, perpetual, dex, demo)", name, vc.Kind))
		}
		if vc.Enabled {
			enabledVenues[name] = true
		}
		if vc.Kind == "dex" && vc.Enabled && vc.SigningKey == "" && vc.EncryptedKeyPath == "" {
			errs = append(errs, fmt.Sprintf("venues.%s: dex venues need signing_key or encrypted_key_path", name))
		}
		if vc.EncryptedKeyPath != "" && vc.KeyPassword == "" {
			errs = append(errs, fmt.Sprintf("venues.%s: key_password is required when encrypted_key_path is set", name))
		}
		if vc.TakerFeeRate < 0 || vc.MakerFeeRate < 0 {
			errs = append(errs, fmt.Sprintf("venues.%s: fee rates must not be negative", name))
		}
		if vc.RateLimitRPS < 0 {
			errs = append(errs, fmt.Sprintf("venues.%s: rate_limit_rps must not be negative", name))
		}
	}

	for i, sc := range c.Symbols {
		if !strings.Contains(sc.Pair, "/") {
			errs = append(errs, fmt.Sprintf("symbols[%d]: pair %q must be BASE/QUOTE", i, sc.Pair))
		}
		for _, v := range sc.Venues {
			if _, ok := c.Venues[v]; !ok {
				errs = append(errs, fmt.Sprintf("symbols[%d]: unknown venue %q", i, v))
			}
		}
	}

	if c.MarketData.StaleAfter.Duration <= 0 {
		errs = append(errs, "marketdata: stale_after must be positive")
	}
	if c.MarketData.PriceAlertPct <= 0 {
		errs = append(errs, "marketdata: price_alert_pct must be positive")
	}
	if c.MarketData.VolumeSpikeRatio <= 1 {
		errs = append(errs, "marketdata: volume_spike_ratio must exceed 1")
	}

	if c.Scanner.Interval.Duration <= 0 {
		errs = append(errs, "scanner: interval must be positive")
	}
	if c.Scanner.MaxActive <= 0 {
		errs = append(errs, "scanner: max_active must be positive")
	}
	if c.Scanner.OpportunityTTL.Duration <= 0 {
		errs = append(errs, "scanner: opportunity_ttl must be positive")
	}

	errs = append(errs, c.Strategies.validate(enabledVenues)...)

	if c.Risk.MinProfitPct < 0 {
		errs = append(errs, "risk: min_profit_pct must not be negative")
	}
	if c.Risk.MaxTotalExposureQuote <= 0 {
		errs = append(errs, "risk: max_total_exposure_quote must be positive")
	}
	if c.Risk.MaxLossPerDayQuote <= 0 {
		errs = append(errs, "risk: max_loss_per_day_quote must be positive")
	}
	if c.Risk.BookDepthLevels <= 0 {
		errs = append(errs, "risk: book_depth_levels must be positive")
	}

	if c.Executor.MaxConcurrent <= 0 {
		errs = append(errs, "executor: max_concurrent must be positive")
	}
	if c.Executor.QueueSize <= 0 {
		errs = append(errs, "executor: queue_size must be positive")
	}
	if c.Executor.LegTimeout.Duration <= 0 {
		errs = append(errs, "executor: leg_timeout must be positive")
	}

	if c.Postgres.Enabled && c.Postgres.DSN == "" && c.Postgres.Host == "" {
		errs = append(errs, "postgres: dsn or host must be set when enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must be set when enabled")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must be set when enabled")
	}
	if c.Archive.Enabled && !c.S3.Enabled {
		errs = append(errs, "archive: requires s3 to be enabled")
	}
	if c.Archive.Enabled && c.Archive.RetentionDays <= 0 {
		errs = append(errs, "archive: retention_days must be positive")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: invalid port %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (s *StrategiesConfig) validate(enabledVenues map[string]bool) []string {
	var errs []string

	venueKnown := func(ctx, v string) {
		if !enabledVenues[v] {
			errs = append(errs, fmt.Sprintf("%s: venue %q is not an enabled venue", ctx, v))
		}
	}

	for i, sc := range s.Simple {
		ctx := fmt.Sprintf("strategies.simple[%d]", i)
		if !sc.Enabled {
			continue
		}
		if len(sc.Symbols) == 0 {
			errs = append(errs, ctx+": symbols must not be empty")
		}
		if len(sc.Venues) < 2 {
			errs = append(errs, ctx+": needs at least two venues")
		}
		for _, v := range sc.Venues {
			venueKnown(ctx, v)
		}
		if sc.MaxPositionQuote <= 0 {
			errs = append(errs, ctx+": max_position_quote must be positive")
		}
	}

	for i, tc := range s.Triangular {
		ctx := fmt.Sprintf("strategies.triangular[%d]", i)
		if !tc.Enabled {
			continue
		}
		venueKnown(ctx, tc.Venue)
		if len(tc.Cycles) == 0 {
			errs = append(errs, ctx+": cycles must not be empty")
		}
		for j, cy := range tc.Cycles {
			if len(cy) != 3 {
				errs = append(errs, fmt.Sprintf("%s.cycles[%d]: a cycle lists exactly three assets", ctx, j))
			}
		}
		if tc.MaxPositionQuote <= 0 {
			errs = append(errs, ctx+": max_position_quote must be positive")
		}
	}

	for i, bc := range s.Basis {
		ctx := fmt.Sprintf("strategies.basis[%d]", i)
		if !bc.Enabled {
			continue
		}
		venueKnown(ctx, bc.SpotVenue)
		venueKnown(ctx, bc.PerpVenue)
		if bc.SpotVenue == bc.PerpVenue {
			errs = append(errs, ctx+": spot_venue and perp_venue must differ")
		}
		if len(bc.Symbols) == 0 {
			errs = append(errs, ctx+": symbols must not be empty")
		}
		if bc.MaxPositionQuote <= 0 {
			errs = append(errs, ctx+": max_position_quote must be positive")
		}
	}

	return errs
}

// EnabledStrategyCount returns how many strategy instances are enabled.
func (s *StrategiesConfig) EnabledStrategyCount() int {
	n := 0
	for _, sc := range s.Simple {
		if sc.Enabled {
			n++
		}
	}
	for _, tc := range s.Triangular {
		if tc.Enabled {
			n++
		}
	}
	for _, bc := range s.Basis {
		if bc.Enabled {
			n++
		}
	}
	return n
}
