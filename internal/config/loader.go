package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MATRESHKA_* environment variable overrides,
// and returns the final Config. Keys the decoder cannot map to a field are
// rejected outright so a typo in a strategy parameter fails at startup
// instead of silently running with defaults. The returned Config has NOT
// been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys: %s", strings.Join(keys, ", "))
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MATRESHKA_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Mode, "MATRESHKA_MODE")
	setStr(&cfg.LogLevel, "MATRESHKA_LOG_LEVEL")
	setStr(&cfg.QuoteAsset, "MATRESHKA_QUOTE_ASSET")

	// ── Venues ──
	// Credentials per venue: MATRESHKA_VENUE_<NAME>_API_KEY and friends,
	// where <NAME> is the venue table key upper-cased with '-' mapped to
	// '_'.
	for name, vc := range cfg.Venues {
		prefix := "MATRESHKA_VENUE_" + envKey(name) + "_"
		setStr(&vc.BaseURL, prefix+"BASE_URL")
		setStr(&vc.APIKey, prefix+"API_KEY")
		setStr(&vc.APISecret, prefix+"API_SECRET")
		setStr(&vc.EncryptedKeyPath, prefix+"ENCRYPTED_KEY_PATH")
		setStr(&vc.KeyPassword, prefix+"KEY_PASSWORD")
		setStr(&vc.SigningKey, prefix+"SIGNING_KEY")
		setBool(&vc.Enabled, prefix+"ENABLED")
		cfg.Venues[name] = vc
	}

	// ── Risk ──
	setFloat64(&cfg.Risk.MinProfitPct, "MATRESHKA_RISK_MIN_PROFIT_PCT")
	setFloat64(&cfg.Risk.MaxTotalExposureQuote, "MATRESHKA_RISK_MAX_TOTAL_EXPOSURE_QUOTE")
	setFloat64(&cfg.Risk.MaxLossPerDayQuote, "MATRESHKA_RISK_MAX_LOSS_PER_DAY_QUOTE")
	setDuration(&cfg.Risk.CooldownAfterBreach, "MATRESHKA_RISK_COOLDOWN_AFTER_BREACH")

	// ── Executor ──
	setInt(&cfg.Executor.MaxConcurrent, "MATRESHKA_EXECUTOR_MAX_CONCURRENT")
	setInt(&cfg.Executor.QueueSize, "MATRESHKA_EXECUTOR_QUEUE_SIZE")
	setDuration(&cfg.Executor.LegTimeout, "MATRESHKA_EXECUTOR_LEG_TIMEOUT")
	setBool(&cfg.Executor.EnablePartialFills, "MATRESHKA_EXECUTOR_ENABLE_PARTIAL_FILLS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "MATRESHKA_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "MATRESHKA_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MATRESHKA_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MATRESHKA_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MATRESHKA_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MATRESHKA_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MATRESHKA_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MATRESHKA_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MATRESHKA_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MATRESHKA_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MATRESHKA_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MATRESHKA_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MATRESHKA_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MATRESHKA_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MATRESHKA_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MATRESHKA_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MATRESHKA_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MATRESHKA_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.EventStream, "MATRESHKA_REDIS_EVENT_STREAM")
	setBool(&cfg.Redis.MirrorTickers, "MATRESHKA_REDIS_MIRROR_TICKERS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MATRESHKA_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MATRESHKA_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MATRESHKA_S3_REGION")
	setStr(&cfg.S3.Bucket, "MATRESHKA_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MATRESHKA_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MATRESHKA_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MATRESHKA_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MATRESHKA_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MATRESHKA_SERVER_ENABLED")
	setStr(&cfg.Server.Host, "MATRESHKA_SERVER_HOST")
	setInt(&cfg.Server.Port, "MATRESHKA_SERVER_PORT")
	setStr(&cfg.Server.APIToken, "MATRESHKA_SERVER_API_TOKEN")
	setStringSlice(&cfg.Server.CORSOrigins, "MATRESHKA_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MATRESHKA_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MATRESHKA_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MATRESHKA_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MATRESHKA_NOTIFY_EVENTS")
}

// envKey converts a venue table key to its environment variable fragment.
func envKey(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
