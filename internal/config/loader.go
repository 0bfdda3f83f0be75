package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VENUE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known VENUE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setFloat64(&cfg.Market.CreatorFeeRate, "VENUE_MARKET_CREATOR_FEE_RATE")
	setFloat64(&cfg.Market.MinAnte, "VENUE_MARKET_MIN_ANTE")
	setInt(&cfg.Market.MaxAnswers, "VENUE_MARKET_MAX_ANSWERS")
	setFloat64(&cfg.Market.MaxFillProbability, "VENUE_MARKET_MAX_FILL_PROBABILITY")
	setDuration(&cfg.Market.TradeLockTTL, "VENUE_MARKET_TRADE_LOCK_TTL")

	// ── Ranking ──
	setBool(&cfg.Ranking.RequirePublic, "VENUE_RANKING_REQUIRE_PUBLIC")
	setBool(&cfg.Ranking.RequireRanked, "VENUE_RANKING_REQUIRE_RANKED")
	setStringSlice(&cfg.Ranking.ExcludedIDs, "VENUE_RANKING_EXCLUDED_IDS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "VENUE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "VENUE_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "VENUE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VENUE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VENUE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VENUE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VENUE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "VENUE_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "VENUE_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "VENUE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "VENUE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "VENUE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "VENUE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VENUE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VENUE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VENUE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VENUE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VENUE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "VENUE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VENUE_S3_REGION")
	setStr(&cfg.S3.Bucket, "VENUE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VENUE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VENUE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "VENUE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "VENUE_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "VENUE_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "VENUE_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "VENUE_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "VENUE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "VENUE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "VENUE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "VENUE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMinute, "VENUE_SERVER_RATE_LIMIT_PER_MINUTE")

	// ── Top-level ──
	setStr(&cfg.Mode, "VENUE_MODE")
	setStr(&cfg.LogLevel, "VENUE_LOG_LEVEL")
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

func setDuration(dst *duration, key string) {
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
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
