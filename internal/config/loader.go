package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VAULTBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known VAULTBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStr(&cfg.Engine.StrategyMode, "VAULTBOT_ENGINE_STRATEGY_MODE")
	setStr(&cfg.Engine.Venue, "VAULTBOT_ENGINE_VENUE")
	setStr(&cfg.Engine.SpotVenue, "VAULTBOT_ENGINE_SPOT_VENUE")
	setStr(&cfg.Engine.PerpVenue, "VAULTBOT_ENGINE_PERP_VENUE")
	setStr(&cfg.Engine.PrincipalToken, "VAULTBOT_ENGINE_PRINCIPAL_TOKEN")
	setStr(&cfg.Engine.ReceiptToken, "VAULTBOT_ENGINE_RECEIPT_TOKEN")
	setFloat64(&cfg.Engine.TargetRatio, "VAULTBOT_ENGINE_TARGET_RATIO")
	setFloat64(&cfg.Engine.RebalanceThreshold, "VAULTBOT_ENGINE_REBALANCE_THRESHOLD")
	setFloat64(&cfg.Engine.DustMin, "VAULTBOT_ENGINE_DUST_MIN")
	setStringSlice(&cfg.Engine.AllowedInstruments, "VAULTBOT_ENGINE_ALLOWED_INSTRUMENTS")

	// ── Event log ──
	setStr(&cfg.EventLog.Dir, "VAULTBOT_EVENTLOG_DIR")
	setStr(&cfg.EventLog.CorrelationID, "VAULTBOT_EVENTLOG_CORRELATION_ID")
	setInt(&cfg.EventLog.QueueSize, "VAULTBOT_EVENTLOG_QUEUE_SIZE")
	setInt(&cfg.EventLog.Workers, "VAULTBOT_EVENTLOG_WORKERS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "VAULTBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "VAULTBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "VAULTBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VAULTBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VAULTBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VAULTBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VAULTBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "VAULTBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.MaxConns, "VAULTBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.MinConns, "VAULTBOT_POSTGRES_POOL_MIN_CONNS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "VAULTBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "VAULTBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VAULTBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VAULTBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VAULTBOT_REDIS_POOL_SIZE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "VAULTBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "VAULTBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VAULTBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "VAULTBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VAULTBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VAULTBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "VAULTBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "VAULTBOT_S3_FORCE_PATH_STYLE")

	// ── Scheduler ──
	setStr(&cfg.Scheduler.CronSpec, "VAULTBOT_SCHEDULER_CRON_SPEC")

	// ── Top-level ──
	setStr(&cfg.Mode, "VAULTBOT_MODE")
	setStr(&cfg.LogLevel, "VAULTBOT_LOG_LEVEL")
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
