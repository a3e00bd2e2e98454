// Package config defines the top-level configuration for vaultbot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"

	"github.com/quantrove/vaultbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by VAULTBOT_* environment
// variables.
type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	EventLog  EventLogConfig  `toml:"eventlog"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	DryRun    DryRunConfig    `toml:"dryrun"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// EngineConfig selects the strategy mode and its parameters.
type EngineConfig struct {
	StrategyMode string `toml:"strategy_mode"`

	Venue          string `toml:"venue"`
	SpotVenue      string `toml:"spot_venue"`
	PerpVenue      string `toml:"perp_venue"`
	PrincipalToken string `toml:"principal_token"`
	ReceiptToken   string `toml:"receipt_token"`

	TargetRatio        float64 `toml:"target_ratio"`
	RebalanceThreshold float64 `toml:"rebalance_threshold"`
	DustMin            float64 `toml:"dust_min"`

	// AllowedInstruments is the strategy's instrument allow-list, as raw
	// "venue:class:symbol" strings validated at startup.
	AllowedInstruments []string `toml:"allowed_instruments"`
}

// EventLogConfig holds audit-log parameters.
type EventLogConfig struct {
	Dir string `toml:"dir"`
	// CorrelationID namespaces the run; empty means "generate one".
	CorrelationID string `toml:"correlation_id"`
	QueueSize     int    `toml:"queue_size"`
	Workers       int    `toml:"workers"`
}

// PostgresConfig holds the optional queryable-mirror connection parameters.
type PostgresConfig struct {
	Enabled  bool   `toml:"enabled"`
	DSN      string `toml:"dsn"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"ssl_mode"`
	MaxConns int    `toml:"pool_max_conns"`
	MinConns int    `toml:"pool_min_conns"`
}

// RedisConfig holds the rate-cache connection parameters.
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	PoolSize int    `toml:"pool_size"`
}

// S3Config holds object storage parameters for run archival.
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

// SchedulerConfig drives loop mode.
type SchedulerConfig struct {
	// CronSpec is a robfig/cron expression for the tick cadence.
	CronSpec string `toml:"cron_spec"`
}

// DryRunConfig feeds the static providers used by once mode. Prices and Dust
// are keyed by token symbol; Balances by full instrument key.
type DryRunConfig struct {
	Equity    float64            `toml:"equity"`
	RiskLevel string             `toml:"risk_level"`
	Prices    map[string]float64 `toml:"prices"`
	Dust      map[string]float64 `toml:"dust"`
	Balances  map[string]float64 `toml:"balances"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Mode:     "once",
		LogLevel: "info",
		Engine: EngineConfig{
			StrategyMode:       "pure_lending",
			Venue:              "aave",
			SpotVenue:          "binance",
			PrincipalToken:     "USDC",
			ReceiptToken:       "aUSDC",
			TargetRatio:        0.8,
			RebalanceThreshold: 0.05,
		},
		EventLog: EventLogConfig{
			Dir:       "data/eventlog",
			QueueSize: 1024,
			Workers:   4,
		},
		Postgres: PostgresConfig{
			Port:     5432,
			SSLMode:  "disable",
			MaxConns: 4,
			MinConns: 1,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 8,
		},
		Scheduler: SchedulerConfig{
			CronSpec: "@every 1m",
		},
		DryRun: DryRunConfig{
			RiskLevel: "normal",
		},
	}
}

// Validate checks cross-field invariants. Configuration problems surface
// here, at startup, never during a decision tick.
func (c *Config) Validate() error {
	switch c.Mode {
	case "once", "loop", "replay", "archive":
	default:
		return domain.NewConfigError("config", "unknown mode %q", c.Mode)
	}
	if c.Engine.StrategyMode == "" {
		return domain.NewConfigError("config", "engine.strategy_mode is required")
	}
	if c.EventLog.Dir == "" {
		return domain.NewConfigError("config", "eventlog.dir is required")
	}
	for _, raw := range c.Engine.AllowedInstruments {
		if _, err := domain.ParseInstrumentKey(raw); err != nil {
			return domain.NewConfigError("config", "allowed_instruments: %v", err)
		}
	}
	for raw := range c.DryRun.Balances {
		if _, err := domain.ParseInstrumentKey(raw); err != nil {
			return domain.NewConfigError("config", "dryrun.balances: %v", err)
		}
	}
	if c.Mode == "archive" && !c.S3.Enabled {
		return domain.NewConfigError("config", "archive mode requires s3.enabled")
	}
	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" && c.Postgres.Host == "" {
		return domain.NewConfigError("config", "postgres.enabled requires dsn or host")
	}
	return nil
}

// AllowedKeys returns the parsed instrument allow-list. Call after Validate.
func (c *Config) AllowedKeys() []domain.InstrumentKey {
	keys := make([]domain.InstrumentKey, 0, len(c.Engine.AllowedInstruments))
	for _, raw := range c.Engine.AllowedInstruments {
		keys = append(keys, domain.InstrumentKey(raw))
	}
	return keys
}

// String renders a redacted one-line summary for startup logs.
func (c *Config) String() string {
	return fmt.Sprintf("mode=%s strategy=%s eventlog=%s postgres=%t redis=%t s3=%t",
		c.Mode, c.Engine.StrategyMode, c.EventLog.Dir,
		c.Postgres.Enabled, c.Redis.Enabled, c.S3.Enabled,
	)
}
