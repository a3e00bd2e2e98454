package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	s3blob "github.com/quantrove/vaultbot/internal/blob/s3"
	"github.com/quantrove/vaultbot/internal/config"
	"github.com/quantrove/vaultbot/internal/deltas"
	"github.com/quantrove/vaultbot/internal/domain"
	"github.com/quantrove/vaultbot/internal/engine"
	"github.com/quantrove/vaultbot/internal/eventlog"
	"github.com/quantrove/vaultbot/internal/providers"
	"github.com/quantrove/vaultbot/internal/rates"
	"github.com/quantrove/vaultbot/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Log is the append-only audit log for this run. Nil for modes that
	// only read past runs (replay, archive).
	Log *eventlog.Log

	// Rates converts receipt and staking tokens to their underlying.
	Rates domain.RateProvider
	Calc  *deltas.Calculator

	// Providers feed the engine's per-tick snapshots.
	Providers engine.Providers

	// Stores are the optional queryable mirrors; zero when Postgres is off.
	Stores engine.Stores

	// Archiver uploads completed run directories. Nil when S3 is off.
	Archiver domain.RunArchiver
}

// needsEventLog returns true for modes that produce a new run.
func needsEventLog(mode string) bool {
	switch mode {
	case "once", "loop":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Event log (only for modes that produce a run) ---
	if needsEventLog(cfg.Mode) {
		correlationID := cfg.EventLog.CorrelationID
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		log, err := eventlog.New(eventlog.Config{
			Dir:           cfg.EventLog.Dir,
			CorrelationID: correlationID,
			PID:           os.Getpid(),
			QueueSize:     cfg.EventLog.QueueSize,
			Workers:       cfg.EventLog.Workers,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: eventlog: %w", err)
		}
		closers = append(closers, func() { _ = log.Close() })
		deps.Log = log
	}

	// --- Rate provider: Redis cache when enabled, static otherwise ---
	if cfg.Redis.Enabled {
		cache, err := rates.NewRedisCache(ctx, rates.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = cache.Close() })
		deps.Rates = cache
	} else {
		deps.Rates = &rates.Static{}
	}

	// Rate fallbacks are an auditable condition, not just a log line.
	onFallback := func(op domain.Operation, asset string, err error) {
		if deps.Log == nil {
			return
		}
		_, _ = deps.Log.LogAsync(domain.NewEvent(domain.EventRateFallback, nowUTC(), map[string]any{
			"operation": op.String(),
			"asset":     asset,
			"error":     err.Error(),
		}))
	}
	deps.Calc = deltas.New(deps.Rates, onFallback, logger)

	// --- Snapshot providers ---
	// The engine reads through domain interfaces; this build ships the fixed
	// in-memory provider fed from [dryrun]. Live adapters slot in here.
	deps.Providers = dryRunProviders(cfg)

	// --- PostgreSQL mirrors ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.MaxConns,
			MinConns: cfg.Postgres.MinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if err := pgClient.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres schema: %w", err)
		}

		pool := pgClient.Pool()
		deps.Stores = engine.Stores{
			Decisions: postgres.NewDecisionStore(pool),
			Orders:    postgres.NewOrderStore(pool),
		}
	}

	// --- S3 run archival ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client))
	}

	return deps, cleanup, nil
}

// dryRunProviders builds the fixed snapshot providers from the [dryrun]
// configuration section.
func dryRunProviders(cfg *config.Config) engine.Providers {
	balances := make(map[domain.InstrumentKey]float64, len(cfg.DryRun.Balances))
	for raw, amount := range cfg.DryRun.Balances {
		balances[domain.InstrumentKey(raw)] = amount
	}

	static := &providers.Static{
		Market: domain.MarketSnapshot{
			Prices: cfg.DryRun.Prices,
		},
		Exposure: domain.ExposureSnapshot{
			CurrentEquity: cfg.DryRun.Equity,
			DustTokens:    cfg.DryRun.Dust,
		},
		Risk: domain.RiskSnapshot{
			RiskLevel: cfg.DryRun.RiskLevel,
		},
		Positions: domain.PositionSnapshot{
			Balances: balances,
		},
	}
	return engine.Providers{
		Market:    static,
		Exposure:  static,
		Risk:      static,
		Positions: static,
	}
}
