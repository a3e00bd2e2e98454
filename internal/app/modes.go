package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/quantrove/vaultbot/internal/domain"
	"github.com/quantrove/vaultbot/internal/engine"
	"github.com/quantrove/vaultbot/internal/eventlog"
	"github.com/quantrove/vaultbot/internal/strategy"
)

// archiveConcurrency bounds parallel run uploads.
const archiveConcurrency = 4

// mirrorSummaryLimit caps how many mirrored rows replay mode reports.
const mirrorSummaryLimit = 10

// buildEngine assembles the decision engine from wired dependencies.
func (a *App) buildEngine(deps *Dependencies) *engine.Engine {
	cfg := engine.Config{
		Mode: a.cfg.Engine.StrategyMode,
		Strategy: strategy.Config{
			Allowed:            a.cfg.AllowedKeys(),
			Venue:              a.cfg.Engine.Venue,
			SpotVenue:          a.cfg.Engine.SpotVenue,
			PerpVenue:          a.cfg.Engine.PerpVenue,
			PrincipalToken:     a.cfg.Engine.PrincipalToken,
			ReceiptToken:       a.cfg.Engine.ReceiptToken,
			TargetRatio:        a.cfg.Engine.TargetRatio,
			RebalanceThreshold: a.cfg.Engine.RebalanceThreshold,
			DustMin:            a.cfg.Engine.DustMin,
		},
	}
	return engine.New(cfg, deps.Providers, strategy.DefaultRegistry(), deps.Calc, deps.Log, deps.Stores, a.logger)
}

// OnceMode runs a single decision tick against the configured providers and
// exits. Intended for dry runs and cron-driven external scheduling.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting once mode")
	a.emitLifecycle(deps, "start")
	defer a.emitLifecycle(deps, "stop")

	eng := a.buildEngine(deps)
	orders := eng.Tick(ctx, domain.TriggerManual)

	a.logger.InfoContext(ctx, "tick complete",
		slog.Int("orders", len(orders)),
		slog.String("health", string(eng.Health())),
		slog.String("run_dir", deps.Log.Dir()),
	)
	for _, o := range orders {
		a.logger.InfoContext(ctx, "order generated",
			slog.String("operation_id", o.OperationID),
			slog.String("operation", o.Operation.String()),
			slog.String("venue", o.Venue),
			slog.Float64("amount", o.Amount),
		)
	}
	return nil
}

// LoopMode schedules recurring full-loop ticks on the configured cron spec
// and blocks until the context is cancelled. Ticks never overlap; a tick that
// outlasts its slot causes the next one to be skipped.
func (a *App) LoopMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting loop mode",
		slog.String("cron_spec", a.cfg.Scheduler.CronSpec),
	)
	a.emitLifecycle(deps, "start")
	defer a.emitLifecycle(deps, "stop")

	eng := a.buildEngine(deps)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(a.cfg.Scheduler.CronSpec, func() {
		orders := eng.Tick(ctx, domain.TriggerFullLoop)
		a.logger.InfoContext(ctx, "scheduled tick complete",
			slog.Int("orders", len(orders)),
			slog.String("health", string(eng.Health())),
		)
		_, _ = deps.Log.LogAsync(domain.NewEvent(domain.EventHealth, nowUTC(), map[string]any{
			"status": string(eng.Health()),
			"orders": len(orders),
		}))
	})
	if err != nil {
		return fmt.Errorf("app: cron spec %q: %w", a.cfg.Scheduler.CronSpec, err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// ReplayMode verifies every run directory under the event log base dir:
// global ordering is checked for duplicates and regressions, and a per-run
// summary (events per stream, highest sequence, gaps) is logged. When the
// Postgres mirrors are wired, the newest mirrored decisions and their orders
// are reported alongside for cross-checking against the JSONL streams.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting replay mode",
		slog.String("dir", a.cfg.EventLog.Dir),
	)

	runs, err := listRunDirs(a.cfg.EventLog.Dir)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		a.logger.WarnContext(ctx, "no run directories found")
		return nil
	}

	for _, runDir := range runs {
		r := eventlog.NewReader(runDir)

		total := 0
		for _, kind := range domain.EventKinds {
			events, err := r.ReadAll(kind)
			if err != nil {
				return fmt.Errorf("app: replay %s: %w", filepath.Base(runDir), err)
			}
			if len(events) > 0 {
				a.logger.InfoContext(ctx, "stream replayed",
					slog.String("run", filepath.Base(runDir)),
					slog.String("kind", string(kind)),
					slog.Int("events", len(events)),
				)
			}
			total += len(events)
		}

		highest, gaps, err := r.VerifyOrdering()
		if err != nil {
			return fmt.Errorf("app: replay %s: %w", filepath.Base(runDir), err)
		}
		a.logger.InfoContext(ctx, "run verified",
			slog.String("run", filepath.Base(runDir)),
			slog.Int("events", total),
			slog.Uint64("highest_sequence", highest),
			slog.Int("sequence_gaps", gaps),
		)

		if last, err := r.TailLatest(domain.EventDecision); err == nil {
			a.logger.InfoContext(ctx, "last decision",
				slog.String("run", filepath.Base(runDir)),
				slog.Any("decision", last.Detail),
			)
		}
	}

	return a.reportMirrors(ctx, deps)
}

// reportMirrors summarises the queryable mirrors next to the replayed
// streams. A query failure degrades the report, not the replay.
func (a *App) reportMirrors(ctx context.Context, deps *Dependencies) error {
	if deps.Stores.Decisions == nil {
		return nil
	}

	decisions, err := deps.Stores.Decisions.ListRecent(ctx, mirrorSummaryLimit)
	if err != nil {
		a.logger.WarnContext(ctx, "decision mirror query failed",
			slog.String("error", err.Error()),
		)
		return nil
	}
	for _, d := range decisions {
		a.logger.InfoContext(ctx, "mirrored decision",
			slog.String("decision_type", string(d.DecisionType)),
			slog.String("strategy_id", d.StrategyID),
			slog.Int("order_count", d.OrderCount),
			slog.Time("decided_at", d.DecidedAt),
		)
	}

	if len(decisions) == 0 || deps.Stores.Orders == nil {
		return nil
	}
	strategyID := decisions[0].StrategyID
	orders, err := deps.Stores.Orders.ListByStrategy(ctx, strategyID, mirrorSummaryLimit)
	if err != nil {
		a.logger.WarnContext(ctx, "order mirror query failed",
			slog.String("strategy_id", strategyID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	a.logger.InfoContext(ctx, "mirrored orders",
		slog.String("strategy_id", strategyID),
		slog.Int("orders", len(orders)),
	)
	return nil
}

// ArchiveMode uploads every completed run directory to object storage. Runs
// are archived concurrently; the local run directories are left in place.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode",
		slog.String("dir", a.cfg.EventLog.Dir),
		slog.String("bucket", a.cfg.S3.Bucket),
	)

	runs, err := listRunDirs(a.cfg.EventLog.Dir)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(archiveConcurrency)
	for _, runDir := range runs {
		correlationID, pid, ok := splitRunName(filepath.Base(runDir))
		if !ok {
			a.logger.WarnContext(ctx, "skipping unrecognised run directory",
				slog.String("dir", runDir),
			)
			continue
		}
		g.Go(func() error {
			archived, err := deps.Archiver.ArchiveRun(ctx, runDir, correlationID, pid)
			if err != nil {
				return fmt.Errorf("app: archive %s: %w", filepath.Base(runDir), err)
			}
			a.logger.InfoContext(ctx, "run archived",
				slog.String("run", filepath.Base(runDir)),
				slog.Int("streams", archived),
			)
			return nil
		})
	}
	return g.Wait()
}

// emitLifecycle writes a synchronous lifecycle marker when a log is wired.
func (a *App) emitLifecycle(deps *Dependencies, phase string) {
	if deps.Log == nil {
		return
	}
	_ = deps.Log.Log(domain.NewEvent(domain.EventLifecycle, nowUTC(), map[string]any{
		"phase": phase,
		"mode":  a.cfg.Mode,
	}))
}

// listRunDirs returns the run directories under base in name order.
func listRunDirs(base string) ([]string, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("app: read event log dir %s: %w", base, err)
	}
	var runs []string
	for _, entry := range entries {
		if entry.IsDir() {
			runs = append(runs, filepath.Join(base, entry.Name()))
		}
	}
	return runs, nil
}

// splitRunName parses a "{correlation_id}-{pid}" run directory name. The
// correlation id may itself contain dashes, so the pid is taken from the last
// segment.
func splitRunName(name string) (string, int, bool) {
	i := strings.LastIndex(name, "-")
	if i <= 0 {
		return "", 0, false
	}
	pid, err := strconv.Atoi(name[i+1:])
	if err != nil {
		return "", 0, false
	}
	return name[:i], pid, true
}
