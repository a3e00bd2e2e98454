// Package engine orchestrates one strategy decision tick: snapshot reads,
// strategy resolution and invocation, delta annotation, decision
// classification, state bookkeeping, and audit emission. Every step is
// independently guarded; the engine degrades, it never aborts a tick.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantrove/vaultbot/internal/deltas"
	"github.com/quantrove/vaultbot/internal/domain"
	"github.com/quantrove/vaultbot/internal/eventlog"
	"github.com/quantrove/vaultbot/internal/strategy"
)

// Health thresholds: the error counter drives a three-tier status.
const (
	degradedAfter  = 5
	unhealthyAfter = 10
)

// HealthStatus is the engine's coarse operational state.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Config selects the strategy mode and its per-variant configuration.
type Config struct {
	Mode     string
	Strategy strategy.Config
}

// Providers bundles the three external read-only collaborators plus the
// per-bucket balance view.
type Providers struct {
	Market    domain.MarketDataProvider
	Exposure  domain.ExposureProvider
	Risk      domain.RiskProvider
	Positions domain.PositionProvider
}

// Stores are the optional queryable mirrors; either may be nil.
type Stores struct {
	Decisions domain.DecisionStore
	Orders    domain.OrderStore
}

// Engine runs decision ticks. One instance per run; its state (history,
// counters, cached strategy) is mutated only by its own tick execution, and
// ticks are externally scheduled one at a time.
type Engine struct {
	cfg       Config
	providers Providers
	registry  *strategy.Registry
	calc      *deltas.Calculator
	log       *eventlog.Log
	stores    Stores
	logger    *slog.Logger

	resolved bool
	impl     strategy.Implementation
	implErr  error

	state      domain.StrategyState
	errorCount int
	tickCount  uint64
}

// New creates an Engine. The strategy is resolved lazily on the first tick
// and cached for the lifetime of the engine.
func New(
	cfg Config,
	providers Providers,
	registry *strategy.Registry,
	calc *deltas.Calculator,
	log *eventlog.Log,
	stores Stores,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		cfg:       cfg,
		providers: providers,
		registry:  registry,
		calc:      calc,
		log:       log,
		stores:    stores,
		logger:    logger.With(slog.String("component", "decision_engine")),
	}
}

// Health returns the current three-tier status derived from the rolling
// error counter.
func (e *Engine) Health() HealthStatus {
	switch {
	case e.errorCount >= unhealthyAfter:
		return StatusUnhealthy
	case e.errorCount >= degradedAfter:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// State returns a copy of the engine-owned strategy state.
func (e *Engine) State() domain.StrategyState {
	st := e.state
	st.History = append([]domain.DecisionType(nil), e.state.History...)
	return st
}

// recordError counts one degradation and logs it. Never aborts anything.
func (e *Engine) recordError(ctx context.Context, step string, err error) {
	e.errorCount++
	e.logger.ErrorContext(ctx, "tick step failed, degrading",
		slog.String("step", step),
		slog.String("error", err.Error()),
		slog.Int("error_count", e.errorCount),
		slog.String("health", string(e.Health())),
	)
	e.emitAsync(domain.EventError, time.Now(), map[string]any{
		"step":  step,
		"error": err.Error(),
	})
}

// emitAsync logs one event on the async path; a logging failure is itself a
// persistence failure and never propagates.
func (e *Engine) emitAsync(kind domain.EventKind, ts time.Time, detail map[string]any) {
	if _, err := e.log.LogAsync(domain.NewEvent(kind, ts, detail)); err != nil {
		e.logger.WarnContext(context.Background(), "audit emit failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}
}

// Tick runs one decision cycle and returns the (possibly empty) ordered list
// of orders for the execution layer. It never returns an error and never
// panics: every step is guarded, and failures only move the health status.
func (e *Engine) Tick(ctx context.Context, trigger domain.TriggerSource) []domain.Order {
	now := time.Now().UTC()
	e.tickCount++

	// Step 1: snapshots. Each read degrades independently to a zero value.
	var in strategy.Inputs
	if market, err := e.providers.Market.GetData(ctx, now); err != nil {
		e.recordError(ctx, "market_snapshot", err)
	} else {
		in.Market = market
		e.emitAsync(domain.EventMarket, now, map[string]any{"snapshot": market})
	}
	if exposure, err := e.providers.Exposure.GetCurrentExposure(ctx); err != nil {
		e.recordError(ctx, "exposure_snapshot", err)
	} else {
		in.Exposure = exposure
		e.emitAsync(domain.EventExposure, now, map[string]any{"snapshot": exposure})
	}
	if risk, err := e.providers.Risk.GetCurrentRiskMetrics(ctx); err != nil {
		e.recordError(ctx, "risk_snapshot", err)
	} else {
		in.Risk = risk
		e.emitAsync(domain.EventRisk, now, map[string]any{"snapshot": risk})
	}
	if positions, err := e.providers.Positions.GetPositions(ctx); err != nil {
		e.recordError(ctx, "position_snapshot", err)
	} else {
		in.Positions = positions
	}

	// Step 2: resolve the strategy once and cache the outcome, success or
	// failure. A resolution failure yields empty ticks, not a crash.
	impl := e.resolveStrategy(ctx)

	// Step 3: generate orders, guarded against both errors and panics.
	var orders []domain.Order
	if impl != nil {
		orders = e.generate(ctx, impl, now, in)
	}

	// Step 4: ensure deltas are populated and emit one event per order.
	orders = e.annotate(ctx, now, orders)

	// Step 5: classify the tick for the audit trail. Best-effort and
	// human-readable; never used for control flow.
	decisionType := classify(trigger, orders)

	// Step 6: bounded history and counters.
	e.state.RecordAction(decisionType, len(orders))
	e.emitAsync(domain.EventStrategyState, now, map[string]any{"state": e.State()})

	// Step 7: decision event + optional queryable mirror.
	strategyID := ""
	if impl != nil {
		strategyID = impl.ID()
	}
	decision := domain.Decision{
		Trigger:      trigger,
		DecisionType: decisionType,
		StrategyID:   strategyID,
		OrderCount:   len(orders),
		OperationIDs: operationIDs(orders),
		Health:       string(e.Health()),
		DecidedAt:    now,
	}
	e.emitAsync(domain.EventDecision, now, map[string]any{"decision": decision})
	e.mirrorDecision(ctx, decision)

	e.logger.InfoContext(ctx, "tick complete",
		slog.String("trigger", string(trigger)),
		slog.String("decision", string(decisionType)),
		slog.Int("orders", len(orders)),
		slog.String("health", string(e.Health())),
	)
	return orders
}

// resolveStrategy resolves and caches the active implementation. The first
// failure is cached too: it is a configuration problem, and re-resolving
// every tick would only re-log it.
func (e *Engine) resolveStrategy(ctx context.Context) strategy.Implementation {
	if !e.resolved {
		e.resolved = true
		e.impl, e.implErr = e.registry.Resolve(e.cfg.Mode, e.cfg.Strategy, strategy.Deps{
			Calc:   e.calc,
			Logger: e.logger,
		})
		if e.implErr != nil {
			e.recordError(ctx, "strategy_resolve",
				fmt.Errorf("mode %q: %w", e.cfg.Mode, e.implErr))
		}
	}
	return e.impl
}

// generate invokes the strategy with a panic guard. A panicking or failing
// implementation yields an empty list, never a propagated failure.
func (e *Engine) generate(ctx context.Context, impl strategy.Implementation, ts time.Time, in strategy.Inputs) (orders []domain.Order) {
	defer func() {
		if r := recover(); r != nil {
			e.recordError(ctx, "generate_orders", fmt.Errorf("strategy %s panicked: %v", impl.ID(), r))
			orders = nil
		}
	}()

	orders, err := impl.GenerateOrders(ctx, ts, in)
	if err != nil {
		e.recordError(ctx, "generate_orders", err)
		return nil
	}
	return orders
}

// annotate backfills missing expected deltas, validates, and emits one audit
// event per order. An order that fails validation is dropped and counted; an
// order whose deltas cannot be computed stays empty (no-op, investigate) but
// is still emitted for the audit trail.
func (e *Engine) annotate(ctx context.Context, ts time.Time, orders []domain.Order) []domain.Order {
	out := orders[:0]
	for _, o := range orders {
		if len(o.ExpectedDeltas) == 0 {
			o.ExpectedDeltas = e.calc.Calculate(ctx, o.Operation, deltas.Params{
				Venue:       o.Venue,
				SourceVenue: o.SourceVenue,
				TargetVenue: o.TargetVenue,
				SourceToken: o.SourceToken,
				TargetToken: o.TargetToken,
				Amount:      o.Amount,
				Price:       o.Price,
				Side:        o.Side,
			})
			if len(o.ExpectedDeltas) == 0 {
				e.logger.WarnContext(ctx, "order has empty deltas after recompute",
					slog.String("operation_id", o.OperationID),
					slog.String("operation", o.Operation.String()),
				)
			}
		}
		if err := o.Validate(); err != nil {
			e.recordError(ctx, "order_validate", err)
			continue
		}
		e.emitAsync(domain.EventOrder, ts, map[string]any{"order": o})
		e.mirrorOrder(ctx, o)
		out = append(out, o)
	}
	return out
}

// classify derives the explicit decision type from the orders' intents.
// Precedence: exits (emergency on a risk trigger) over entries over
// rebalance/dust; no orders is a hold.
func classify(trigger domain.TriggerSource, orders []domain.Order) domain.DecisionType {
	if len(orders) == 0 {
		return domain.DecisionHold
	}
	var entries, exits, adjustments int
	for _, o := range orders {
		switch o.Intent {
		case domain.IntentEntryFull, domain.IntentEntryPartial:
			entries++
		case domain.IntentExitFull, domain.IntentExitPartial:
			exits++
		case domain.IntentRebalance, domain.IntentDustSell:
			adjustments++
		}
	}
	switch {
	case exits > 0 && trigger == domain.TriggerRisk:
		return domain.DecisionEmergencyExit
	case exits > 0:
		return domain.DecisionExit
	case entries > 0:
		return domain.DecisionEntry
	case adjustments > 0:
		return domain.DecisionRebalance
	}
	return domain.DecisionHold
}

func operationIDs(orders []domain.Order) []string {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.OperationID)
	}
	return ids
}

// mirrorDecision writes the decision to the optional store. Failures are
// side-channel logged, never propagated and never counted as degradation.
func (e *Engine) mirrorDecision(ctx context.Context, d domain.Decision) {
	if e.stores.Decisions == nil {
		return
	}
	if err := e.stores.Decisions.Insert(ctx, e.log.CorrelationID(), d); err != nil {
		e.logger.WarnContext(ctx, "decision mirror failed",
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) mirrorOrder(ctx context.Context, o domain.Order) {
	if e.stores.Orders == nil {
		return
	}
	if err := e.stores.Orders.Insert(ctx, e.log.CorrelationID(), o); err != nil {
		e.logger.WarnContext(ctx, "order mirror failed",
			slog.String("error", err.Error()),
		)
	}
}
