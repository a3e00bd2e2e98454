package strategy

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/quantrove/vaultbot/internal/deltas"
	"github.com/quantrove/vaultbot/internal/domain"
)

// Staking is the staking-only variant: it keeps a target fraction of equity
// in a liquid-staking token, entering the position when flat and adjusting
// it when drift exceeds the threshold.
type Staking struct {
	cfg    Config
	calc   *deltas.Calculator
	logger *slog.Logger

	stakedKey domain.InstrumentKey
}

// NewStaking validates config and allow-list and returns the variant.
func NewStaking(cfg Config, deps Deps) (Implementation, error) {
	const id = "staking_v1"
	if cfg.Venue == "" || cfg.PrincipalToken == "" || cfg.ReceiptToken == "" {
		return nil, domain.NewConfigError(id, "venue, principal_token and receipt_token are required")
	}
	if cfg.TargetRatio <= 0 || cfg.RebalanceThreshold <= 0 {
		return nil, domain.NewConfigError(id, "target_ratio and rebalance_threshold must be positive")
	}

	entryKey := domain.NewInstrumentKey(cfg.Venue, domain.ClassBaseToken, cfg.PrincipalToken)
	stakedKey := domain.NewInstrumentKey(cfg.Venue, domain.ClassLSTAToken, cfg.ReceiptToken)
	if err := validateAllowList(id, []domain.InstrumentKey{entryKey, stakedKey}, cfg); err != nil {
		return nil, err
	}

	return &Staking{
		cfg:       cfg,
		calc:      deps.Calc,
		logger:    deps.Logger.With(slog.String("strategy", id)),
		stakedKey: stakedKey,
	}, nil
}

// ID implements Implementation.
func (s *Staking) ID() string { return "staking_v1" }

// GenerateOrders stakes toward, or unstakes away from, the equity-derived
// target. A first entry from a flat position is tagged entry_full; later
// adjustments are rebalances.
func (s *Staking) GenerateOrders(ctx context.Context, ts time.Time, in Inputs) ([]domain.Order, error) {
	priced, ok := in.Market.Prices[s.cfg.PrincipalToken]
	if !ok || priced <= 0 {
		s.logger.WarnContext(ctx, "no price for principal token, holding",
			slog.String("symbol", s.cfg.PrincipalToken),
		)
		return sweepDust(ctx, s.cfg, s.calc, s.ID(), ts, in, s.logger), nil
	}

	// Target is denominated in the principal token, not USD.
	target := in.Exposure.CurrentEquity * s.cfg.TargetRatio / priced
	if target <= 0 {
		return sweepDust(ctx, s.cfg, s.calc, s.ID(), ts, in, s.logger), nil
	}

	current := in.Positions.Balances[s.stakedKey]
	drift := math.Abs(current-target) / target
	if drift <= s.cfg.RebalanceThreshold {
		return sweepDust(ctx, s.cfg, s.calc, s.ID(), ts, in, s.logger), nil
	}

	diff := target - current
	intent := domain.IntentRebalance
	if current == 0 && diff > 0 {
		intent = domain.IntentEntryFull
	}

	var order domain.Order
	if diff > 0 {
		params := deltas.Params{
			Venue:       s.cfg.Venue,
			SourceToken: s.cfg.PrincipalToken,
			TargetToken: s.cfg.ReceiptToken,
			Amount:      diff,
		}
		order = domain.Order{
			OperationID:    newOperationID(),
			Venue:          s.cfg.Venue,
			Operation:      domain.OpStake,
			SourceToken:    s.cfg.PrincipalToken,
			TargetToken:    s.cfg.ReceiptToken,
			Amount:         diff,
			ExpectedDeltas: s.calc.Calculate(ctx, domain.OpStake, params),
			Intent:         intent,
			StrategyID:     s.ID(),
			CreatedAt:      ts,
		}
	} else {
		params := deltas.Params{
			Venue:       s.cfg.Venue,
			SourceToken: s.cfg.ReceiptToken,
			TargetToken: s.cfg.PrincipalToken,
			Amount:      -diff,
		}
		order = domain.Order{
			OperationID:    newOperationID(),
			Venue:          s.cfg.Venue,
			Operation:      domain.OpUnstake,
			SourceToken:    s.cfg.ReceiptToken,
			TargetToken:    s.cfg.PrincipalToken,
			Amount:         -diff,
			ExpectedDeltas: s.calc.Calculate(ctx, domain.OpUnstake, params),
			Intent:         domain.IntentExitPartial,
			StrategyID:     s.ID(),
			CreatedAt:      ts,
		}
	}

	s.logger.InfoContext(ctx, "staking adjustment generated",
		slog.String("operation", order.Operation.String()),
		slog.Float64("target", target),
		slog.Float64("current", current),
	)
	return []domain.Order{order}, nil
}
