package strategy

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/quantrove/vaultbot/internal/deltas"
	"github.com/quantrove/vaultbot/internal/domain"
)

// Lending is the pure-lending variant: it keeps a target fraction of equity
// supplied to one lending pool, rebalancing when drift exceeds the threshold
// and sweeping dust otherwise.
type Lending struct {
	cfg    Config
	calc   *deltas.Calculator
	logger *slog.Logger

	receiptKey domain.InstrumentKey
}

// NewLending validates config and allow-list and returns the variant.
func NewLending(cfg Config, deps Deps) (Implementation, error) {
	const id = "lending_v1"
	if cfg.Venue == "" || cfg.PrincipalToken == "" || cfg.ReceiptToken == "" {
		return nil, domain.NewConfigError(id, "venue, principal_token and receipt_token are required")
	}
	if cfg.TargetRatio <= 0 || cfg.RebalanceThreshold <= 0 {
		return nil, domain.NewConfigError(id, "target_ratio and rebalance_threshold must be positive")
	}

	principalKey := domain.NewInstrumentKey(cfg.Venue, domain.ClassBaseToken, cfg.PrincipalToken)
	receiptKey := domain.NewInstrumentKey(cfg.Venue, domain.ClassLSTAToken, cfg.ReceiptToken)
	if err := validateAllowList(id, []domain.InstrumentKey{principalKey, receiptKey}, cfg); err != nil {
		return nil, err
	}

	return &Lending{
		cfg:        cfg,
		calc:       deps.Calc,
		logger:     deps.Logger.With(slog.String("strategy", id)),
		receiptKey: receiptKey,
	}, nil
}

// ID implements Implementation.
func (s *Lending) ID() string { return "lending_v1" }

// GenerateOrders compares the current lending balance against
// equity*target_ratio. Beyond the drift threshold it emits one rebalance
// order (supply or withdraw the difference); otherwise it sweeps dust.
func (s *Lending) GenerateOrders(ctx context.Context, ts time.Time, in Inputs) ([]domain.Order, error) {
	target := in.Exposure.CurrentEquity * s.cfg.TargetRatio
	if target <= 0 {
		s.logger.WarnContext(ctx, "non-positive lending target, holding",
			slog.Float64("equity", in.Exposure.CurrentEquity),
		)
		return sweepDust(ctx, s.cfg, s.calc, s.ID(), ts, in, s.logger), nil
	}

	current := in.Positions.Balances[s.receiptKey]
	drift := math.Abs(current-target) / target
	if drift <= s.cfg.RebalanceThreshold {
		return sweepDust(ctx, s.cfg, s.calc, s.ID(), ts, in, s.logger), nil
	}

	diff := target - current
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
			Operation:      domain.OpSupply,
			SourceToken:    s.cfg.PrincipalToken,
			TargetToken:    s.cfg.ReceiptToken,
			Amount:         diff,
			ExpectedDeltas: s.calc.Calculate(ctx, domain.OpSupply, params),
			Intent:         domain.IntentRebalance,
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
			Operation:      domain.OpWithdraw,
			SourceToken:    s.cfg.ReceiptToken,
			TargetToken:    s.cfg.PrincipalToken,
			Amount:         -diff,
			ExpectedDeltas: s.calc.Calculate(ctx, domain.OpWithdraw, params),
			Intent:         domain.IntentRebalance,
			StrategyID:     s.ID(),
			CreatedAt:      ts,
		}
	}

	s.logger.InfoContext(ctx, "rebalance order generated",
		slog.String("operation", order.Operation.String()),
		slog.Float64("target", target),
		slog.Float64("current", current),
		slog.Float64("drift", drift),
	)
	return []domain.Order{order}, nil
}
