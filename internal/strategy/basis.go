package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantrove/vaultbot/internal/deltas"
	"github.com/quantrove/vaultbot/internal/domain"
)

// Basis is the leveraged-basis variant: long spot on one venue against a
// short perp of the same size on another, harvesting funding. The two legs
// share an atomic group id; the execution layer must apply them
// all-or-nothing.
type Basis struct {
	cfg    Config
	calc   *deltas.Calculator
	logger *slog.Logger

	spotKey domain.InstrumentKey
	perpKey domain.InstrumentKey
}

// NewBasis validates config and allow-list and returns the variant.
func NewBasis(cfg Config, deps Deps) (Implementation, error) {
	const id = "basis_v1"
	if cfg.SpotVenue == "" || cfg.PerpVenue == "" || cfg.PrincipalToken == "" || cfg.ReceiptToken == "" {
		return nil, domain.NewConfigError(id, "spot_venue, perp_venue, principal_token and receipt_token are required")
	}
	if cfg.TargetRatio <= 0 {
		return nil, domain.NewConfigError(id, "target_ratio must be positive")
	}

	// ReceiptToken doubles as the traded asset symbol for this variant.
	spotKey := domain.NewInstrumentKey(cfg.SpotVenue, domain.ClassBaseToken, cfg.ReceiptToken)
	perpKey := domain.NewInstrumentKey(cfg.PerpVenue, domain.ClassPerpPosition, cfg.ReceiptToken)
	required := []domain.InstrumentKey{
		spotKey,
		perpKey,
		domain.NewInstrumentKey(cfg.SpotVenue, domain.ClassBaseToken, cfg.PrincipalToken),
		domain.NewInstrumentKey(cfg.PerpVenue, domain.ClassBaseToken, cfg.PrincipalToken),
	}
	if err := validateAllowList(id, required, cfg); err != nil {
		return nil, err
	}

	return &Basis{
		cfg:     cfg,
		calc:    deps.Calc,
		logger:  deps.Logger.With(slog.String("strategy", id)),
		spotKey: spotKey,
		perpKey: perpKey,
	}, nil
}

// ID implements Implementation.
func (s *Basis) ID() string { return "basis_v1" }

// GenerateOrders enters the paired position when flat and unwinds it when
// risk turns critical. Both legs of a pair carry the same atomic group id
// with their in-group sequence.
func (s *Basis) GenerateOrders(ctx context.Context, ts time.Time, in Inputs) ([]domain.Order, error) {
	asset := s.cfg.ReceiptToken
	price, ok := in.Market.Prices[asset]
	if !ok || price <= 0 {
		s.logger.WarnContext(ctx, "no price for basis asset, holding",
			slog.String("symbol", asset),
		)
		return nil, nil
	}

	spot := in.Positions.Balances[s.spotKey]
	perp := in.Positions.Balances[s.perpKey]

	if in.Risk.RiskLevel == "critical" {
		if spot == 0 && perp == 0 {
			return nil, nil
		}
		return s.unwind(ctx, ts, spot, perp, price), nil
	}

	if spot != 0 || perp != 0 {
		// Position already on; funding is harvested passively.
		return sweepDust(ctx, s.cfg, s.calc, s.ID(), ts, in, s.logger), nil
	}

	size := in.Exposure.CurrentEquity * s.cfg.TargetRatio / price
	if size <= 0 {
		return nil, nil
	}

	groupID := uuid.NewString()
	buyParams := deltas.Params{
		Venue:       s.cfg.SpotVenue,
		SourceToken: s.cfg.PrincipalToken,
		TargetToken: asset,
		Amount:      size,
		Price:       price,
		Side:        domain.SideBuy,
	}
	shortParams := deltas.Params{
		Venue:       s.cfg.PerpVenue,
		SourceToken: s.cfg.PrincipalToken,
		TargetToken: asset,
		Amount:      size,
		Price:       price,
		Side:        domain.SideShort,
	}

	orders := []domain.Order{
		{
			OperationID:     newOperationID(),
			Venue:           s.cfg.SpotVenue,
			Operation:       domain.OpSpotTrade,
			Side:            domain.SideBuy,
			SourceToken:     s.cfg.PrincipalToken,
			TargetToken:     asset,
			Amount:          size,
			Price:           price,
			ExpectedDeltas:  s.calc.Calculate(ctx, domain.OpSpotTrade, buyParams),
			Intent:          domain.IntentEntryFull,
			StrategyID:      s.ID(),
			AtomicGroupID:   groupID,
			SequenceInGroup: 1,
			CreatedAt:       ts,
		},
		{
			OperationID:     newOperationID(),
			Venue:           s.cfg.PerpVenue,
			Operation:       domain.OpPerpOpen,
			Side:            domain.SideShort,
			SourceToken:     s.cfg.PrincipalToken,
			TargetToken:     asset,
			Amount:          size,
			Price:           price,
			ExpectedDeltas:  s.calc.Calculate(ctx, domain.OpPerpOpen, shortParams),
			Intent:          domain.IntentEntryFull,
			StrategyID:      s.ID(),
			AtomicGroupID:   groupID,
			SequenceInGroup: 2,
			CreatedAt:       ts,
		},
	}

	s.logger.InfoContext(ctx, "basis entry generated",
		slog.Float64("size", size),
		slog.Float64("price", price),
		slog.String("atomic_group", groupID),
	)
	return orders, nil
}

// unwind closes both legs as one atomic exit pair.
func (s *Basis) unwind(ctx context.Context, ts time.Time, spot, perp, price float64) []domain.Order {
	asset := s.cfg.ReceiptToken
	groupID := uuid.NewString()
	var orders []domain.Order
	seq := 0

	if perp != 0 {
		seq++
		params := deltas.Params{
			Venue:       s.cfg.PerpVenue,
			SourceToken: s.cfg.PrincipalToken,
			TargetToken: asset,
			Amount:      -perp, // perp balance is negative for a short
			Price:       price,
			Side:        domain.SideShort,
		}
		orders = append(orders, domain.Order{
			OperationID:     newOperationID(),
			Venue:           s.cfg.PerpVenue,
			Operation:       domain.OpPerpClose,
			Side:            domain.SideShort,
			SourceToken:     s.cfg.PrincipalToken,
			TargetToken:     asset,
			Amount:          -perp,
			Price:           price,
			ExpectedDeltas:  s.calc.Calculate(ctx, domain.OpPerpClose, params),
			Intent:          domain.IntentExitFull,
			StrategyID:      s.ID(),
			AtomicGroupID:   groupID,
			SequenceInGroup: seq,
			CreatedAt:       ts,
		})
	}
	if spot != 0 {
		seq++
		params := deltas.Params{
			Venue:       s.cfg.SpotVenue,
			SourceToken: s.cfg.PrincipalToken,
			TargetToken: asset,
			Amount:      spot,
			Price:       price,
			Side:        domain.SideSell,
		}
		orders = append(orders, domain.Order{
			OperationID:     newOperationID(),
			Venue:           s.cfg.SpotVenue,
			Operation:       domain.OpSpotTrade,
			Side:            domain.SideSell,
			SourceToken:     s.cfg.PrincipalToken,
			TargetToken:     asset,
			Amount:          spot,
			Price:           price,
			ExpectedDeltas:  s.calc.Calculate(ctx, domain.OpSpotTrade, params),
			Intent:          domain.IntentExitFull,
			StrategyID:      s.ID(),
			AtomicGroupID:   groupID,
			SequenceInGroup: seq,
			CreatedAt:       ts,
		})
	}

	s.logger.WarnContext(ctx, "critical risk, unwinding basis position",
		slog.Float64("spot", spot),
		slog.Float64("perp", perp),
	)
	return orders
}
