// Package deltas computes the expected position-bucket changes an order will
// cause, per operation kind. Calculation is pure with respect to portfolio
// state; the only external input is the conversion-rate provider, and any
// failure there degrades to a 1:1 conversion rather than an error.
package deltas

import (
	"context"
	"log/slog"

	"github.com/quantrove/vaultbot/internal/domain"
)

// Params carries the inputs for one delta calculation. Not every field is
// meaningful for every operation; Calculate validates what it needs.
type Params struct {
	Venue       string
	SourceVenue string
	TargetVenue string
	SourceToken string
	TargetToken string
	Amount      float64
	Price       float64
	Side        domain.Side
}

// FallbackFunc is invoked whenever a rate lookup fails and the 1:1 fallback
// is applied, so callers can audit the degradation. It must not block.
type FallbackFunc func(op domain.Operation, asset string, err error)

// Calculator maps (operation, params) to signed per-instrument deltas.
// It never returns an error and never panics: on any internal failure it
// returns an empty map, which callers must treat as "no-op, investigate".
type Calculator struct {
	rates      domain.RateProvider
	onFallback FallbackFunc
	logger     *slog.Logger
}

// New creates a Calculator. onFallback may be nil.
func New(rates domain.RateProvider, onFallback FallbackFunc, logger *slog.Logger) *Calculator {
	return &Calculator{
		rates:      rates,
		onFallback: onFallback,
		logger:     logger.With(slog.String("component", "delta_calculator")),
	}
}

// Calculate returns the expected deltas for one operation. The result maps
// instrument keys to signed amounts and is not required to net to zero:
// conversion indexes and prices make the legs asymmetric.
func (c *Calculator) Calculate(ctx context.Context, op domain.Operation, p Params) (out map[domain.InstrumentKey]float64) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "delta calculation panicked",
				slog.String("operation", op.String()),
				slog.Any("panic", r),
			)
			out = map[domain.InstrumentKey]float64{}
		}
	}()

	if p.Amount < 0 {
		c.logger.WarnContext(ctx, "negative amount, returning empty deltas",
			slog.String("operation", op.String()),
			slog.Float64("amount", p.Amount),
		)
		return map[domain.InstrumentKey]float64{}
	}

	switch op {
	case domain.OpSpotTrade:
		return c.trade(ctx, p, domain.ClassBaseToken, 1)
	case domain.OpPerpOpen:
		return c.trade(ctx, p, domain.ClassPerpPosition, 1)
	case domain.OpPerpClose:
		return c.trade(ctx, p, domain.ClassPerpPosition, -1)
	case domain.OpSupply:
		return c.supply(ctx, p)
	case domain.OpWithdraw:
		return c.withdraw(ctx, p)
	case domain.OpBorrow:
		return c.borrow(p, 1)
	case domain.OpRepay:
		return c.borrow(p, -1)
	case domain.OpStake:
		return c.stake(ctx, domain.OpStake, p)
	case domain.OpUnstake:
		return c.unstake(ctx, p)
	case domain.OpTransfer:
		return c.transfer(ctx, p)
	}

	c.logger.WarnContext(ctx, "unknown operation, returning empty deltas",
		slog.String("operation", op.String()),
	)
	return map[domain.InstrumentKey]float64{}
}

// trade handles spot and perp trades. The side sets the sign: buy/long gains
// the target bucket and loses source scaled by price; sell/short inverts.
// flip is -1 for position-closing perp trades.
func (c *Calculator) trade(ctx context.Context, p Params, targetClass domain.InstrumentClass, flip float64) map[domain.InstrumentKey]float64 {
	if p.Venue == "" || p.SourceToken == "" || p.TargetToken == "" || p.Price <= 0 {
		c.logger.WarnContext(ctx, "incomplete trade params, returning empty deltas",
			slog.String("venue", p.Venue),
			slog.Float64("price", p.Price),
		)
		return map[domain.InstrumentKey]float64{}
	}
	sign := p.Side.Sign() * flip
	return map[domain.InstrumentKey]float64{
		domain.NewInstrumentKey(p.Venue, targetClass, p.TargetToken):           sign * p.Amount,
		domain.NewInstrumentKey(p.Venue, domain.ClassBaseToken, p.SourceToken): -sign * p.Amount * p.Price,
	}
}

// supply deposits Amount of the source token into a lending pool and expects
// Amount/index receipt tokens back, where index is the pool's supply index.
func (c *Calculator) supply(ctx context.Context, p Params) map[domain.InstrumentKey]float64 {
	if p.Venue == "" || p.SourceToken == "" || p.TargetToken == "" {
		return map[domain.InstrumentKey]float64{}
	}
	index := c.supplyIndex(ctx, domain.OpSupply, p.SourceToken)
	return map[domain.InstrumentKey]float64{
		domain.NewInstrumentKey(p.Venue, domain.ClassBaseToken, p.SourceToken): -p.Amount,
		domain.NewInstrumentKey(p.Venue, domain.ClassLSTAToken, p.TargetToken): p.Amount / index,
	}
}

// withdraw burns Amount receipt tokens and expects Amount*index of the
// underlying back.
func (c *Calculator) withdraw(ctx context.Context, p Params) map[domain.InstrumentKey]float64 {
	if p.Venue == "" || p.SourceToken == "" || p.TargetToken == "" {
		return map[domain.InstrumentKey]float64{}
	}
	index := c.supplyIndex(ctx, domain.OpWithdraw, p.TargetToken)
	return map[domain.InstrumentKey]float64{
		domain.NewInstrumentKey(p.Venue, domain.ClassLSTAToken, p.SourceToken): -p.Amount,
		domain.NewInstrumentKey(p.Venue, domain.ClassBaseToken, p.TargetToken): p.Amount * index,
	}
}

// borrow creates (dir=+1) or reduces (dir=-1) a DebtPosition bucket, moving
// the borrowed asset in or out of the wallet-side BaseToken bucket in step.
// The debt bucket is distinct from the asset bucket of the same symbol.
func (c *Calculator) borrow(p Params, dir float64) map[domain.InstrumentKey]float64 {
	if p.Venue == "" || p.TargetToken == "" {
		return map[domain.InstrumentKey]float64{}
	}
	return map[domain.InstrumentKey]float64{
		domain.NewInstrumentKey(p.Venue, domain.ClassDebtPosition, p.TargetToken): dir * p.Amount,
		domain.NewInstrumentKey(p.Venue, domain.ClassBaseToken, p.TargetToken):    dir * p.Amount,
	}
}

// stake converts Amount of the source token into Amount*rate staked tokens.
func (c *Calculator) stake(ctx context.Context, op domain.Operation, p Params) map[domain.InstrumentKey]float64 {
	if p.Venue == "" || p.SourceToken == "" || p.TargetToken == "" {
		return map[domain.InstrumentKey]float64{}
	}
	rate := c.stakingRate(ctx, op, p.SourceToken, p.TargetToken)
	return map[domain.InstrumentKey]float64{
		domain.NewInstrumentKey(p.Venue, domain.ClassBaseToken, p.SourceToken): -p.Amount,
		domain.NewInstrumentKey(p.Venue, domain.ClassLSTAToken, p.TargetToken): p.Amount * rate,
	}
}

// unstake converts Amount staked tokens back into Amount*rate of the
// underlying.
func (c *Calculator) unstake(ctx context.Context, p Params) map[domain.InstrumentKey]float64 {
	if p.Venue == "" || p.SourceToken == "" || p.TargetToken == "" {
		return map[domain.InstrumentKey]float64{}
	}
	rate := c.stakingRate(ctx, domain.OpUnstake, p.SourceToken, p.TargetToken)
	return map[domain.InstrumentKey]float64{
		domain.NewInstrumentKey(p.Venue, domain.ClassLSTAToken, p.SourceToken): -p.Amount,
		domain.NewInstrumentKey(p.Venue, domain.ClassBaseToken, p.TargetToken): p.Amount * rate,
	}
}

// transfer moves a token between venues with zero conversion.
func (c *Calculator) transfer(ctx context.Context, p Params) map[domain.InstrumentKey]float64 {
	if p.SourceVenue == "" || p.TargetVenue == "" || p.SourceToken == "" {
		c.logger.WarnContext(ctx, "incomplete transfer params, returning empty deltas")
		return map[domain.InstrumentKey]float64{}
	}
	token := p.SourceToken
	return map[domain.InstrumentKey]float64{
		domain.NewInstrumentKey(p.SourceVenue, domain.ClassBaseToken, token): -p.Amount,
		domain.NewInstrumentKey(p.TargetVenue, domain.ClassBaseToken, token): p.Amount,
	}
}

// supplyIndex resolves the lending-pool supply index for an asset, degrading
// to 1:1 when the provider fails or returns a non-positive index.
func (c *Calculator) supplyIndex(ctx context.Context, op domain.Operation, asset string) float64 {
	index, err := c.rates.GetSupplyIndex(ctx, asset)
	if err != nil || index <= 0 {
		if err == nil {
			err = domain.ErrRateUnavailable
		}
		c.fallback(ctx, op, asset, err)
		return 1
	}
	return index
}

// stakingRate resolves the from->to staking exchange rate with the same 1:1
// fallback policy as supplyIndex.
func (c *Calculator) stakingRate(ctx context.Context, op domain.Operation, from, to string) float64 {
	rate, err := c.rates.GetStakingRate(ctx, from, to)
	if err != nil || rate <= 0 {
		if err == nil {
			err = domain.ErrRateUnavailable
		}
		c.fallback(ctx, op, from+"->"+to, err)
		return 1
	}
	return rate
}

func (c *Calculator) fallback(ctx context.Context, op domain.Operation, asset string, err error) {
	c.logger.WarnContext(ctx, "rate lookup failed, using 1:1 fallback",
		slog.String("operation", op.String()),
		slog.String("asset", asset),
		slog.String("error", err.Error()),
	)
	if c.onFallback != nil {
		c.onFallback(op, asset, err)
	}
}
