package deltas

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrove/vaultbot/internal/domain"
)

type fakeRates struct {
	supplyIndex float64
	stakingRate float64
	err         error
}

func (f fakeRates) GetSupplyIndex(ctx context.Context, asset string) (float64, error) {
	return f.supplyIndex, f.err
}

func (f fakeRates) GetStakingRate(ctx context.Context, from, to string) (float64, error) {
	return f.stakingRate, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCalculate_SpotBuy(t *testing.T) {
	c := New(fakeRates{supplyIndex: 1, stakingRate: 1}, nil, testLogger())

	got := c.Calculate(context.Background(), domain.OpSpotTrade, Params{
		Venue:       "binance",
		SourceToken: "USDT",
		TargetToken: "BTC",
		Amount:      0.5,
		Price:       50000,
		Side:        domain.SideBuy,
	})

	require.Len(t, got, 2)
	assert.Equal(t, 0.5, got["binance:BaseToken:BTC"])
	assert.Equal(t, -25000.0, got["binance:BaseToken:USDT"])
}

func TestCalculate_SpotSellInverts(t *testing.T) {
	c := New(fakeRates{}, nil, testLogger())

	got := c.Calculate(context.Background(), domain.OpSpotTrade, Params{
		Venue:       "binance",
		SourceToken: "USDT",
		TargetToken: "BTC",
		Amount:      0.5,
		Price:       50000,
		Side:        domain.SideSell,
	})

	assert.Equal(t, -0.5, got["binance:BaseToken:BTC"])
	assert.Equal(t, 25000.0, got["binance:BaseToken:USDT"])
}

func TestCalculate_PerpOpenAndClose(t *testing.T) {
	c := New(fakeRates{}, nil, testLogger())
	p := Params{
		Venue:       "hyperliquid",
		SourceToken: "USDC",
		TargetToken: "ETH",
		Amount:      2,
		Price:       3000,
		Side:        domain.SideLong,
	}

	open := c.Calculate(context.Background(), domain.OpPerpOpen, p)
	assert.Equal(t, 2.0, open["hyperliquid:PerpPosition:ETH"])
	assert.Equal(t, -6000.0, open["hyperliquid:BaseToken:USDC"])

	closed := c.Calculate(context.Background(), domain.OpPerpClose, p)
	assert.Equal(t, -2.0, closed["hyperliquid:PerpPosition:ETH"])
	assert.Equal(t, 6000.0, closed["hyperliquid:BaseToken:USDC"])
}

func TestCalculate_SupplyUsesIndex(t *testing.T) {
	c := New(fakeRates{supplyIndex: 1.25}, nil, testLogger())

	got := c.Calculate(context.Background(), domain.OpSupply, Params{
		Venue:       "aave",
		SourceToken: "USDC",
		TargetToken: "aUSDC",
		Amount:      125,
	})

	assert.Equal(t, -125.0, got["aave:BaseToken:USDC"])
	assert.Equal(t, 100.0, got["aave:LST/aToken:aUSDC"])
}

func TestCalculate_WithdrawUsesIndex(t *testing.T) {
	c := New(fakeRates{supplyIndex: 1.25}, nil, testLogger())

	got := c.Calculate(context.Background(), domain.OpWithdraw, Params{
		Venue:       "aave",
		SourceToken: "aUSDC",
		TargetToken: "USDC",
		Amount:      100,
	})

	assert.Equal(t, -100.0, got["aave:LST/aToken:aUSDC"])
	assert.Equal(t, 125.0, got["aave:BaseToken:USDC"])
}

func TestCalculate_BorrowRepayUseDebtBucket(t *testing.T) {
	c := New(fakeRates{}, nil, testLogger())
	p := Params{Venue: "aave", TargetToken: "USDC", Amount: 1000}

	borrow := c.Calculate(context.Background(), domain.OpBorrow, p)
	assert.Equal(t, 1000.0, borrow["aave:DebtPosition:USDC"])
	assert.Equal(t, 1000.0, borrow["aave:BaseToken:USDC"])

	repay := c.Calculate(context.Background(), domain.OpRepay, p)
	assert.Equal(t, -1000.0, repay["aave:DebtPosition:USDC"])
	assert.Equal(t, -1000.0, repay["aave:BaseToken:USDC"])
}

func TestCalculate_StakeFallsBackOneToOne(t *testing.T) {
	var fallbackOps []domain.Operation
	onFallback := func(op domain.Operation, asset string, err error) {
		fallbackOps = append(fallbackOps, op)
	}
	c := New(fakeRates{err: errors.New("oracle down")}, onFallback, testLogger())

	got := c.Calculate(context.Background(), domain.OpStake, Params{
		Venue:       "etherfi",
		SourceToken: "ETH",
		TargetToken: "weETH",
		Amount:      1.0,
	})

	require.Len(t, got, 2)
	assert.Equal(t, -1.0, got["etherfi:BaseToken:ETH"])
	assert.Equal(t, 1.0, got["etherfi:LST/aToken:weETH"])
	assert.Equal(t, []domain.Operation{domain.OpStake}, fallbackOps)
}

// A failing rate provider must produce exactly the result a fixed 1:1
// provider produces, for every rate-dependent operation.
func TestCalculate_FailingProviderEqualsFallback(t *testing.T) {
	failing := New(fakeRates{err: errors.New("timeout")}, nil, testLogger())
	oneToOne := New(fakeRates{supplyIndex: 1, stakingRate: 1}, nil, testLogger())

	params := Params{
		Venue:       "aave",
		SourceToken: "USDC",
		TargetToken: "aUSDC",
		Amount:      42,
	}
	for _, op := range []domain.Operation{domain.OpSupply, domain.OpWithdraw, domain.OpStake, domain.OpUnstake} {
		assert.Equal(t,
			oneToOne.Calculate(context.Background(), op, params),
			failing.Calculate(context.Background(), op, params),
			"operation %s", op,
		)
	}
}

func TestCalculate_Transfer(t *testing.T) {
	c := New(fakeRates{}, nil, testLogger())

	got := c.Calculate(context.Background(), domain.OpTransfer, Params{
		SourceVenue: "binance",
		TargetVenue: "wallet",
		SourceToken: "USDT",
		Amount:      500,
	})

	assert.Equal(t, -500.0, got["binance:BaseToken:USDT"])
	assert.Equal(t, 500.0, got["wallet:BaseToken:USDT"])
}

func TestCalculate_NeverReturnsMalformedKeys(t *testing.T) {
	c := New(fakeRates{supplyIndex: 1.1, stakingRate: 1.05}, nil, testLogger())
	params := Params{
		Venue:       "aave",
		SourceVenue: "binance",
		TargetVenue: "wallet",
		SourceToken: "ETH",
		TargetToken: "weETH",
		Amount:      1,
		Price:       3000,
		Side:        domain.SideBuy,
	}

	for op := domain.OpSpotTrade; op <= domain.OpTransfer; op++ {
		for k := range c.Calculate(context.Background(), op, params) {
			assert.NoError(t, k.Validate(), "operation %s key %s", op, k)
		}
	}
}

func TestCalculate_BadInputsReturnEmptyNotPanic(t *testing.T) {
	c := New(fakeRates{}, nil, testLogger())

	assert.Empty(t, c.Calculate(context.Background(), domain.OpSpotTrade, Params{Amount: -1}))
	assert.Empty(t, c.Calculate(context.Background(), domain.OpSpotTrade, Params{Amount: 1})) // no venue, no price
	assert.Empty(t, c.Calculate(context.Background(), domain.Operation(99), Params{Amount: 1}))
	assert.Empty(t, c.Calculate(context.Background(), domain.OpTransfer, Params{Amount: 1}))
}
