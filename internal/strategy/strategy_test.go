package strategy

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrove/vaultbot/internal/deltas"
	"github.com/quantrove/vaultbot/internal/domain"
)

type staticRates struct {
	index float64
	rate  float64
}

func (r staticRates) GetSupplyIndex(ctx context.Context, asset string) (float64, error) {
	return r.index, nil
}

func (r staticRates) GetStakingRate(ctx context.Context, from, to string) (float64, error) {
	return r.rate, nil
}

func testDeps() Deps {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return Deps{
		Calc:   deltas.New(staticRates{index: 1, rate: 1}, nil, logger),
		Logger: logger,
	}
}

func lendingConfig() Config {
	return Config{
		Allowed: []domain.InstrumentKey{
			"aave:BaseToken:USDC",
			"aave:LST/aToken:aUSDC",
		},
		Venue:              "aave",
		PrincipalToken:     "USDC",
		ReceiptToken:       "aUSDC",
		TargetRatio:        0.8,
		RebalanceThreshold: 0.05,
	}
}

func TestRegistry_ResolveUnknownModeIsConfigError(t *testing.T) {
	r := DefaultRegistry()

	impl, err := r.Resolve("momentum", Config{}, testDeps())
	assert.Nil(t, impl)
	require.Error(t, err)
	assert.True(t, domain.IsConfigError(err))
}

func TestRegistry_DefaultModes(t *testing.T) {
	assert.Equal(t,
		[]string{ModeBasis, ModeLending, ModeStaking},
		DefaultRegistry().Modes(),
	)
}

func TestNewLending_IncompleteAllowListFailsFast(t *testing.T) {
	cfg := lendingConfig()
	cfg.Allowed = []domain.InstrumentKey{"aave:BaseToken:USDC"} // receipt key missing

	impl, err := NewLending(cfg, testDeps())
	assert.Nil(t, impl)
	require.Error(t, err)
	assert.True(t, domain.IsConfigError(err))
	assert.Contains(t, err.Error(), "aave:LST/aToken:aUSDC")
}

func TestLending_SuppliesTowardTarget(t *testing.T) {
	impl, err := NewLending(lendingConfig(), testDeps())
	require.NoError(t, err)

	in := Inputs{
		Exposure:  domain.ExposureSnapshot{CurrentEquity: 10000},
		Positions: domain.PositionSnapshot{Balances: map[domain.InstrumentKey]float64{}},
	}
	orders, err := impl.GenerateOrders(context.Background(), time.Now(), in)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, domain.OpSupply, o.Operation)
	assert.Equal(t, domain.IntentRebalance, o.Intent)
	assert.Equal(t, "lending_v1", o.StrategyID)
	assert.InDelta(t, 8000, o.Amount, 1e-9)
	assert.NoError(t, o.Validate())
	assert.Equal(t, -8000.0, o.ExpectedDeltas["aave:BaseToken:USDC"])
	assert.Equal(t, 8000.0, o.ExpectedDeltas["aave:LST/aToken:aUSDC"])
}

func TestLending_WithdrawsWhenOverTarget(t *testing.T) {
	impl, err := NewLending(lendingConfig(), testDeps())
	require.NoError(t, err)

	in := Inputs{
		Exposure: domain.ExposureSnapshot{CurrentEquity: 10000},
		Positions: domain.PositionSnapshot{Balances: map[domain.InstrumentKey]float64{
			"aave:LST/aToken:aUSDC": 9500,
		}},
	}
	orders, err := impl.GenerateOrders(context.Background(), time.Now(), in)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OpWithdraw, orders[0].Operation)
	assert.InDelta(t, 1500, orders[0].Amount, 1e-9)
}

func TestLending_WithinThresholdSweepsDust(t *testing.T) {
	cfg := lendingConfig()
	cfg.SpotVenue = "binance"
	cfg.Allowed = append(cfg.Allowed,
		domain.InstrumentKey("binance:BaseToken:ARB"),
		domain.InstrumentKey("binance:BaseToken:OP"),
		domain.InstrumentKey("binance:BaseToken:USDC"),
	)

	impl, err := NewLending(cfg, testDeps())
	require.NoError(t, err)

	in := Inputs{
		Exposure: domain.ExposureSnapshot{
			CurrentEquity: 10000,
			DustTokens: map[string]float64{
				"ARB": 12.5,
				"XYZ": 3, // not allow-listed: must be skipped
				"OP":  0, // empty balance: nothing to sell
			},
		},
		Market: domain.MarketSnapshot{Prices: map[string]float64{"ARB": 2, "OP": 1.5, "XYZ": 1}},
		Positions: domain.PositionSnapshot{Balances: map[domain.InstrumentKey]float64{
			"aave:LST/aToken:aUSDC": 8100, // within 5% of the 8000 target
		}},
	}
	orders, err := impl.GenerateOrders(context.Background(), time.Now(), in)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, domain.IntentDustSell, o.Intent)
	assert.Equal(t, "ARB", o.TargetToken)
	assert.Equal(t, -12.5, o.ExpectedDeltas["binance:BaseToken:ARB"])
	assert.Equal(t, 25.0, o.ExpectedDeltas["binance:BaseToken:USDC"])
}

// Every order any variant emits must reference only allow-listed instruments.
func TestVariants_OrdersStayInsideAllowList(t *testing.T) {
	deps := testDeps()

	lending, err := NewLending(lendingConfig(), deps)
	require.NoError(t, err)

	stakingCfg := Config{
		Allowed: []domain.InstrumentKey{
			"etherfi:BaseToken:ETH",
			"etherfi:LST/aToken:weETH",
		},
		Venue:              "etherfi",
		PrincipalToken:     "ETH",
		ReceiptToken:       "weETH",
		TargetRatio:        0.9,
		RebalanceThreshold: 0.02,
	}
	staking, err := NewStaking(stakingCfg, deps)
	require.NoError(t, err)

	basis, err := NewBasis(basisConfig(), deps)
	require.NoError(t, err)

	in := Inputs{
		Exposure: domain.ExposureSnapshot{CurrentEquity: 50000},
		Market: domain.MarketSnapshot{Prices: map[string]float64{
			"ETH": 3000, "BTC": 60000, "USDC": 1,
		}},
		Positions: domain.PositionSnapshot{Balances: map[domain.InstrumentKey]float64{}},
	}

	for _, tc := range []struct {
		impl    Implementation
		allowed []domain.InstrumentKey
	}{
		{lending, lendingConfig().Allowed},
		{staking, stakingCfg.Allowed},
		{basis, basisConfig().Allowed},
	} {
		orders, err := tc.impl.GenerateOrders(context.Background(), time.Now(), in)
		require.NoError(t, err)
		set := make(map[domain.InstrumentKey]bool)
		for _, k := range tc.allowed {
			set[k] = true
		}
		for _, o := range orders {
			for k := range o.ExpectedDeltas {
				assert.True(t, set[k], "%s emitted non-allow-listed %s", tc.impl.ID(), k)
			}
		}
	}
}

func basisConfig() Config {
	return Config{
		Allowed: []domain.InstrumentKey{
			"binance:BaseToken:BTC",
			"binance:BaseToken:USDC",
			"hyperliquid:PerpPosition:BTC",
			"hyperliquid:BaseToken:USDC",
		},
		SpotVenue:      "binance",
		PerpVenue:      "hyperliquid",
		PrincipalToken: "USDC",
		ReceiptToken:   "BTC",
		TargetRatio:    0.5,
	}
}

func TestStaking_FlatPositionEntersFull(t *testing.T) {
	cfg := Config{
		Allowed: []domain.InstrumentKey{
			"etherfi:BaseToken:ETH",
			"etherfi:LST/aToken:weETH",
		},
		Venue:              "etherfi",
		PrincipalToken:     "ETH",
		ReceiptToken:       "weETH",
		TargetRatio:        0.9,
		RebalanceThreshold: 0.02,
	}
	impl, err := NewStaking(cfg, testDeps())
	require.NoError(t, err)

	in := Inputs{
		Exposure:  domain.ExposureSnapshot{CurrentEquity: 30000},
		Market:    domain.MarketSnapshot{Prices: map[string]float64{"ETH": 3000}},
		Positions: domain.PositionSnapshot{Balances: map[domain.InstrumentKey]float64{}},
	}
	orders, err := impl.GenerateOrders(context.Background(), time.Now(), in)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	o := orders[0]
	assert.Equal(t, domain.OpStake, o.Operation)
	assert.Equal(t, domain.IntentEntryFull, o.Intent)
	assert.InDelta(t, 9.0, o.Amount, 1e-9) // 30000*0.9/3000
}

func TestBasis_EntryLegsShareAtomicGroup(t *testing.T) {
	impl, err := NewBasis(basisConfig(), testDeps())
	require.NoError(t, err)

	in := Inputs{
		Exposure:  domain.ExposureSnapshot{CurrentEquity: 60000},
		Market:    domain.MarketSnapshot{Prices: map[string]float64{"BTC": 60000}},
		Positions: domain.PositionSnapshot{Balances: map[domain.InstrumentKey]float64{}},
	}
	orders, err := impl.GenerateOrders(context.Background(), time.Now(), in)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, domain.OpSpotTrade, orders[0].Operation)
	assert.Equal(t, domain.OpPerpOpen, orders[1].Operation)
	assert.NotEmpty(t, orders[0].AtomicGroupID)
	assert.Equal(t, orders[0].AtomicGroupID, orders[1].AtomicGroupID)
	assert.Equal(t, 1, orders[0].SequenceInGroup)
	assert.Equal(t, 2, orders[1].SequenceInGroup)
	assert.Equal(t, 0.5, orders[0].Amount) // 60000*0.5/60000
	assert.Equal(t, -0.5, orders[1].ExpectedDeltas["hyperliquid:PerpPosition:BTC"])
}

func TestBasis_CriticalRiskUnwinds(t *testing.T) {
	impl, err := NewBasis(basisConfig(), testDeps())
	require.NoError(t, err)

	in := Inputs{
		Exposure: domain.ExposureSnapshot{CurrentEquity: 60000},
		Risk:     domain.RiskSnapshot{RiskLevel: "critical"},
		Market:   domain.MarketSnapshot{Prices: map[string]float64{"BTC": 60000}},
		Positions: domain.PositionSnapshot{Balances: map[domain.InstrumentKey]float64{
			"binance:BaseToken:BTC":        0.5,
			"hyperliquid:PerpPosition:BTC": -0.5,
		}},
	}
	orders, err := impl.GenerateOrders(context.Background(), time.Now(), in)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, o := range orders {
		assert.Equal(t, domain.IntentExitFull, o.Intent)
	}
	// Perp leg closes first.
	assert.Equal(t, domain.OpPerpClose, orders[0].Operation)
	assert.Equal(t, 0.5, orders[0].Amount)
	assert.Equal(t, 0.5, orders[0].ExpectedDeltas["hyperliquid:PerpPosition:BTC"])
}
