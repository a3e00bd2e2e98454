package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOrder() Order {
	return Order{
		OperationID: "op-1",
		Venue:       "binance",
		Operation:   OpSpotTrade,
		Side:        SideBuy,
		SourceToken: "USDT",
		TargetToken: "BTC",
		Amount:      0.5,
		Price:       50000,
		ExpectedDeltas: map[InstrumentKey]float64{
			NewInstrumentKey("binance", ClassBaseToken, "BTC"):  0.5,
			NewInstrumentKey("binance", ClassBaseToken, "USDT"): -25000,
		},
		Intent:     IntentEntryPartial,
		StrategyID: "lending_v1",
		CreatedAt:  time.Now(),
	}
}

func TestOrder_Validate(t *testing.T) {
	assert.NoError(t, validOrder().Validate())

	o := validOrder()
	o.Amount = -1
	assert.ErrorIs(t, o.Validate(), ErrInvalidOrder)

	o = validOrder()
	o.Intent = "yolo"
	assert.ErrorIs(t, o.Validate(), ErrInvalidOrder)

	o = validOrder()
	o.StrategyID = ""
	assert.ErrorIs(t, o.Validate(), ErrInvalidOrder)

	o = validOrder()
	o.ExpectedDeltas = map[InstrumentKey]float64{"ftx:BaseToken:BTC": 1}
	assert.Error(t, o.Validate())

	o = validOrder()
	o.OperationID = ""
	assert.Error(t, o.Validate())
}

func TestOperation_JSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(OpStake)
	require.NoError(t, err)
	assert.Equal(t, `"stake"`, string(b))

	var op Operation
	require.NoError(t, json.Unmarshal([]byte(`"perp_open"`), &op))
	assert.Equal(t, OpPerpOpen, op)

	assert.Error(t, json.Unmarshal([]byte(`"flash_loan"`), &op))
}

func TestTrade_Validate(t *testing.T) {
	tr := Trade{OperationID: "op-1", Venue: "binance", Status: TradeStatusExecuted}
	assert.Error(t, tr.Validate(), "executed trade needs deltas")

	tr.PositionDeltas = map[InstrumentKey]float64{"binance:BaseToken:BTC": 0.5}
	assert.Error(t, tr.Validate(), "executed CEX trade needs a price")

	tr.Price = 50000
	assert.NoError(t, tr.Validate())

	// DeFi venues have no single fill price.
	aave := Trade{
		OperationID:    "op-2",
		Venue:          "aave",
		Status:         TradeStatusExecuted,
		PositionDeltas: map[InstrumentKey]float64{"aave:LST/aToken:aUSDC": 100},
	}
	assert.NoError(t, aave.Validate())

	failed := Trade{OperationID: "op-3", Status: TradeStatusFailed}
	assert.Error(t, failed.Validate())
	failed.ErrorCode = "E_SLIPPAGE"
	failed.ErrorMessage = "slippage exceeded"
	assert.NoError(t, failed.Validate())
}

func TestStrategyState_RecordAction_BoundedHistory(t *testing.T) {
	var s StrategyState
	for i := 0; i < 25; i++ {
		s.RecordAction(DecisionHold, 2)
	}
	s.RecordAction(DecisionRebalance, 3)

	assert.Equal(t, DecisionRebalance, s.LastAction)
	assert.Len(t, s.History, 10)
	assert.Equal(t, DecisionRebalance, s.History[9])
	assert.Equal(t, uint64(25*2+3), s.OrdersGenerated)
}
