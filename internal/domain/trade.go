package domain

import (
	"fmt"
	"time"
)

// TradeStatus tracks the execution outcome lifecycle.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusExecuted  TradeStatus = "executed"
	TradeStatusFailed    TradeStatus = "failed"
	TradeStatusCancelled TradeStatus = "cancelled"
)

// Trade is the execution outcome for one order, keyed by its operation id.
// Trades are produced by the external execution layer; this core only defines
// the shape and its invariants so audit records can be validated on ingest.
type Trade struct {
	OperationID string      `json:"operation_id"`
	Venue       string      `json:"venue"`
	Status      TradeStatus `json:"status"`

	// PositionDeltas are the realized position changes, in the same
	// instrument-key space as Order.ExpectedDeltas.
	PositionDeltas map[InstrumentKey]float64 `json:"position_deltas,omitempty"`

	Price       float64 `json:"price,omitempty"`
	FeeUSD      float64 `json:"fee_usd,omitempty"`
	SlippageBps float64 `json:"slippage_bps,omitempty"`

	// ErrorCode and ErrorMessage are required when Status is failed.
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	ExecutedAt time.Time `json:"executed_at,omitempty"`
}

// cexVenues marks venues where an executed trade must carry a fill price.
// DeFi protocol operations (supply, stake, ...) have no single fill price.
var cexVenues = map[string]bool{
	"binance": true,
	"bybit":   true,
}

// Validate enforces the per-status invariants: executed trades need realized
// deltas (and a price on CEX venues), failed trades need an error code and
// message.
func (t Trade) Validate() error {
	if t.OperationID == "" {
		return fmt.Errorf("trade: missing operation_id")
	}
	switch t.Status {
	case TradeStatusExecuted:
		if len(t.PositionDeltas) == 0 {
			return fmt.Errorf("trade %s: executed without position_deltas", t.OperationID)
		}
		if cexVenues[t.Venue] && t.Price == 0 {
			return fmt.Errorf("trade %s: executed CEX trade without price", t.OperationID)
		}
	case TradeStatusFailed:
		if t.ErrorCode == "" || t.ErrorMessage == "" {
			return fmt.Errorf("trade %s: failed without error code/message", t.OperationID)
		}
	case TradeStatusPending, TradeStatusCancelled:
	default:
		return fmt.Errorf("trade %s: unknown status %q", t.OperationID, t.Status)
	}
	return nil
}
