package domain

import (
	"fmt"
	"time"
)

// Operation is the closed set of financial operation kinds an order can
// request. The delta calculator switches over it exhaustively; adding a kind
// is a compile-visible change, not a new string.
type Operation int

const (
	OpSpotTrade Operation = iota
	OpPerpOpen
	OpPerpClose
	OpSupply
	OpWithdraw
	OpBorrow
	OpRepay
	OpStake
	OpUnstake
	OpTransfer
)

var operationNames = map[Operation]string{
	OpSpotTrade: "spot_trade",
	OpPerpOpen:  "perp_open",
	OpPerpClose: "perp_close",
	OpSupply:    "supply",
	OpWithdraw:  "withdraw",
	OpBorrow:    "borrow",
	OpRepay:     "repay",
	OpStake:     "stake",
	OpUnstake:   "unstake",
	OpTransfer:  "transfer",
}

// String returns the wire name of the operation.
func (o Operation) String() string {
	if n, ok := operationNames[o]; ok {
		return n
	}
	return fmt.Sprintf("operation(%d)", int(o))
}

// Valid reports whether o is one of the ten known operation kinds.
func (o Operation) Valid() bool {
	_, ok := operationNames[o]
	return ok
}

// MarshalText implements encoding.TextMarshaler so operations serialize as
// their wire names in JSON.
func (o Operation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Operation) UnmarshalText(b []byte) error {
	s := string(b)
	for op, name := range operationNames {
		if name == s {
			*o = op
			return nil
		}
	}
	return fmt.Errorf("unknown operation %q", s)
}

// Side indicates the direction of a spot or perp operation.
type Side string

const (
	SideBuy   Side = "buy"
	SideSell  Side = "sell"
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Sign returns +1 for buy/long and -1 for sell/short.
func (s Side) Sign() float64 {
	switch s {
	case SideSell, SideShort:
		return -1
	default:
		return 1
	}
}

// StrategyIntent describes what the emitting strategy is trying to achieve
// with an order. The engine derives the per-tick decision classification from
// the intents of the emitted orders.
type StrategyIntent string

const (
	IntentEntryFull    StrategyIntent = "entry_full"
	IntentEntryPartial StrategyIntent = "entry_partial"
	IntentExitFull     StrategyIntent = "exit_full"
	IntentExitPartial  StrategyIntent = "exit_partial"
	IntentDustSell     StrategyIntent = "dust_sell"
	IntentRebalance    StrategyIntent = "rebalance"
)

// Valid reports whether i is one of the six known intents.
func (i StrategyIntent) Valid() bool {
	switch i {
	case IntentEntryFull, IntentEntryPartial, IntentExitFull, IntentExitPartial,
		IntentDustSell, IntentRebalance:
		return true
	}
	return false
}

// Order is an immutable request for one financial operation, annotated with
// the position-bucket deltas it is expected to cause. Orders are created once
// by a strategy implementation and consumed by the external execution layer;
// nothing in this core mutates them after creation.
type Order struct {
	OperationID string    `json:"operation_id"`
	Venue       string    `json:"venue"`
	Operation   Operation `json:"operation"`
	Side        Side      `json:"side,omitempty"`

	SourceVenue string `json:"source_venue,omitempty"`
	TargetVenue string `json:"target_venue,omitempty"`
	SourceToken string `json:"source_token"`
	TargetToken string `json:"target_token"`

	Amount float64 `json:"amount"`
	Price  float64 `json:"price,omitempty"`

	// ExpectedDeltas maps instrument keys to the signed position change this
	// order predicts. It is not required to net to zero: conversion rates and
	// fees make the legs asymmetric.
	ExpectedDeltas map[InstrumentKey]float64 `json:"expected_deltas"`

	Intent     StrategyIntent `json:"strategy_intent"`
	StrategyID string         `json:"strategy_id"`

	// AtomicGroupID groups orders the execution layer must apply
	// all-or-nothing. Emitted as a contract, not enforced here.
	AtomicGroupID   string `json:"atomic_group_id,omitempty"`
	SequenceInGroup int    `json:"sequence_in_group,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the structural invariants of an order: a non-empty id,
// a known operation and intent, a non-negative amount, and well-formed
// expected-delta keys.
func (o Order) Validate() error {
	if o.OperationID == "" {
		return fmt.Errorf("order: missing operation_id")
	}
	if !o.Operation.Valid() {
		return fmt.Errorf("order %s: %w: unknown operation", o.OperationID, ErrInvalidOrder)
	}
	if o.Amount < 0 {
		return fmt.Errorf("order %s: %w: negative amount %f", o.OperationID, ErrInvalidOrder, o.Amount)
	}
	if !o.Intent.Valid() {
		return fmt.Errorf("order %s: %w: unknown strategy_intent %q", o.OperationID, ErrInvalidOrder, o.Intent)
	}
	if o.StrategyID == "" {
		return fmt.Errorf("order %s: %w: missing strategy_id", o.OperationID, ErrInvalidOrder)
	}
	for k := range o.ExpectedDeltas {
		if err := k.Validate(); err != nil {
			return fmt.Errorf("order %s: %w", o.OperationID, err)
		}
	}
	return nil
}
