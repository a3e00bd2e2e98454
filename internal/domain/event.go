package domain

import "time"

// EventKind names one audit stream. Each kind gets its own append-only JSONL
// file under the per-run log directory.
type EventKind string

const (
	EventDecision      EventKind = "strategy_decision"
	EventOrder         EventKind = "order"
	EventTrade         EventKind = "trade"
	EventMarket        EventKind = "market_snapshot"
	EventExposure      EventKind = "exposure_snapshot"
	EventRisk          EventKind = "risk_snapshot"
	EventStrategyState EventKind = "strategy_state"
	EventRateFallback  EventKind = "rate_fallback"
	EventHealth        EventKind = "health"
	EventError         EventKind = "error"
	EventLifecycle     EventKind = "lifecycle"
	EventArchive       EventKind = "archive"
)

// EventKinds lists every stream kind, in the order used for replay summaries.
var EventKinds = []EventKind{
	EventDecision, EventOrder, EventTrade, EventMarket, EventExposure,
	EventRisk, EventStrategyState, EventRateFallback, EventHealth,
	EventError, EventLifecycle, EventArchive,
}

// DecisionType is the engine's explicit classification of one tick. It is set
// directly from the emitted orders' intents, recorded for human audit, and
// never used for control flow.
type DecisionType string

const (
	DecisionEntry         DecisionType = "entry"
	DecisionExit          DecisionType = "exit"
	DecisionRebalance     DecisionType = "rebalance"
	DecisionHold          DecisionType = "hold"
	DecisionEmergencyExit DecisionType = "emergency_exit"
)

// TriggerSource identifies what initiated a decision tick.
type TriggerSource string

const (
	TriggerFullLoop TriggerSource = "full_loop"
	TriggerManual   TriggerSource = "manual"
	TriggerRisk     TriggerSource = "risk_trigger"
)

// Event is one audit record. Timestamp is the logical decision time supplied
// by the caller; CapturedAt is the wall clock at log time. Order is stamped
// only on the asynchronous logging path and is strictly increasing and unique
// across all event kinds of one (correlation_id, pid) log instance.
type Event struct {
	Kind          EventKind `json:"kind"`
	Timestamp     int64     `json:"timestamp"`
	CapturedAt    time.Time `json:"captured_at"`
	CorrelationID string    `json:"correlation_id"`
	PID           int       `json:"pid"`
	Order         uint64    `json:"order,omitempty"`

	Detail map[string]any `json:"detail,omitempty"`
}

// NewEvent builds an event of the given kind with the logical timestamp ts.
// CorrelationID, PID, CapturedAt and Order are stamped by the event log.
func NewEvent(kind EventKind, ts time.Time, detail map[string]any) Event {
	return Event{
		Kind:      kind,
		Timestamp: ts.UnixMilli(),
		Detail:    detail,
	}
}

// Decision is the per-tick summary the engine records alongside its orders.
type Decision struct {
	Trigger      TriggerSource `json:"trigger_source"`
	DecisionType DecisionType  `json:"decision_type"`
	StrategyID   string        `json:"strategy_id"`
	OrderCount   int           `json:"order_count"`
	OperationIDs []string      `json:"operation_ids,omitempty"`
	Health       string        `json:"health"`
	Note         string        `json:"note,omitempty"`
	DecidedAt    time.Time     `json:"decided_at"`
}

// StrategyState is the engine-owned mutable record of recent activity: the
// last classified action, a bounded history of the last ten, and a cumulative
// counter of orders generated. Only the owning engine mutates it, once per
// tick.
type StrategyState struct {
	LastAction      DecisionType   `json:"last_action"`
	History         []DecisionType `json:"history"`
	OrdersGenerated uint64         `json:"orders_generated"`
}

// historyLimit bounds StrategyState.History.
const historyLimit = 10

// RecordAction appends an action to the bounded history and bumps counters.
func (s *StrategyState) RecordAction(action DecisionType, orders int) {
	s.LastAction = action
	s.History = append(s.History, action)
	if len(s.History) > historyLimit {
		s.History = s.History[len(s.History)-historyLimit:]
	}
	s.OrdersGenerated += uint64(orders)
}
