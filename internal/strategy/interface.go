// Package strategy defines the strategy implementation contract, the
// constructor registry that resolves a mode string to an implementation, and
// the built-in variants (pure lending, staking-only, leveraged basis).
package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantrove/vaultbot/internal/deltas"
	"github.com/quantrove/vaultbot/internal/domain"
)

// Inputs bundles the snapshots handed to a strategy for one decision tick.
type Inputs struct {
	Exposure  domain.ExposureSnapshot
	Risk      domain.RiskSnapshot
	Market    domain.MarketSnapshot
	Positions domain.PositionSnapshot
}

// Implementation is the uniform contract every strategy variant satisfies.
//
// GenerateOrders turns one tick's snapshots into an ordered list of orders.
// Implementations must not propagate internal failures: on trouble they
// return a safe default (dust-cleanup orders or an empty list) so the engine
// always receives a usable result. Instrument-key configuration problems are
// surfaced at construction time, never here.
type Implementation interface {
	ID() string
	GenerateOrders(ctx context.Context, ts time.Time, in Inputs) ([]domain.Order, error)
}

// Deps carries the collaborators a constructor may wire into its variant.
type Deps struct {
	Calc   *deltas.Calculator
	Logger *slog.Logger
}

// Config is the per-variant strategy configuration. One Config feeds one
// constructor; unused fields are ignored by variants that don't need them.
type Config struct {
	// Allowed is the caller-supplied instrument allow-list. Every instrument
	// a variant will ever reference must appear here; a miss is a fatal
	// ConfigError at construction.
	Allowed []domain.InstrumentKey

	// Venue is the variant's primary venue (lending pool, staking protocol).
	Venue string
	// SpotVenue and PerpVenue are used by the basis variant.
	SpotVenue string
	PerpVenue string

	// PrincipalToken is the asset the strategy accumulates; ReceiptToken is
	// the venue-side receipt (aToken / LST) it holds against it.
	PrincipalToken string
	ReceiptToken   string

	// TargetRatio sets target = equity * TargetRatio.
	TargetRatio float64
	// RebalanceThreshold is the relative drift |current-target|/target above
	// which rebalance orders are emitted.
	RebalanceThreshold float64
	// DustMin is the minimum token balance considered worth sweeping.
	DustMin float64
}

// allowSet builds a lookup set from the configured allow-list.
func (c Config) allowSet() map[domain.InstrumentKey]bool {
	set := make(map[domain.InstrumentKey]bool, len(c.Allowed))
	for _, k := range c.Allowed {
		set[k] = true
	}
	return set
}

// validateAllowList checks, at construction time, that every instrument the
// variant will ever reference is present in the allow-list and well-formed.
// This is the fail-fast gate: a miss here blocks the mode from activating.
func validateAllowList(strategyID string, required []domain.InstrumentKey, cfg Config) error {
	allowed := cfg.allowSet()
	for _, k := range required {
		if err := k.Validate(); err != nil {
			return domain.NewConfigError(strategyID, "required instrument invalid: %v", err)
		}
		if !allowed[k] {
			return domain.NewConfigError(strategyID, "instrument %s missing from allow-list", k)
		}
	}
	return nil
}

// newOperationID mints a unique order id.
func newOperationID() string {
	return uuid.NewString()
}
