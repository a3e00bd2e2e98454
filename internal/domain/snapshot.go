package domain

import (
	"context"
	"time"
)

// MarketSnapshot is the market view handed to strategies. The engine treats
// it as opaque; only strategies and the delta calculator read into it.
type MarketSnapshot struct {
	Timestamp    time.Time          `json:"timestamp"`
	Prices       map[string]float64 `json:"prices,omitempty"`        // symbol -> USD price
	FundingRates map[string]float64 `json:"funding_rates,omitempty"` // perp symbol -> rate
}

// ExposureSnapshot describes current positions and equity.
type ExposureSnapshot struct {
	Positions     map[InstrumentKey]float64 `json:"positions"`
	TotalExposure float64                   `json:"total_exposure"`
	CurrentEquity float64                   `json:"current_equity"`
	// DustTokens are small residual non-principal balances by symbol.
	DustTokens map[string]float64 `json:"dust_tokens,omitempty"`
}

// RiskSnapshot summarizes current risk metrics.
type RiskSnapshot struct {
	RiskLevel     string  `json:"risk_level"` // "normal", "elevated", "critical"
	HealthFactor  float64 `json:"health_factor,omitempty"`
	MaxDrawdownPc float64 `json:"max_drawdown_pct,omitempty"`
}

// PositionSnapshot is the raw per-bucket balance view strategies receive in
// addition to the aggregated exposure.
type PositionSnapshot struct {
	Balances map[InstrumentKey]float64 `json:"balances"`
	AsOf     time.Time                 `json:"as_of"`
}

// MarketDataProvider is the external read-only market data collaborator.
type MarketDataProvider interface {
	GetData(ctx context.Context, ts time.Time) (MarketSnapshot, error)
}

// ExposureProvider is the external read-only exposure collaborator.
type ExposureProvider interface {
	GetCurrentExposure(ctx context.Context) (ExposureSnapshot, error)
}

// RiskProvider is the external read-only risk metrics collaborator.
type RiskProvider interface {
	GetCurrentRiskMetrics(ctx context.Context) (RiskSnapshot, error)
}

// PositionProvider is the external read-only per-bucket balance collaborator.
type PositionProvider interface {
	GetPositions(ctx context.Context) (PositionSnapshot, error)
}

// RateProvider resolves conversion rates for supply/withdraw and
// stake/unstake operations. Either lookup may fail; callers fall back to a
// 1:1 conversion and log a warning, never abort.
type RateProvider interface {
	GetSupplyIndex(ctx context.Context, asset string) (float64, error)
	GetStakingRate(ctx context.Context, from, to string) (float64, error)
}
