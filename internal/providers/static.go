// Package providers contains fixed in-memory implementations of the external
// read-only collaborators (market, exposure, risk, positions) used by dry
// runs and tests. Production deployments plug real adapters into the same
// domain interfaces.
package providers

import (
	"context"
	"time"

	"github.com/quantrove/vaultbot/internal/domain"
)

// Static serves fixed snapshots. The zero value serves empty snapshots.
type Static struct {
	Market    domain.MarketSnapshot
	Exposure  domain.ExposureSnapshot
	Risk      domain.RiskSnapshot
	Positions domain.PositionSnapshot
}

// GetData implements domain.MarketDataProvider.
func (s *Static) GetData(ctx context.Context, ts time.Time) (domain.MarketSnapshot, error) {
	snap := s.Market
	snap.Timestamp = ts
	return snap, nil
}

// GetCurrentExposure implements domain.ExposureProvider.
func (s *Static) GetCurrentExposure(ctx context.Context) (domain.ExposureSnapshot, error) {
	return s.Exposure, nil
}

// GetCurrentRiskMetrics implements domain.RiskProvider.
func (s *Static) GetCurrentRiskMetrics(ctx context.Context) (domain.RiskSnapshot, error) {
	return s.Risk, nil
}

// GetPositions implements domain.PositionProvider.
func (s *Static) GetPositions(ctx context.Context) (domain.PositionSnapshot, error) {
	return s.Positions, nil
}
