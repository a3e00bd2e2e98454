package rates

import (
	"context"

	"github.com/quantrove/vaultbot/internal/domain"
)

// Static is a fixed in-memory rate provider for tests and dry runs.
// Missing entries fail with ErrRateUnavailable, exercising the same 1:1
// fallback path as a cache miss.
type Static struct {
	SupplyIndexes map[string]float64
	StakingRates  map[string]float64 // keyed "from:to"
}

// GetSupplyIndex implements domain.RateProvider.
func (s *Static) GetSupplyIndex(ctx context.Context, asset string) (float64, error) {
	if rate, ok := s.SupplyIndexes[asset]; ok {
		return rate, nil
	}
	return 0, domain.ErrRateUnavailable
}

// GetStakingRate implements domain.RateProvider.
func (s *Static) GetStakingRate(ctx context.Context, from, to string) (float64, error) {
	if rate, ok := s.StakingRates[from+":"+to]; ok {
		return rate, nil
	}
	return 0, domain.ErrRateUnavailable
}
