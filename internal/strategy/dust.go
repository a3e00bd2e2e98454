package strategy

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/quantrove/vaultbot/internal/deltas"
	"github.com/quantrove/vaultbot/internal/domain"
)

// sweepDust emits one sell order per allow-listed dust token, converting the
// residual balance back into the principal asset on the spot venue. Tokens
// outside the allow-list or without a market price are skipped, never
// guessed at. Order: deterministic by symbol.
func sweepDust(
	ctx context.Context,
	cfg Config,
	calc *deltas.Calculator,
	strategyID string,
	ts time.Time,
	in Inputs,
	logger *slog.Logger,
) []domain.Order {
	venue := cfg.SpotVenue
	if venue == "" {
		venue = cfg.Venue
	}
	allowed := cfg.allowSet()

	symbols := make([]string, 0, len(in.Exposure.DustTokens))
	for sym := range in.Exposure.DustTokens {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var orders []domain.Order
	for _, sym := range symbols {
		balance := in.Exposure.DustTokens[sym]
		if balance <= 0 || balance < cfg.DustMin || sym == cfg.PrincipalToken {
			continue
		}
		key := domain.NewInstrumentKey(venue, domain.ClassBaseToken, sym)
		if !allowed[key] {
			logger.DebugContext(ctx, "dust token not allow-listed, skipping",
				slog.String("symbol", sym),
			)
			continue
		}
		price, ok := in.Market.Prices[sym]
		if !ok || price <= 0 {
			logger.WarnContext(ctx, "no price for dust token, skipping",
				slog.String("symbol", sym),
			)
			continue
		}

		params := deltas.Params{
			Venue:       venue,
			SourceToken: cfg.PrincipalToken,
			TargetToken: sym,
			Amount:      balance,
			Price:       price,
			Side:        domain.SideSell,
		}
		orders = append(orders, domain.Order{
			OperationID:    newOperationID(),
			Venue:          venue,
			Operation:      domain.OpSpotTrade,
			Side:           domain.SideSell,
			SourceToken:    cfg.PrincipalToken,
			TargetToken:    sym,
			Amount:         balance,
			Price:          price,
			ExpectedDeltas: calc.Calculate(ctx, domain.OpSpotTrade, params),
			Intent:         domain.IntentDustSell,
			StrategyID:     strategyID,
			CreatedAt:      ts,
		})
	}
	return orders
}
