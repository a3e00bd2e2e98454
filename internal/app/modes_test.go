package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrove/vaultbot/internal/config"
	"github.com/quantrove/vaultbot/internal/domain"
	"github.com/quantrove/vaultbot/internal/engine"
	"github.com/quantrove/vaultbot/internal/eventlog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memDecisionStore struct {
	decisions []domain.Decision
	listed    bool
}

func (s *memDecisionStore) Insert(ctx context.Context, correlationID string, d domain.Decision) error {
	s.decisions = append(s.decisions, d)
	return nil
}

func (s *memDecisionStore) ListRecent(ctx context.Context, limit int) ([]domain.Decision, error) {
	s.listed = true
	if limit < len(s.decisions) {
		return s.decisions[:limit], nil
	}
	return s.decisions, nil
}

type memOrderStore struct {
	orders    []domain.Order
	listedFor string
}

func (s *memOrderStore) Insert(ctx context.Context, correlationID string, o domain.Order) error {
	s.orders = append(s.orders, o)
	return nil
}

func (s *memOrderStore) ListByStrategy(ctx context.Context, strategyID string, limit int) ([]domain.Order, error) {
	s.listedFor = strategyID
	return s.orders, nil
}

func TestReplayMode_VerifiesRunsAndConsultsMirrors(t *testing.T) {
	base := t.TempDir()
	l, err := eventlog.New(eventlog.Config{
		Dir:           base,
		CorrelationID: "replay-test",
		PID:           9,
	}, testLogger())
	require.NoError(t, err)
	_, err = l.LogAsync(domain.NewEvent(domain.EventDecision, time.Now(), map[string]any{
		"decision_type": string(domain.DecisionHold),
	}))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	cfg := config.Defaults()
	cfg.Mode = "replay"
	cfg.EventLog.Dir = base

	dstore := &memDecisionStore{decisions: []domain.Decision{{
		DecisionType: domain.DecisionHold,
		StrategyID:   "lending_v1",
		DecidedAt:    time.Now(),
	}}}
	ostore := &memOrderStore{}

	a := New(&cfg, testLogger())
	deps := &Dependencies{Stores: engine.Stores{Decisions: dstore, Orders: ostore}}
	require.NoError(t, a.ReplayMode(context.Background(), deps))

	assert.True(t, dstore.listed, "replay must consult the decision mirror")
	assert.Equal(t, "lending_v1", ostore.listedFor, "replay must consult the order mirror for the newest decision's strategy")
}

func TestReplayMode_WorksWithoutMirrors(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "replay"
	cfg.EventLog.Dir = t.TempDir()

	a := New(&cfg, testLogger())
	require.NoError(t, a.ReplayMode(context.Background(), &Dependencies{}))
}
