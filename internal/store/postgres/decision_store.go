package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantrove/vaultbot/internal/domain"
)

// DecisionStore implements domain.DecisionStore using PostgreSQL.
type DecisionStore struct {
	pool *pgxpool.Pool
}

// NewDecisionStore creates a DecisionStore backed by the given pool.
func NewDecisionStore(pool *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

// Insert mirrors one tick decision. The full decision is stored as JSONB.
func (s *DecisionStore) Insert(ctx context.Context, correlationID string, d domain.Decision) error {
	detail, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("postgres: marshal decision: %w", err)
	}

	const query = `
		INSERT INTO decisions (correlation_id, decision_type, strategy_id, detail, decided_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err = s.pool.Exec(ctx, query,
		correlationID, string(d.DecisionType), d.StrategyID, detail, d.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert decision: %w", err)
	}
	return nil
}

// ListRecent returns the newest decisions, newest first.
func (s *DecisionStore) ListRecent(ctx context.Context, limit int) ([]domain.Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT detail FROM decisions ORDER BY decided_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []domain.Decision
	for rows.Next() {
		var detail []byte
		if err := rows.Scan(&detail); err != nil {
			return nil, fmt.Errorf("postgres: scan decision: %w", err)
		}
		var d domain.Decision
		if err := json.Unmarshal(detail, &d); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list decisions rows: %w", err)
	}
	return decisions, nil
}
