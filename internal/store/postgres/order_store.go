package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantrove/vaultbot/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Insert mirrors one emitted order. Orders are immutable, so a conflicting
// operation_id is left untouched.
func (s *OrderStore) Insert(ctx context.Context, correlationID string, o domain.Order) error {
	detail, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("postgres: marshal order %s: %w", o.OperationID, err)
	}

	const query = `
		INSERT INTO orders (operation_id, correlation_id, strategy_id, operation, detail)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (operation_id) DO NOTHING`
	_, err = s.pool.Exec(ctx, query,
		o.OperationID, correlationID, o.StrategyID, o.Operation.String(), detail,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert order %s: %w", o.OperationID, err)
	}
	return nil
}

// ListByStrategy returns a strategy's newest orders, newest first.
func (s *OrderStore) ListByStrategy(ctx context.Context, strategyID string, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT detail FROM orders
		WHERE strategy_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, query, strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var detail []byte
		if err := rows.Scan(&detail); err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		var o domain.Order
		if err := json.Unmarshal(detail, &o); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders rows: %w", err)
	}
	return orders, nil
}
