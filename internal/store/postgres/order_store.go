package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketfold/venue/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderCols = `id, user_id, contract_id, answer_id, outcome,
	limit_prob, amount, remaining, status, created_at`

func scanOrder(row pgx.Row) (domain.LimitOrder, error) {
	var o domain.LimitOrder
	var outcome, status string
	err := row.Scan(
		&o.ID, &o.UserID, &o.ContractID, &o.AnswerID, &outcome,
		&o.LimitProb, &o.Amount, &o.Remaining, &status, &o.CreatedAt,
	)
	if err != nil {
		return domain.LimitOrder{}, err
	}
	o.Outcome = domain.Outcome(outcome)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

// Create inserts a new resting order.
func (s *OrderStore) Create(ctx context.Context, o domain.LimitOrder) error {
	const query = `
		INSERT INTO limit_orders (
			id, user_id, contract_id, answer_id, outcome,
			limit_prob, amount, remaining, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.UserID, o.ContractID, o.AnswerID, string(o.Outcome),
		o.LimitProb, o.Amount, o.Remaining, string(o.Status), o.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// GetByID retrieves an order by primary key.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.LimitOrder, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderCols+` FROM limit_orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LimitOrder{}, domain.ErrNotFound
		}
		return domain.LimitOrder{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// Cancel marks an open order cancelled. Orders already filled or cancelled
// are left untouched and reported as domain.ErrNotFound.
func (s *OrderStore) Cancel(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE limit_orders SET status = 'cancelled' WHERE id = $1 AND status = 'open'`, id)
	if err != nil {
		return fmt.Errorf("postgres: cancel order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListOpenByContract returns a contract's open orders in placement order,
// the order the matcher consumes them in.
func (s *OrderStore) ListOpenByContract(ctx context.Context, contractID string) ([]domain.LimitOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderCols+` FROM limit_orders
		 WHERE contract_id = $1 AND status = 'open' AND remaining > 0
		 ORDER BY created_at ASC`, contractID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open orders for %s: %w", contractID, err)
	}
	defer rows.Close()
	return scanOrderRows(rows)
}

// ListByUser returns a user's orders with pagination, newest first.
func (s *OrderStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.LimitOrder, error) {
	query := `SELECT ` + orderCols + ` FROM limit_orders WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{userID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by user: %w", err)
	}
	defer rows.Close()
	return scanOrderRows(rows)
}

func scanOrderRows(rows pgx.Rows) ([]domain.LimitOrder, error) {
	var orders []domain.LimitOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders rows: %w", err)
	}
	return orders, nil
}
