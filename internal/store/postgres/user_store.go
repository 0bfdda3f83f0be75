package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketfold/venue/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Create inserts a new account. A duplicate id or username surfaces as
// domain.ErrAlreadyExists.
func (s *UserStore) Create(ctx context.Context, u domain.User) error {
	const query = `
		INSERT INTO users (id, username, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())`

	_, err := s.pool.Exec(ctx, query, u.ID, u.Username, u.Balance, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create user %s: %w", u.ID, err)
	}
	return nil
}

// GetByID retrieves a user by primary key.
func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, balance, created_at, updated_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.Balance, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", id, err)
	}
	return u, nil
}

// Balances returns the current balance of each requested user. Unknown ids
// are simply absent from the snapshot.
func (s *UserStore) Balances(ctx context.Context, userIDs []string) (domain.BalanceSnapshot, error) {
	snapshot := make(domain.BalanceSnapshot, len(userIDs))
	if len(userIDs) == 0 {
		return snapshot, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, balance FROM users WHERE id = ANY($1)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: load balances: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var balance float64
		if err := rows.Scan(&id, &balance); err != nil {
			return nil, fmt.Errorf("postgres: scan balance: %w", err)
		}
		snapshot[id] = balance
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load balances rows: %w", err)
	}
	return snapshot, nil
}

// Credit applies a signed balance change to one user outside of a trade
// commit (signup grants, manual adjustments).
func (s *UserStore) Credit(ctx context.Context, userID string, amount float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET balance = balance + $2, updated_at = NOW() WHERE id = $1`,
		userID, amount)
	if err != nil {
		return fmt.Errorf("postgres: credit user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
