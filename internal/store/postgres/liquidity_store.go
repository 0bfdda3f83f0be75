package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketfold/venue/internal/domain"
)

// LiquidityStore implements domain.LiquidityStore using PostgreSQL.
// Provision rows are append-only; inserts happen through TradeStore.Commit.
type LiquidityStore struct {
	pool *pgxpool.Pool
}

// NewLiquidityStore creates a new LiquidityStore backed by the given connection pool.
func NewLiquidityStore(pool *pgxpool.Pool) *LiquidityStore {
	return &LiquidityStore{pool: pool}
}

const liquidityCols = `id, user_id, contract_id, amount,
	reserve_yes, reserve_no, liquidity, bet_amount, bet_outcome, created_at`

// ListByContract returns a contract's provisions in creation order.
func (s *LiquidityStore) ListByContract(ctx context.Context, contractID string) ([]domain.LiquidityProvision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+liquidityCols+` FROM liquidity_provisions
		 WHERE contract_id = $1 ORDER BY created_at ASC`, contractID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list liquidity for contract %s: %w", contractID, err)
	}
	defer rows.Close()
	return scanProvisionRows(rows)
}

// ListByUser returns a user's provisions across contracts in creation order.
func (s *LiquidityStore) ListByUser(ctx context.Context, userID string) ([]domain.LiquidityProvision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+liquidityCols+` FROM liquidity_provisions
		 WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list liquidity for user %s: %w", userID, err)
	}
	defer rows.Close()
	return scanProvisionRows(rows)
}

func scanProvisionRows(rows pgx.Rows) ([]domain.LiquidityProvision, error) {
	var provisions []domain.LiquidityProvision
	for rows.Next() {
		var p domain.LiquidityProvision
		var betOutcome string
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.ContractID, &p.Amount,
			&p.Reserves.Yes, &p.Reserves.No, &p.Liquidity,
			&p.BetAmount, &betOutcome, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan liquidity provision: %w", err)
		}
		p.BetOutcome = domain.Outcome(betOutcome)
		provisions = append(provisions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list liquidity rows: %w", err)
	}
	return provisions, nil
}
