package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketfold/venue/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL. Bet rows are
// append-only; inserts happen through TradeStore.Commit.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

const betCols = `id, user_id, contract_id, answer_id, outcome,
	amount, shares, prob_before, prob_after,
	pool_yes_after, pool_no_after, creator_fee, takers, sale_of, created_at`

func scanBet(row pgx.Row) (domain.Bet, error) {
	var (
		b          domain.Bet
		outcome    string
		takersJSON []byte
	)
	err := row.Scan(
		&b.ID, &b.UserID, &b.ContractID, &b.AnswerID, &outcome,
		&b.Amount, &b.Shares, &b.ProbBefore, &b.ProbAfter,
		&b.PoolAfter.Yes, &b.PoolAfter.No, &b.CreatorFee, &takersJSON, &b.SaleOf, &b.CreatedAt,
	)
	if err != nil {
		return domain.Bet{}, err
	}
	b.Outcome = domain.Outcome(outcome)
	if takersJSON != nil {
		if err := json.Unmarshal(takersJSON, &b.Takers); err != nil {
			return domain.Bet{}, fmt.Errorf("postgres: unmarshal bet takers: %w", err)
		}
	}
	return b, nil
}

// GetByID retrieves a bet by primary key.
func (s *BetStore) GetByID(ctx context.Context, id string) (domain.Bet, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+betCols+` FROM bets WHERE id = $1`, id)
	b, err := scanBet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}
	return b, nil
}

// ListByContract returns a contract's bets with pagination and optional time
// filtering, newest first.
func (s *BetStore) ListByContract(ctx context.Context, contractID string, opts domain.ListOpts) ([]domain.Bet, error) {
	return s.list(ctx, `contract_id = $1`, contractID, opts)
}

// ListByUser returns a user's bets with pagination and optional time
// filtering, newest first.
func (s *BetStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	return s.list(ctx, `user_id = $1`, userID, opts)
}

// ListByContractUser returns every bet one user placed on one contract, in
// placement order. Sale accounting needs the full history, so there is no
// pagination.
func (s *BetStore) ListByContractUser(ctx context.Context, contractID, userID string) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betCols+` FROM bets WHERE contract_id = $1 AND user_id = $2 ORDER BY created_at ASC`,
		contractID, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets by contract+user: %w", err)
	}
	defer rows.Close()
	return scanBetRows(rows)
}

func (s *BetStore) list(ctx context.Context, where, key string, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betCols + ` FROM bets WHERE ` + where
	args := []any{key}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list bets: %w", err)
	}
	defer rows.Close()
	return scanBetRows(rows)
}

func scanBetRows(rows pgx.Rows) ([]domain.Bet, error) {
	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bets rows: %w", err)
	}
	return bets, nil
}
