package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketfold/venue/internal/domain"
)

// TradeStore applies engine results transactionally: the contract's new pool
// state, the bet and provision records, matched-order updates, and every
// balance delta commit together or not at all. The per-contract lock keeps
// concurrent trades serialized; this transaction keeps a crash from leaving
// half a trade behind.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Commit atomically applies one engine result. A balance delta that would
// take a user below zero aborts the whole commit with
// domain.ErrInsufficientBalance.
func (s *TradeStore) Commit(ctx context.Context, tc domain.TradeCommit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin trade commit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if tc.Contract != nil {
		if err := updateContract(ctx, tx, *tc.Contract); err != nil {
			return err
		}
	}
	if err := insertBets(ctx, tx, tc.Bets); err != nil {
		return err
	}
	if err := insertProvisions(ctx, tx, tc.Provisions); err != nil {
		return err
	}
	if err := updateOrders(ctx, tx, tc.OrderUpdates); err != nil {
		return err
	}
	if err := applyBalanceDeltas(ctx, tx, tc.BalanceDeltas); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit trade: %w", err)
	}
	return nil
}

func updateContract(ctx context.Context, tx pgx.Tx, c domain.Contract) error {
	var resOutcome, resAnswerID *string
	var resValue *float64
	var resolvedAt any
	if c.Resolution != nil {
		if c.Resolution.Outcome != "" {
			o := string(c.Resolution.Outcome)
			resOutcome = &o
		}
		if c.Resolution.AnswerID != "" {
			a := c.Resolution.AnswerID
			resAnswerID = &a
		}
		resValue = c.Resolution.NumericValue
		resolvedAt = c.Resolution.ResolvedAt
	}

	tag, err := tx.Exec(ctx, `
		UPDATE contracts SET
			pool_yes = $2, pool_no = $3,
			resolved = $4, resolution_outcome = $5, resolution_answer_id = $6,
			resolution_value = $7, resolved_at = $8,
			updated_at = NOW()
		WHERE id = $1`,
		c.ID, c.Pool.Yes, c.Pool.No,
		c.Resolved, resOutcome, resAnswerID, resValue, resolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update contract %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	for _, a := range c.Answers {
		if _, err := tx.Exec(ctx, `
			UPDATE answers SET pool_yes = $2, pool_no = $3, probability = $4
			WHERE id = $1`,
			a.ID, a.Pool.Yes, a.Pool.No, a.Probability,
		); err != nil {
			return fmt.Errorf("postgres: update answer %s: %w", a.ID, err)
		}
	}
	return nil
}

func insertBets(ctx context.Context, tx pgx.Tx, bets []domain.Bet) error {
	if len(bets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO bets (
			id, user_id, contract_id, answer_id, outcome,
			amount, shares, prob_before, prob_after,
			pool_yes_after, pool_no_after, creator_fee, takers, sale_of, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15
		)`

	for _, b := range bets {
		var takersJSON []byte
		if len(b.Takers) > 0 {
			var err error
			if takersJSON, err = json.Marshal(b.Takers); err != nil {
				return fmt.Errorf("postgres: marshal takers for bet %s: %w", b.ID, err)
			}
		}
		batch.Queue(query,
			b.ID, b.UserID, b.ContractID, b.AnswerID, string(b.Outcome),
			b.Amount, b.Shares, b.ProbBefore, b.ProbAfter,
			b.PoolAfter.Yes, b.PoolAfter.No, b.CreatorFee, takersJSON, b.SaleOf, b.CreatedAt,
		)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for i := range bets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert bet batch item %d: %w", i, err)
		}
	}
	return nil
}

func insertProvisions(ctx context.Context, tx pgx.Tx, provisions []domain.LiquidityProvision) error {
	if len(provisions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO liquidity_provisions (
			id, user_id, contract_id, amount,
			reserve_yes, reserve_no, liquidity, bet_amount, bet_outcome, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for _, p := range provisions {
		batch.Queue(query,
			p.ID, p.UserID, p.ContractID, p.Amount,
			p.Reserves.Yes, p.Reserves.No, p.Liquidity,
			p.BetAmount, string(p.BetOutcome), p.CreatedAt,
		)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for i := range provisions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert provision batch item %d: %w", i, err)
		}
	}
	return nil
}

func updateOrders(ctx context.Context, tx pgx.Tx, orders []domain.LimitOrder) error {
	for _, o := range orders {
		tag, err := tx.Exec(ctx,
			`UPDATE limit_orders SET remaining = $2, status = $3 WHERE id = $1`,
			o.ID, o.Remaining, string(o.Status))
		if err != nil {
			return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
	}
	return nil
}

func applyBalanceDeltas(ctx context.Context, tx pgx.Tx, deltas map[string]float64) error {
	for userID, delta := range deltas {
		if delta == 0 {
			continue
		}
		var balance float64
		err := tx.QueryRow(ctx, `
			UPDATE users SET balance = balance + $2, updated_at = NOW()
			WHERE id = $1
			RETURNING balance`,
			userID, delta,
		).Scan(&balance)
		if err != nil {
			if err == pgx.ErrNoRows {
				return domain.ErrNotFound
			}
			return fmt.Errorf("postgres: apply balance delta for %s: %w", userID, err)
		}
		if balance < 0 {
			return domain.ErrInsufficientBalance
		}
	}
	return nil
}
