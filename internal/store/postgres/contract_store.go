package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketfold/venue/internal/domain"
)

// ContractStore implements domain.ContractStore using PostgreSQL.
type ContractStore struct {
	pool *pgxpool.Pool
}

// NewContractStore creates a new ContractStore backed by the given connection pool.
func NewContractStore(pool *pgxpool.Pool) *ContractStore {
	return &ContractStore{pool: pool}
}

const contractCols = `id, slug, question, description, creator_id, mechanism,
	numeric_min, numeric_max, numeric_buckets,
	pool_yes, pool_no, visibility, ranked, creator_fee_rate, ante,
	resolved, resolution_outcome, resolution_answer_id, resolution_value, resolved_at,
	close_time, created_at, updated_at`

const insertContract = `
	INSERT INTO contracts (
		id, slug, question, description, creator_id, mechanism,
		numeric_min, numeric_max, numeric_buckets,
		pool_yes, pool_no, visibility, ranked, creator_fee_rate, ante,
		resolved, resolution_outcome, resolution_answer_id, resolution_value, resolved_at,
		close_time, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9,
		$10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20,
		$21, $22, NOW()
	)`

const insertAnswer = `
	INSERT INTO answers (
		id, contract_id, idx, text, range_lo, range_hi,
		pool_yes, pool_no, probability, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// Create inserts a contract together with its answers in a single
// transaction. A duplicate id or slug surfaces as domain.ErrAlreadyExists.
func (s *ContractStore) Create(ctx context.Context, c domain.Contract) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin create contract: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, insertContract, contractArgs(c)...); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert contract %s: %w", c.ID, err)
	}

	for _, a := range c.Answers {
		if _, err := tx.Exec(ctx, insertAnswer,
			a.ID, c.ID, a.Index, a.Text, a.Range.Lo, a.Range.Hi,
			a.Pool.Yes, a.Pool.No, a.Probability, a.CreatedAt,
		); err != nil {
			return fmt.Errorf("postgres: insert answer %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit create contract %s: %w", c.ID, err)
	}
	return nil
}

// contractArgs flattens a contract into insert/update arguments, splitting
// the mechanism variant into its column encoding.
func contractArgs(c domain.Contract) []any {
	var (
		mechanism  string
		numMin     *float64
		numMax     *float64
		numBuckets *int
	)
	switch ot := c.OutcomeType.(type) {
	case domain.Binary:
		mechanism = "binary"
	case domain.Numeric:
		mechanism = "numeric"
		numMin, numMax = &ot.Min, &ot.Max
		numBuckets = &ot.Buckets
	case domain.FreeResponse:
		mechanism = "free_response"
	}

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

	var closeTime any
	if !c.CloseTime.IsZero() {
		closeTime = c.CloseTime
	}

	return []any{
		c.ID, c.Slug, c.Question, c.Description, c.CreatorID, mechanism,
		numMin, numMax, numBuckets,
		c.Pool.Yes, c.Pool.No, string(c.Visibility), c.Ranked, c.CreatorFeeRate, c.Ante,
		c.Resolved, resOutcome, resAnswerID, resValue, resolvedAt,
		closeTime, c.CreatedAt,
	}
}

// scanContract scans one contract row, reassembling the mechanism variant
// and resolution from their column encoding. Answers are loaded separately.
func scanContract(row pgx.Row) (domain.Contract, error) {
	var (
		c          domain.Contract
		mechanism  string
		visibility string
		numMin     *float64
		numMax     *float64
		numBuckets *int
		resOutcome *string
		resAnswer  *string
		resValue   *float64
		resAt      *time.Time
		closeTime  *time.Time
	)
	err := row.Scan(
		&c.ID, &c.Slug, &c.Question, &c.Description, &c.CreatorID, &mechanism,
		&numMin, &numMax, &numBuckets,
		&c.Pool.Yes, &c.Pool.No, &visibility, &c.Ranked, &c.CreatorFeeRate, &c.Ante,
		&c.Resolved, &resOutcome, &resAnswer, &resValue, &resAt,
		&closeTime, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return domain.Contract{}, err
	}

	switch mechanism {
	case "binary":
		c.OutcomeType = domain.Binary{}
	case "numeric":
		nt := domain.Numeric{}
		if numMin != nil {
			nt.Min = *numMin
		}
		if numMax != nil {
			nt.Max = *numMax
		}
		if numBuckets != nil {
			nt.Buckets = *numBuckets
		}
		c.OutcomeType = nt
	case "free_response":
		c.OutcomeType = domain.FreeResponse{}
	}

	c.Visibility = domain.Visibility(visibility)
	if closeTime != nil {
		c.CloseTime = *closeTime
	}
	if c.Resolved || resOutcome != nil || resAnswer != nil || resValue != nil {
		res := &domain.Resolution{NumericValue: resValue}
		if resOutcome != nil {
			res.Outcome = domain.Outcome(*resOutcome)
		}
		if resAnswer != nil {
			res.AnswerID = *resAnswer
		}
		if resAt != nil {
			res.ResolvedAt = *resAt
		}
		c.Resolution = res
	}
	return c, nil
}

// GetByID retrieves a contract and its answers by primary key.
func (s *ContractStore) GetByID(ctx context.Context, id string) (domain.Contract, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contractCols+` FROM contracts WHERE id = $1`, id)
	return s.finishGet(ctx, row, "get contract "+id)
}

// GetBySlug retrieves a contract and its answers by URL slug.
func (s *ContractStore) GetBySlug(ctx context.Context, slug string) (domain.Contract, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contractCols+` FROM contracts WHERE slug = $1`, slug)
	return s.finishGet(ctx, row, "get contract by slug "+slug)
}

func (s *ContractStore) finishGet(ctx context.Context, row pgx.Row, op string) (domain.Contract, error) {
	c, err := scanContract(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Contract{}, domain.ErrNotFound
		}
		return domain.Contract{}, fmt.Errorf("postgres: %s: %w", op, err)
	}
	if c.Answers, err = s.loadAnswers(ctx, c.ID); err != nil {
		return domain.Contract{}, err
	}
	return c, nil
}

func (s *ContractStore) loadAnswers(ctx context.Context, contractID string) ([]domain.Answer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, contract_id, idx, text, range_lo, range_hi,
		       pool_yes, pool_no, probability, created_at
		FROM answers WHERE contract_id = $1 ORDER BY idx ASC`, contractID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load answers for %s: %w", contractID, err)
	}
	defer rows.Close()

	var answers []domain.Answer
	for rows.Next() {
		var a domain.Answer
		if err := rows.Scan(
			&a.ID, &a.ContractID, &a.Index, &a.Text, &a.Range.Lo, &a.Range.Hi,
			&a.Pool.Yes, &a.Pool.No, &a.Probability, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load answers rows: %w", err)
	}
	return answers, nil
}

// ListOpen returns unresolved contracts with pagination and optional time
// filtering, newest first. Answers are not loaded for listings.
func (s *ContractStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Contract, error) {
	return s.list(ctx, `NOT resolved AND (close_time IS NULL OR close_time > NOW())`, opts)
}

// ListResolved returns resolved contracts with pagination and optional time
// filtering, newest first.
func (s *ContractStore) ListResolved(ctx context.Context, opts domain.ListOpts) ([]domain.Contract, error) {
	return s.list(ctx, `resolved`, opts)
}

func (s *ContractStore) list(ctx context.Context, where string, opts domain.ListOpts) ([]domain.Contract, error) {
	query := `SELECT ` + contractCols + ` FROM contracts WHERE ` + where
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("postgres: list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []domain.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan contract: %w", err)
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list contracts rows: %w", err)
	}
	return contracts, nil
}

// Count returns the total number of contracts.
func (s *ContractStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM contracts").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count contracts: %w", err)
	}
	return count, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
