package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marketfold/venue/internal/domain"
	"github.com/marketfold/venue/internal/engine/cpmm"
	"github.com/marketfold/venue/internal/engine/numeric"
	"github.com/marketfold/venue/internal/engine/settle"
)

// ContractParams bounds contract creation.
type ContractParams struct {
	CreatorFeeRate float64
	MinAnte        float64
	MaxAnswers     int
	LockTTL        time.Duration
}

// ContractService creates, lists, and resolves contracts.
type ContractService struct {
	contracts domain.ContractStore
	bets      domain.BetStore
	users     domain.UserStore
	trades    domain.TradeStore
	locks     domain.LockManager
	cache     domain.ProbabilityCache
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger
	params    ContractParams
}

// NewContractService creates a ContractService with all required dependencies.
func NewContractService(
	contracts domain.ContractStore,
	bets domain.BetStore,
	users domain.UserStore,
	trades domain.TradeStore,
	locks domain.LockManager,
	cache domain.ProbabilityCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
	params ContractParams,
) *ContractService {
	return &ContractService{
		contracts: contracts,
		bets:      bets,
		users:     users,
		trades:    trades,
		locks:     locks,
		cache:     cache,
		bus:       bus,
		audit:     audit,
		logger:    logger,
		params:    params,
	}
}

// CreateContractRequest describes a new market. Exactly one of the mechanism
// blocks applies: binary contracts set InitialProb, numeric contracts set
// the range fields, free-response contracts set AnswerTexts.
type CreateContractRequest struct {
	CreatorID   string
	Question    string
	Description string
	Visibility  domain.Visibility
	Ranked      bool
	Ante        float64
	CloseTime   time.Time

	Mechanism string // "binary", "numeric", "free_response"

	InitialProb float64 // binary

	NumericMin     float64 // numeric
	NumericMax     float64
	NumericBuckets int

	AnswerTexts []string // free response
}

// CreateContract validates the request, seeds the pool(s) from the creator's
// ante, and persists the new contract.
func (s *ContractService) CreateContract(ctx context.Context, req CreateContractRequest) (domain.Contract, error) {
	if strings.TrimSpace(req.Question) == "" {
		return domain.Contract{}, domain.Validation("question", 0, "must not be empty")
	}
	if req.Ante < s.params.MinAnte {
		return domain.Contract{}, domain.Validation("ante", req.Ante,
			fmt.Sprintf("must be at least %v", s.params.MinAnte))
	}
	if req.Visibility == "" {
		req.Visibility = domain.VisibilityPublic
	}

	creator, err := s.users.GetByID(ctx, req.CreatorID)
	if err != nil {
		return domain.Contract{}, fmt.Errorf("contract_service: get creator: %w", err)
	}
	if creator.Balance < req.Ante {
		return domain.Contract{}, domain.ErrInsufficientBalance
	}

	now := time.Now().UTC()
	c := domain.Contract{
		ID:             uuid.New().String(),
		Slug:           slugify(req.Question),
		Question:       req.Question,
		Description:    req.Description,
		CreatorID:      req.CreatorID,
		Visibility:     req.Visibility,
		Ranked:         req.Ranked,
		CreatorFeeRate: s.params.CreatorFeeRate,
		Ante:           req.Ante,
		CloseTime:      req.CloseTime,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	switch req.Mechanism {
	case "binary":
		pool, err := cpmm.InitialPool(req.InitialProb, req.Ante)
		if err != nil {
			return domain.Contract{}, fmt.Errorf("contract_service: seed pool: %w", err)
		}
		c.OutcomeType = domain.Binary{}
		c.Pool = pool

	case "numeric":
		ranges, err := numeric.BucketRanges(req.NumericMin, req.NumericMax, req.NumericBuckets)
		if err != nil {
			return domain.Contract{}, fmt.Errorf("contract_service: bucket ranges: %w", err)
		}
		if len(ranges) > s.params.MaxAnswers {
			return domain.Contract{}, domain.Validation("buckets", float64(len(ranges)),
				fmt.Sprintf("must not exceed %d", s.params.MaxAnswers))
		}
		c.OutcomeType = domain.Numeric{Min: req.NumericMin, Max: req.NumericMax, Buckets: len(ranges)}
		c.Answers, err = seedAnswers(c.ID, len(ranges), req.Ante, now, func(i int) (string, domain.NumericRange) {
			r := ranges[i]
			return fmt.Sprintf("%v-%v", r.Lo, r.Hi), r
		})
		if err != nil {
			return domain.Contract{}, err
		}

	case "free_response":
		n := len(req.AnswerTexts)
		if n < 2 {
			return domain.Contract{}, domain.Validation("answers", float64(n), "need at least two answers")
		}
		if n > s.params.MaxAnswers {
			return domain.Contract{}, domain.Validation("answers", float64(n),
				fmt.Sprintf("must not exceed %d", s.params.MaxAnswers))
		}
		c.OutcomeType = domain.FreeResponse{}
		var err error
		c.Answers, err = seedAnswers(c.ID, n, req.Ante, now, func(i int) (string, domain.NumericRange) {
			return req.AnswerTexts[i], domain.NumericRange{}
		})
		if err != nil {
			return domain.Contract{}, err
		}

	default:
		return domain.Contract{}, domain.Validation("mechanism", 0, "unknown mechanism "+req.Mechanism)
	}

	if err := s.contracts.Create(ctx, c); err != nil {
		return domain.Contract{}, fmt.Errorf("contract_service: create contract: %w", err)
	}

	// The ante debit, the initial liquidity provision, and (for a skewed
	// binary pool) the creator's ante bet on the lean side land in one
	// atomic commit.
	tc := domain.TradeCommit{
		BalanceDeltas: map[string]float64{req.CreatorID: -req.Ante},
	}
	if _, ok := c.OutcomeType.(domain.Binary); ok {
		tc.Provisions = append(tc.Provisions, domain.LiquidityProvision{
			ID:         uuid.New().String(),
			UserID:     req.CreatorID,
			ContractID: c.ID,
			Amount:     req.Ante,
			Reserves:   c.Pool,
			Liquidity:  cpmm.Liquidity(c.Pool),
			CreatedAt:  now,
		})
		if skew := math.Abs(c.Pool.Yes - c.Pool.No); skew > 0 {
			side := domain.OutcomeYes
			if c.Pool.Yes > c.Pool.No { // more in YES pool means prob leans NO
				side = domain.OutcomeNo
			}
			prob := cpmm.Probability(c.Pool)
			tc.Bets = append(tc.Bets, domain.Bet{
				ID:         uuid.New().String(),
				UserID:     req.CreatorID,
				ContractID: c.ID,
				Outcome:    side,
				Amount:     skew,
				Shares:     skew,
				ProbBefore: prob,
				ProbAfter:  prob,
				PoolAfter:  c.Pool,
				CreatedAt:  now,
			})
		}
	}
	if err := s.trades.Commit(ctx, tc); err != nil {
		return domain.Contract{}, fmt.Errorf("contract_service: commit ante: %w", err)
	}

	evt, _ := json.Marshal(map[string]string{
		"event":    "contract_created",
		"contract": c.ID,
		"slug":     c.Slug,
	})
	if pubErr := s.bus.Publish(ctx, "contracts", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "contract_service: publish event failed",
			slog.String("contract_id", c.ID),
			slog.String("error", pubErr.Error()),
		)
	}
	if auditErr := s.audit.Log(ctx, "contract_created", map[string]any{
		"contract":  c.ID,
		"creator":   c.CreatorID,
		"mechanism": req.Mechanism,
		"ante":      c.Ante,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "contract_service: audit log failed",
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "contract_service: contract created",
		slog.String("contract_id", c.ID),
		slog.String("slug", c.Slug),
		slog.String("mechanism", req.Mechanism),
	)
	return c, nil
}

// GetContract returns a contract by id.
func (s *ContractService) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	c, err := s.contracts.GetByID(ctx, id)
	if err != nil {
		return domain.Contract{}, fmt.Errorf("contract_service: get contract %q: %w", id, err)
	}
	return c, nil
}

// GetContractBySlug returns a contract by slug.
func (s *ContractService) GetContractBySlug(ctx context.Context, slug string) (domain.Contract, error) {
	c, err := s.contracts.GetBySlug(ctx, slug)
	if err != nil {
		return domain.Contract{}, fmt.Errorf("contract_service: get contract %q: %w", slug, err)
	}
	return c, nil
}

// ListOpen returns open contracts with pagination.
func (s *ContractService) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Contract, error) {
	cs, err := s.contracts.ListOpen(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("contract_service: list open: %w", err)
	}
	return cs, nil
}

// ListResolved returns resolved contracts with pagination.
func (s *ContractService) ListResolved(ctx context.Context, opts domain.ListOpts) ([]domain.Contract, error) {
	cs, err := s.contracts.ListResolved(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("contract_service: list resolved: %w", err)
	}
	return cs, nil
}

// ExpectedValue returns the probability-weighted value estimate of a numeric
// contract.
func (s *ContractService) ExpectedValue(ctx context.Context, id string) (float64, error) {
	c, err := s.contracts.GetByID(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("contract_service: get contract %q: %w", id, err)
	}
	if _, ok := c.OutcomeType.(domain.Numeric); !ok {
		return 0, domain.Validation("contractId", 0, "contract is not numeric")
	}
	return numeric.ExpectedValue(c.Answers), nil
}

// ResolveRequest names the winning state of a contract. Binary contracts set
// Outcome; free-response contracts set AnswerID; numeric contracts set Value,
// from which the winning bucket is derived.
type ResolveRequest struct {
	ContractID string
	ResolverID string
	Outcome    domain.Outcome
	AnswerID   string
	Value      *float64
}

// Resolve marks the contract resolved and pays every position at terminal
// share value. Bets whose payout computes to a non-finite number are skipped
// and logged rather than aborting the whole resolution.
func (s *ContractService) Resolve(ctx context.Context, req ResolveRequest) (domain.Contract, error) {
	unlock, err := s.locks.Acquire(ctx, contractLockKey(req.ContractID), s.params.LockTTL)
	if err != nil {
		return domain.Contract{}, fmt.Errorf("contract_service: acquire lock: %w", err)
	}
	defer unlock()

	c, err := s.contracts.GetByID(ctx, req.ContractID)
	if err != nil {
		return domain.Contract{}, fmt.Errorf("contract_service: get contract: %w", err)
	}
	if c.Resolved {
		return domain.Contract{}, domain.ErrMarketClosed
	}
	if c.CreatorID != req.ResolverID {
		return domain.Contract{}, domain.ErrUnauthorized
	}

	res := &domain.Resolution{ResolvedAt: time.Now().UTC()}
	switch c.OutcomeType.(type) {
	case domain.Binary:
		if !req.Outcome.Valid() {
			return domain.Contract{}, domain.Validation("outcome", 0, "must be YES or NO")
		}
		res.Outcome = req.Outcome
	case domain.Numeric:
		if req.Value == nil {
			return domain.Contract{}, domain.Validation("value", 0, "numeric resolution needs a value")
		}
		res.NumericValue = req.Value
	case domain.FreeResponse:
		if _, ok := c.Answer(req.AnswerID); !ok {
			return domain.Contract{}, domain.Validation("answerId", 0, "unknown answer "+req.AnswerID)
		}
		res.AnswerID = req.AnswerID
	}
	c.Resolved = true
	c.Resolution = res
	c.UpdatedAt = res.ResolvedAt

	// For numeric contracts the winning bucket doubles as the resolution
	// answer id so payout lookups stay uniform.
	if res.NumericValue != nil {
		winner, err := settle.WinningAnswer(c, *res.NumericValue)
		if err != nil {
			return domain.Contract{}, fmt.Errorf("contract_service: winning bucket: %w", err)
		}
		res.AnswerID = winner
	}

	deltas, skipped, err := s.payouts(ctx, c)
	if err != nil {
		return domain.Contract{}, err
	}
	for _, sk := range skipped {
		s.logger.WarnContext(ctx, "contract_service: skipped degenerate payout",
			slog.String("contract_id", sk.ContractID),
			slog.String("bet_id", sk.BetID),
			slog.String("reason", sk.Reason),
		)
	}

	commit := domain.TradeCommit{
		Contract:      &c,
		BalanceDeltas: deltas,
	}
	if err := s.trades.Commit(ctx, commit); err != nil {
		return domain.Contract{}, fmt.Errorf("contract_service: commit resolution: %w", err)
	}

	if cacheErr := s.cache.Invalidate(ctx, c.ID); cacheErr != nil {
		s.logger.WarnContext(ctx, "contract_service: cache invalidate failed",
			slog.String("contract_id", c.ID),
			slog.String("error", cacheErr.Error()),
		)
	}

	evt, _ := json.Marshal(map[string]string{
		"event":    "contract_resolved",
		"contract": c.ID,
	})
	if pubErr := s.bus.Publish(ctx, "resolutions", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "contract_service: publish event failed",
			slog.String("contract_id", c.ID),
			slog.String("error", pubErr.Error()),
		)
	}
	if auditErr := s.audit.Log(ctx, "contract_resolved", map[string]any{
		"contract": c.ID,
		"resolver": req.ResolverID,
		"payouts":  len(deltas),
		"skipped":  len(skipped),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "contract_service: audit log failed",
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "contract_service: contract resolved",
		slog.String("contract_id", c.ID),
		slog.Int("payouts", len(deltas)),
		slog.Int("skipped", len(skipped)),
	)
	return c, nil
}

// payouts walks every bet on the contract and credits terminal share value.
func (s *ContractService) payouts(ctx context.Context, c domain.Contract) (map[string]float64, []settle.Skipped, error) {
	deltas := map[string]float64{}
	var skipped []settle.Skipped

	opts := domain.ListOpts{Limit: payoutPageSize}
	for {
		bets, err := s.bets.ListByContract(ctx, c.ID, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("contract_service: load bets: %w", err)
		}
		for _, b := range bets {
			v, err := settle.ShareValue(c, b)
			if err != nil {
				skipped = append(skipped, settle.Skipped{
					ContractID: c.ID, BetID: b.ID, Reason: err.Error(),
				})
				continue
			}
			if payout := v * b.Shares; payout != 0 {
				deltas[b.UserID] += payout
			}
		}
		if len(bets) < opts.Limit {
			break
		}
		opts.Offset += opts.Limit
	}
	return deltas, skipped, nil
}

const payoutPageSize = 500

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// slugify derives a URL slug from the question plus a short random suffix to
// keep slugs unique without a reservation step.
func slugify(question string) string {
	s := strings.ToLower(strings.TrimSpace(question))
	s = slugStrip.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 60 {
		s = s[:60]
	}
	return s + "-" + uuid.New().String()[:8]
}

// seedAnswers builds n answers, each backed by an even share of the ante at
// uniform probability 1/n.
func seedAnswers(contractID string, n int, ante float64, now time.Time, describe func(i int) (string, domain.NumericRange)) ([]domain.Answer, error) {
	prob := 1 / float64(n)
	answers := make([]domain.Answer, 0, n)
	for i := 0; i < n; i++ {
		pool, err := cpmm.InitialPool(prob, ante/float64(n))
		if err != nil {
			return nil, fmt.Errorf("contract_service: seed answer pool: %w", err)
		}
		text, rng := describe(i)
		answers = append(answers, domain.Answer{
			ID:          uuid.New().String(),
			ContractID:  contractID,
			Index:       i,
			Text:        text,
			Range:       rng,
			Pool:        pool,
			Probability: cpmm.Probability(pool),
			CreatedAt:   now,
		})
	}
	return answers, nil
}
