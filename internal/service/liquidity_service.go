package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/marketfold/venue/internal/domain"
	"github.com/marketfold/venue/internal/engine/cpmm"
)

// LiquidityService manages pool subsidies on binary contracts.
type LiquidityService struct {
	contracts  domain.ContractStore
	provisions domain.LiquidityStore
	users      domain.UserStore
	trades     domain.TradeStore
	locks      domain.LockManager
	cache      domain.ProbabilityCache
	bus        domain.SignalBus
	audit      domain.AuditStore
	logger     *slog.Logger
	lockTTL    time.Duration
}

// NewLiquidityService creates a LiquidityService with all required
// dependencies.
func NewLiquidityService(
	contracts domain.ContractStore,
	provisions domain.LiquidityStore,
	users domain.UserStore,
	trades domain.TradeStore,
	locks domain.LockManager,
	cache domain.ProbabilityCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
	lockTTL time.Duration,
) *LiquidityService {
	return &LiquidityService{
		contracts:  contracts,
		provisions: provisions,
		users:      users,
		trades:     trades,
		locks:      locks,
		cache:      cache,
		bus:        bus,
		audit:      audit,
		logger:     logger,
		lockTTL:    lockTTL,
	}
}

// Add contributes amount to a binary contract's pool at its current implied
// probability, leaving the price unchanged.
func (s *LiquidityService) Add(ctx context.Context, userID, contractID string, amount float64) (domain.LiquidityProvision, error) {
	unlock, err := s.locks.Acquire(ctx, contractLockKey(contractID), s.lockTTL)
	if err != nil {
		return domain.LiquidityProvision{}, fmt.Errorf("liquidity_service: acquire lock: %w", err)
	}
	defer unlock()

	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return domain.LiquidityProvision{}, fmt.Errorf("liquidity_service: get contract: %w", err)
	}
	if !c.Open() {
		return domain.LiquidityProvision{}, domain.ErrMarketClosed
	}
	if _, ok := c.OutcomeType.(domain.Binary); !ok {
		return domain.LiquidityProvision{}, domain.Validation("contractId", 0, "contract is not binary")
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return domain.LiquidityProvision{}, fmt.Errorf("liquidity_service: get user: %w", err)
	}
	if u.Balance < amount {
		return domain.LiquidityProvision{}, domain.ErrInsufficientBalance
	}

	res, err := cpmm.AddLiquidity(c.Pool, amount)
	if err != nil {
		return domain.LiquidityProvision{}, fmt.Errorf("liquidity_service: add: %w", err)
	}

	prov := domain.LiquidityProvision{
		ID:         uuid.New().String(),
		UserID:     userID,
		ContractID: c.ID,
		Amount:     amount,
		Reserves: domain.Pool{
			Yes: res.NewPool.Yes - c.Pool.Yes,
			No:  res.NewPool.No - c.Pool.No,
		},
		Liquidity:  res.LiquidityDelta,
		BetAmount:  res.BetAmount,
		BetOutcome: res.BetOutcome,
		CreatedAt:  time.Now().UTC(),
	}
	c.Pool = res.NewPool

	commit := domain.TradeCommit{
		Contract:      &c,
		Provisions:    []domain.LiquidityProvision{prov},
		BalanceDeltas: map[string]float64{userID: -amount},
	}
	if err := s.trades.Commit(ctx, commit); err != nil {
		return domain.LiquidityProvision{}, fmt.Errorf("liquidity_service: commit add: %w", err)
	}

	s.publish(ctx, "liquidity_added", prov)
	s.auditLog(ctx, "liquidity_added", prov)

	s.logger.InfoContext(ctx, "liquidity_service: liquidity added",
		slog.String("contract_id", c.ID),
		slog.Float64("amount", amount),
		slog.Float64("liquidity", res.LiquidityDelta),
	)
	return prov, nil
}

// Remove withdraws the given liquidity measure from the pool. The payout is
// the smaller reserve side; the rest stays in the pool as an implicit
// directional position.
func (s *LiquidityService) Remove(ctx context.Context, userID, contractID string, liquidity float64) (domain.LiquidityProvision, error) {
	unlock, err := s.locks.Acquire(ctx, contractLockKey(contractID), s.lockTTL)
	if err != nil {
		return domain.LiquidityProvision{}, fmt.Errorf("liquidity_service: acquire lock: %w", err)
	}
	defer unlock()

	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return domain.LiquidityProvision{}, fmt.Errorf("liquidity_service: get contract: %w", err)
	}
	if !c.Open() {
		return domain.LiquidityProvision{}, domain.ErrMarketClosed
	}
	if _, ok := c.OutcomeType.(domain.Binary); !ok {
		return domain.LiquidityProvision{}, domain.Validation("contractId", 0, "contract is not binary")
	}

	held, err := s.heldLiquidity(ctx, contractID, userID)
	if err != nil {
		return domain.LiquidityProvision{}, err
	}
	if liquidity <= 0 || liquidity > held+1e-9 {
		return domain.LiquidityProvision{}, domain.Validation("liquidity", liquidity,
			fmt.Sprintf("must be in (0, %v]", held))
	}

	res, err := cpmm.RemoveLiquidity(c.Pool, liquidity)
	if err != nil {
		return domain.LiquidityProvision{}, fmt.Errorf("liquidity_service: remove: %w", err)
	}

	prov := domain.LiquidityProvision{
		ID:         uuid.New().String(),
		UserID:     userID,
		ContractID: c.ID,
		Amount:     -res.Payout,
		Reserves: domain.Pool{
			Yes: res.NewPool.Yes - c.Pool.Yes,
			No:  res.NewPool.No - c.Pool.No,
		},
		Liquidity:  -liquidity,
		BetAmount:  res.BetAmount,
		BetOutcome: res.BetOutcome,
		CreatedAt:  time.Now().UTC(),
	}
	c.Pool = res.NewPool

	commit := domain.TradeCommit{
		Contract:      &c,
		Provisions:    []domain.LiquidityProvision{prov},
		BalanceDeltas: map[string]float64{userID: res.Payout},
	}
	if err := s.trades.Commit(ctx, commit); err != nil {
		return domain.LiquidityProvision{}, fmt.Errorf("liquidity_service: commit remove: %w", err)
	}

	s.publish(ctx, "liquidity_removed", prov)
	s.auditLog(ctx, "liquidity_removed", prov)

	s.logger.InfoContext(ctx, "liquidity_service: liquidity removed",
		slog.String("contract_id", c.ID),
		slog.Float64("liquidity", liquidity),
		slog.Float64("payout", res.Payout),
	)
	return prov, nil
}

// ListByContract returns a contract's provision history.
func (s *LiquidityService) ListByContract(ctx context.Context, contractID string) ([]domain.LiquidityProvision, error) {
	provs, err := s.provisions.ListByContract(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("liquidity_service: list by contract %q: %w", contractID, err)
	}
	return provs, nil
}

// heldLiquidity nets the user's provision history on one contract.
func (s *LiquidityService) heldLiquidity(ctx context.Context, contractID, userID string) (float64, error) {
	provs, err := s.provisions.ListByContract(ctx, contractID)
	if err != nil {
		return 0, fmt.Errorf("liquidity_service: load provisions: %w", err)
	}
	var held float64
	for _, p := range provs {
		if p.UserID == userID {
			held += p.Liquidity
		}
	}
	return held, nil
}

func (s *LiquidityService) publish(ctx context.Context, event string, prov domain.LiquidityProvision) {
	evt, _ := json.Marshal(map[string]any{
		"event":     event,
		"contract":  prov.ContractID,
		"amount":    prov.Amount,
		"liquidity": prov.Liquidity,
	})
	if err := s.bus.Publish(ctx, "liquidity", evt); err != nil {
		s.logger.WarnContext(ctx, "liquidity_service: publish event failed",
			slog.String("contract_id", prov.ContractID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *LiquidityService) auditLog(ctx context.Context, event string, prov domain.LiquidityProvision) {
	if err := s.audit.Log(ctx, event, map[string]any{
		"provision": prov.ID,
		"user_id":   prov.UserID,
		"contract":  prov.ContractID,
		"amount":    prov.Amount,
		"liquidity": prov.Liquidity,
	}); err != nil {
		s.logger.WarnContext(ctx, "liquidity_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
