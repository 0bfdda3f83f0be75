package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/marketfold/venue/internal/domain"
	"github.com/marketfold/venue/internal/engine/arb"
	"github.com/marketfold/venue/internal/engine/cpmm"
	"github.com/marketfold/venue/internal/engine/numeric"
)

// MarketParams carries the engine policy knobs every trade uses.
type MarketParams struct {
	CreatorFeeRate     float64
	MaxFillProbability float64
	LockTTL            time.Duration
	TradesPerMinute    int // per-user write rate limit, 0 disables
}

// TradeService executes bets and sales. Every write follows the same shape:
// acquire the contract lock, snapshot state, run the pure engine, commit the
// result atomically, then refresh the cache and publish events.
type TradeService struct {
	contracts domain.ContractStore
	bets      domain.BetStore
	orders    domain.OrderStore
	users     domain.UserStore
	trades    domain.TradeStore
	locks     domain.LockManager
	limiter   domain.RateLimiter
	cache     domain.ProbabilityCache
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger
	params    MarketParams
}

// NewTradeService creates a TradeService with all required dependencies.
func NewTradeService(
	contracts domain.ContractStore,
	bets domain.BetStore,
	orders domain.OrderStore,
	users domain.UserStore,
	trades domain.TradeStore,
	locks domain.LockManager,
	limiter domain.RateLimiter,
	cache domain.ProbabilityCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
	params MarketParams,
) *TradeService {
	return &TradeService{
		contracts: contracts,
		bets:      bets,
		orders:    orders,
		users:     users,
		trades:    trades,
		locks:     locks,
		limiter:   limiter,
		cache:     cache,
		bus:       bus,
		audit:     audit,
		logger:    logger,
		params:    params,
	}
}

// BuyRequest is a market buy against a binary contract's pool.
type BuyRequest struct {
	UserID     string
	ContractID string
	Outcome    domain.Outcome
	Amount     float64
}

// Buy purchases outcome shares on a binary contract.
func (s *TradeService) Buy(ctx context.Context, req BuyRequest) (domain.Bet, error) {
	if err := s.allowWrite(ctx, req.UserID); err != nil {
		return domain.Bet{}, err
	}
	unlock, err := s.locks.Acquire(ctx, contractLockKey(req.ContractID), s.params.LockTTL)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("trade_service: acquire lock: %w", err)
	}
	defer unlock()

	c, err := s.loadOpenContract(ctx, req.ContractID)
	if err != nil {
		return domain.Bet{}, err
	}
	if _, ok := c.OutcomeType.(domain.Binary); !ok {
		return domain.Bet{}, domain.Validation("contractId", 0, "contract is not binary")
	}
	if err := s.checkBalance(ctx, req.UserID, req.Amount); err != nil {
		return domain.Bet{}, err
	}

	res, err := cpmm.Purchase(c.Pool, req.Amount, req.Outcome)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("trade_service: purchase: %w", err)
	}

	bet := domain.Bet{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		ContractID: c.ID,
		Outcome:    req.Outcome,
		Amount:     req.Amount,
		Shares:     res.Shares,
		ProbBefore: cpmm.Probability(c.Pool),
		ProbAfter:  cpmm.Probability(res.NewPool),
		PoolAfter:  res.NewPool,
		CreatedAt:  time.Now().UTC(),
	}
	c.Pool = res.NewPool

	commit := domain.TradeCommit{
		Contract:      &c,
		Bets:          []domain.Bet{bet},
		BalanceDeltas: map[string]float64{req.UserID: -req.Amount},
	}
	if err := s.trades.Commit(ctx, commit); err != nil {
		return domain.Bet{}, fmt.Errorf("trade_service: commit buy: %w", err)
	}

	s.refreshProbability(ctx, c.ID, "", bet.ProbAfter)
	s.publishTrade(ctx, bet)
	s.auditTrade(ctx, "bet_placed", bet)

	s.logger.InfoContext(ctx, "trade_service: bet placed",
		slog.String("bet_id", bet.ID),
		slog.String("contract_id", c.ID),
		slog.String("outcome", string(bet.Outcome)),
		slog.Float64("amount", bet.Amount),
		slog.Float64("shares", bet.Shares),
	)
	return bet, nil
}

// SellRequest liquidates part of a user's position back into the pool.
type SellRequest struct {
	UserID     string
	ContractID string
	Outcome    domain.Outcome
	Shares     float64
}

// Sell sells outcome shares back to a binary contract's pool. The creator
// fee applies to the positive part of realized profit only.
func (s *TradeService) Sell(ctx context.Context, req SellRequest) (domain.Bet, error) {
	if err := s.allowWrite(ctx, req.UserID); err != nil {
		return domain.Bet{}, err
	}
	unlock, err := s.locks.Acquire(ctx, contractLockKey(req.ContractID), s.params.LockTTL)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("trade_service: acquire lock: %w", err)
	}
	defer unlock()

	c, err := s.loadOpenContract(ctx, req.ContractID)
	if err != nil {
		return domain.Bet{}, err
	}
	if _, ok := c.OutcomeType.(domain.Binary); !ok {
		return domain.Bet{}, domain.Validation("contractId", 0, "contract is not binary")
	}

	held, stake, saleOf, err := s.position(ctx, c.ID, req.UserID, "", req.Outcome)
	if err != nil {
		return domain.Bet{}, err
	}
	if req.Shares <= 0 || req.Shares > held+1e-9 {
		return domain.Bet{}, domain.Validation("shares", req.Shares,
			fmt.Sprintf("must be in (0, %v]", held))
	}

	// Attribute stake to the sold shares proportionally.
	basis := 0.0
	if held > 0 {
		basis = stake * req.Shares / held
	}

	res, err := cpmm.Sale(c.Pool, req.Shares, basis, req.Outcome, c.CreatorFeeRate)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("trade_service: sale: %w", err)
	}

	bet := domain.Bet{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		ContractID: c.ID,
		Outcome:    req.Outcome,
		Amount:     -res.SaleValue,
		Shares:     -req.Shares,
		ProbBefore: cpmm.Probability(c.Pool),
		ProbAfter:  cpmm.Probability(res.NewPool),
		PoolAfter:  res.NewPool,
		CreatorFee: res.CreatorFee,
		SaleOf:     saleOf,
		CreatedAt:  time.Now().UTC(),
	}
	c.Pool = res.NewPool

	deltas := map[string]float64{req.UserID: res.NetPayout}
	if res.CreatorFee > 0 {
		deltas[c.CreatorID] += res.CreatorFee
	}
	commit := domain.TradeCommit{
		Contract:      &c,
		Bets:          []domain.Bet{bet},
		BalanceDeltas: deltas,
	}
	if err := s.trades.Commit(ctx, commit); err != nil {
		return domain.Bet{}, fmt.Errorf("trade_service: commit sale: %w", err)
	}

	s.refreshProbability(ctx, c.ID, "", bet.ProbAfter)
	s.publishTrade(ctx, bet)
	s.auditTrade(ctx, "shares_sold", bet)

	s.logger.InfoContext(ctx, "trade_service: shares sold",
		slog.String("bet_id", bet.ID),
		slog.String("contract_id", c.ID),
		slog.Float64("shares", req.Shares),
		slog.Float64("payout", res.NetPayout),
		slog.Float64("creator_fee", res.CreatorFee),
	)
	return bet, nil
}

// MultiBuyRequest buys YES exposure across a subset of a multi-outcome
// contract's answers in one arbitrage-consistent fill.
type MultiBuyRequest struct {
	UserID     string
	ContractID string
	AnswerIDs  []string
	Amount     float64
}

// MultiBuy routes one stake across the chosen answers: resting limit orders
// are matched first, the pools absorb the rest, and every answer is repriced
// as the fill progresses.
func (s *TradeService) MultiBuy(ctx context.Context, req MultiBuyRequest) ([]domain.Bet, error) {
	if err := s.allowWrite(ctx, req.UserID); err != nil {
		return nil, err
	}
	unlock, err := s.locks.Acquire(ctx, contractLockKey(req.ContractID), s.params.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("trade_service: acquire lock: %w", err)
	}
	defer unlock()

	c, err := s.loadOpenContract(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}
	if _, ok := c.OutcomeType.(domain.Binary); ok {
		return nil, domain.Validation("contractId", 0, "contract has no answers")
	}
	if err := s.checkBalance(ctx, req.UserID, req.Amount); err != nil {
		return nil, err
	}

	orders, err := s.orders.ListOpenByContract(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("trade_service: load open orders: %w", err)
	}
	balances, err := s.makerBalances(ctx, orders)
	if err != nil {
		return nil, err
	}

	res, err := arb.Solve(c.Answers, req.AnswerIDs, req.Amount, orders, balances, arb.Config{
		MaxProbability: s.params.MaxFillProbability,
	})
	if err != nil {
		return nil, fmt.Errorf("trade_service: solve fills: %w", err)
	}

	now := time.Now().UTC()
	deltas := map[string]float64{req.UserID: -req.Amount}
	bets := make([]domain.Bet, 0, len(res.Fills))
	var makerBets []domain.Bet
	for _, f := range res.Fills {
		bet := domain.Bet{
			ID:         uuid.New().String(),
			UserID:     req.UserID,
			ContractID: c.ID,
			AnswerID:   f.AnswerID,
			Outcome:    domain.OutcomeYes,
			Amount:     f.Stake,
			Shares:     f.Shares,
			ProbBefore: f.ProbBefore,
			ProbAfter:  f.NewProbability,
			PoolAfter:  f.NewPool,
			Takers:     f.Takers,
			CreatedAt:  now,
		}
		bets = append(bets, bet)

		// Each matched maker funds the cover side and holds the resulting
		// NO position as a bet of their own, so resolution pays them when
		// their side wins.
		for _, tk := range f.Takers {
			cover := tk.Shares - tk.Amount
			deltas[tk.UserID] -= cover
			matchProb := tk.Amount / tk.Shares
			makerBets = append(makerBets, domain.Bet{
				ID:         uuid.New().String(),
				UserID:     tk.UserID,
				ContractID: c.ID,
				AnswerID:   f.AnswerID,
				Outcome:    domain.OutcomeNo,
				Amount:     cover,
				Shares:     tk.Shares,
				ProbBefore: matchProb,
				ProbAfter:  matchProb,
				PoolAfter:  f.NewPool,
				CreatedAt:  now,
			})
		}
	}
	c.Answers = res.UpdatedAnswers

	commit := domain.TradeCommit{
		Contract:      &c,
		Bets:          append(bets, makerBets...),
		OrderUpdates:  res.OrderUpdates,
		BalanceDeltas: deltas,
	}
	if err := s.trades.Commit(ctx, commit); err != nil {
		return nil, fmt.Errorf("trade_service: commit multi buy: %w", err)
	}

	for _, a := range res.UpdatedAnswers {
		s.refreshProbability(ctx, c.ID, a.ID, a.Probability)
	}
	for _, bet := range bets {
		s.publishTrade(ctx, bet)
	}
	if auditErr := s.audit.Log(ctx, "multi_bet_placed", map[string]any{
		"user_id":  req.UserID,
		"contract": c.ID,
		"amount":   req.Amount,
		"fills":    len(bets),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "trade_service: audit log failed",
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "trade_service: multi bet placed",
		slog.String("contract_id", c.ID),
		slog.Int("fills", len(bets)),
		slog.Float64("amount", req.Amount),
	)
	return bets, nil
}

// NumericBuyRequest expresses a threshold stance on a bucketed numeric
// contract.
type NumericBuyRequest struct {
	UserID     string
	ContractID string
	Mode       numeric.Mode
	Value      float64
	Amount     float64
}

// NumericBuy expands a threshold stance into the matching bucket answers and
// fills them like any other multi-outcome buy.
func (s *TradeService) NumericBuy(ctx context.Context, req NumericBuyRequest) ([]domain.Bet, error) {
	c, err := s.contracts.GetByID(ctx, req.ContractID)
	if err != nil {
		return nil, fmt.Errorf("trade_service: get contract: %w", err)
	}
	if _, ok := c.OutcomeType.(domain.Numeric); !ok {
		return nil, domain.Validation("contractId", 0, "contract is not numeric")
	}

	ids, err := numeric.AnswerIDs(c.Answers, req.Mode, req.Value)
	if err != nil {
		return nil, fmt.Errorf("trade_service: expand stance: %w", err)
	}
	if len(ids) == 0 {
		return nil, domain.Validation("value", req.Value, "stance selects no buckets")
	}

	return s.MultiBuy(ctx, MultiBuyRequest{
		UserID:     req.UserID,
		ContractID: req.ContractID,
		AnswerIDs:  ids,
		Amount:     req.Amount,
	})
}

// PlaceOrder rests a limit order on a multi-outcome contract.
func (s *TradeService) PlaceOrder(ctx context.Context, o domain.LimitOrder) (domain.LimitOrder, error) {
	if err := s.allowWrite(ctx, o.UserID); err != nil {
		return domain.LimitOrder{}, err
	}
	c, err := s.loadOpenContract(ctx, o.ContractID)
	if err != nil {
		return domain.LimitOrder{}, err
	}
	if _, ok := c.Answer(o.AnswerID); !ok {
		return domain.LimitOrder{}, domain.Validation("answerId", 0, "unknown answer "+o.AnswerID)
	}
	if !o.Outcome.Valid() {
		return domain.LimitOrder{}, domain.Validation("outcome", 0, "must be YES or NO")
	}
	if o.LimitProb <= 0 || o.LimitProb >= 1 {
		return domain.LimitOrder{}, domain.Validation("limitProb", o.LimitProb, "must be in (0, 1)")
	}
	if o.Amount <= 0 {
		return domain.LimitOrder{}, domain.Validation("amount", o.Amount, "must be positive")
	}
	if err := s.checkBalance(ctx, o.UserID, o.Amount); err != nil {
		return domain.LimitOrder{}, err
	}

	o.ID = uuid.New().String()
	o.Remaining = o.Amount
	o.Status = domain.OrderStatusOpen
	o.CreatedAt = time.Now().UTC()

	if err := s.orders.Create(ctx, o); err != nil {
		return domain.LimitOrder{}, fmt.Errorf("trade_service: create order: %w", err)
	}

	evt, _ := json.Marshal(map[string]string{
		"event":    "order_placed",
		"order_id": o.ID,
		"contract": o.ContractID,
		"answer":   o.AnswerID,
		"outcome":  string(o.Outcome),
	})
	if pubErr := s.bus.Publish(ctx, "orders", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "trade_service: publish event failed",
			slog.String("order_id", o.ID),
			slog.String("error", pubErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "trade_service: order placed",
		slog.String("order_id", o.ID),
		slog.String("contract_id", o.ContractID),
		slog.Float64("limit_prob", o.LimitProb),
		slog.Float64("amount", o.Amount),
	)
	return o, nil
}

// CancelOrder cancels one of the caller's open orders.
func (s *TradeService) CancelOrder(ctx context.Context, userID, orderID string) error {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("trade_service: get order: %w", err)
	}
	if o.UserID != userID {
		return domain.ErrUnauthorized
	}
	if err := s.orders.Cancel(ctx, orderID); err != nil {
		return fmt.Errorf("trade_service: cancel order: %w", err)
	}

	evt, _ := json.Marshal(map[string]string{
		"event":    "order_cancelled",
		"order_id": orderID,
	})
	if pubErr := s.bus.Publish(ctx, "orders", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "trade_service: publish event failed",
			slog.String("order_id", orderID),
			slog.String("error", pubErr.Error()),
		)
	}
	return nil
}

// ListOrders returns a user's orders with pagination.
func (s *TradeService) ListOrders(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.LimitOrder, error) {
	orders, err := s.orders.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list orders: %w", err)
	}
	return orders, nil
}

// ListBets returns a contract's bets with pagination.
func (s *TradeService) ListBets(ctx context.Context, contractID string, opts domain.ListOpts) ([]domain.Bet, error) {
	bets, err := s.bets.ListByContract(ctx, contractID, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list bets: %w", err)
	}
	return bets, nil
}

func contractLockKey(contractID string) string {
	return "contract:" + contractID
}

// allowWrite applies the per-user trade rate limit before any work is done.
func (s *TradeService) allowWrite(ctx context.Context, userID string) error {
	if s.limiter == nil || s.params.TradesPerMinute <= 0 {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, "trade:"+userID, s.params.TradesPerMinute, time.Minute)
	if err != nil {
		return fmt.Errorf("trade_service: rate limit check: %w", err)
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}

func (s *TradeService) loadOpenContract(ctx context.Context, id string) (domain.Contract, error) {
	c, err := s.contracts.GetByID(ctx, id)
	if err != nil {
		return domain.Contract{}, fmt.Errorf("trade_service: get contract: %w", err)
	}
	if !c.Open() {
		return domain.Contract{}, domain.ErrMarketClosed
	}
	return c, nil
}

func (s *TradeService) checkBalance(ctx context.Context, userID string, amount float64) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("trade_service: get user: %w", err)
	}
	if u.Balance < amount {
		return domain.ErrInsufficientBalance
	}
	return nil
}

// position nets a user's holdings of one outcome on one answer: shares held,
// stake attributed to them, and the id of the earliest contributing bet.
func (s *TradeService) position(ctx context.Context, contractID, userID, answerID string, outcome domain.Outcome) (shares, stake float64, firstBetID string, err error) {
	bets, err := s.bets.ListByContractUser(ctx, contractID, userID)
	if err != nil {
		return 0, 0, "", fmt.Errorf("trade_service: load position: %w", err)
	}
	for _, b := range bets {
		if b.AnswerID != answerID || b.Outcome != outcome {
			continue
		}
		if firstBetID == "" && !b.IsSale() {
			firstBetID = b.ID
		}
		shares += b.Shares
		stake += b.Amount
	}
	return shares, stake, firstBetID, nil
}

// makerBalances snapshots the balances of every order owner so the solver
// can bound fills without live lookups.
func (s *TradeService) makerBalances(ctx context.Context, orders []domain.LimitOrder) (domain.BalanceSnapshot, error) {
	seen := map[string]bool{}
	var ids []string
	for _, o := range orders {
		if !seen[o.UserID] {
			seen[o.UserID] = true
			ids = append(ids, o.UserID)
		}
	}
	balances, err := s.users.Balances(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("trade_service: load maker balances: %w", err)
	}
	return balances, nil
}

func (s *TradeService) refreshProbability(ctx context.Context, contractID, answerID string, prob float64) {
	if err := s.cache.SetProbability(ctx, contractID, answerID, prob, time.Now().UTC()); err != nil {
		s.logger.WarnContext(ctx, "trade_service: cache set failed",
			slog.String("contract_id", contractID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TradeService) publishTrade(ctx context.Context, bet domain.Bet) {
	evt, _ := json.Marshal(map[string]any{
		"event":      "trade",
		"bet_id":     bet.ID,
		"contract":   bet.ContractID,
		"answer":     bet.AnswerID,
		"outcome":    string(bet.Outcome),
		"amount":     bet.Amount,
		"shares":     bet.Shares,
		"prob_after": bet.ProbAfter,
	})
	if err := s.bus.Publish(ctx, "trades", evt); err != nil {
		s.logger.WarnContext(ctx, "trade_service: publish event failed",
			slog.String("bet_id", bet.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TradeService) auditTrade(ctx context.Context, event string, bet domain.Bet) {
	if err := s.audit.Log(ctx, event, map[string]any{
		"bet_id":   bet.ID,
		"user_id":  bet.UserID,
		"contract": bet.ContractID,
		"amount":   bet.Amount,
		"shares":   bet.Shares,
	}); err != nil {
		s.logger.WarnContext(ctx, "trade_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
