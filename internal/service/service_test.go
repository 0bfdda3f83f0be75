package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketfold/venue/internal/domain"
	"github.com/marketfold/venue/internal/engine/settle"
)

// ---------------------------------------------------------------------------
// in-memory fakes
// ---------------------------------------------------------------------------

type fakeContracts struct{ m map[string]domain.Contract }

func (f *fakeContracts) Create(_ context.Context, c domain.Contract) error {
	if _, ok := f.m[c.ID]; ok {
		return domain.ErrAlreadyExists
	}
	f.m[c.ID] = c
	return nil
}

func (f *fakeContracts) GetByID(_ context.Context, id string) (domain.Contract, error) {
	c, ok := f.m[id]
	if !ok {
		return domain.Contract{}, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeContracts) GetBySlug(_ context.Context, slug string) (domain.Contract, error) {
	for _, c := range f.m {
		if c.Slug == slug {
			return c, nil
		}
	}
	return domain.Contract{}, domain.ErrNotFound
}

func (f *fakeContracts) ListOpen(_ context.Context, _ domain.ListOpts) ([]domain.Contract, error) {
	var out []domain.Contract
	for _, c := range f.m {
		if c.Open() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContracts) ListResolved(_ context.Context, opts domain.ListOpts) ([]domain.Contract, error) {
	if opts.Offset > 0 {
		return nil, nil
	}
	var out []domain.Contract
	for _, c := range f.m {
		if c.Resolved {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContracts) Count(_ context.Context) (int64, error) { return int64(len(f.m)), nil }

type fakeBets struct{ bets []domain.Bet }

func (f *fakeBets) GetByID(_ context.Context, id string) (domain.Bet, error) {
	for _, b := range f.bets {
		if b.ID == id {
			return b, nil
		}
	}
	return domain.Bet{}, domain.ErrNotFound
}

func (f *fakeBets) ListByContract(_ context.Context, contractID string, opts domain.ListOpts) ([]domain.Bet, error) {
	if opts.Offset > 0 {
		return nil, nil
	}
	var out []domain.Bet
	for _, b := range f.bets {
		if b.ContractID == contractID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBets) ListByUser(_ context.Context, userID string, _ domain.ListOpts) ([]domain.Bet, error) {
	var out []domain.Bet
	for _, b := range f.bets {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBets) ListByContractUser(_ context.Context, contractID, userID string) ([]domain.Bet, error) {
	var out []domain.Bet
	for _, b := range f.bets {
		if b.ContractID == contractID && b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeOrders struct{ m map[string]domain.LimitOrder }

func (f *fakeOrders) Create(_ context.Context, o domain.LimitOrder) error {
	if _, ok := f.m[o.ID]; ok {
		return domain.ErrAlreadyExists
	}
	f.m[o.ID] = o
	return nil
}

func (f *fakeOrders) GetByID(_ context.Context, id string) (domain.LimitOrder, error) {
	o, ok := f.m[id]
	if !ok {
		return domain.LimitOrder{}, domain.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrders) Cancel(_ context.Context, id string) error {
	o, ok := f.m[id]
	if !ok || o.Status != domain.OrderStatusOpen {
		return domain.ErrNotFound
	}
	o.Status = domain.OrderStatusCancelled
	f.m[id] = o
	return nil
}

func (f *fakeOrders) ListOpenByContract(_ context.Context, contractID string) ([]domain.LimitOrder, error) {
	var out []domain.LimitOrder
	for _, o := range f.m {
		if o.ContractID == contractID && o.Open() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) ListByUser(_ context.Context, userID string, _ domain.ListOpts) ([]domain.LimitOrder, error) {
	var out []domain.LimitOrder
	for _, o := range f.m {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakeProvisions struct{ provs []domain.LiquidityProvision }

func (f *fakeProvisions) ListByContract(_ context.Context, contractID string) ([]domain.LiquidityProvision, error) {
	var out []domain.LiquidityProvision
	for _, p := range f.provs {
		if p.ContractID == contractID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProvisions) ListByUser(_ context.Context, userID string) ([]domain.LiquidityProvision, error) {
	var out []domain.LiquidityProvision
	for _, p := range f.provs {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeUsers struct{ m map[string]domain.User }

func (f *fakeUsers) Create(_ context.Context, u domain.User) error {
	if _, ok := f.m[u.ID]; ok {
		return domain.ErrAlreadyExists
	}
	f.m[u.ID] = u
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (domain.User, error) {
	u, ok := f.m[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) Balances(_ context.Context, ids []string) (domain.BalanceSnapshot, error) {
	out := domain.BalanceSnapshot{}
	for _, id := range ids {
		if u, ok := f.m[id]; ok {
			out[id] = u.Balance
		}
	}
	return out, nil
}

func (f *fakeUsers) Credit(_ context.Context, id string, amount float64) error {
	u, ok := f.m[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.Balance += amount
	f.m[id] = u
	return nil
}

// fakeTrades applies commits against the other fakes so post-conditions can
// be asserted on shared state.
type fakeTrades struct {
	contracts  *fakeContracts
	bets       *fakeBets
	provisions *fakeProvisions
	orders     *fakeOrders
	users      *fakeUsers
	commits    int
}

func (f *fakeTrades) Commit(_ context.Context, tc domain.TradeCommit) error {
	for id, delta := range tc.BalanceDeltas {
		u, ok := f.users.m[id]
		if !ok {
			return domain.ErrNotFound
		}
		if u.Balance+delta < 0 {
			return domain.ErrInsufficientBalance
		}
	}
	if tc.Contract != nil {
		f.contracts.m[tc.Contract.ID] = *tc.Contract
	}
	f.bets.bets = append(f.bets.bets, tc.Bets...)
	f.provisions.provs = append(f.provisions.provs, tc.Provisions...)
	for _, o := range tc.OrderUpdates {
		f.orders.m[o.ID] = o
	}
	for id, delta := range tc.BalanceDeltas {
		u := f.users.m[id]
		u.Balance += delta
		f.users.m[id] = u
	}
	f.commits++
	return nil
}

type noopLocks struct{}

func (noopLocks) Acquire(_ context.Context, _ string, _ time.Duration) (func(), error) {
	return func() {}, nil
}

type noopCache struct{}

func (noopCache) SetProbability(_ context.Context, _, _ string, _ float64, _ time.Time) error {
	return nil
}

func (noopCache) GetProbability(_ context.Context, _, _ string) (float64, time.Time, error) {
	return 0, time.Time{}, domain.ErrNotFound
}

func (noopCache) GetContract(_ context.Context, _ string) (map[string]float64, error) {
	return nil, domain.ErrNotFound
}

func (noopCache) Invalidate(_ context.Context, _ string) error { return nil }

type noopBus struct{}

func (noopBus) Publish(_ context.Context, _ string, _ []byte) error { return nil }

func (noopBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

type noopAudit struct{}

func (noopAudit) Log(_ context.Context, _ string, _ map[string]any) error { return nil }

func (noopAudit) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

// ---------------------------------------------------------------------------
// test environment
// ---------------------------------------------------------------------------

type env struct {
	contracts  *fakeContracts
	bets       *fakeBets
	orders     *fakeOrders
	provisions *fakeProvisions
	users      *fakeUsers
	trades     *fakeTrades
}

func newEnv() *env {
	e := &env{
		contracts:  &fakeContracts{m: map[string]domain.Contract{}},
		bets:       &fakeBets{},
		orders:     &fakeOrders{m: map[string]domain.LimitOrder{}},
		provisions: &fakeProvisions{},
		users:      &fakeUsers{m: map[string]domain.User{}},
	}
	e.trades = &fakeTrades{
		contracts:  e.contracts,
		bets:       e.bets,
		provisions: e.provisions,
		orders:     e.orders,
		users:      e.users,
	}
	return e
}

func (e *env) addUser(id string, balance float64) {
	e.users.m[id] = domain.User{ID: id, Username: id, Balance: balance}
}

func (e *env) addBinaryContract(id string, yes, no float64) {
	e.contracts.m[id] = domain.Contract{
		ID:          id,
		Slug:        id,
		Question:    id,
		CreatorID:   "creator",
		OutcomeType: domain.Binary{},
		Pool:        domain.Pool{Yes: yes, No: no},
		Visibility:  domain.VisibilityPublic,
		Ranked:      true,
	}
}

func (e *env) addMultiContract(id string, pools []domain.Pool) {
	c := domain.Contract{
		ID:          id,
		Slug:        id,
		Question:    id,
		CreatorID:   "creator",
		OutcomeType: domain.FreeResponse{},
		Visibility:  domain.VisibilityPublic,
	}
	for i, p := range pools {
		c.Answers = append(c.Answers, domain.Answer{
			ID:          id + "-a" + string(rune('1'+i)),
			ContractID:  id,
			Index:       i,
			Pool:        p,
			Probability: p.No / (p.Yes + p.No),
		})
	}
	e.contracts.m[id] = c
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (e *env) tradeService() *TradeService {
	return NewTradeService(
		e.contracts, e.bets, e.orders, e.users, e.trades,
		noopLocks{}, nil, noopCache{}, noopBus{}, noopAudit{},
		testLogger(),
		MarketParams{CreatorFeeRate: 0, MaxFillProbability: 0.99, LockTTL: time.Second},
	)
}

func (e *env) contractService() *ContractService {
	return NewContractService(
		e.contracts, e.bets, e.users, e.trades,
		noopLocks{}, noopCache{}, noopBus{}, noopAudit{},
		testLogger(),
		ContractParams{CreatorFeeRate: 0.05, MinAnte: 10, MaxAnswers: 50, LockTTL: time.Second},
	)
}

func (e *env) liquidityService() *LiquidityService {
	return NewLiquidityService(
		e.contracts, e.provisions, e.users, e.trades,
		noopLocks{}, noopCache{}, noopBus{}, noopAudit{},
		testLogger(), time.Second,
	)
}

// ---------------------------------------------------------------------------
// trade service
// ---------------------------------------------------------------------------

func TestBuy_DebitsBalanceAndMovesPool(t *testing.T) {
	e := newEnv()
	e.addUser("alice", 100)
	e.addBinaryContract("c1", 100, 100)

	bet, err := e.tradeService().Buy(context.Background(), BuyRequest{
		UserID: "alice", ContractID: "c1", Outcome: domain.OutcomeYes, Amount: 10,
	})
	require.NoError(t, err)

	// shares = y + b - k/(n + b) = 110 - 10000/110
	assert.InDelta(t, 110-10000.0/110, bet.Shares, 1e-9)
	assert.InDelta(t, 0.5, bet.ProbBefore, 1e-9)
	assert.Greater(t, bet.ProbAfter, 0.5)

	assert.InDelta(t, 90, e.users.m["alice"].Balance, 1e-9)
	assert.InDelta(t, 110, e.contracts.m["c1"].Pool.No, 1e-9)
	require.Len(t, e.bets.bets, 1)
}

func TestBuy_InsufficientBalance(t *testing.T) {
	e := newEnv()
	e.addUser("alice", 5)
	e.addBinaryContract("c1", 100, 100)

	_, err := e.tradeService().Buy(context.Background(), BuyRequest{
		UserID: "alice", ContractID: "c1", Outcome: domain.OutcomeYes, Amount: 10,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Zero(t, e.trades.commits)
}

func TestBuy_ClosedMarket(t *testing.T) {
	e := newEnv()
	e.addUser("alice", 100)
	e.addBinaryContract("c1", 100, 100)
	c := e.contracts.m["c1"]
	c.Resolved = true
	e.contracts.m["c1"] = c

	_, err := e.tradeService().Buy(context.Background(), BuyRequest{
		UserID: "alice", ContractID: "c1", Outcome: domain.OutcomeYes, Amount: 10,
	})
	assert.ErrorIs(t, err, domain.ErrMarketClosed)
}

func TestSell_RoundTripRestoresBalance(t *testing.T) {
	e := newEnv()
	e.addUser("alice", 100)
	e.addBinaryContract("c1", 100, 100)
	svc := e.tradeService()

	bet, err := svc.Buy(context.Background(), BuyRequest{
		UserID: "alice", ContractID: "c1", Outcome: domain.OutcomeYes, Amount: 10,
	})
	require.NoError(t, err)

	sale, err := svc.Sell(context.Background(), SellRequest{
		UserID: "alice", ContractID: "c1", Outcome: domain.OutcomeYes, Shares: bet.Shares,
	})
	require.NoError(t, err)

	// No fee configured on the contract, so the round trip is exact.
	assert.InDelta(t, -10, sale.Amount, 1e-6)
	assert.Equal(t, bet.ID, sale.SaleOf)
	assert.InDelta(t, 100, e.users.m["alice"].Balance, 1e-6)
	assert.InDelta(t, 100, e.contracts.m["c1"].Pool.Yes, 1e-6)
	assert.InDelta(t, 100, e.contracts.m["c1"].Pool.No, 1e-6)
}

func TestSell_RejectsOverselling(t *testing.T) {
	e := newEnv()
	e.addUser("alice", 100)
	e.addBinaryContract("c1", 100, 100)

	_, err := e.tradeService().Sell(context.Background(), SellRequest{
		UserID: "alice", ContractID: "c1", Outcome: domain.OutcomeYes, Shares: 5,
	})
	assert.True(t, domain.IsValidation(err))
}

func TestMultiBuy_RoutesStakeAndDebitsUser(t *testing.T) {
	e := newEnv()
	e.addUser("alice", 100)
	e.addMultiContract("c1", []domain.Pool{
		{Yes: 400, No: 100}, // cheap, prob 0.2
		{Yes: 250, No: 250}, // prob 0.5
	})

	bets, err := e.tradeService().MultiBuy(context.Background(), MultiBuyRequest{
		UserID: "alice", ContractID: "c1", AnswerIDs: []string{"c1-a1", "c1-a2"}, Amount: 10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, bets)

	var total float64
	for _, b := range bets {
		total += b.Amount
		assert.Equal(t, domain.OutcomeYes, b.Outcome)
	}
	assert.InDelta(t, 10, total, 1e-9)
	assert.Equal(t, "c1-a1", bets[0].AnswerID)
	assert.InDelta(t, 90, e.users.m["alice"].Balance, 1e-9)
}

func TestMultiBuy_MatchesRestingOrderAndDebitsMaker(t *testing.T) {
	e := newEnv()
	e.addUser("alice", 100)
	e.addUser("bob", 100)
	e.addMultiContract("c1", []domain.Pool{
		{Yes: 400, No: 100},
		{Yes: 250, No: 250},
	})
	e.orders.m["o1"] = domain.LimitOrder{
		ID: "o1", UserID: "bob", ContractID: "c1", AnswerID: "c1-a1",
		Outcome: domain.OutcomeNo, LimitProb: 0.2, Amount: 20, Remaining: 20,
		Status: domain.OrderStatusOpen,
	}

	bets, err := e.tradeService().MultiBuy(context.Background(), MultiBuyRequest{
		UserID: "alice", ContractID: "c1", AnswerIDs: []string{"c1-a1"}, Amount: 4,
	})
	require.NoError(t, err)
	require.Len(t, bets, 1)

	// At prob 0.2 the maker's 20 caps taker spend at 20*0.2/0.8 = 5, so the
	// whole 4 fills against the order: 20 shares, maker covers 16.
	require.Len(t, bets[0].Takers, 1)
	assert.InDelta(t, 4, bets[0].Takers[0].Amount, 1e-9)
	assert.InDelta(t, 20, bets[0].Takers[0].Shares, 1e-9)
	assert.InDelta(t, 96, e.users.m["alice"].Balance, 1e-9)
	assert.InDelta(t, 84, e.users.m["bob"].Balance, 1e-9)

	// The pool never moved.
	a, _ := e.contracts.m["c1"].Answer("c1-a1")
	assert.InDelta(t, 400, a.Pool.Yes, 1e-9)
	assert.InDelta(t, 100, a.Pool.No, 1e-9)
}

func TestMultiBuy_MakerHoldsPositionAndIsPaidOnResolution(t *testing.T) {
	e := newEnv()
	e.addUser("alice", 100)
	e.addUser("bob", 100)
	e.addMultiContract("c1", []domain.Pool{
		{Yes: 400, No: 100},
		{Yes: 250, No: 250},
	})
	e.orders.m["o1"] = domain.LimitOrder{
		ID: "o1", UserID: "bob", ContractID: "c1", AnswerID: "c1-a1",
		Outcome: domain.OutcomeNo, LimitProb: 0.2, Amount: 20, Remaining: 20,
		Status: domain.OrderStatusOpen,
	}

	_, err := e.tradeService().MultiBuy(context.Background(), MultiBuyRequest{
		UserID: "alice", ContractID: "c1", AnswerIDs: []string{"c1-a1"}, Amount: 5,
	})
	require.NoError(t, err)

	// The match books a NO position for the maker in the same commit: 25
	// shares covered with 20 of stake at the order's price.
	var makerBet domain.Bet
	for _, b := range e.bets.bets {
		if b.UserID == "bob" {
			makerBet = b
		}
	}
	require.NotEmpty(t, makerBet.ID)
	assert.Equal(t, domain.OutcomeNo, makerBet.Outcome)
	assert.Equal(t, "c1-a1", makerBet.AnswerID)
	assert.InDelta(t, 20, makerBet.Amount, 1e-9)
	assert.InDelta(t, 25, makerBet.Shares, 1e-9)
	assert.InDelta(t, 0.2, makerBet.ProbBefore, 1e-9)
	assert.InDelta(t, 80, e.users.m["bob"].Balance, 1e-9)

	// The matched answer loses, so the maker's NO side pays out in full.
	_, err = e.contractService().Resolve(context.Background(), ResolveRequest{
		ContractID: "c1", ResolverID: "creator", AnswerID: "c1-a2",
	})
	require.NoError(t, err)
	assert.InDelta(t, 105, e.users.m["bob"].Balance, 1e-9)
	assert.InDelta(t, 95, e.users.m["alice"].Balance, 1e-9)
}

func TestPlaceOrder_ValidatesAndPersists(t *testing.T) {
	e := newEnv()
	e.addUser("bob", 100)
	e.addMultiContract("c1", []domain.Pool{{Yes: 400, No: 100}, {Yes: 250, No: 250}})
	svc := e.tradeService()

	o, err := svc.PlaceOrder(context.Background(), domain.LimitOrder{
		UserID: "bob", ContractID: "c1", AnswerID: "c1-a1",
		Outcome: domain.OutcomeNo, LimitProb: 0.25, Amount: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusOpen, o.Status)
	assert.InDelta(t, 30, o.Remaining, 1e-9)

	_, err = svc.PlaceOrder(context.Background(), domain.LimitOrder{
		UserID: "bob", ContractID: "c1", AnswerID: "c1-a1",
		Outcome: domain.OutcomeNo, LimitProb: 1.5, Amount: 30,
	})
	assert.True(t, domain.IsValidation(err))
}

func TestCancelOrder_OwnerOnly(t *testing.T) {
	e := newEnv()
	e.orders.m["o1"] = domain.LimitOrder{
		ID: "o1", UserID: "bob", ContractID: "c1",
		Status: domain.OrderStatusOpen, Remaining: 10,
	}
	svc := e.tradeService()

	err := svc.CancelOrder(context.Background(), "alice", "o1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, svc.CancelOrder(context.Background(), "bob", "o1"))
	assert.Equal(t, domain.OrderStatusCancelled, e.orders.m["o1"].Status)
}

// ---------------------------------------------------------------------------
// contract service
// ---------------------------------------------------------------------------

func TestCreateContract_BinarySeedsPoolAndDebitsAnte(t *testing.T) {
	e := newEnv()
	e.addUser("creator", 100)

	c, err := e.contractService().CreateContract(context.Background(), CreateContractRequest{
		CreatorID:   "creator",
		Question:    "Will it rain tomorrow?",
		Mechanism:   "binary",
		InitialProb: 0.5,
		Ante:        50,
	})
	require.NoError(t, err)

	assert.InDelta(t, 50, c.Pool.Yes, 1e-9)
	assert.InDelta(t, 50, c.Pool.No, 1e-9)
	assert.NotEmpty(t, c.Slug)
	assert.InDelta(t, 50, e.users.m["creator"].Balance, 1e-9)

	// An even pool books the ante as a liquidity provision and no ante bet.
	provs, err := e.provisions.ListByContract(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, provs, 1)
	assert.InDelta(t, 50, provs[0].Amount, 1e-9)
	assert.InDelta(t, 50, provs[0].Liquidity, 1e-9)
	assert.Empty(t, e.bets.bets)
}

func TestCreateContract_SkewedPoolBooksAnteBet(t *testing.T) {
	e := newEnv()
	e.addUser("creator", 100)

	c, err := e.contractService().CreateContract(context.Background(), CreateContractRequest{
		CreatorID:   "creator",
		Question:    "Will the launch slip?",
		Mechanism:   "binary",
		InitialProb: 0.8,
		Ante:        80,
	})
	require.NoError(t, err)

	// p=0.8: Yes = 80*(1/0.8 - 1) = 20, No = 80. More in the NO pool means
	// the price leans YES, so the creator's skew bet is on YES.
	require.Len(t, e.bets.bets, 1)
	ante := e.bets.bets[0]
	assert.Equal(t, domain.OutcomeYes, ante.Outcome)
	assert.InDelta(t, 60, ante.Amount, 1e-9)
	assert.InDelta(t, 60, ante.Shares, 1e-9)
	assert.InDelta(t, 0.8, ante.ProbBefore, 1e-9)
	assert.Equal(t, c.ID, ante.ContractID)
}

func TestCreateContract_NumericBuildsBuckets(t *testing.T) {
	e := newEnv()
	e.addUser("creator", 100)

	c, err := e.contractService().CreateContract(context.Background(), CreateContractRequest{
		CreatorID:      "creator",
		Question:       "Points scored?",
		Mechanism:      "numeric",
		NumericMin:     0,
		NumericMax:     100,
		NumericBuckets: 4,
		Ante:           40,
	})
	require.NoError(t, err)

	require.Len(t, c.Answers, 4)
	assert.InDelta(t, 0, c.Answers[0].Range.Lo, 1e-9)
	assert.InDelta(t, 100, c.Answers[3].Range.Hi, 1e-9)
	for _, a := range c.Answers {
		assert.InDelta(t, 0.25, a.Probability, 1e-9)
	}
}

func TestCreateContract_RejectsLowAnte(t *testing.T) {
	e := newEnv()
	e.addUser("creator", 100)

	_, err := e.contractService().CreateContract(context.Background(), CreateContractRequest{
		CreatorID: "creator", Question: "q", Mechanism: "binary", InitialProb: 0.5, Ante: 5,
	})
	assert.True(t, domain.IsValidation(err))
}

func TestResolve_PaysWinningShares(t *testing.T) {
	e := newEnv()
	e.addUser("creator", 0)
	e.addUser("alice", 0)
	e.addUser("bob", 0)
	e.addBinaryContract("c1", 100, 100)
	e.bets.bets = []domain.Bet{
		{ID: "b1", UserID: "alice", ContractID: "c1", Outcome: domain.OutcomeYes, Amount: 10, Shares: 19},
		{ID: "b2", UserID: "bob", ContractID: "c1", Outcome: domain.OutcomeNo, Amount: 10, Shares: 19},
	}

	c, err := e.contractService().Resolve(context.Background(), ResolveRequest{
		ContractID: "c1", ResolverID: "creator", Outcome: domain.OutcomeYes,
	})
	require.NoError(t, err)
	assert.True(t, c.Resolved)

	assert.InDelta(t, 19, e.users.m["alice"].Balance, 1e-9)
	assert.InDelta(t, 0, e.users.m["bob"].Balance, 1e-9)
	assert.True(t, e.contracts.m["c1"].Resolved)
}

func TestResolve_CreatorOnly(t *testing.T) {
	e := newEnv()
	e.addUser("mallory", 0)
	e.addBinaryContract("c1", 100, 100)

	_, err := e.contractService().Resolve(context.Background(), ResolveRequest{
		ContractID: "c1", ResolverID: "mallory", Outcome: domain.OutcomeYes,
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

// ---------------------------------------------------------------------------
// liquidity service
// ---------------------------------------------------------------------------

func TestLiquidity_AddThenRemove(t *testing.T) {
	e := newEnv()
	e.addUser("lp", 100)
	e.addBinaryContract("c1", 100, 100)
	svc := e.liquidityService()

	prov, err := svc.Add(context.Background(), "lp", "c1", 50)
	require.NoError(t, err)
	assert.InDelta(t, 50, prov.Liquidity, 1e-9)
	assert.InDelta(t, 150, e.contracts.m["c1"].Pool.Yes, 1e-9)
	assert.InDelta(t, 50, e.users.m["lp"].Balance, 1e-9)

	rem, err := svc.Remove(context.Background(), "lp", "c1", 50)
	require.NoError(t, err)
	assert.InDelta(t, -50, rem.Liquidity, 1e-9)
	assert.InDelta(t, 100, e.contracts.m["c1"].Pool.Yes, 1e-9)
	assert.InDelta(t, 100, e.users.m["lp"].Balance, 1e-9)
}

func TestLiquidity_RemoveBeyondHoldings(t *testing.T) {
	e := newEnv()
	e.addUser("lp", 100)
	e.addBinaryContract("c1", 100, 100)
	svc := e.liquidityService()

	_, err := svc.Add(context.Background(), "lp", "c1", 20)
	require.NoError(t, err)

	_, err = svc.Remove(context.Background(), "lp", "c1", 30)
	assert.True(t, domain.IsValidation(err))
}

// ---------------------------------------------------------------------------
// settle service
// ---------------------------------------------------------------------------

func TestSettleService_AggregateProfit(t *testing.T) {
	e := newEnv()
	e.addBinaryContract("c1", 100, 100)
	c := e.contracts.m["c1"]
	c.Resolved = true
	c.Resolution = &domain.Resolution{Outcome: domain.OutcomeYes, ResolvedAt: time.Now()}
	e.contracts.m["c1"] = c
	e.bets.bets = []domain.Bet{
		{ID: "b1", UserID: "alice", ContractID: "c1", Outcome: domain.OutcomeYes, Amount: 10, Shares: 19},
		{ID: "b2", UserID: "bob", ContractID: "c1", Outcome: domain.OutcomeNo, Amount: 10, Shares: 19},
	}

	svc := NewSettleService(e.contracts, e.bets, noopAudit{}, testLogger(), settle.Policy{
		RequirePublic: true,
		RequireRanked: true,
	})

	rep, err := svc.AggregateProfit(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	require.Contains(t, rep.Users, "alice")
	assert.InDelta(t, 9, rep.Users["alice"].Profit, 1e-9)
	assert.InDelta(t, -10, rep.Users["bob"].Profit, 1e-9)
}

// ---------------------------------------------------------------------------
// user service
// ---------------------------------------------------------------------------

func TestUserService_Register(t *testing.T) {
	e := newEnv()
	svc := NewUserService(e.users, e.bets, noopAudit{}, testLogger())

	u, err := svc.Register(context.Background(), "alice", 1000)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.InDelta(t, 1000, u.Balance, 1e-9)

	_, err = svc.Register(context.Background(), "   ", 0)
	assert.True(t, domain.IsValidation(err))
}
