package arb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketfold/venue/internal/domain"
	"github.com/marketfold/venue/internal/engine/cpmm"
)

// threeAnswers returns answers priced at 20%, 30% and 50%.
func threeAnswers() []domain.Answer {
	return []domain.Answer{
		{ID: "a1", Index: 0, Pool: domain.Pool{Yes: 400, No: 100}},
		{ID: "a2", Index: 1, Pool: domain.Pool{Yes: 350, No: 150}},
		{ID: "a3", Index: 2, Pool: domain.Pool{Yes: 250, No: 250}},
	}
}

func fillFor(t *testing.T, res Result, answerID string) Fill {
	t.Helper()
	for _, f := range res.Fills {
		if f.AnswerID == answerID {
			return f
		}
	}
	t.Fatalf("no fill for answer %s", answerID)
	return Fill{}
}

func TestCheapestFirst(t *testing.T) {
	a := Candidate{AnswerID: "a", Index: 1, Probability: 0.2}
	b := Candidate{AnswerID: "b", Index: 0, Probability: 0.3}
	assert.True(t, CheapestFirst(a, b), "lower price wins")
	assert.False(t, CheapestFirst(b, a))

	// Equal prices fall back to insertion order.
	c := Candidate{AnswerID: "c", Index: 0, Probability: 0.2}
	assert.True(t, CheapestFirst(c, a))
	assert.False(t, CheapestFirst(a, c))
}

func TestSolve_RoutesToCheapestAnswer(t *testing.T) {
	answers := threeAnswers()
	res, err := Solve(answers, []string{"a1", "a2", "a3"}, 10, nil, nil, DefaultConfig())
	require.NoError(t, err)

	// A small stake never lifts the 20% answer past the 30% one, so it is
	// absorbed there entirely.
	require.Len(t, res.Fills, 1)
	f := res.Fills[0]
	assert.Equal(t, "a1", f.AnswerID)
	assert.InDelta(t, 10, f.Stake, 1e-9)
	assert.InDelta(t, 0.2, f.ProbBefore, 1e-12)
	assert.Greater(t, f.NewProbability, 0.2)
	assert.Less(t, f.NewProbability, 0.3)

	// Sequential pool buys compose exactly, so the end pool matches a
	// single buy of the whole stake.
	one, err := cpmm.Purchase(domain.Pool{Yes: 400, No: 100}, 10, domain.OutcomeYes)
	require.NoError(t, err)
	assert.InDelta(t, one.NewPool.Yes, f.NewPool.Yes, 1e-6)
	assert.InDelta(t, one.NewPool.No, f.NewPool.No, 1e-6)
	assert.InDelta(t, one.Shares, f.Shares, 1e-6)

	// Untouched answers come back unchanged.
	require.Len(t, res.UpdatedAnswers, 3)
	assert.Equal(t, answers[1].Pool, res.UpdatedAnswers[1].Pool)
	assert.Equal(t, answers[2].Pool, res.UpdatedAnswers[2].Pool)
}

func TestSolve_EqualizesMarginalPrices(t *testing.T) {
	answers := threeAnswers()
	res, err := Solve(answers, []string{"a1", "a2"}, 100, nil, nil, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, res.Fills, 2)

	f1 := fillFor(t, res, "a1")
	f2 := fillFor(t, res, "a2")
	assert.Greater(t, f1.Stake, f2.Stake, "the cheaper answer absorbs more")
	assert.InDelta(t, 100, f1.Stake+f2.Stake, 1e-9)

	// Greedy quantum routing leaves the two prices within one quantum's
	// worth of slippage of each other.
	assert.InDelta(t, f1.NewProbability, f2.NewProbability, 0.02)
}

func TestSolve_RestingOrderFillsBeforePool(t *testing.T) {
	answers := threeAnswers()
	// Maker backs NO at 20% with 20 units of stake: covers 25 YES shares,
	// absorbing the taker's first 5 units of spend.
	order := domain.LimitOrder{
		ID:        "o1",
		UserID:    "maker",
		AnswerID:  "a1",
		Outcome:   domain.OutcomeNo,
		LimitProb: 0.2,
		Amount:    20,
		Remaining: 20,
		Status:    domain.OrderStatusOpen,
	}
	balances := domain.BalanceSnapshot{"maker": 100}

	res, err := Solve(answers, []string{"a1"}, 5, []domain.LimitOrder{order}, balances, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, res.Fills, 1)
	f := res.Fills[0]

	// The whole stake matched peer-to-peer: the pool never moved.
	assert.InDelta(t, 0, f.AMMStake, 1e-9)
	assert.InDelta(t, 0, f.AMMShares, 1e-9)
	assert.Equal(t, answers[0].Pool, f.NewPool)

	require.Len(t, f.Takers, 1)
	tk := f.Takers[0]
	assert.Equal(t, "o1", tk.OrderID)
	assert.Equal(t, "maker", tk.UserID)
	assert.InDelta(t, 5, tk.Amount, 1e-9)
	assert.InDelta(t, 25, tk.Shares, 1e-9)

	require.Len(t, res.OrderUpdates, 1)
	assert.Equal(t, domain.OrderStatusFilled, res.OrderUpdates[0].Status)
	assert.InDelta(t, 0, res.OrderUpdates[0].Remaining, 1e-9)
}

func TestSolve_OrderThenPool(t *testing.T) {
	answers := threeAnswers()
	order := domain.LimitOrder{
		ID:        "o1",
		UserID:    "maker",
		AnswerID:  "a1",
		Outcome:   domain.OutcomeNo,
		LimitProb: 0.2,
		Amount:    20,
		Remaining: 20,
		Status:    domain.OrderStatusOpen,
	}
	balances := domain.BalanceSnapshot{"maker": 100}

	res, err := Solve(answers, []string{"a1"}, 15, []domain.LimitOrder{order}, balances, DefaultConfig())
	require.NoError(t, err)
	f := fillFor(t, res, "a1")

	require.Len(t, f.Takers, 1)
	assert.InDelta(t, 5, f.Takers[0].Amount, 1e-6)
	assert.InDelta(t, 25, f.Takers[0].Shares, 1e-6)
	assert.InDelta(t, 10, f.AMMStake, 1e-6)

	// AMM buys compose, so the overflow prices like one 10-unit buy.
	one, err := cpmm.Purchase(domain.Pool{Yes: 400, No: 100}, 10, domain.OutcomeYes)
	require.NoError(t, err)
	assert.InDelta(t, one.Shares, f.AMMShares, 1e-6)
	assert.InDelta(t, one.NewPool.No, f.NewPool.No, 1e-6)
}

func TestSolve_SkipsOrderBeyondMakerBalance(t *testing.T) {
	answers := threeAnswers()
	order := domain.LimitOrder{
		ID:        "o1",
		UserID:    "maker",
		AnswerID:  "a1",
		Outcome:   domain.OutcomeNo,
		LimitProb: 0.2,
		Amount:    20,
		Remaining: 20,
		Status:    domain.OrderStatusOpen,
	}
	// Balance below the order's remaining commitment: skipped outright,
	// never partially filled.
	balances := domain.BalanceSnapshot{"maker": 10}

	res, err := Solve(answers, []string{"a1"}, 5, []domain.LimitOrder{order}, balances, DefaultConfig())
	require.NoError(t, err)
	f := fillFor(t, res, "a1")
	assert.Empty(t, f.Takers)
	assert.Empty(t, res.OrderUpdates)
	assert.InDelta(t, 5, f.AMMStake, 1e-9)
}

func TestSolve_SameMakerOrdersShareOneBalance(t *testing.T) {
	answers := threeAnswers()
	// Two orders from one maker, each individually fundable, but the
	// balance covers only one of them.
	orders := []domain.LimitOrder{
		{ID: "o1", UserID: "maker", AnswerID: "a3", Outcome: domain.OutcomeNo, LimitProb: 0.5, Amount: 10, Remaining: 10, Status: domain.OrderStatusOpen},
		{ID: "o2", UserID: "maker", AnswerID: "a3", Outcome: domain.OutcomeNo, LimitProb: 0.5, Amount: 10, Remaining: 10, Status: domain.OrderStatusOpen},
	}
	balances := domain.BalanceSnapshot{"maker": 10}

	res, err := Solve(answers, []string{"a3"}, 25, orders, balances, DefaultConfig())
	require.NoError(t, err)
	f := fillFor(t, res, "a3")

	// Only the first order fills; the second is skipped once the balance
	// is spoken for, and the overflow goes to the AMM.
	require.Len(t, f.Takers, 1)
	assert.Equal(t, "o1", f.Takers[0].OrderID)
	var cover float64
	for _, tk := range f.Takers {
		cover += tk.Shares - tk.Amount
	}
	assert.LessOrEqual(t, cover, 10+1e-9)
	assert.InDelta(t, 15, f.AMMStake, 1e-6)
}

func TestSolve_TakersInPlacementOrder(t *testing.T) {
	answers := threeAnswers()
	// Placement order deliberately disagrees with lexical order of the ids.
	orders := []domain.LimitOrder{
		{ID: "o-b", UserID: "first", AnswerID: "a1", Outcome: domain.OutcomeNo, LimitProb: 0.2, Amount: 20, Remaining: 20, Status: domain.OrderStatusOpen},
		{ID: "o-a", UserID: "second", AnswerID: "a1", Outcome: domain.OutcomeNo, LimitProb: 0.2, Amount: 20, Remaining: 20, Status: domain.OrderStatusOpen},
	}
	balances := domain.BalanceSnapshot{"first": 100, "second": 100}

	res, err := Solve(answers, []string{"a1"}, 8, orders, balances, DefaultConfig())
	require.NoError(t, err)
	f := fillFor(t, res, "a1")

	require.Len(t, f.Takers, 2)
	assert.Equal(t, "o-b", f.Takers[0].OrderID)
	assert.Equal(t, "o-a", f.Takers[1].OrderID)
	// The first-placed order is exhausted before the second is touched.
	assert.InDelta(t, 5, f.Takers[0].Amount, 1e-6)
	assert.InDelta(t, 3, f.Takers[1].Amount, 1e-6)
}

func TestSolve_IgnoresIneligibleOrders(t *testing.T) {
	answers := threeAnswers()
	orders := []domain.LimitOrder{
		// YES-side order: offers no counterparty liquidity to a YES buyer.
		{ID: "o1", UserID: "u1", AnswerID: "a1", Outcome: domain.OutcomeYes, LimitProb: 0.2, Remaining: 20, Status: domain.OrderStatusOpen},
		// Cancelled order.
		{ID: "o2", UserID: "u2", AnswerID: "a1", Outcome: domain.OutcomeNo, LimitProb: 0.2, Remaining: 20, Status: domain.OrderStatusCancelled},
		// Priced above the pool: the AMM is the better fill.
		{ID: "o3", UserID: "u3", AnswerID: "a1", Outcome: domain.OutcomeNo, LimitProb: 0.9, Remaining: 20, Status: domain.OrderStatusOpen},
	}
	balances := domain.BalanceSnapshot{"u1": 100, "u2": 100, "u3": 100}

	res, err := Solve(answers, []string{"a1"}, 5, orders, balances, DefaultConfig())
	require.NoError(t, err)
	f := fillFor(t, res, "a1")
	assert.Empty(t, f.Takers)
	assert.InDelta(t, 5, f.AMMStake, 1e-9)
}

func TestSolve_InsufficientLiquidity(t *testing.T) {
	answers := []domain.Answer{
		{ID: "a1", Index: 0, Pool: domain.Pool{Yes: 1, No: 990}},
	}
	_, err := Solve(answers, []string{"a1"}, 10, nil, nil, DefaultConfig())
	assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)
}

func TestSolve_NoOps(t *testing.T) {
	answers := threeAnswers()

	res, err := Solve(answers, nil, 100, nil, nil, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, res.Fills)
	assert.Equal(t, answers, res.UpdatedAnswers)

	res, err = Solve(answers, []string{"a1"}, 0, nil, nil, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, res.Fills)
}

func TestSolve_Rejects(t *testing.T) {
	answers := threeAnswers()

	_, err := Solve(answers, []string{"a1"}, -5, nil, nil, DefaultConfig())
	assert.True(t, domain.IsValidation(err))

	_, err = Solve(answers, []string{"missing"}, 5, nil, nil, DefaultConfig())
	assert.True(t, domain.IsValidation(err))

	bad := []domain.Answer{{ID: "a1", Index: 0, Pool: domain.Pool{Yes: 0, No: 100}}}
	_, err = Solve(bad, []string{"a1"}, 5, nil, nil, DefaultConfig())
	assert.True(t, domain.IsValidation(err))
}
