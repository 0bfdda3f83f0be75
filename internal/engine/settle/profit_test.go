package settle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketfold/venue/internal/domain"
)

func resolvedBinary(id string, outcome domain.Outcome) domain.Contract {
	return domain.Contract{
		ID:          id,
		OutcomeType: domain.Binary{},
		Visibility:  domain.VisibilityPublic,
		Ranked:      true,
		Resolved:    true,
		Resolution:  &domain.Resolution{Outcome: outcome},
	}
}

func TestShareValue_Binary(t *testing.T) {
	c := resolvedBinary("c1", domain.OutcomeYes)

	v, err := ShareValue(c, domain.Bet{Outcome: domain.OutcomeYes})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = ShareValue(c, domain.Bet{Outcome: domain.OutcomeNo})
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	_, err = ShareValue(domain.Contract{OutcomeType: domain.Binary{}}, domain.Bet{})
	assert.True(t, domain.IsValidation(err), "unresolved contract cannot settle")
}

func TestShareValue_MultiOutcome(t *testing.T) {
	c := domain.Contract{
		ID:          "c1",
		OutcomeType: domain.FreeResponse{},
		Answers: []domain.Answer{
			{ID: "a1", Index: 0},
			{ID: "a2", Index: 1},
		},
		Resolved:   true,
		Resolution: &domain.Resolution{AnswerID: "a2"},
	}

	cases := []struct {
		name string
		bet  domain.Bet
		want float64
	}{
		{"yes on winner", domain.Bet{AnswerID: "a2", Outcome: domain.OutcomeYes}, 1},
		{"yes on loser", domain.Bet{AnswerID: "a1", Outcome: domain.OutcomeYes}, 0},
		{"no on loser", domain.Bet{AnswerID: "a1", Outcome: domain.OutcomeNo}, 1},
		{"no on winner", domain.Bet{AnswerID: "a2", Outcome: domain.OutcomeNo}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := ShareValue(c, tc.bet)
			require.NoError(t, err)
			assert.Equal(t, tc.want, v)
		})
	}
}

func TestShareValue_NumericValuePicksBucket(t *testing.T) {
	c := domain.Contract{
		ID:          "c1",
		OutcomeType: domain.Numeric{Min: 0, Max: 30, Buckets: 3},
		Answers: []domain.Answer{
			{ID: "b1", Index: 0, Range: domain.NumericRange{Lo: 0, Hi: 10}},
			{ID: "b2", Index: 1, Range: domain.NumericRange{Lo: 10, Hi: 20}},
			{ID: "b3", Index: 2, Range: domain.NumericRange{Lo: 20, Hi: 30}},
		},
		Resolved: true,
	}

	cases := []struct {
		value  float64
		winner string
	}{
		{5, "b1"},
		{10, "b2"}, // boundaries belong to the upper bucket
		{30, "b3"}, // except the top of the range
	}
	for _, tc := range cases {
		v := tc.value
		c.Resolution = &domain.Resolution{NumericValue: &v}

		got, err := ShareValue(c, domain.Bet{AnswerID: tc.winner, Outcome: domain.OutcomeYes})
		require.NoError(t, err)
		assert.Equal(t, 1.0, got, "value %v should pay bucket %s", tc.value, tc.winner)
	}

	out := 31.0
	c.Resolution = &domain.Resolution{NumericValue: &out}
	_, err := ShareValue(c, domain.Bet{AnswerID: "b3", Outcome: domain.OutcomeYes})
	assert.True(t, domain.IsValidation(err))
}

func TestAggregateProfit(t *testing.T) {
	contracts := []domain.Contract{resolvedBinary("c1", domain.OutcomeYes)}
	bets := []domain.Bet{
		// Wins: 100 shares worth 1 each for a 60 stake.
		{ID: "b1", UserID: "alice", ContractID: "c1", Outcome: domain.OutcomeYes, Amount: 60, Shares: 100},
		// Loses the full stake.
		{ID: "b2", UserID: "bob", ContractID: "c1", Outcome: domain.OutcomeNo, Amount: 40, Shares: 80},
	}

	rep := AggregateProfit(contracts, bets, Policy{})
	require.Len(t, rep.Users, 2)
	assert.Empty(t, rep.Skipped)

	alice := rep.Users["alice"]
	assert.InDelta(t, 40, alice.Profit, 1e-9)
	assert.InDelta(t, 100, alice.Payout, 1e-9)
	assert.Equal(t, 1, alice.Bets)

	bob := rep.Users["bob"]
	assert.InDelta(t, -40, bob.Profit, 1e-9)
	assert.InDelta(t, 0, bob.Payout, 1e-9)
}

func TestAggregateProfit_SaleRecordsCompose(t *testing.T) {
	contracts := []domain.Contract{resolvedBinary("c1", domain.OutcomeYes)}
	// Buy 100 shares for 60, sell half back for 35: at resolution the 50
	// remaining shares pay 50, for a total profit of 50 + 35 - 60 = 25.
	bets := []domain.Bet{
		{ID: "b1", UserID: "alice", ContractID: "c1", Outcome: domain.OutcomeYes, Amount: 60, Shares: 100},
		{ID: "b2", UserID: "alice", ContractID: "c1", Outcome: domain.OutcomeYes, Amount: -35, Shares: -50, SaleOf: "b1"},
	}

	rep := AggregateProfit(contracts, bets, Policy{})
	alice := rep.Users["alice"]
	require.NotNil(t, alice)
	assert.InDelta(t, 25, alice.Profit, 1e-9)
	assert.InDelta(t, 25, alice.Invested, 1e-9)
	assert.Equal(t, 2, alice.Bets)
}

func TestAggregateProfit_SkipsNonFiniteBets(t *testing.T) {
	contracts := []domain.Contract{resolvedBinary("c1", domain.OutcomeYes)}
	bets := []domain.Bet{
		{ID: "bad", UserID: "alice", ContractID: "c1", Outcome: domain.OutcomeYes, Amount: 10, Shares: math.NaN()},
		{ID: "ok", UserID: "alice", ContractID: "c1", Outcome: domain.OutcomeYes, Amount: 10, Shares: 20},
	}

	rep := AggregateProfit(contracts, bets, Policy{})
	require.Len(t, rep.Skipped, 1)
	assert.Equal(t, "bad", rep.Skipped[0].BetID)
	assert.Equal(t, "c1", rep.Skipped[0].ContractID)

	alice := rep.Users["alice"]
	require.NotNil(t, alice)
	assert.Equal(t, 1, alice.Bets)
	assert.InDelta(t, 10, alice.Profit, 1e-9)
}

func TestPolicy(t *testing.T) {
	base := resolvedBinary("c1", domain.OutcomeYes)

	unlisted := base
	unlisted.Visibility = domain.VisibilityUnlisted
	unranked := base
	unranked.Ranked = false

	p := Policy{RequirePublic: true, RequireRanked: true, ExcludedIDs: map[string]bool{"c9": true}}
	assert.True(t, p.Eligible(base))
	assert.False(t, p.Eligible(unlisted))
	assert.False(t, p.Eligible(unranked))

	excluded := base
	excluded.ID = "c9"
	assert.False(t, p.Eligible(excluded))

	// Ignored contracts drop their bets entirely rather than skewing totals.
	bets := []domain.Bet{{ID: "b1", UserID: "alice", ContractID: "c1", Outcome: domain.OutcomeYes, Amount: 10, Shares: 20}}
	rep := AggregateProfit([]domain.Contract{unlisted}, bets, p)
	assert.Empty(t, rep.Users)
	assert.Empty(t, rep.Skipped)
}
