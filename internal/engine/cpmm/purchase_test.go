package cpmm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketfold/venue/internal/domain"
)

func TestPurchase_EvenPool(t *testing.T) {
	pool := domain.Pool{Yes: 100, No: 100}

	res, err := Purchase(pool, 50, domain.OutcomeYes)
	require.NoError(t, err)

	// shares = (50² + 50·200) / (50 + 100) = 12500 / 150
	assert.InDelta(t, 12500.0/150.0, res.Shares, 1e-9)
	assert.InDelta(t, 100-res.Shares+50, res.NewPool.Yes, 1e-9)
	assert.InDelta(t, 150, res.NewPool.No, 1e-9)

	// The purchase walks the constant-product curve: k is preserved.
	assert.InDelta(t, 100*100, res.NewPool.Yes*res.NewPool.No, 1e-6)

	// Buying YES moves the implied probability of YES up.
	assert.Greater(t, Probability(res.NewPool), 0.5)
}

func TestPurchase_Symmetric(t *testing.T) {
	pool := domain.Pool{Yes: 80, No: 120}

	yes, err := Purchase(pool, 30, domain.OutcomeYes)
	require.NoError(t, err)
	mirror := domain.Pool{Yes: pool.No, No: pool.Yes}
	no, err := Purchase(mirror, 30, domain.OutcomeNo)
	require.NoError(t, err)

	assert.InDelta(t, yes.Shares, no.Shares, 1e-9)
	assert.InDelta(t, yes.NewPool.Yes, no.NewPool.No, 1e-9)
	assert.InDelta(t, yes.NewPool.No, no.NewPool.Yes, 1e-9)
}

func TestPurchase_ConstantProductNonDecrease(t *testing.T) {
	pools := []domain.Pool{
		{Yes: 100, No: 100},
		{Yes: 13, No: 877},
		{Yes: 1e5, No: 3},
	}
	amounts := []float64{0.01, 1, 50, 1e4}

	for _, pool := range pools {
		k := pool.Yes * pool.No
		for _, b := range amounts {
			for _, outcome := range []domain.Outcome{domain.OutcomeYes, domain.OutcomeNo} {
				res, err := Purchase(pool, b, outcome)
				require.NoError(t, err)
				newK := res.NewPool.Yes * res.NewPool.No
				assert.GreaterOrEqual(t, newK, k-1e-6*k,
					"pool %+v amount %v outcome %s", pool, b, outcome)
			}
		}
	}
}

func TestPurchase_ZeroAmount(t *testing.T) {
	pool := domain.Pool{Yes: 70, No: 30}
	res, err := Purchase(pool, 0, domain.OutcomeYes)
	require.NoError(t, err)
	assert.Zero(t, res.Shares)
	assert.Equal(t, pool, res.NewPool)
}

func TestPurchase_RejectsInvalidInput(t *testing.T) {
	pool := domain.Pool{Yes: 100, No: 100}

	tests := []struct {
		name    string
		pool    domain.Pool
		bet     float64
		outcome domain.Outcome
	}{
		{"negative amount", pool, -1, domain.OutcomeYes},
		{"nan amount", pool, math.NaN(), domain.OutcomeYes},
		{"inf amount", pool, math.Inf(1), domain.OutcomeNo},
		{"zero reserve", domain.Pool{Yes: 0, No: 100}, 10, domain.OutcomeYes},
		{"negative reserve", domain.Pool{Yes: 10, No: -5}, 10, domain.OutcomeYes},
		{"nan reserve", domain.Pool{Yes: math.NaN(), No: 100}, 10, domain.OutcomeYes},
		{"bad outcome", pool, 10, domain.Outcome("MAYBE")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Purchase(tt.pool, tt.bet, tt.outcome)
			assert.True(t, domain.IsValidation(err), "want validation error, got %v", err)
		})
	}
}

func TestRoundTrip_ZeroFeeLossless(t *testing.T) {
	pool := domain.Pool{Yes: 100, No: 100}

	buy, err := Purchase(pool, 50, domain.OutcomeYes)
	require.NoError(t, err)

	sale, err := Sale(buy.NewPool, buy.Shares, 50, domain.OutcomeYes, 0)
	require.NoError(t, err)

	assert.InDelta(t, 50, sale.SaleValue, 1e-9)
	assert.Zero(t, sale.CreatorFee)
	assert.InDelta(t, 50, sale.NetPayout, 1e-9)

	// Pool returns to its starting state.
	assert.InDelta(t, pool.Yes, sale.NewPool.Yes, 1e-9)
	assert.InDelta(t, pool.No, sale.NewPool.No, 1e-9)
}

func TestRoundTrip_FeeMakesPayoutStrictlyLess(t *testing.T) {
	// Skew the pool so an immediate resale happens at a profit for NO,
	// triggering the profit-based fee.
	pool := domain.Pool{Yes: 300, No: 100}

	buy, err := Purchase(pool, 40, domain.OutcomeNo)
	require.NoError(t, err)

	sale, err := Sale(buy.NewPool, buy.Shares, 40, domain.OutcomeNo, 0.1)
	require.NoError(t, err)

	// Zero-fee round trip is value neutral, so any positive fee must make
	// the net payout strictly smaller than the stake.
	assert.LessOrEqual(t, sale.NetPayout, 40.0)
	if sale.Profit > 0 {
		assert.Less(t, sale.NetPayout, sale.SaleValue)
		assert.InDelta(t, 0.1*sale.Profit, sale.CreatorFee, 1e-9)
	}
}

func TestProbabilityAfterPurchase(t *testing.T) {
	pool := domain.Pool{Yes: 100, No: 100}

	probYes, err := ProbabilityAfterPurchase(pool, 50, domain.OutcomeYes)
	require.NoError(t, err)
	probNo, err := ProbabilityAfterPurchase(pool, 50, domain.OutcomeNo)
	require.NoError(t, err)

	assert.Greater(t, probYes, 0.5)
	// Symmetric pools give a symmetric move for the NO side.
	assert.InDelta(t, probYes, probNo, 1e-9)
}
