package cpmm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketfold/venue/internal/domain"
)

func TestShareValue_Bounds(t *testing.T) {
	pools := []domain.Pool{
		{Yes: 100, No: 100},
		{Yes: 20, No: 500},
		{Yes: 500, No: 20},
	}
	for _, pool := range pools {
		for _, shares := range []float64{0, 1, 50, 1000} {
			for _, outcome := range []domain.Outcome{domain.OutcomeYes, domain.OutcomeNo} {
				v, err := ShareValue(pool, shares, outcome)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, shares)
			}
		}
	}
}

func TestShareValue_ZeroShares(t *testing.T) {
	v, err := ShareValue(domain.Pool{Yes: 100, No: 100}, 0, domain.OutcomeYes)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestShareValue_RejectsInvalidInput(t *testing.T) {
	_, err := ShareValue(domain.Pool{Yes: 100, No: 100}, -1, domain.OutcomeYes)
	assert.True(t, domain.IsValidation(err))
	_, err = ShareValue(domain.Pool{Yes: 100, No: 100}, math.NaN(), domain.OutcomeYes)
	assert.True(t, domain.IsValidation(err))
	_, err = ShareValue(domain.Pool{}, 10, domain.OutcomeYes)
	assert.True(t, domain.IsValidation(err))
}

func TestSale_FeeOnlyOnPositiveProfit(t *testing.T) {
	pool := domain.Pool{Yes: 100, No: 100}
	buy, err := Purchase(pool, 50, domain.OutcomeYes)
	require.NoError(t, err)

	// Selling straight back at the same price yields zero profit, so the
	// fee must be zero even at a positive fee rate.
	sale, err := Sale(buy.NewPool, buy.Shares, 50, domain.OutcomeYes, 0.25)
	require.NoError(t, err)
	assert.InDelta(t, 0, sale.Profit, 1e-9)
	assert.InDelta(t, 0, sale.CreatorFee, 1e-9)
}

func TestSale_ProfitableExit(t *testing.T) {
	start := domain.Pool{Yes: 100, No: 100}
	buy, err := Purchase(start, 50, domain.OutcomeYes)
	require.NoError(t, err)

	// A later YES buyer pushes the price further in our favor.
	later, err := Purchase(buy.NewPool, 100, domain.OutcomeYes)
	require.NoError(t, err)

	sale, err := Sale(later.NewPool, buy.Shares, 50, domain.OutcomeYes, 0.1)
	require.NoError(t, err)

	assert.Greater(t, sale.Profit, 0.0)
	assert.InDelta(t, 0.1*sale.Profit, sale.CreatorFee, 1e-9)
	assert.InDelta(t, sale.SaleValue-sale.CreatorFee, sale.NetPayout, 1e-9)
	assert.True(t, sale.NewPool.Valid())
}

func TestSale_LosingExitNoFee(t *testing.T) {
	start := domain.Pool{Yes: 100, No: 100}
	buy, err := Purchase(start, 50, domain.OutcomeYes)
	require.NoError(t, err)

	// The market moves against the position before the sale.
	against, err := Purchase(buy.NewPool, 200, domain.OutcomeNo)
	require.NoError(t, err)

	sale, err := Sale(against.NewPool, buy.Shares, 50, domain.OutcomeYes, 0.1)
	require.NoError(t, err)

	assert.Less(t, sale.Profit, 0.0)
	assert.Zero(t, sale.CreatorFee)
	assert.InDelta(t, sale.SaleValue, sale.NetPayout, 1e-9)
}

func TestSale_RejectsBadFeeRate(t *testing.T) {
	pool := domain.Pool{Yes: 100, No: 100}
	_, err := Sale(pool, 10, 10, domain.OutcomeYes, -0.1)
	assert.True(t, domain.IsValidation(err))
	_, err = Sale(pool, 10, 10, domain.OutcomeYes, 1)
	assert.True(t, domain.IsValidation(err))
}
