package cpmm

import (
	"math"

	"github.com/marketfold/venue/internal/domain"
)

// SaleResult is the proposed outcome of selling shares back to the pool.
type SaleResult struct {
	SaleValue  float64
	NewPool    domain.Pool
	CreatorFee float64
	NetPayout  float64 // sale value after creator fee
	Profit     float64 // sale value minus original stake, before fee
}

// ShareValue computes the current redeemable value of shares on the given
// outcome:
//
//	value = 0.5 × (s + y + n − sqrt(4k + Δ²)),  Δ = s + y − n for YES
//
// (mirrored for NO). The result always lies in [0, s].
func ShareValue(p domain.Pool, shares float64, outcome domain.Outcome) (float64, error) {
	if err := checkPool(p); err != nil {
		return 0, err
	}
	if err := checkAmount("shares", shares); err != nil {
		return 0, err
	}

	y, n := p.Yes, p.No
	var poolChange float64
	if outcome == domain.OutcomeYes {
		poolChange = shares + y - n
	} else {
		poolChange = shares + n - y
	}
	k := y * n

	value := 0.5 * (shares + y + n - math.Sqrt(4*k+poolChange*poolChange))
	if !finite(value) || value < 0 || value > shares+saleEpsilon {
		return 0, &domain.DegeneracyError{Op: "cpmm: share value", Value: value}
	}
	if value > shares {
		value = shares // rounding guard only; value is within epsilon of shares
	}
	return value, nil
}

// saleEpsilon bounds acceptable floating-point overshoot of the value ∈
// [0, shares] contract before the result is treated as degenerate.
const saleEpsilon = 1e-9

// Sale computes the redemption of a previously recorded bet. Requested
// shares above the holder's recorded shares are rejected by the caller; here
// shares is taken as the exact holding being sold. A proportional fee at
// feeRate is levied only on positive profit and deducted from the payout.
func Sale(p domain.Pool, shares, stake float64, outcome domain.Outcome, feeRate float64) (SaleResult, error) {
	if feeRate < 0 || feeRate >= 1 || !finite(feeRate) {
		return SaleResult{}, domain.Validation("feeRate", feeRate, "must be in [0,1)")
	}
	if err := checkAmount("stake", stake); err != nil {
		return SaleResult{}, err
	}

	saleValue, err := ShareValue(p, shares, outcome)
	if err != nil {
		return SaleResult{}, err
	}

	y, n := p.Yes, p.No
	var newPool domain.Pool
	if outcome == domain.OutcomeYes {
		newPool = domain.Pool{Yes: y + shares - saleValue, No: n - saleValue}
	} else {
		newPool = domain.Pool{Yes: y - saleValue, No: n + shares - saleValue}
	}
	if shares > 0 && !newPool.Valid() {
		return SaleResult{}, &domain.DegeneracyError{Op: "cpmm: sale pool", Value: newPool.No}
	}
	if shares == 0 {
		newPool = p
	}

	profit := saleValue - stake
	creatorFee := feeRate * math.Max(0, profit)

	return SaleResult{
		SaleValue:  saleValue,
		NewPool:    newPool,
		CreatorFee: creatorFee,
		NetPayout:  saleValue - creatorFee,
		Profit:     profit,
	}, nil
}
