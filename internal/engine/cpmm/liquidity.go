package cpmm

import (
	"math"

	"github.com/marketfold/venue/internal/domain"
)

// LiquidityResult is the proposed outcome of adding liquidity to a pool.
type LiquidityResult struct {
	NewPool        domain.Pool
	LiquidityDelta float64

	// Synthetic bet attribution: the directional skew this contribution
	// represents, so the caller can record a notional ante bet alongside
	// the provision.
	BetAmount  float64
	BetOutcome domain.Outcome
}

// RemovalResult is the proposed outcome of removing liquidity from a pool.
type RemovalResult struct {
	NewPool domain.Pool

	// Payout is min(payoutYES, payoutNO); the remainder stays in the pool
	// as an implicit directional position.
	Payout float64

	BetAmount  float64
	BetOutcome domain.Outcome
}

// AddLiquidity computes the reserves contributed by amount at the pool's
// current implied probability, preserving that probability: at p ≥ 0.5 the
// contribution is {amount×(1/p − 1), amount}, mirrored otherwise. The
// liquidity delta is non-negative for any well-formed contribution.
func AddLiquidity(p domain.Pool, amount float64) (LiquidityResult, error) {
	if err := checkPool(p); err != nil {
		return LiquidityResult{}, err
	}
	if err := checkAmount("amount", amount); err != nil {
		return LiquidityResult{}, err
	}

	prob := Probability(p)

	var addYes, addNo float64
	var betOutcome domain.Outcome
	if prob >= 0.5 {
		addYes, addNo = amount*(1/prob-1), amount
		betOutcome = domain.OutcomeYes
	} else {
		addYes, addNo = amount, amount*(1/(1-prob)-1)
		betOutcome = domain.OutcomeNo
	}

	newPool := domain.Pool{Yes: p.Yes + addYes, No: p.No + addNo}
	if !newPool.Valid() {
		return LiquidityResult{}, &domain.DegeneracyError{Op: "cpmm: add liquidity", Value: newPool.Yes}
	}

	delta := Liquidity(newPool) - Liquidity(p)
	if !finite(delta) || delta < -saleEpsilon {
		return LiquidityResult{}, &domain.DegeneracyError{Op: "cpmm: liquidity delta", Value: delta}
	}
	if delta < 0 {
		delta = 0
	}

	return LiquidityResult{
		NewPool:        newPool,
		LiquidityDelta: delta,
		BetAmount:      math.Abs(addYes - addNo),
		BetOutcome:     betOutcome,
	}, nil
}

// RemoveLiquidity withdraws the given liquidity measure from the pool. The
// withdrawal fraction f = liquidity/Liquidity(pool) must lie in [0,1];
// payout per side is f×reserve and the amount released to the provider is
// the smaller side. The synthetic bet outcome is the opposite side from
// what an equivalent add would have produced.
func RemoveLiquidity(p domain.Pool, liquidity float64) (RemovalResult, error) {
	if err := checkPool(p); err != nil {
		return RemovalResult{}, err
	}
	if err := checkAmount("liquidity", liquidity); err != nil {
		return RemovalResult{}, err
	}

	poolLiquidity := Liquidity(p)
	f := liquidity / poolLiquidity
	if !finite(f) {
		return RemovalResult{}, &domain.DegeneracyError{Op: "cpmm: withdrawal fraction", Value: f}
	}
	if f > 1 {
		return RemovalResult{}, domain.Validation("liquidity", liquidity, "exceeds pool liquidity")
	}

	payoutYes, payoutNo := f*p.Yes, f*p.No

	prob := Probability(p)
	betOutcome := domain.OutcomeNo // opposite side from adding at p >= 0.5
	if prob < 0.5 {
		betOutcome = domain.OutcomeYes
	}

	newPool := domain.Pool{Yes: p.Yes - payoutYes, No: p.No - payoutNo}
	if f < 1 && !newPool.Valid() {
		return RemovalResult{}, &domain.DegeneracyError{Op: "cpmm: remove liquidity", Value: newPool.Yes}
	}

	return RemovalResult{
		NewPool:    newPool,
		Payout:     math.Min(payoutYes, payoutNo),
		BetAmount:  math.Abs(payoutYes - payoutNo),
		BetOutcome: betOutcome,
	}, nil
}
