package cpmm

import (
	"github.com/marketfold/venue/internal/domain"
)

// PurchaseResult is the proposed outcome of buying into a pool.
type PurchaseResult struct {
	Shares  float64
	NewPool domain.Pool
}

// Shares computes the shares issued for a bet of b on the chosen outcome:
//
//	shares = (b² + b(y+n) − k + yn) / (b + other_side_reserve)
//
// where k = y*n. With exact arithmetic −k + yn cancels; it is kept so the
// floating-point rounding matches the recorded pool history.
func Shares(p domain.Pool, bet float64, outcome domain.Outcome) float64 {
	y, n := p.Yes, p.No
	k := y * n
	numerator := bet*bet + bet*(y+n) - k + y*n

	denominator := bet + p.Reserve(outcome.Opposite())
	return numerator / denominator
}

// Purchase computes the shares issued and the new pool for a purchase of
// amount bet on the chosen outcome. After a YES purchase the pool becomes
// {YES − shares + b, NO + b}, mirrored for NO. The constant product of the
// new pool is never below the old one.
func Purchase(p domain.Pool, bet float64, outcome domain.Outcome) (PurchaseResult, error) {
	if err := checkPool(p); err != nil {
		return PurchaseResult{}, err
	}
	if err := checkAmount("bet", bet); err != nil {
		return PurchaseResult{}, err
	}
	if !outcome.Valid() {
		return PurchaseResult{}, domain.Validation("outcome", 0, "must be YES or NO")
	}

	shares := Shares(p, bet, outcome)
	if !finite(shares) || shares < 0 {
		return PurchaseResult{}, &domain.DegeneracyError{Op: "cpmm: purchase shares", Value: shares}
	}

	var newPool domain.Pool
	if outcome == domain.OutcomeYes {
		newPool = domain.Pool{Yes: p.Yes - shares + bet, No: p.No + bet}
	} else {
		newPool = domain.Pool{Yes: p.Yes + bet, No: p.No - shares + bet}
	}
	if bet > 0 && !newPool.Valid() {
		return PurchaseResult{}, &domain.DegeneracyError{Op: "cpmm: purchase pool", Value: newPool.Yes}
	}
	if bet == 0 {
		// Zero-amount limit: no shares, pool unchanged.
		return PurchaseResult{Shares: 0, NewPool: p}, nil
	}

	return PurchaseResult{Shares: shares, NewPool: newPool}, nil
}

// ProbabilityAfterPurchase returns the implied probability of the chosen
// outcome after a hypothetical purchase, for previews.
func ProbabilityAfterPurchase(p domain.Pool, bet float64, outcome domain.Outcome) (float64, error) {
	res, err := Purchase(p, bet, outcome)
	if err != nil {
		return 0, err
	}
	prob := Probability(res.NewPool)
	if outcome == domain.OutcomeNo {
		prob = 1 - prob
	}
	return prob, nil
}
