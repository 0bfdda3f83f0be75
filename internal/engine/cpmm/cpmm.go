// Package cpmm prices a single binary outcome market using a constant-product
// invariant. All functions are pure: they consume a pool snapshot and return
// proposed new values, leaving persistence and balance mutation to the caller.
// Every computed float is checked for NaN/Inf; a degenerate result fails the
// operation closed instead of propagating corrupted state.
package cpmm

import (
	"math"

	"github.com/marketfold/venue/internal/domain"
)

// Probability returns the implied YES probability NO/(YES+NO). Both reserves
// must be finite and positive, so the result lies in (0,1).
func Probability(p domain.Pool) float64 {
	return p.No / (p.Yes + p.No)
}

// Liquidity returns sqrt(YES*NO), the constant-product invariant measure.
// It is a bookkeeping scalar for liquidity accounting, not a tradable
// quantity.
func Liquidity(p domain.Pool) float64 {
	return math.Sqrt(p.Yes * p.No)
}

// InitialPool seeds a pool from an initial probability and the creator's
// ante. The skewed side carries the ante; the other side is scaled so the
// pool ratio implies prob.
func InitialPool(prob, ante float64) (domain.Pool, error) {
	if err := checkAmount("ante", ante); err != nil {
		return domain.Pool{}, err
	}
	if !(prob > 0 && prob < 1) || !finite(prob) {
		return domain.Pool{}, domain.Validation("probability", prob, "must be in (0,1)")
	}

	var pool domain.Pool
	if prob >= 0.5 {
		pool = domain.Pool{Yes: ante * (1/prob - 1), No: ante}
	} else {
		pool = domain.Pool{Yes: ante, No: ante * (1/(1-prob) - 1)}
	}
	if !pool.Valid() {
		return domain.Pool{}, &domain.DegeneracyError{Op: "cpmm: initial pool", Value: pool.Yes}
	}
	return pool, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// checkAmount rejects negative or non-finite currency amounts before any
// computation proceeds.
func checkAmount(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return domain.Validation(field, v, "must be finite")
	}
	if v < 0 {
		return domain.Validation(field, v, "must be non-negative")
	}
	return nil
}

// checkPool rejects pools with non-positive or non-finite reserves.
func checkPool(p domain.Pool) error {
	if !p.Valid() {
		return domain.Validation("pool", p.Yes, "reserves must be finite and positive")
	}
	return nil
}
