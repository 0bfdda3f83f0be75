package domain

import "math"

// Outcome is one side of a binary decision.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Opposite returns the other side of a binary decision.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// Valid reports whether o is a recognized outcome label.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Pool holds the paired reserves backing a constant-product price curve.
// Pool is a value type: pricing operations consume a snapshot and return a
// new Pool rather than mutating in place.
type Pool struct {
	Yes float64
	No  float64
}

// Valid reports whether both reserves are finite and strictly positive. A
// reserve at or below zero is a degenerate state that no operation may
// produce while a market is open.
func (p Pool) Valid() bool {
	return p.Yes > 0 && p.No > 0 &&
		!math.IsInf(p.Yes, 0) && !math.IsInf(p.No, 0) &&
		!math.IsNaN(p.Yes) && !math.IsNaN(p.No)
}

// Reserve returns the reserve backing the given outcome.
func (p Pool) Reserve(o Outcome) float64 {
	if o == OutcomeYes {
		return p.Yes
	}
	return p.No
}
