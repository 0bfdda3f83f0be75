package domain

import "time"

// NumericRange is the closed-open value interval [Lo, Hi) an answer bucket
// represents. The final bucket of a contract is closed on both ends.
type NumericRange struct {
	Lo float64
	Hi float64
}

// Mid returns the midpoint of the range, used for expected-value estimates.
func (r NumericRange) Mid() float64 {
	return (r.Lo + r.Hi) / 2
}

// Answer is one mutually exclusive outcome within a multi-outcome contract.
// Each answer is backed by its own constant-product sub-pool; Probability is
// derived from that pool and cached for display and ordering.
type Answer struct {
	ID          string
	ContractID  string
	Index       int // insertion order, used as the price tie-break
	Text        string
	Range       NumericRange // zero value for non-numeric contracts
	Pool        Pool
	Probability float64
	CreatedAt   time.Time
}
