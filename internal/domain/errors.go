package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
	ErrContextDone   = errors.New("context cancelled")

	// ErrMarketClosed is returned when a trade targets a resolved or closed
	// contract.
	ErrMarketClosed = errors.New("market closed")

	// ErrInsufficientBalance is returned when a user's balance cannot cover
	// the requested stake or ante.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientLiquidity is returned by the multi-outcome solver when
	// the requested answers' combined depth cannot absorb the stake. It is
	// reported, never silently clipped, so callers can suggest a smaller
	// stake.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
)

// ValidationError rejects an operation before any computation proceeds:
// non-finite or negative amounts, shares exceeding holdings, withdrawal
// fraction over one.
type ValidationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// Validation builds a ValidationError.
func Validation(field string, value float64, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// DegeneracyError signals that a pricing computation produced a NaN or
// infinite result. The operation fails closed; aggregate computations log
// and exclude the degenerate item rather than aborting.
type DegeneracyError struct {
	Op    string
	Value float64
}

func (e *DegeneracyError) Error() string {
	return fmt.Sprintf("%s: degenerate result %v", e.Op, e.Value)
}

// IsDegeneracy reports whether err is (or wraps) a DegeneracyError.
func IsDegeneracy(err error) bool {
	var de *DegeneracyError
	return errors.As(err, &de)
}
