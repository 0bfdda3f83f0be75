package domain

import "time"

// OrderStatus tracks the limit order lifecycle.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// LimitOrder is a resting, not-yet-fully-matched order on a multi-outcome
// contract. It offers counterparty liquidity to the arbitrage solver at a
// fixed probability. Remaining is the maker's uncommitted stake; the solver
// additionally bounds fills by the maker's balance snapshot at match time.
type LimitOrder struct {
	ID         string
	UserID     string
	ContractID string
	AnswerID   string
	Outcome    Outcome // side the maker is backing
	LimitProb  float64 // YES-probability the maker will trade at
	Amount     float64 // total stake committed at placement
	Remaining  float64
	Status     OrderStatus
	CreatedAt  time.Time
}

// Open reports whether the order can still be matched.
func (o LimitOrder) Open() bool {
	return o.Status == OrderStatusOpen && o.Remaining > 0
}
