package domain

import "time"

// Taker credits a resting order's owner as counterparty to part of a fill.
// Amount is the taker's stake routed to the order; Shares is what the taker
// received for it.
type Taker struct {
	OrderID string
	UserID  string
	Amount  float64
	Shares  float64
}

// Bet is an immutable record of one filled trade. It is created once at
// trade time and never edited; a later sale is recorded as a new Bet with
// negative Amount and Shares referencing the original via SaleOf.
type Bet struct {
	ID         string
	UserID     string
	ContractID string
	AnswerID   string // empty for binary contracts
	Outcome    Outcome

	Amount float64 // stake debited (negative for sales: payout credited)
	Shares float64 // shares received (negative for sales)

	ProbBefore float64
	ProbAfter  float64
	PoolAfter  Pool

	CreatorFee float64
	Takers     []Taker

	SaleOf    string // id of the bet whose shares were sold, if a sale
	CreatedAt time.Time
}

// IsSale reports whether this record reverses an earlier bet.
func (b Bet) IsSale() bool { return b.SaleOf != "" }
