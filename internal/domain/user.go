package domain

import "time"

// User is a venue account holding a play-money balance.
type User struct {
	ID        string
	Username  string
	Balance   float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BalanceSnapshot maps user id to available balance at a single point in
// time. The arbitrage solver consumes it to bound resting-order fills; it
// performs no live balance lookups of its own.
type BalanceSnapshot map[string]float64
