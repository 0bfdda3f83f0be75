package domain

import "time"

// LiquidityProvision records reserves contributed to a contract's pool by a
// provider. It is opened when liquidity is added and closed, fully or
// partially, when liquidity is removed. Removal is proportional: withdrawing
// a fraction f of current pool liquidity returns f of each reserve, of which
// the smaller side is paid out and the remainder stays in the pool as an
// implicit directional position.
type LiquidityProvision struct {
	ID         string
	UserID     string
	ContractID string

	Amount    float64 // currency contributed (negative for removals)
	Reserves  Pool    // per-side reserves moved in or out
	Liquidity float64 // sqrt(Y*N) delta this provision represents

	// Synthetic ante bet attribution: the directional skew the contribution
	// represents, reported by the liquidity manager.
	BetAmount  float64
	BetOutcome Outcome

	CreatedAt time.Time
}
