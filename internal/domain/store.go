package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ContractStore persists contracts and their answers.
type ContractStore interface {
	Create(ctx context.Context, c Contract) error
	GetByID(ctx context.Context, id string) (Contract, error)
	GetBySlug(ctx context.Context, slug string) (Contract, error)
	ListOpen(ctx context.Context, opts ListOpts) ([]Contract, error)
	ListResolved(ctx context.Context, opts ListOpts) ([]Contract, error)
	Count(ctx context.Context) (int64, error)
}

// BetStore reads immutable bet records.
type BetStore interface {
	GetByID(ctx context.Context, id string) (Bet, error)
	ListByContract(ctx context.Context, contractID string, opts ListOpts) ([]Bet, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Bet, error)
	ListByContractUser(ctx context.Context, contractID, userID string) ([]Bet, error)
}

// OrderStore persists resting limit orders.
type OrderStore interface {
	Create(ctx context.Context, o LimitOrder) error
	GetByID(ctx context.Context, id string) (LimitOrder, error)
	Cancel(ctx context.Context, id string) error
	ListOpenByContract(ctx context.Context, contractID string) ([]LimitOrder, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]LimitOrder, error)
}

// LiquidityStore reads liquidity provision records.
type LiquidityStore interface {
	ListByContract(ctx context.Context, contractID string) ([]LiquidityProvision, error)
	ListByUser(ctx context.Context, userID string) ([]LiquidityProvision, error)
}

// UserStore persists venue accounts and balances.
type UserStore interface {
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id string) (User, error)
	Balances(ctx context.Context, userIDs []string) (BalanceSnapshot, error)
	Credit(ctx context.Context, userID string, amount float64) error
}

// TradeCommit is the full set of proposed deltas the engine produced for
// one trade, liquidity change, or resolution payout. The store applies it
// atomically: contract pool/answer updates, new records, order updates, and
// balance deltas either all commit or none do. Combined with the
// per-contract lock this gives at-most-one committed trade per contract at
// a time.
type TradeCommit struct {
	Contract      *Contract // updated pool/answers/resolution, nil to skip
	Bets          []Bet
	Provisions    []LiquidityProvision
	OrderUpdates  []LimitOrder       // remaining/status updates for matched orders
	BalanceDeltas map[string]float64 // user id -> signed balance change
}

// TradeStore applies engine results transactionally.
type TradeStore interface {
	Commit(ctx context.Context, tc TradeCommit) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
