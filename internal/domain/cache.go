package domain

import (
	"context"
	"time"
)

// ProbabilityCache provides fast access to the latest implied probabilities
// without touching the primary store.
type ProbabilityCache interface {
	SetProbability(ctx context.Context, contractID, answerID string, prob float64, ts time.Time) error
	GetProbability(ctx context.Context, contractID, answerID string) (float64, time.Time, error)
	GetContract(ctx context.Context, contractID string) (map[string]float64, error)
	Invalidate(ctx context.Context, contractID string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking. The trade path acquires a
// per-contract lock around its read-modify-write transaction so no two
// trades are computed from the same stale pool snapshot.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub for trade, liquidity, and resolution events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
