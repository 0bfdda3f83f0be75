package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marketfold/venue/internal/domain"
)

// ProbabilityCache implements domain.ProbabilityCache using Redis hashes.
// Each contract's probabilities live in a hash at "prob:{contractID}" keyed
// by answer id (binary contracts use the empty answer id), with update
// timestamps in a parallel "probts:{contractID}" hash.
type ProbabilityCache struct {
	rdb *redis.Client
}

// NewProbabilityCache creates a ProbabilityCache backed by the given Client.
func NewProbabilityCache(c *Client) *ProbabilityCache {
	return &ProbabilityCache{rdb: c.Underlying()}
}

func probKey(contractID string) string {
	return "prob:" + contractID
}

func probTsKey(contractID string) string {
	return "probts:" + contractID
}

// SetProbability stores the latest implied probability for one answer.
func (pc *ProbabilityCache) SetProbability(ctx context.Context, contractID, answerID string, prob float64, ts time.Time) error {
	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, probKey(contractID), answerID, strconv.FormatFloat(prob, 'f', -1, 64))
	pipe.HSet(ctx, probTsKey(contractID), answerID, strconv.FormatInt(ts.UnixNano(), 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set probability %s/%s: %w", contractID, answerID, err)
	}
	return nil
}

// GetProbability retrieves the latest probability and its update time for
// one answer. It returns domain.ErrNotFound when the entry does not exist.
func (pc *ProbabilityCache) GetProbability(ctx context.Context, contractID, answerID string) (float64, time.Time, error) {
	pipe := pc.rdb.Pipeline()
	probCmd := pipe.HGet(ctx, probKey(contractID), answerID)
	tsCmd := pipe.HGet(ctx, probTsKey(contractID), answerID)
	if _, err := pipe.Exec(ctx); err != nil {
		if err == redis.Nil {
			return 0, time.Time{}, domain.ErrNotFound
		}
		return 0, time.Time{}, fmt.Errorf("redis: get probability %s/%s: %w", contractID, answerID, err)
	}

	prob, err := strconv.ParseFloat(probCmd.Val(), 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse probability %s/%s: %w", contractID, answerID, err)
	}
	tsNano, err := strconv.ParseInt(tsCmd.Val(), 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse probability ts %s/%s: %w", contractID, answerID, err)
	}
	return prob, time.Unix(0, tsNano), nil
}

// GetContract retrieves every cached probability of a contract, keyed by
// answer id. A contract with no cached entries yields an empty map.
func (pc *ProbabilityCache) GetContract(ctx context.Context, contractID string) (map[string]float64, error) {
	vals, err := pc.rdb.HGetAll(ctx, probKey(contractID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get contract probabilities %s: %w", contractID, err)
	}

	result := make(map[string]float64, len(vals))
	for answerID, probStr := range vals {
		prob, err := strconv.ParseFloat(probStr, 64)
		if err != nil {
			continue
		}
		result[answerID] = prob
	}
	return result, nil
}

// Invalidate drops a contract's cached probabilities, forcing the next read
// through to the store.
func (pc *ProbabilityCache) Invalidate(ctx context.Context, contractID string) error {
	if err := pc.rdb.Del(ctx, probKey(contractID), probTsKey(contractID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate probabilities %s: %w", contractID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ProbabilityCache = (*ProbabilityCache)(nil)
