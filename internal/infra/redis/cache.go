package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avoronkov/hearthshare/internal/ledger"
	"github.com/avoronkov/hearthshare/pkg/logger"
)

const (
	// DefaultTTL bounds staleness if an invalidation is ever missed.
	DefaultTTL = 5 * time.Minute

	// KeyPrefix is the prefix for balance cache keys
	KeyPrefix = "balances:"
)

// BalanceCache is a Redis-backed cache of per-household net-balance views.
// Every ledger mutation invalidates the household's key, so a hit is only
// ever a repeat of an unchanged aggregation.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewBalanceCache creates a new balance cache
func NewBalanceCache(client *redis.Client, log *logger.Logger) *BalanceCache {
	return &BalanceCache{
		client: client,
		ttl:    DefaultTTL,
		logger: log.WithField("component", "balance_cache"),
	}
}

// NewBalanceCacheWithTTL creates a new balance cache with custom TTL
func NewBalanceCacheWithTTL(client *redis.Client, ttl time.Duration, log *logger.Logger) *BalanceCache {
	c := NewBalanceCache(client, log)
	c.ttl = ttl
	return c
}

type cachedBalances struct {
	Balances  []ledger.PairBalance `json:"balances"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Get retrieves the cached balance view for a household
func (c *BalanceCache) Get(ctx context.Context, householdID string) ([]ledger.PairBalance, bool, error) {
	key := KeyPrefix + householdID

	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		c.logger.Debug("cache miss", "household_id", householdID)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached balances: %w", err)
	}

	var cached cachedBalances
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached balances: %w", err)
	}

	c.logger.Debug("cache hit", "household_id", householdID)
	return cached.Balances, true, nil
}

// Set stores a balance view in the cache
func (c *BalanceCache) Set(ctx context.Context, householdID string, balances []ledger.PairBalance) error {
	key := KeyPrefix + householdID

	data, err := json.Marshal(cachedBalances{
		Balances:  balances,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal balances: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cached balances: %w", err)
	}

	return nil
}

// Invalidate drops the cached balance view for a household
func (c *BalanceCache) Invalidate(ctx context.Context, householdID string) error {
	return c.client.Del(ctx, KeyPrefix+householdID).Err()
}
