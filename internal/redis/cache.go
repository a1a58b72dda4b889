// Package redis provides the ledger read-through cache. Ledgers are small,
// immutable in currency and hot on every transaction create (the engine
// validates entry currency against the ledger), so they cache well.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerkit/ledgerkit/internal/ledger"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

const (
	// DefaultTTL bounds staleness of the mutable ledger fields (name,
	// description, metadata); currency and exponent never change.
	DefaultTTL = 5 * time.Minute

	// KeyPrefix is the prefix for ledger cache keys
	KeyPrefix = "ledger:"
)

// LedgerCache is a Redis-backed cache of Ledger values.
type LedgerCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewLedgerCache creates a new ledger cache with the default TTL.
func NewLedgerCache(client *redis.Client, log *logger.Logger) *LedgerCache {
	return NewLedgerCacheWithTTL(client, DefaultTTL, log)
}

// NewLedgerCacheWithTTL creates a new ledger cache with a custom TTL.
func NewLedgerCacheWithTTL(client *redis.Client, ttl time.Duration, log *logger.Logger) *LedgerCache {
	return &LedgerCache{
		client: client,
		ttl:    ttl,
		logger: log.WithField("component", "ledger_cache"),
	}
}

func key(organizationID, ledgerID string) string {
	return fmt.Sprintf("%s%s:%s", KeyPrefix, organizationID, ledgerID)
}

// Get retrieves a cached ledger. A miss is not an error.
func (c *LedgerCache) Get(ctx context.Context, organizationID, ledgerID string) (ledger.Ledger, bool, error) {
	val, err := c.client.Get(ctx, key(organizationID, ledgerID)).Result()
	if err == redis.Nil {
		c.logger.Debug("cache miss", "ledger_id", ledgerID)
		return ledger.Ledger{}, false, nil
	}
	if err != nil {
		c.logger.Error("cache error", "operation", "get", "ledger_id", ledgerID, "error", err)
		return ledger.Ledger{}, false, fmt.Errorf("failed to get cached ledger: %w", err)
	}

	var l ledger.Ledger
	if err := json.Unmarshal([]byte(val), &l); err != nil {
		return ledger.Ledger{}, false, fmt.Errorf("failed to unmarshal cached ledger: %w", err)
	}

	c.logger.Debug("cache hit", "ledger_id", ledgerID)
	return l, true, nil
}

// Set stores a ledger in the cache.
func (c *LedgerCache) Set(ctx context.Context, l ledger.Ledger) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	if err := c.client.Set(ctx, key(l.OrganizationID, l.ID), data, c.ttl).Err(); err != nil {
		c.logger.Error("cache error", "operation", "set", "ledger_id", l.ID, "error", err)
		return fmt.Errorf("failed to set cached ledger: %w", err)
	}
	return nil
}

// Invalidate removes a cached ledger after a mutation or delete.
func (c *LedgerCache) Invalidate(ctx context.Context, organizationID, ledgerID string) error {
	return c.client.Del(ctx, key(organizationID, ledgerID)).Err()
}
