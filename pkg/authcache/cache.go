package authcache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/access"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/observability"
)

const (
	// scanBatchSize bounds each SCAN page and each batched DEL so sweeps
	// never block the backend on one long command
	scanBatchSize = 100

	defaultTTL       = 5 * time.Minute
	defaultOpTimeout = 500 * time.Millisecond
	sweepTimeout     = 5 * time.Second
)

// Config tunes cache behavior
type Config struct {
	// TTL bounds how long a grant may be served without re-resolution
	TTL time.Duration
	// OpTimeout caps single get/put/del round trips
	OpTimeout time.Duration
}

// Cache stores access grants and query results in Redis
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewCache creates a cache on an existing Redis client. The client is shared
// with the rate limiter and owned by the composition root. metrics may be
// nil.
func NewCache(client *redis.Client, cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}
	return &Cache{
		client:  client,
		ttl:     cfg.TTL,
		timeout: cfg.OpTimeout,
		logger:  logger,
		metrics: metrics,
	}
}

// GrantKey builds the cache key for a (user, subaccount) grant
func GrantKey(userID, subaccountID string) string {
	return fmt.Sprintf("permissions:%s:%s", userID, subaccountID)
}

// SubaccountKey builds the cache key for a subaccount record
func SubaccountKey(subaccountID string) string {
	return fmt.Sprintf("subaccount:%s", subaccountID)
}

// UserSubaccountsKey builds the cache key for a user's subaccount list under
// a specific query signature
func UserSubaccountsKey(userID, querySignature string) string {
	return fmt.Sprintf("user_subaccounts:%s:%s", userID, querySignature)
}

// GetGrant returns the cached grant for (user, subaccount), or a miss. Any
// backend or decode error is a miss: authorization never fails on cache
// trouble, it falls through to the resolver.
func (c *Cache) GetGrant(ctx context.Context, userID, subaccountID string) (*access.Grant, bool) {
	key := GrantKey(userID, subaccountID)
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		c.miss(key)
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Debug("cache get failed, treating as miss")
		c.miss(key)
		return nil, false
	}

	var grant access.Grant
	if err := json.Unmarshal([]byte(data), &grant); err != nil {
		// Corrupt entry: drop it so the next fill rewrites it
		c.client.Del(ctx, key)
		c.logger.WithError(err).WithField("key", key).Warn("corrupt cache entry dropped")
		c.miss(key)
		return nil, false
	}

	c.hit(key)
	return &grant, true
}

// PutGrant stores a grant with the configured TTL. Failures are logged and
// swallowed: caching is best-effort.
func (c *Cache) PutGrant(ctx context.Context, userID, subaccountID string, grant *access.Grant) {
	key := GrantKey(userID, subaccountID)
	data, err := json.Marshal(grant)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("failed to marshal grant")
		c.putFailure()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Debug("cache put failed")
		c.putFailure()
	}
}

// GetJSON reads an arbitrary cached value into dest, returning false on miss
// or any backend error
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).WithField("key", key).Debug("cache get failed, treating as miss")
		}
		c.miss(key)
		return false
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		c.client.Del(ctx, key)
		c.miss(key)
		return false
	}
	c.hit(key)
	return true
}

// SetJSON stores an arbitrary value, best-effort. A zero ttl uses the cache
// default.
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	data, err := json.Marshal(value)
	if err != nil {
		c.putFailure()
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Debug("cache put failed")
		c.putFailure()
	}
}

// Invalidate removes every cache entry for one (user, subaccount) pair:
// the grant itself, any query-parameterized variants under its prefix, and
// the user's list caches. Invalidating absent keys is a no-op.
func (c *Cache) Invalidate(ctx context.Context, userID, subaccountID string) error {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	if err := c.client.Del(ctx, GrantKey(userID, subaccountID)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to delete grant key: %w", err)
	}
	patterns := []string{
		GrantKey(userID, subaccountID) + ":*",
		fmt.Sprintf("user_subaccounts:%s:*", userID),
	}
	if err := c.deleteByPatterns(ctx, patterns); err != nil {
		return err
	}
	c.invalidated("pair")
	return nil
}

// InvalidateAllForUser removes every cache entry scoped to a user across all
// subaccounts
func (c *Cache) InvalidateAllForUser(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	patterns := []string{
		fmt.Sprintf("permissions:%s:*", userID),
		fmt.Sprintf("user_subaccounts:%s:*", userID),
	}
	if err := c.deleteByPatterns(ctx, patterns); err != nil {
		return err
	}
	c.invalidated("user")
	return nil
}

// InvalidateAllForSubaccount removes the subaccount record and every grant
// referencing the subaccount, for all users. List caches are swept wholesale
// because any of them may include the subaccount.
func (c *Cache) InvalidateAllForSubaccount(ctx context.Context, subaccountID string) error {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	if err := c.client.Del(ctx, SubaccountKey(subaccountID)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to delete subaccount key: %w", err)
	}
	patterns := []string{
		fmt.Sprintf("permissions:*:%s", subaccountID),
		fmt.Sprintf("permissions:*:%s:*", subaccountID),
		"user_subaccounts:*",
	}
	if err := c.deleteByPatterns(ctx, patterns); err != nil {
		return err
	}
	c.invalidated("subaccount")
	return nil
}

// Ping checks backend connectivity
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// deleteByPatterns sweeps each wildcard pattern with cursor-based SCAN and
// deletes matches in batches, so no single command blocks the backend
func (c *Cache) deleteByPatterns(ctx context.Context, patterns []string) error {
	for _, pattern := range patterns {
		deleted := 0
		batch := make([]string, 0, scanBatchSize)
		iter := c.client.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == scanBatchSize {
				if err := c.client.Del(ctx, batch...).Err(); err != nil {
					return fmt.Errorf("batch delete failed for pattern %s: %w", pattern, err)
				}
				deleted += len(batch)
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("scan failed for pattern %s: %w", pattern, err)
		}
		if len(batch) > 0 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("batch delete failed for pattern %s: %w", pattern, err)
			}
			deleted += len(batch)
		}
		if deleted > 0 {
			c.keysDeleted(deleted)
			c.logger.WithFields(map[string]interface{}{
				"pattern": pattern,
				"deleted": deleted,
			}).Debug("cache invalidation sweep")
		}
	}
	return nil
}

func namespace(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

func (c *Cache) hit(key string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(namespace(key)).Inc()
	}
}

func (c *Cache) miss(key string) {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(namespace(key)).Inc()
	}
}

func (c *Cache) putFailure() {
	if c.metrics != nil {
		c.metrics.CachePutFailuresTotal.Inc()
	}
}

func (c *Cache) invalidated(scope string) {
	if c.metrics != nil {
		c.metrics.InvalidationsTotal.WithLabelValues(scope).Inc()
	}
}

func (c *Cache) keysDeleted(n int) {
	if c.metrics != nil {
		c.metrics.InvalidationKeysDeleted.Add(float64(n))
	}
}
