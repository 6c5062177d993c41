// Package cache provides caching implementations for repository interfaces.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tradinghub/internal/feature/marketdata/domain/entity"
	"tradinghub/internal/feature/marketdata/usecase"
)

// CachingBarRepository decorates a BarRepository with Redis caching of range
// reads. It is transparent: a nil Redis client bypasses the cache entirely,
// and cache failures are best-effort, never surfaced to callers.
type CachingBarRepository struct {
	inner     usecase.BarRepository
	rdb       *redis.Client
	ttl       func() time.Duration
	namespace string
}

var _ usecase.BarRepository = (*CachingBarRepository)(nil)

// NewCachingBarRepository decorates a BarRepository with Redis caching. The
// ttl func is evaluated per write so deadline-style TTLs (time until the next
// market rollover) stay correct for entries cached long after startup. A nil
// ttl defaults to a flat 5 minutes; an empty namespace defaults to "bars".
func NewCachingBarRepository(rdb *redis.Client, ttl func() time.Duration, inner usecase.BarRepository, namespace string) *CachingBarRepository {
	if ttl == nil {
		ttl = func() time.Duration { return 5 * time.Minute }
	}
	if namespace == "" {
		namespace = "bars"
	}
	return &CachingBarRepository{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
	}
}

// UpsertBatch writes through to the underlying store and invalidates every
// cached range for the series.
func (c *CachingBarRepository) UpsertBatch(ctx context.Context, key entity.InstrumentKey, bars []entity.Bar) (int, error) {
	n, err := c.inner.UpsertBatch(ctx, key, bars)
	if err != nil {
		return n, err
	}
	if c.rdb == nil || len(bars) == 0 {
		return n, nil
	}

	// Best effort: stale cache entries expire via TTL anyway.
	_ = c.deleteByPattern(ctx, c.seriesPrefix(key)+"*")
	return n, nil
}

// ReadRange checks the cache before falling back to the underlying store.
func (c *CachingBarRepository) ReadRange(ctx context.Context, key entity.InstrumentKey, start, end time.Time) ([]entity.Bar, error) {
	if c.rdb == nil {
		return c.inner.ReadRange(ctx, key, start, end)
	}

	cacheKey := c.rangeKey(key, start, end)

	if b, err := c.rdb.Get(ctx, cacheKey).Bytes(); err == nil && len(b) > 0 {
		var out []entity.Bar
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		// Corrupted entry: drop it and fall through to the store.
		_ = c.rdb.Del(ctx, cacheKey).Err()
	}

	out, err := c.inner.ReadRange(ctx, key, start, end)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, cacheKey, b, c.ttl()).Err()
	}

	return out, nil
}

// rangeKey generates the cache key for one range read.
func (c *CachingBarRepository) rangeKey(key entity.InstrumentKey, start, end time.Time) string {
	return fmt.Sprintf("%s%d:%d", c.seriesPrefix(key), start.Unix(), end.Unix())
}

// seriesPrefix generates the invalidation prefix for a series.
func (c *CachingBarRepository) seriesPrefix(key entity.InstrumentKey) string {
	if key.IsOption() {
		return fmt.Sprintf("%s:%s:%s:%s:%s:%s:",
			c.namespace, safe(key.Symbol), safe(key.Interval),
			key.Strike.String(), key.Right, key.Expiration.Format("20060102"))
	}
	return fmt.Sprintf("%s:%s:%s:", c.namespace, safe(key.Symbol), safe(key.Interval))
}

// deleteByPattern deletes all cache keys matching a given pattern using SCAN.
func (c *CachingBarRepository) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return nil
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
