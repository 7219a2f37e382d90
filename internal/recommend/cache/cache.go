// Package cache memoises recommendation results in Redis. Entries are keyed
// by the normalised query, top_n and the cache generation, and are dropped
// wholesale whenever a new index is installed.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/recommend"
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "rec:"

// Store is the subset of pkg/redis.Client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
}

type ResultCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64

	// generation is part of every key and advances on Invalidate, so a
	// computation that straddles an invalidation cannot repopulate the cache.
	generation atomic.Uint64
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *ResultCache {
	if m == nil {
		m = metrics.NewNop()
	}
	return &ResultCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "recommendation-cache"),
	}
}

func (c *ResultCache) Get(ctx context.Context, query string, topN int) (*recommend.Result, bool) {
	return c.get(ctx, buildKey(query, topN, c.generation.Load()))
}

func (c *ResultCache) get(ctx context.Context, key string) (*recommend.Result, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result recommend.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheHitsTotal.Inc()
	return &result, true
}

func (c *ResultCache) Set(ctx context.Context, query string, topN int, result *recommend.Result) {
	c.set(ctx, buildKey(query, topN, c.generation.Load()), result)
}

func (c *ResultCache) set(ctx context.Context, key string, result *recommend.Result) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns a cached result or runs compute once per key across
// concurrent callers. The boolean reports a cache hit. A result computed while
// Invalidate ran is returned but not stored.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	query string,
	topN int,
	compute func() (*recommend.Result, error),
) (*recommend.Result, bool, error) {
	gen := c.generation.Load()
	key := buildKey(query, topN, gen)
	if result, ok := c.get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		if c.generation.Load() != gen {
			c.logger.Debug("discarding result computed across invalidation", "key", key)
			return result, nil
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*recommend.Result), false, nil
}

// Invalidate drops every cached recommendation.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	c.generation.Add(1)
	deleted, err := c.store.DeleteByPrefix(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("invalidating recommendation cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ResultCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheMissesTotal.Inc()
}

// buildKey collapses case and whitespace so trivially different spellings of
// one query share an entry.
func buildKey(query string, topN int, gen uint64) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s|top_n=%d|gen=%d", normalized, topN, gen)))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
