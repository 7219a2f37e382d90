package keyword

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	pkgredis "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/redis"
)

const cacheKeyPrefix = "kw:"

// Cache is the key-value subset of pkg/redis.Client the cached extractor
// needs.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Cached memoises another Extractor in Redis. Every reindex run re-reads the
// whole feedback log, so without it each historical comment would hit the
// model again on every run. Cache failures are logged and bypassed; only
// successful extractions are stored.
type Cached struct {
	next   Extractor
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewCached(next Extractor, cache Cache, ttl time.Duration) *Cached {
	return &Cached{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: slog.Default().With("component", "keyword-cache"),
	}
}

func (c *Cached) Extract(ctx context.Context, text string, topN int) ([]string, error) {
	key := cacheKey(text, topN)
	if data, err := c.cache.Get(ctx, key); err == nil {
		var keywords []string
		if err := json.Unmarshal([]byte(data), &keywords); err == nil {
			return keywords, nil
		}
		c.logger.Warn("discarding corrupt keyword cache entry", "key", key)
	} else if !pkgredis.IsNilError(err) {
		c.logger.Warn("keyword cache get failed", "key", key, "error", err)
	}

	keywords, err := c.next.Extract(ctx, text, topN)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(keywords)
	if err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn("keyword cache set failed", "key", key, "error", err)
		}
	}
	return keywords, nil
}

func cacheKey(text string, topN int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d\x00%s", topN, text)))
	return fmt.Sprintf("%s%x", cacheKeyPrefix, sum[:16])
}
