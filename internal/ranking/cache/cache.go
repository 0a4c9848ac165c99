package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/pipeline/metrics"
)

const (
	RecommendationsPrefix = "recommendations:"
	AsyncRankingsPrefix   = "async_rankings:"

	// DefaultTTL is the recommendation TTL when none is configured.
	DefaultTTL = time.Hour
)

// RecommendationsKey is the synchronous-path key for userID.
func RecommendationsKey(userID string) string { return RecommendationsPrefix + userID }

// AsyncRankingsKey is the async-path key for userID.
func AsyncRankingsKey(userID string) string { return AsyncRankingsPrefix + userID }

// ResultCache wraps a Store with JSON encoding and outage tolerance.
type ResultCache struct {
	store    Store
	ttl      time.Duration
	recorder metrics.Recorder
	log      *slog.Logger
}

// New creates a result cache. ttl <= 0 uses DefaultTTL.
func New(store Store, ttl time.Duration, recorder metrics.Recorder) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &ResultCache{
		store:    store,
		ttl:      ttl,
		recorder: recorder,
		log:      slog.Default().With("component", "result_cache"),
	}
}

// TTL returns the configured entry lifetime.
func (c *ResultCache) TTL() time.Duration { return c.ttl }

// GetRaw returns the stored JSON. ok is false on miss or backend failure.
func (c *ResultCache) GetRaw(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			c.recorder.CacheLookup(metrics.CacheMiss)
		} else {
			c.recorder.CacheLookup(metrics.CacheError)
			c.log.Warn("Cache get failed, treating as miss", "key", key, "error", err)
		}
		return nil, false
	}
	c.recorder.CacheLookup(metrics.CacheHit)
	return data, true
}

// Get decodes the cached ranking under key.
func (c *ResultCache) Get(ctx context.Context, key string) (*domain.RankingResult, bool) {
	data, ok := c.GetRaw(ctx, key)
	if !ok {
		return nil, false
	}
	var res domain.RankingResult
	if err := json.Unmarshal(data, &res); err != nil {
		c.log.Warn("Dropping undecodable cache entry", "key", key, "error", err)
		_ = c.store.Del(ctx, key)
		return nil, false
	}
	return &res, true
}

// Set stores result under key. ttl <= 0 uses the configured TTL. It returns
// false when the backend rejected the write.
func (c *ResultCache) Set(
	ctx context.Context,
	key string,
	result *domain.RankingResult,
	ttl time.Duration,
) bool {
	data, err := json.Marshal(result)
	if err != nil {
		c.log.Error("Failed to encode ranking", "key", key, "error", err)
		return false
	}
	return c.SetRaw(ctx, key, data, ttl)
}

// SetRaw stores already-encoded JSON.
func (c *ResultCache) SetRaw(ctx context.Context, key string, data []byte, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		c.log.Warn("Cache set failed", "key", key, "error", err)
		return false
	}
	return true
}

// Delete removes both cached rankings for userID.
func (c *ResultCache) Delete(ctx context.Context, userID string) bool {
	if err := c.store.Del(ctx, RecommendationsKey(userID), AsyncRankingsKey(userID)); err != nil {
		c.log.Warn("Cache delete failed", "user_id", userID, "error", err)
		return false
	}
	return true
}

// InvalidatePrefix removes every key under prefix. Returns 0 on failure.
func (c *ResultCache) InvalidatePrefix(ctx context.Context, prefix string) int {
	n, err := c.store.DelPrefix(ctx, prefix)
	if err != nil {
		c.log.Warn("Cache prefix invalidation failed", "prefix", prefix, "error", err)
		return 0
	}
	return n
}

// Ping reports whether the backend is reachable.
func (c *ResultCache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}
