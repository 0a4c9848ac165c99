// Package cache stores generated rankings keyed by user. A cache outage is
// indistinguishable from a miss to callers.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is a byte-oriented key/value backend with per-entry TTL.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// DelPrefix removes every key starting with prefix and returns how many.
	DelPrefix(ctx context.Context, prefix string) (int, error)
	Ping(ctx context.Context) error
}
