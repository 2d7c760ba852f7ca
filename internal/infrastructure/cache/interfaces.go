package cache

import (
	"context"
	"fmt"
	"time"
)

// Key prefixes partition the keyspace by concern.
const (
	AuctionPrefix   = "auction:view:"
	RateLimitPrefix = "ratelimit:"
)

// Cache is a generic string cache with TTL support
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// RateLimiter throttles requests per key over a sliding window
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
	Reset(ctx context.Context, key string) error
}

// ErrCacheKeyNotFound indicates a cache miss
type ErrCacheKeyNotFound struct {
	Key string
}

func (e ErrCacheKeyNotFound) Error() string {
	return fmt.Sprintf("cache key not found: %s", e.Key)
}

// IsCacheMiss reports whether the error is a cache miss
func IsCacheMiss(err error) bool {
	_, ok := err.(ErrCacheKeyNotFound)
	return ok
}
