package domain

import (
	"context"
	"time"
)

// Cache backs the configuration snapshot cache and the API rate limiter.
// Single-node deployments use the in-process LRU; clusters share Redis.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// IncrementCounter atomically increments a fixed-window counter and returns the new value.
	// Used for per-client rate limiting.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	Ping(ctx context.Context) error

	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// In-process LRU settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EnableTwoPhase checks the local LRU before Redis.
	EnableTwoPhase bool

	// SnapshotTTL bounds how long a cached risk configuration snapshot is served.
	SnapshotTTL time.Duration
}
