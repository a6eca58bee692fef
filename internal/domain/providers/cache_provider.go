package providers

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by CacheProvider.Get when the key does not exist
var ErrCacheMiss = errors.New("cache miss")

// CacheProvider defines the raw key/value backend used by the resource cache.
// Implementations return errors; callers in the application layer never see
// them directly.
type CacheProvider interface {
	// Get retrieves a value from cache, returning ErrCacheMiss when absent
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration
	Set(ctx context.Context, key string, value []byte, expirationSeconds int) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// DeletePattern removes every key matching the glob pattern in one batch
	// and returns how many keys were removed
	DeletePattern(ctx context.Context, pattern string) (int, error)

	// Ping verifies the backend is reachable
	Ping(ctx context.Context) error
}
