package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/zatekoja/inpatient-core/internal/domain/providers"
	"github.com/zatekoja/inpatient-core/internal/infrastructure/observability"
)

// DefaultCacheTimeout bounds every backend call made by the resource cache
const DefaultCacheTimeout = 2 * time.Second

type cacheFailure int

const (
	failureConnect cacheFailure = iota
	failureGet
	failureSet
	failureDelete
	failureInvalidate
	failureDecode
	failureClassCount
)

var cacheFailureNames = [failureClassCount]string{"connect", "get", "set", "delete", "invalidate", "decode"}

// ResourceCache is the cache every read path goes through. It degrades to a
// permanent miss when the backend is absent or failing: Get reports absent,
// mutations report false, and nothing is ever returned as an error.
//
// The backend handshake happens once in Connect. A failed handshake leaves
// the cache unavailable until the process restarts.
type ResourceCache struct {
	backend     providers.CacheProvider
	timeout     time.Duration
	logger      zerolog.Logger
	metrics     *observability.Metrics
	available   atomic.Bool
	connectOnce sync.Once
	warned      [failureClassCount]atomic.Bool
}

// NewResourceCache creates a resource cache over backend. backend may be nil,
// in which case the cache is permanently unavailable.
func NewResourceCache(backend providers.CacheProvider, timeout time.Duration, logger zerolog.Logger) *ResourceCache {
	if timeout <= 0 {
		timeout = DefaultCacheTimeout
	}
	return &ResourceCache{
		backend: backend,
		timeout: timeout,
		logger:  logger.With().Str("component", "resource_cache").Logger(),
	}
}

// SetMetrics attaches hit/miss counters
func (c *ResourceCache) SetMetrics(metrics *observability.Metrics) {
	c.metrics = metrics
}

// Connect performs the one-time backend handshake and reports whether the
// cache is now available. Later calls return the first result.
func (c *ResourceCache) Connect(ctx context.Context) bool {
	c.connectOnce.Do(func() {
		if c.backend == nil {
			c.warnOnce(failureConnect, errors.New("no cache backend configured"), "")
			return
		}
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		if err := c.backend.Ping(ctx); err != nil {
			c.warnOnce(failureConnect, err, "")
			return
		}
		c.available.Store(true)
		c.logger.Info().Msg("cache backend connected")
	})
	return c.available.Load()
}

// Available reports whether the handshake succeeded
func (c *ResourceCache) Available() bool {
	return c.available.Load()
}

// Get returns the cached value for key and whether it was present
func (c *ResourceCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.available.Load() {
		observability.RecordCacheMiss(ctx, c.metrics, keyClass(key))
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	value, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, providers.ErrCacheMiss) {
			c.warnOnce(failureGet, err, key)
		}
		observability.RecordCacheMiss(ctx, c.metrics, keyClass(key))
		return nil, false
	}

	observability.RecordCacheHit(ctx, c.metrics, keyClass(key))
	return value, true
}

// Set stores value under key for ttlSeconds
func (c *ResourceCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) bool {
	if !c.available.Load() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.backend.Set(ctx, key, value, ttlSeconds); err != nil {
		c.warnOnce(failureSet, err, key)
		return false
	}
	return true
}

// Delete removes key
func (c *ResourceCache) Delete(ctx context.Context, key string) bool {
	if !c.available.Load() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.backend.Delete(ctx, key); err != nil {
		c.warnOnce(failureDelete, err, key)
		return false
	}
	return true
}

// InvalidatePattern removes every key matching the glob pattern as one
// batch. Matching nothing counts as success.
func (c *ResourceCache) InvalidatePattern(ctx context.Context, pattern string) bool {
	if !c.available.Load() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	removed, err := c.backend.DeletePattern(ctx, pattern)
	if err != nil {
		c.warnOnce(failureInvalidate, err, pattern)
		return false
	}
	if removed > 0 {
		c.logger.Debug().Str("pattern", pattern).Int("removed", removed).Msg("cache invalidated")
	}
	return true
}

// GetJSON decodes the cached value for key into dst. A value that does not
// decode is treated as a miss.
func (c *ResourceCache) GetJSON(ctx context.Context, key string, dst any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.warnOnce(failureDecode, err, key)
		return false
	}
	return true
}

// SetJSON encodes v and stores it under key
func (c *ResourceCache) SetJSON(ctx context.Context, key string, v any, ttlSeconds int) bool {
	if !c.available.Load() {
		return false
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.warnOnce(failureDecode, err, key)
		return false
	}
	return c.Set(ctx, key, data, ttlSeconds)
}

// warnOnce logs the first failure of each class for the process lifetime.
func (c *ResourceCache) warnOnce(class cacheFailure, err error, key string) {
	if !c.warned[class].CompareAndSwap(false, true) {
		return
	}
	evt := c.logger.Warn().Err(err).Str("operation", cacheFailureNames[class])
	if key != "" {
		evt = evt.Str("key", key)
	}
	evt.Msg("cache operation failed; continuing without cache (further failures of this kind are not logged)")
}

// keyClass reduces a key to its first two segments for metric attributes,
// e.g. "cache:rooms:list:1:20" becomes "cache:rooms".
func keyClass(key string) string {
	colons := 0
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			colons++
			if colons == 2 {
				return key[:i]
			}
		}
	}
	return key
}
