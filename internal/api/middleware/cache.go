package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zatekoja/inpatient-core/internal/adapters/cache"
)

// CacheConfig holds cache configuration for a route prefix. Group names the
// invalidation namespace the cached responses live in.
type CacheConfig struct {
	Prefix     string
	Group      string
	TTLSeconds int
}

// DefaultCacheRoutes caches the read endpoints. Bed state changes every few
// minutes on a busy ward, so TTLs stay short and events do the rest.
var DefaultCacheRoutes = []CacheConfig{
	{Prefix: "/api/rooms", Group: "rooms", TTLSeconds: 60},
	{Prefix: "/api/admissions", Group: "admissions", TTLSeconds: 30},
}

// CacheMiddleware provides HTTP response caching over the resource cache
type CacheMiddleware struct {
	cache  *cache.ResourceCache
	routes []CacheConfig
	logger zerolog.Logger
}

// NewCacheMiddleware creates a cache middleware. routes are matched by
// prefix in order; pass nil for DefaultCacheRoutes.
func NewCacheMiddleware(resourceCache *cache.ResourceCache, routes []CacheConfig, logger zerolog.Logger) *CacheMiddleware {
	if routes == nil {
		routes = DefaultCacheRoutes
	}
	return &CacheMiddleware{
		cache:  resourceCache,
		routes: routes,
		logger: logger.With().Str("component", "http_cache").Logger(),
	}
}

// Middleware returns the cache middleware handler
func (m *CacheMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || m.cache == nil || !m.cache.Available() {
			next.ServeHTTP(w, r)
			return
		}

		config, ok := m.routeConfig(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		cacheKey := m.cacheKey(config.Group, r)
		if cached, ok := m.cache.Get(r.Context(), cacheKey); ok {
			w.Header().Set("X-Cache", "HIT")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(cached)
			return
		}

		w.Header().Set("X-Cache", "MISS")
		recorder := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
			body:           &bytes.Buffer{},
		}
		next.ServeHTTP(recorder, r)

		// Only cache successful responses
		if recorder.statusCode == http.StatusOK && recorder.body.Len() > 0 {
			if m.cache.Set(r.Context(), cacheKey, recorder.body.Bytes(), config.TTLSeconds) {
				m.logger.Debug().Str("key", cacheKey).Int("ttl", config.TTLSeconds).Msg("response cached")
			}
		}
	})
}

func (m *CacheMiddleware) routeConfig(path string) (CacheConfig, bool) {
	for _, c := range m.routes {
		if path == c.Prefix || strings.HasPrefix(path, c.Prefix+"/") {
			return c, true
		}
	}
	return CacheConfig{}, false
}

// cacheKey hashes method, path and the sorted query into the route group's
// namespace
func (m *CacheMiddleware) cacheKey(group string, r *http.Request) string {
	key := r.Method + ":" + r.URL.Path
	if q := r.URL.Query(); len(q) > 0 {
		key += "?" + q.Encode()
	}
	hash := sha256.Sum256([]byte(key))
	return cache.HTTPKey(group, hex.EncodeToString(hash[:]))
}

// responseRecorder captures the response for caching
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
	written    bool
}

// WriteHeader captures the status code
func (r *responseRecorder) WriteHeader(statusCode int) {
	if !r.written {
		r.statusCode = statusCode
		r.ResponseWriter.WriteHeader(statusCode)
		r.written = true
	}
}

// Write captures the response body and writes to the client
func (r *responseRecorder) Write(data []byte) (int, error) {
	if !r.written {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(data)
	return r.ResponseWriter.Write(data)
}
