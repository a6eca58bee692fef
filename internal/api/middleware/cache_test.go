package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/inpatient-core/internal/adapters/cache"
	redisclient "github.com/zatekoja/inpatient-core/internal/infrastructure/clients/redis"
)

func newCacheHandler(t *testing.T, rc *cache.ResourceCache, status int) (http.Handler, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	m := NewCacheMiddleware(rc, nil, zerolog.Nop())
	return m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"data":[]}`))
	})), &calls
}

func liveResourceCache(t *testing.T) (*miniredis.Miniredis, *cache.ResourceCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisclient.NewClientFrom(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	rc := cache.NewResourceCache(cache.NewRedisAdapter(client), time.Second, zerolog.Nop())
	require.True(t, rc.Connect(context.Background()))
	return mr, rc
}

func TestCacheMiddleware_HitAfterMiss(t *testing.T) {
	mr, rc := liveResourceCache(t)
	handler, calls := newCacheHandler(t, rc, http.StatusOK)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms?page=1", nil))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms?page=1", nil))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
	assert.Equal(t, int32(1), calls.Load())

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "http:cache:rooms:")
}

func TestCacheMiddleware_SkipsErrorsAndWrites(t *testing.T) {
	mr, rc := liveResourceCache(t)

	handler, calls := newCacheHandler(t, rc, http.StatusNotFound)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/rooms/nope", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/rooms/nope", nil))
	assert.Equal(t, int32(2), calls.Load())

	post, postCalls := newCacheHandler(t, rc, http.StatusOK)
	post.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/rooms", nil))
	post.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/rooms", nil))
	assert.Equal(t, int32(2), postCalls.Load())

	assert.Empty(t, mr.Keys())
}

func TestCacheMiddleware_UncachedRoute(t *testing.T) {
	_, rc := liveResourceCache(t)
	handler, calls := newCacheHandler(t, rc, http.StatusOK)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCacheMiddleware_UnavailableCachePassesThrough(t *testing.T) {
	rc := cache.NewResourceCache(nil, time.Second, zerolog.Nop())
	rc.Connect(context.Background())
	handler, calls := newCacheHandler(t, rc, http.StatusOK)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Equal(t, int32(1), calls.Load())
}
