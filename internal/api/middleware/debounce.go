package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"hash/fnv"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zatekoja/inpatient-core/internal/infrastructure/observability"
	"github.com/zatekoja/inpatient-core/pkg/config"
	apperrors "github.com/zatekoja/inpatient-core/pkg/errors"
)

const debounceShards = 32

// signatureBodyLimit bounds how much of a request body feeds the signature
const signatureBodyLimit = 64 << 10

type debounceShard struct {
	mu       sync.Mutex
	accepted map[string]time.Time
}

// DebounceGuard rejects a request whose (method, path, query, body) signature was
// accepted less than delay ago. Only accepted requests refresh the
// remembered time. Signatures are spread over shards so unrelated requests
// never share a lock.
type DebounceGuard struct {
	shards        [debounceShards]debounceShard
	delay         time.Duration
	entryTTL      time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	metrics       *observability.Metrics
	logger        zerolog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDebounceGuard creates a guard from cfg. Zero values fall back to
// 300ms delay, 5m entry TTL and a 60s sweep.
func NewDebounceGuard(cfg config.DebounceConfig, logger zerolog.Logger) *DebounceGuard {
	g := &DebounceGuard{
		delay:         cfg.Delay,
		entryTTL:      cfg.EntryTTL,
		sweepInterval: cfg.SweepInterval,
		now:           time.Now,
		logger:        logger.With().Str("component", "debounce_guard").Logger(),
		stop:          make(chan struct{}),
	}
	if g.delay <= 0 {
		g.delay = 300 * time.Millisecond
	}
	if g.entryTTL <= 0 {
		g.entryTTL = 5 * time.Minute
	}
	if g.sweepInterval <= 0 {
		g.sweepInterval = time.Minute
	}
	for i := range g.shards {
		g.shards[i].accepted = make(map[string]time.Time)
	}
	return g
}

// SetMetrics attaches the rejection counter
func (g *DebounceGuard) SetMetrics(metrics *observability.Metrics) {
	g.metrics = metrics
}

// Check reports whether a request with signature may proceed, and records
// it as accepted when it may
func (g *DebounceGuard) Check(signature string) bool {
	shard := g.shard(signature)
	now := g.now()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if last, ok := shard.accepted[signature]; ok && now.Sub(last) < g.delay {
		return false
	}
	shard.accepted[signature] = now
	return true
}

func (g *DebounceGuard) shard(signature string) *debounceShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(signature))
	return &g.shards[h.Sum32()%debounceShards]
}

// Sweep drops entries accepted longer than the entry TTL ago and returns how
// many were removed
func (g *DebounceGuard) Sweep() int {
	cutoff := g.now().Add(-g.entryTTL)
	removed := 0
	for i := range g.shards {
		shard := &g.shards[i]
		shard.mu.Lock()
		for sig, at := range shard.accepted {
			if at.Before(cutoff) {
				delete(shard.accepted, sig)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// Len returns the number of remembered signatures
func (g *DebounceGuard) Len() int {
	n := 0
	for i := range g.shards {
		g.shards[i].mu.Lock()
		n += len(g.shards[i].accepted)
		g.shards[i].mu.Unlock()
	}
	return n
}

// Start launches the periodic sweep
func (g *DebounceGuard) Start() {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(g.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-g.stop:
				return
			case <-ticker.C:
				if n := g.Sweep(); n > 0 {
					g.logger.Debug().Int("removed", n).Msg("debounce entries expired")
				}
			}
		}
	}()
}

// Stop halts the sweep
func (g *DebounceGuard) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
	g.wg.Wait()
}

// RequestSignature is the debounce key of r: method, path, the query with
// its keys sorted and, for requests that carry one, a digest of the body.
// The body is put back so the handler still reads all of it.
func RequestSignature(r *http.Request) string {
	sig := r.Method + " " + r.URL.Path
	if q := r.URL.Query(); len(q) > 0 {
		sig += "?" + q.Encode()
	}
	if r.Body == nil || r.Body == http.NoBody || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return sig
	}

	head, err := io.ReadAll(io.LimitReader(r.Body, signatureBodyLimit))
	r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(head), r.Body), Closer: r.Body}
	if err != nil || len(head) == 0 {
		return sig
	}
	sum := sha256.Sum256(head)
	return sig + "#" + hex.EncodeToString(sum[:])
}

type readCloser struct {
	io.Reader
	io.Closer
}

// Middleware rejects duplicate requests with 429
func (g *DebounceGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Check(RequestSignature(r)) {
			next.ServeHTTP(w, r)
			return
		}

		observability.RecordDebounceRejected(r.Context(), g.metrics, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": apperrors.ErrRateLimited.Message,
			"type":  string(apperrors.ErrRateLimited.Type),
		})
	})
}
