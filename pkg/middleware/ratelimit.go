package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/deptree/pkg/contextkeys"
	"github.com/platinummonkey/deptree/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate (in-memory limiter only)
	BurstSize int
	// TrustProxyHeaders keys clients by X-Forwarded-For / X-Real-IP instead of the socket address
	TrustProxyHeaders bool
}

// DefaultRateLimitConfig returns 100 requests per 15 minutes per client
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    15 * time.Minute,
	}
}

// Decision is the outcome of a single rate limit check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter decides whether a request identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Name() string
}

// RateLimiter implements in-process rate limiting using a token bucket per key
type RateLimiter struct {
	config  *RateLimitConfig
	buckets map[string]*bucket
	mu      sync.RWMutex
	now     func() time.Time
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Name identifies the limiter in metrics
func (rl *RateLimiter) Name() string {
	return "memory"
}

func (rl *RateLimiter) capacity() int {
	return rl.config.RequestsPerWindow + rl.config.BurstSize
}

// Allow takes a token for key if one is available
func (rl *RateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := rl.now()

	rl.mu.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{
			tokens:     rl.capacity(),
			lastUpdate: now,
		}
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	// Refill whole tokens; the fractional remainder stays credited to the bucket
	perToken := rl.perToken()
	tokensToAdd := int(now.Sub(b.lastUpdate) / perToken)
	if tokensToAdd > 0 {
		b.tokens += tokensToAdd
		b.lastUpdate = b.lastUpdate.Add(time.Duration(tokensToAdd) * perToken)
		if b.tokens >= rl.capacity() {
			b.tokens = rl.capacity()
			b.lastUpdate = now
		}
	}

	decision := Decision{Limit: rl.config.RequestsPerWindow}
	if b.tokens > 0 {
		b.tokens--
		decision.Allowed = true
	}
	decision.Remaining = b.tokens
	decision.ResetAt = now.Add(rl.refillTime(rl.capacity() - b.tokens))
	return decision, nil
}

// perToken is the time it takes to earn one token, never zero
func (rl *RateLimiter) perToken() time.Duration {
	d := time.Duration(math.Ceil(float64(rl.config.WindowDuration) / float64(rl.config.RequestsPerWindow)))
	if d <= 0 {
		return time.Nanosecond
	}
	return d
}

// refillTime is how long it takes to earn n tokens back
func (rl *RateLimiter) refillTime(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return rl.perToken() * time.Duration(n)
}

// Remaining returns the number of remaining tokens for a key
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.RLock()
	b, exists := rl.buckets[key]
	rl.mu.RUnlock()

	if !exists {
		return rl.capacity()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.tokens
}

// Cleanup removes buckets idle for more than two windows
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	now := rl.now()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
			removed++
		}
		b.mu.Unlock()
	}
	return removed
}

// StartCleanup starts a background goroutine to cleanup old buckets
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimitMiddleware provides per-client HTTP rate limiting
type RateLimitMiddleware struct {
	limiter    Limiter
	trustProxy bool
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewRateLimitMiddleware creates a new rate limit middleware. Limiter errors fail open.
func NewRateLimitMiddleware(limiter Limiter, trustProxy bool, logger *observability.Logger, metrics *observability.Metrics) *RateLimitMiddleware {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RateLimitMiddleware{
		limiter:    limiter,
		trustProxy: trustProxy,
		logger:     logger,
		metrics:    metrics,
	}
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r, m.trustProxy)
		ctx := contextkeys.WithClientIP(r.Context(), ip)
		r = r.WithContext(ctx)

		decision, err := m.limiter.Allow(ctx, "ip:"+ip)
		if err != nil {
			m.logger.WithError(err).WithField("limiter", m.limiter.Name()).Warn("Rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, decision)
		if !decision.Allowed {
			m.metrics.RecordRateLimited(m.limiter.Name())
			rateLimitExceeded(w, decision)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func setRateLimitHeaders(w http.ResponseWriter, d Decision) {
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", d.Limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", d.Remaining))
	if !d.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", d.ResetAt.Unix()))
	}
}

func rateLimitExceeded(w http.ResponseWriter, d Decision) {
	retryAfter := math.Ceil(time.Until(d.ResetAt).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate limit exceeded","retry_after":` + fmt.Sprintf("%.0f", retryAfter) + `}`))
}

// ClientIP returns the address a request is rate limited by. Proxy headers are
// only honoured when trustProxy is set.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			return strings.TrimSpace(first)
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return strings.TrimSpace(realIP)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
