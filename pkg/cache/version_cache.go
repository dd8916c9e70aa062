package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/deptree/pkg/api"
	"github.com/platinummonkey/deptree/pkg/observability"
)

// VersionCache memoizes resolved children per concrete package version.
// Entries live for the TTL in effect when they were written. The "latest"
// marker is never stored or looked up.
type VersionCache struct {
	store       Store
	backend     string
	ttl         atomic.Int64
	hits        atomic.Int64
	misses      atomic.Int64
	writes      atomic.Int64
	errors      atomic.Int64
	logger      *observability.Logger
	metrics     *observability.Metrics
	otelMetrics *observability.OTelMetrics
}

// Option customises a VersionCache
type Option func(*VersionCache)

// WithLogger sets the logger used for store failures
func WithLogger(logger *observability.Logger) Option {
	return func(c *VersionCache) {
		c.logger = logger
	}
}

// WithMetrics records hits, misses and writes on the Prometheus collectors
func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *VersionCache) {
		c.metrics = metrics
	}
}

// WithOTelMetrics records lookups on the OpenTelemetry instruments
func WithOTelMetrics(metrics *observability.OTelMetrics) Option {
	return func(c *VersionCache) {
		c.otelMetrics = metrics
	}
}

// WithBackendName labels the store in Stats
func WithBackendName(name string) Option {
	return func(c *VersionCache) {
		c.backend = name
	}
}

// NewVersionCache wraps store. ttl <= 0 selects DefaultTTL.
func NewVersionCache(store Store, ttl time.Duration, opts ...Option) *VersionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &VersionCache{
		store:   store,
		backend: BackendMemory,
		logger:  observability.NopLogger(),
	}
	c.ttl.Store(int64(ttl))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewMemoryVersionCache is a VersionCache over an unbounded MemoryStore
func NewMemoryVersionCache(ttl time.Duration, opts ...Option) *VersionCache {
	return NewVersionCache(NewMemoryStore(0), ttl, opts...)
}

// IsCached reports whether a live entry exists for name@version
func (c *VersionCache) IsCached(ctx context.Context, name, version string) bool {
	_, err := c.Get(ctx, name, version)
	return err == nil
}

// Get returns the cached children of name@version. Absent, expired and
// "latest" lookups return ErrCacheMiss; store failures are returned wrapped.
func (c *VersionCache) Get(ctx context.Context, name, version string) ([]*api.DependencyTree, error) {
	if version == api.LatestVersion {
		return nil, ErrCacheMiss
	}
	if name == "" || version == "" {
		return nil, ErrInvalidCacheKey
	}

	entry, err := c.store.Get(ctx, Key(name, version))
	switch {
	case err == nil:
		c.hits.Add(1)
		c.metrics.RecordCacheHit()
		c.otelMetrics.RecordCacheLookup(ctx, true)
		return entry.Value, nil
	case errors.Is(err, ErrCacheMiss):
		c.misses.Add(1)
		c.metrics.RecordCacheMiss()
		c.otelMetrics.RecordCacheLookup(ctx, false)
		return nil, ErrCacheMiss
	default:
		c.errors.Add(1)
		c.metrics.RecordCacheMiss()
		c.otelMetrics.RecordCacheLookup(ctx, false)
		return nil, fmt.Errorf("reading %s: %w", Key(name, version), err)
	}
}

// Set stores children of name@version with the current TTL
func (c *VersionCache) Set(ctx context.Context, name, version string, value []*api.DependencyTree) error {
	return c.SetWithTTL(ctx, name, version, value, c.Expiry())
}

// SetWithTTL stores children of name@version for ttl
func (c *VersionCache) SetWithTTL(ctx context.Context, name, version string, value []*api.DependencyTree, ttl time.Duration) error {
	if version == api.LatestVersion {
		return ErrUncacheableVersion
	}
	if name == "" || version == "" {
		return ErrInvalidCacheKey
	}
	if value == nil {
		value = []*api.DependencyTree{}
	}

	err := c.store.Set(ctx, Key(name, version), value, ttl)
	c.metrics.RecordCacheWrite(err)
	if err != nil {
		c.errors.Add(1)
		return fmt.Errorf("writing %s: %w", Key(name, version), err)
	}
	c.writes.Add(1)
	return nil
}

// SetExpiry changes the TTL applied to subsequent writes. Existing entries
// keep the expiry they were written with.
func (c *VersionCache) SetExpiry(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	old := time.Duration(c.ttl.Swap(int64(ttl)))
	if old != ttl {
		c.logger.WithField("old_ttl", old.String()).WithField("new_ttl", ttl.String()).Info("Cache expiry changed")
	}
}

// Expiry returns the TTL applied to new writes
func (c *VersionCache) Expiry() time.Duration {
	return time.Duration(c.ttl.Load())
}

// Clear drops every entry
func (c *VersionCache) Clear(ctx context.Context) error {
	n, _ := c.store.Len(ctx)
	if err := c.store.Purge(ctx); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	c.metrics.RecordCachePurged(n)
	c.logger.WithField("entries", n).Info("Cache cleared")
	return nil
}

// PurgeExpired releases expired entries from the store
func (c *VersionCache) PurgeExpired(ctx context.Context) (int, error) {
	n, err := c.store.PurgeExpired(ctx)
	if n > 0 {
		c.metrics.RecordCachePurged(n)
	}
	return n, err
}

// Stats returns cache statistics
func (c *VersionCache) Stats(ctx context.Context) (*Stats, error) {
	items, err := c.store.Len(ctx)
	if err != nil {
		return nil, err
	}

	ttl := c.Expiry()
	stats := &Stats{
		Backend:   c.backend,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Writes:    c.writes.Load(),
		Errors:    c.errors.Load(),
		ItemCount: int64(items),
		TTL:       ttl,
		TTLSecs:   ttl.Seconds(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats, nil
}

// Close closes the underlying store
func (c *VersionCache) Close() error {
	return c.store.Close()
}
