package cache

import (
	"context"
	"time"

	"github.com/platinummonkey/deptree/pkg/api"
)

const (
	// DefaultTTL is how long a resolved subtree stays cached
	DefaultTTL = 24 * time.Hour

	// DefaultKeyPrefix namespaces cache entries in Redis
	DefaultKeyPrefix = "deptree:tree"

	// DefaultJanitorSchedule purges expired memory entries every 10 minutes
	DefaultJanitorSchedule = "@every 10m"
)

// Backend names accepted by Config.Backend
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendTiered = "tiered"
)

// Key returns the cache key for a package version
func Key(name, version string) string {
	return name + ":" + version
}

// Entry is a stored list of resolved children
type Entry struct {
	Value     []*api.DependencyTree `json:"value"`
	ExpiresAt time.Time             `json:"expires_at"`
}

// Expired reports whether the entry is past its TTL at now. An entry is still
// live at exactly its expiry time.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Store is the physical storage behind a VersionCache
type Store interface {
	// Get returns ErrCacheMiss when key is absent or expired
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, value []*api.DependencyTree, ttl time.Duration) error
	Purge(ctx context.Context) error
	// PurgeExpired drops expired entries and returns how many were dropped
	PurgeExpired(ctx context.Context) (int, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// Stats represents cache statistics
type Stats struct {
	Backend   string        `json:"backend"`
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Writes    int64         `json:"writes"`
	Errors    int64         `json:"errors"`
	HitRate   float64       `json:"hit_rate"`
	ItemCount int64         `json:"items"`
	TTL       time.Duration `json:"-"`
	TTLSecs   float64       `json:"ttl_seconds"`
}

// Config holds cache configuration
type Config struct {
	Backend         string
	TTL             time.Duration
	MaxEntries      int // 0 means unbounded
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisPoolSize   int
	RedisMaxRetries int
	KeyPrefix       string
	JanitorSchedule string
}

// DefaultConfig returns an in-memory cache with a 24h TTL
func DefaultConfig() *Config {
	return &Config{
		Backend:         BackendMemory,
		TTL:             DefaultTTL,
		RedisURL:        "redis://localhost:6379/0",
		RedisDB:         -1,
		KeyPrefix:       DefaultKeyPrefix,
		JanitorSchedule: DefaultJanitorSchedule,
	}
}
