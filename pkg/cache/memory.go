package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/deptree/pkg/api"
)

// MemoryStore keeps entries in process memory. Expiry is per entry and
// checked when read; expired entries linger until read or purged.
type MemoryStore struct {
	cache *lru.LRU[string, *Entry]
	now   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a memory store. maxEntries <= 0 means unbounded.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &MemoryStore{
		// per entry expiry is tracked on Entry, the LRU itself never expires
		cache: lru.NewLRU[string, *Entry](maxEntries, nil, 0),
		now:   time.Now,
	}
}

// WithClock replaces the clock used for expiry; for tests
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Get returns a stored entry
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	entry, ok := s.cache.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if entry.Expired(s.now()) {
		s.cache.Remove(key)
		return nil, ErrCacheMiss
	}
	return entry, nil
}

// Set stores value until ttl elapses. ttl <= 0 never expires.
func (s *MemoryStore) Set(_ context.Context, key string, value []*api.DependencyTree, ttl time.Duration) error {
	entry := &Entry{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = s.now().Add(ttl)
	}
	s.cache.Add(key, entry)
	return nil
}

// Purge removes every entry
func (s *MemoryStore) Purge(context.Context) error {
	s.cache.Purge()
	return nil
}

// PurgeExpired removes entries past their expiry
func (s *MemoryStore) PurgeExpired(context.Context) (int, error) {
	now := s.now()
	removed := 0
	for _, key := range s.cache.Keys() {
		entry, ok := s.cache.Peek(key)
		if ok && entry.Expired(now) {
			if s.cache.Remove(key) {
				removed++
			}
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired ones included
func (s *MemoryStore) Len(context.Context) (int, error) {
	return s.cache.Len(), nil
}

// Close releases resources
func (s *MemoryStore) Close() error {
	s.cache.Purge()
	return nil
}
