package cache

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/deptree/pkg/api"
)

// TieredStore puts a memory store in front of a shared store. Reads that miss
// the memory tier and hit the shared tier are copied into memory for the
// entry's remaining lifetime.
type TieredStore struct {
	l1  *MemoryStore
	l2  Store
	now func() time.Time
}

var _ Store = (*TieredStore)(nil)

// NewTieredStore creates a two level store
func NewTieredStore(l1 *MemoryStore, l2 Store) *TieredStore {
	return &TieredStore{l1: l1, l2: l2, now: time.Now}
}

// Get checks memory first, then the shared tier
func (s *TieredStore) Get(ctx context.Context, key string) (*Entry, error) {
	if entry, err := s.l1.Get(ctx, key); err == nil {
		return entry, nil
	}

	entry, err := s.l2.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(0)
	if !entry.ExpiresAt.IsZero() {
		ttl = entry.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return nil, ErrCacheMiss
		}
	}
	s.l1.Set(ctx, key, entry.Value, ttl)
	return entry, nil
}

// Set writes both tiers. A shared tier failure is returned after the memory
// tier has been written.
func (s *TieredStore) Set(ctx context.Context, key string, value []*api.DependencyTree, ttl time.Duration) error {
	s.l1.Set(ctx, key, value, ttl)
	return s.l2.Set(ctx, key, value, ttl)
}

// Purge clears both tiers
func (s *TieredStore) Purge(ctx context.Context) error {
	return errors.Join(s.l1.Purge(ctx), s.l2.Purge(ctx))
}

// PurgeExpired purges both tiers
func (s *TieredStore) PurgeExpired(ctx context.Context) (int, error) {
	n1, err1 := s.l1.PurgeExpired(ctx)
	n2, err2 := s.l2.PurgeExpired(ctx)
	return n1 + n2, errors.Join(err1, err2)
}

// Len reports the shared tier size, which is the authoritative one
func (s *TieredStore) Len(ctx context.Context) (int, error) {
	return s.l2.Len(ctx)
}

// Close closes both tiers
func (s *TieredStore) Close() error {
	return errors.Join(s.l1.Close(), s.l2.Close())
}
