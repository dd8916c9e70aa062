package cache

import (
	"context"
	"sync"
	"time"

	"github.com/platinummonkey/deptree/pkg/api"
)

// testClock is a settable clock shared by stores under test
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func leaf(name, version string) *api.DependencyTree {
	return &api.DependencyTree{Name: name, Version: version, Dependencies: []*api.DependencyTree{}}
}

func children() []*api.DependencyTree {
	return []*api.DependencyTree{
		{Name: "dep1", Version: "1.2.3", Dependencies: []*api.DependencyTree{leaf("dep3", "3.4.5")}},
		leaf("dep2", "2.3.4"),
	}
}

// recordingStore wraps a store and records every key it is asked about
type recordingStore struct {
	Store
	mu   sync.Mutex
	gets []string
	sets []string
}

func (s *recordingStore) Get(ctx context.Context, key string) (*Entry, error) {
	s.mu.Lock()
	s.gets = append(s.gets, key)
	s.mu.Unlock()
	return s.Store.Get(ctx, key)
}

func (s *recordingStore) Set(ctx context.Context, key string, value []*api.DependencyTree, ttl time.Duration) error {
	s.mu.Lock()
	s.sets = append(s.sets, key)
	s.mu.Unlock()
	return s.Store.Set(ctx, key, value, ttl)
}
