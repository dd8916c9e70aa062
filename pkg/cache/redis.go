package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/deptree/pkg/api"
)

// NewRedisClient builds a Redis client from the cache configuration and
// checks connectivity
func NewRedisClient(ctx context.Context, config *Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB >= 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisStore keeps entries in Redis so several instances share one cache.
// Redis expires keys itself. The store does not own the client.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store using keys under prefix
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

// Get retrieves an entry
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	redisKey := s.key(key)

	data, err := s.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	} else if err != nil {
		return nil, fmt.Errorf("%w: redis get failed: %v", ErrCacheUnavailable, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// corrupt data is dropped so the next resolution rewrites it
		s.client.Del(ctx, redisKey)
		return nil, fmt.Errorf("failed to unmarshal cache entry %s: %w", key, err)
	}
	if entry.Expired(s.now()) {
		return nil, ErrCacheMiss
	}
	return &entry, nil
}

// Set stores an entry with a Redis side expiry
func (s *RedisStore) Set(ctx context.Context, key string, value []*api.DependencyTree, ttl time.Duration) error {
	entry := Entry{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = s.now().Add(ttl)
	} else {
		ttl = 0
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set failed: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Purge removes every key under the store prefix
func (s *RedisStore) Purge(ctx context.Context) error {
	pattern := s.prefix + ":*"
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan failed for pattern %s: %w", pattern, err)
	}
	return nil
}

// PurgeExpired is a no-op; Redis evicts expired keys on its own
func (s *RedisStore) PurgeExpired(context.Context) (int, error) {
	return 0, nil
}

// Len counts keys under the store prefix
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("%w: scan failed: %v", ErrCacheUnavailable, err)
	}
	return count, nil
}

// Ping checks Redis connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close does nothing; the client is shared and closed by its owner
func (s *RedisStore) Close() error {
	return nil
}
