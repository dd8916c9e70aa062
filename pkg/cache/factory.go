package cache

import (
	"fmt"

	"github.com/go-redis/redis/v8"
)

// NewStore builds the store selected by config.Backend. Redis backed stores
// need client; the memory store ignores it.
func NewStore(config *Config, client *redis.Client) (Store, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Backend {
	case "", BackendMemory:
		return NewMemoryStore(config.MaxEntries), nil
	case BackendRedis:
		if client == nil {
			return nil, fmt.Errorf("cache backend %q requires a redis client", config.Backend)
		}
		return NewRedisStore(client, config.KeyPrefix), nil
	case BackendTiered:
		if client == nil {
			return nil, fmt.Errorf("cache backend %q requires a redis client", config.Backend)
		}
		return NewTieredStore(NewMemoryStore(config.MaxEntries), NewRedisStore(client, config.KeyPrefix)), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", config.Backend)
	}
}
