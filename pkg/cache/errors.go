package cache

import "errors"

var (
	// ErrCacheMiss is returned when a key is absent or expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when the backing store cannot be reached
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrInvalidCacheKey is returned for empty names or versions
	ErrInvalidCacheKey = errors.New("invalid cache key")

	// ErrUncacheableVersion is returned when asked to store the moving "latest" marker
	ErrUncacheableVersion = errors.New("latest is not a cacheable version")
)
