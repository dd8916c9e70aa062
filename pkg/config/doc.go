// Package config loads service configuration from defaults, an optional YAML
// file and DEPTREE_* environment variables, in that order of precedence.
//
// # Environment
//
// Server:
//
//	DEPTREE_HOST="0.0.0.0"
//	DEPTREE_PORT="3000"
//	DEPTREE_HEALTH_PORT="9090"
//	DEPTREE_REQUEST_TIMEOUT="45s"
//
// Registry:
//
//	DEPTREE_REGISTRY_URL="https://registry.npmjs.org"
//	DEPTREE_REGISTRY_RETRY_MAX="5"
//	DEPTREE_REGISTRY_MAX_CONCURRENT="32"
//
// Cache:
//
//	DEPTREE_CACHE_BACKEND="memory"  # memory, redis, tiered
//	DEPTREE_CACHE_TTL="24h"         # bare integers are seconds
//	DEPTREE_REDIS_URL="redis://localhost:6379/0"
//
// Rate limiting, observability and admin:
//
//	DEPTREE_RATE_LIMIT_REQUESTS="100"
//	DEPTREE_RATE_LIMIT_WINDOW="15m"
//	DEPTREE_LOG_LEVEL="info"
//	DEPTREE_OTEL_ENABLED="false"
//	DEPTREE_ADMIN_ENABLED="false"
//
// # File
//
// DEPTREE_CONFIG_FILE names a YAML file with the same sections:
//
//	cache:
//	  backend: tiered
//	  ttl: 1h
//	rate_limit:
//	  requests_per_window: 500
//
// Watch reloads that file on change. The server uses it to push a new cache
// TTL into the running cache.
package config
