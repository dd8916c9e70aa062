// Package middleware provides per-client rate limiting for the HTTP API.
//
// # Limiters
//
// RateLimiter keeps a token bucket per client in process memory.
// DistributedRateLimiter keeps a fixed window counter per client in Redis so
// that several instances share one budget. Both implement Limiter.
//
// # Middleware
//
//	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
//	rl := middleware.NewRateLimitMiddleware(limiter, false, logger, metrics)
//	server.Use(rl.Handler)
//
// Clients are keyed by socket address, or by X-Forwarded-For / X-Real-IP when
// proxy headers are trusted. The default budget is 100 requests per 15 minutes.
// Rejected requests get 429 with Retry-After and X-RateLimit-* headers. When
// the limiter itself fails (Redis down) the request is allowed and a warning
// is logged.
package middleware
