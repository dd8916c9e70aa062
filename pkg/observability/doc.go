// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown for the service.
//
// # Structured Logging
//
// Logger is a JSON logger over log/slog:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.With("package", name, "version", version).Info("Computing dependency tree")
//
// Request-scoped loggers travel in the context and pick up the request ID and
// the active trace:
//
//	observability.FromContext(ctx).WithError(err).Error("resolution failed")
//
// # Prometheus Metrics
//
// Metrics registers the HTTP, resolution, registry, cache and rate limit series
// on a caller-owned registry. The Record helpers are nil-safe:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordResolution("success", "registry", time.Since(start))
//
// # Health Checks
//
// HealthChecker pings redis plus any registered dependency. Required
// dependencies make the service unhealthy, optional ones only degrade it:
//
//	checker := observability.NewHealthChecker(redisClient)
//	checker.AddRequired("registry", registryClient)
//
// # OpenTelemetry
//
// InitOTel wires OTLP gRPC exporters for traces and metrics. Without it the
// global providers are no-ops and Tracer() spans cost nothing.
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/httputil: Request logging middleware
package observability
