package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPResponseSize     *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Resolution metrics
	ResolutionsTotal        *prometheus.CounterVec
	ResolutionDuration      *prometheus.HistogramVec
	CyclicDependenciesTotal prometheus.Counter

	// Registry metrics
	RegistryRequestsTotal   *prometheus.CounterVec
	RegistryRequestDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	CacheWritesTotal *prometheus.CounterVec
	CachePurgedTotal prometheus.Counter

	// Rate limit metrics
	RateLimitedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deptree_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deptree_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deptree_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "deptree_http_requests_in_flight",
				Help: "Number of HTTP requests currently being served",
			},
		),

		// Resolution metrics
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deptree_resolutions_total",
				Help: "Total number of package resolutions by result",
			},
			[]string{"result"},
		),
		ResolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deptree_resolution_duration_seconds",
				Help:    "Duration of a single package resolution including its subtree",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"source"},
		),
		CyclicDependenciesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "deptree_cyclic_dependencies_total",
				Help: "Total number of self-referencing packages detected",
			},
		),

		// Registry metrics
		RegistryRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deptree_registry_requests_total",
				Help: "Total number of registry requests",
			},
			[]string{"operation", "status"},
		),
		RegistryRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deptree_registry_request_duration_seconds",
				Help:    "Registry request duration in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		// Cache metrics
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "deptree_cache_hits_total",
				Help: "Total number of version cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "deptree_cache_misses_total",
				Help: "Total number of version cache misses",
			},
		),
		CacheWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deptree_cache_writes_total",
				Help: "Total number of version cache writes",
			},
			[]string{"status"},
		),
		CachePurgedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "deptree_cache_purged_entries_total",
				Help: "Total number of expired cache entries released by the janitor",
			},
		),

		// Rate limit metrics
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deptree_rate_limited_requests_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"limiter"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.HTTPRequestsInFlight,
		m.ResolutionsTotal,
		m.ResolutionDuration,
		m.CyclicDependenciesTotal,
		m.RegistryRequestsTotal,
		m.RegistryRequestDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheWritesTotal,
		m.CachePurgedTotal,
		m.RateLimitedTotal,
	)

	return m
}

// The Record helpers are safe to call on a nil *Metrics so collaborators can
// run without instrumentation.

// RecordResolution records the outcome of one Resolve call
func (m *Metrics) RecordResolution(result, source string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(result).Inc()
	m.ResolutionDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordCyclicDependency counts a detected self-reference
func (m *Metrics) RecordCyclicDependency() {
	if m == nil {
		return
	}
	m.CyclicDependenciesTotal.Inc()
}

// RecordRegistryRequest records one registry round trip
func (m *Metrics) RecordRegistryRequest(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RegistryRequestsTotal.WithLabelValues(operation, status).Inc()
	m.RegistryRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheHit counts a version cache hit
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// RecordCacheMiss counts a version cache miss
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

// RecordCacheWrite counts a version cache write
func (m *Metrics) RecordCacheWrite(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.CacheWritesTotal.WithLabelValues(status).Inc()
}

// RecordCachePurged counts entries released by the janitor
func (m *Metrics) RecordCachePurged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CachePurgedTotal.Add(float64(n))
}

// RecordRateLimited counts a rejected request
func (m *Metrics) RecordRateLimited(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(limiter).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// RouteLabel collapses a request path onto a bounded label set. Package names
// never appear in metric labels.
func RouteLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/package/"):
		return "/package"
	case path == "/admin/cache" || strings.HasPrefix(path, "/admin/cache/"):
		return "/admin/cache"
	case strings.HasPrefix(path, "/health"):
		return "/health"
	case path == "/metrics":
		return "/metrics"
	default:
		return "other"
	}
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := RouteLabel(r.URL.Path)

			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			// Wrap response writer to capture status and size
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
