package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics mirrors the resolution, registry and cache Prometheus series as
// OpenTelemetry instruments, exported through the OTLP meter provider
type OTelMetrics struct {
	resolutions        metric.Int64Counter
	resolutionDuration metric.Float64Histogram
	registryRequests   metric.Int64Counter
	registryDuration   metric.Float64Histogram
	cacheLookups       metric.Int64Counter
}

// NewOTelMetrics creates the instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	return NewOTelMetricsWithMeter(otel.Meter(InstrumentationName))
}

// NewOTelMetricsWithMeter creates the instruments on the given meter
func NewOTelMetricsWithMeter(meter metric.Meter) (*OTelMetrics, error) {
	m := &OTelMetrics{}
	var err error

	m.resolutions, err = meter.Int64Counter(
		"deptree.resolutions",
		metric.WithDescription("Package resolutions by result"),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolutions counter: %w", err)
	}

	m.resolutionDuration, err = meter.Float64Histogram(
		"deptree.resolution.duration",
		metric.WithDescription("Duration of a package resolution including its subtree"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolution duration histogram: %w", err)
	}

	m.registryRequests, err = meter.Int64Counter(
		"deptree.registry.requests",
		metric.WithDescription("Registry requests by operation and status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry requests counter: %w", err)
	}

	m.registryDuration, err = meter.Float64Histogram(
		"deptree.registry.duration",
		metric.WithDescription("Registry request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry duration histogram: %w", err)
	}

	m.cacheLookups, err = meter.Int64Counter(
		"deptree.cache.lookups",
		metric.WithDescription("Version cache lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache lookups counter: %w", err)
	}

	return m, nil
}

// RecordResolution records the outcome of one Resolve call
func (m *OTelMetrics) RecordResolution(ctx context.Context, result, source string, duration time.Duration) {
	if m == nil {
		return
	}
	m.resolutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("source", source),
	))
	m.resolutionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("source", source),
	))
}

// RecordRegistryRequest records one registry round trip
func (m *OTelMetrics) RecordRegistryRequest(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	m.registryRequests.Add(ctx, 1, attrs)
	m.registryDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCacheLookup records a version cache hit or miss
func (m *OTelMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
