package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/platinummonkey/deptree/pkg/api"
	"github.com/platinummonkey/deptree/pkg/contextkeys"
	"github.com/platinummonkey/deptree/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultBaseURL is the public npm registry
	DefaultBaseURL = "https://registry.npmjs.org"

	// abbreviatedAccept asks for the install-only packument, which still
	// carries per-version dependencies but drops readmes and tarball metadata.
	abbreviatedAccept = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8"

	opExact = "exact"
	opRange = "range"
	opPing  = "ping"
)

// Gateway fetches package metadata from a registry
type Gateway interface {
	// Fetch returns the concrete version matched for version and the
	// dependencies it declares
	Fetch(ctx context.Context, name, version string) (*api.ResolvedPackage, error)
}

// Config configures the registry client
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RetryMax      int
	RetryWaitMin  time.Duration
	RetryWaitMax  time.Duration
	MaxConcurrent int64
	MaxBodyBytes  int64
	UserAgent     string
}

// DefaultConfig returns a configuration for the public npm registry
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       DefaultBaseURL,
		Timeout:       30 * time.Second,
		RetryMax:      5,
		RetryWaitMin:  100 * time.Millisecond,
		RetryWaitMax:  5 * time.Second,
		MaxConcurrent: 32,
		MaxBodyBytes:  64 << 20,
		UserAgent:     "deptree",
	}
}

// Option customises a Client
type Option func(*Client)

// WithLogger sets the structured logger used for client and retry logs
func WithLogger(logger *observability.Logger) Option {
	return func(c *Client) {
		c.logger = logger
		c.http.Logger = leveledLogger{logger: logger}
	}
}

// WithRetryLogger overrides the logger handed to retryablehttp. It must be a
// retryablehttp.Logger or retryablehttp.LeveledLogger.
func WithRetryLogger(logger interface{}) Option {
	return func(c *Client) {
		c.http.Logger = logger
	}
}

// WithMetrics records registry requests on the Prometheus collectors
func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// WithOTelMetrics records registry requests on the OpenTelemetry instruments
func WithOTelMetrics(metrics *observability.OTelMetrics) Option {
	return func(c *Client) {
		c.otelMetrics = metrics
	}
}

// Client talks to an npm compatible registry over HTTP. Identical in-flight
// requests are collapsed into one and the number of concurrent requests is
// bounded.
type Client struct {
	baseURL     string
	userAgent   string
	maxBody     int64
	http        *retryablehttp.Client
	group       singleflight.Group
	sem         *semaphore.Weighted
	logger      *observability.Logger
	metrics     *observability.Metrics
	otelMetrics *observability.OTelMetrics
}

var _ Gateway = (*Client)(nil)

// NewClient creates a registry client
func NewClient(cfg *Config, opts ...Option) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaults.MaxConcurrent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}

	httpClient := retryablehttp.NewClient()
	httpClient.HTTPClient = &http.Client{
		Transport: otelhttp.NewTransport(cleanhttp.DefaultPooledTransport()),
		Timeout:   cfg.Timeout,
	}
	httpClient.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		httpClient.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		httpClient.RetryWaitMax = cfg.RetryWaitMax
	}
	httpClient.Logger = nil

	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBodyBytes,
		http:      httpClient,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// manifest is the part of a package version document we read
type manifest struct {
	Version      string            `json:"version"`
	Dependencies api.DependencyMap `json:"dependencies"`
}

// packument is the part of a package document we read
type packument struct {
	Versions map[string]manifest `json:"versions"`
}

// Fetch dispatches on the version specifier: concrete versions and "latest"
// are fetched directly, anything else is matched against the package's
// published versions.
func (c *Client) Fetch(ctx context.Context, name, version string) (*api.ResolvedPackage, error) {
	if IsConcrete(version) {
		return c.FetchExact(ctx, name, version)
	}
	return c.FetchByRange(ctx, name, version)
}

// FetchExact fetches the document of a single published version
func (c *Client) FetchExact(ctx context.Context, name, version string) (*api.ResolvedPackage, error) {
	path := "/" + url.PathEscape(name) + "/" + url.PathEscape(version)
	body, err := c.get(ctx, opExact, path, "application/json")
	if err != nil {
		return nil, c.fail(ctx, name, version, err)
	}

	var m manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, c.fail(ctx, name, version, fmt.Errorf("%w: decoding %s@%s: %v", api.ErrRegistryUnavailable, name, version, err))
	}
	if m.Version == "" {
		m.Version = version
	}

	c.log(ctx).WithField("package", name).WithField("version", m.Version).Debug("Downloaded package")
	return &api.ResolvedPackage{MatchedVersion: m.Version, Dependencies: m.Dependencies}, nil
}

// FetchByRange fetches every published version of name and picks the highest
// one satisfying rng. An empty range matches any version.
func (c *Client) FetchByRange(ctx context.Context, name, rng string) (*api.ResolvedPackage, error) {
	if strings.TrimSpace(rng) == "" {
		rng = "*"
	}
	constraint, err := semver.NewConstraint(rng)
	if err != nil {
		return nil, c.fail(ctx, name, rng, fmt.Errorf("%w: invalid version range %q: %v", api.ErrInvalidInput, rng, err))
	}

	body, err := c.get(ctx, opRange, "/"+url.PathEscape(name), abbreviatedAccept)
	if err != nil {
		return nil, c.fail(ctx, name, rng, err)
	}

	var doc packument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, c.fail(ctx, name, rng, fmt.Errorf("%w: decoding %s: %v", api.ErrRegistryUnavailable, name, err))
	}

	versions := make([]string, 0, len(doc.Versions))
	for v := range doc.Versions {
		versions = append(versions, v)
	}
	matched, ok := LatestMatching(versions, constraint)
	if !ok {
		return nil, c.fail(ctx, name, rng, fmt.Errorf("%w: could not find matching version for %s:%s", api.ErrNotFound, name, rng))
	}

	m := doc.Versions[matched]
	if m.Version == "" {
		m.Version = matched
	}
	return &api.ResolvedPackage{MatchedVersion: m.Version, Dependencies: m.Dependencies}, nil
}

// Ping checks that the registry answers
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, opPing, c.baseURL+"/-/ping", "application/json")
	return err
}

func (c *Client) fail(ctx context.Context, name, version string, err error) error {
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		c.log(ctx).WithError(err).
			WithField("package", name).
			WithField("version", version).
			Error("Failed to download package")
	}
	return err
}

// log prefers the request logger carried by ctx over the client's own
func (c *Client) log(ctx context.Context) *observability.Logger {
	if _, ok := ctx.Value(contextkeys.LoggerKey).(*observability.Logger); ok {
		return observability.FromContext(ctx)
	}
	return observability.UpdateLoggerWithTraceContext(ctx, c.logger)
}

// get performs a deduplicated GET. The shared request is detached from the
// caller's cancellation so one caller giving up does not fail the others;
// each caller still stops waiting when its own context ends.
func (c *Client) get(ctx context.Context, op, path, accept string) ([]byte, error) {
	target := c.baseURL + path
	ch := c.group.DoChan(target, func() (interface{}, error) {
		return c.do(context.WithoutCancel(ctx), op, target, accept)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (c *Client) do(ctx context.Context, op, target, accept string) ([]byte, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	ctx, span := observability.Tracer().Start(ctx, "registry."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("registry.url", target)),
	)
	defer span.End()

	start := time.Now()
	body, status, err := c.roundTrip(ctx, target, accept)
	duration := time.Since(start)

	c.metrics.RecordRegistryRequest(op, status, duration)
	c.otelMetrics.RecordRegistryRequest(ctx, op, status, duration)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return body, err
}

func (c *Client) roundTrip(ctx context.Context, target, accept string) ([]byte, string, error) {
	c.logger.WithField("url", target).Debug("Calling out to registry")

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "error", fmt.Errorf("%w: building request: %v", api.ErrRegistryUnavailable, err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "canceled", ctxErr
		}
		return nil, "error", fmt.Errorf("%w: %v", api.ErrRegistryUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "not_found", fmt.Errorf("%w: %s", api.ErrNotFound, strings.TrimPrefix(target, c.baseURL))
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "error", fmt.Errorf("%w: unexpected status %d from %s", api.ErrRegistryUnavailable, resp.StatusCode, target)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, "error", fmt.Errorf("%w: reading response: %v", api.ErrRegistryUnavailable, err)
	}
	return body, "ok", nil
}
