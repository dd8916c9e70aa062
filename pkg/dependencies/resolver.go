package dependencies

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/deptree/pkg/api"
	"github.com/platinummonkey/deptree/pkg/cache"
	"github.com/platinummonkey/deptree/pkg/contextkeys"
	"github.com/platinummonkey/deptree/pkg/observability"
	"github.com/platinummonkey/deptree/pkg/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	sourceCache    = "cache"
	sourceRegistry = "registry"
)

// TreeCache stores the resolved children of concrete package versions
type TreeCache interface {
	Get(ctx context.Context, name, version string) ([]*api.DependencyTree, error)
	Set(ctx context.Context, name, version string, value []*api.DependencyTree) error
}

var _ TreeCache = (*cache.VersionCache)(nil)

// TreeResolver resolves a package into its dependency tree
type TreeResolver interface {
	Resolve(ctx context.Context, name, version string) (*api.DependencyTree, error)
}

// Option customises a Resolver
type Option func(*Resolver)

// WithLogger sets the fallback logger used when the context carries none
func WithLogger(logger *observability.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithMetrics records resolutions on the Prometheus collectors
func WithMetrics(metrics *observability.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = metrics
	}
}

// WithOTelMetrics records resolutions on the OpenTelemetry instruments
func WithOTelMetrics(metrics *observability.OTelMetrics) Option {
	return func(r *Resolver) {
		r.otelMetrics = metrics
	}
}

// Resolver builds dependency trees from registry metadata, memoizing every
// concrete version it resolves
type Resolver struct {
	gateway     registry.Gateway
	cache       TreeCache
	logger      *observability.Logger
	metrics     *observability.Metrics
	otelMetrics *observability.OTelMetrics
}

var _ TreeResolver = (*Resolver)(nil)

// NewResolver creates a resolver
func NewResolver(gateway registry.Gateway, treeCache TreeCache, opts ...Option) *Resolver {
	r := &Resolver{
		gateway: gateway,
		cache:   treeCache,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the dependency tree of name at version. The version must
// already be validated: "latest", a concrete version or a range.
//
// Either the whole tree is returned or an error; a failure anywhere below
// the root aborts the remaining work and nothing is cached for the nodes
// above it.
func (r *Resolver) Resolve(ctx context.Context, name, version string) (*api.DependencyTree, error) {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "deptree.Resolve", trace.WithAttributes(
		attribute.String("package.name", name),
		attribute.String("package.version", version),
	))
	defer span.End()

	logger := r.log(ctx).WithField("package", name).WithField("version", version)
	logger.Info("Computing dependency tree")

	tree, source, err := r.resolve(ctx, name, version)
	duration := time.Since(start)

	result := "ok"
	if err != nil {
		result = api.ErrorKind(err)
	}
	r.metrics.RecordResolution(result, source, duration)
	r.otelMetrics.RecordResolution(ctx, result, source, duration)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WithError(err).Error("Failed to compute dependency tree")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("package.matched_version", tree.Version),
		attribute.Int("tree.size", tree.Size()),
	)
	logger.WithField("matched_version", tree.Version).
		WithField("nodes", tree.Size()).
		WithField("duration_ms", duration.Milliseconds()).
		Info("Computed dependency tree")
	return tree, nil
}

func (r *Resolver) resolve(ctx context.Context, name, version string) (*api.DependencyTree, string, error) {
	logger := r.log(ctx).WithField("package", name).WithField("version", version)

	if version != api.LatestVersion {
		children, err := r.cache.Get(ctx, name, version)
		switch {
		case err == nil:
			logger.Info("Package has been previously cached")
			return &api.DependencyTree{Name: name, Version: version, Dependencies: children}, sourceCache, nil
		case errors.Is(err, cache.ErrCacheMiss):
			logger.Info("Package not cached")
		default:
			logger.WithError(err).Warn("Cache lookup failed, falling back to registry")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, sourceRegistry, err
	}

	logger.Info("Retrieving the list of dependencies")
	pkg, err := r.gateway.Fetch(ctx, name, version)
	if err != nil {
		return nil, sourceRegistry, err
	}

	// only direct self-reference is detected; deeper cycles are not
	if pkg.Dependencies.Has(name) {
		r.metrics.RecordCyclicDependency()
		logger.WithField("matched_version", pkg.MatchedVersion).Error("Package depends on itself")
		return nil, sourceRegistry, fmt.Errorf("%w: %s@%s depends on itself", api.ErrCyclicDependency, name, pkg.MatchedVersion)
	}

	children, err := r.resolveChildren(ctx, pkg.Dependencies)
	if err != nil {
		return nil, sourceRegistry, err
	}

	if err := r.cache.Set(ctx, name, pkg.MatchedVersion, children); err != nil {
		logger.WithError(err).WithField("matched_version", pkg.MatchedVersion).Warn("Failed to cache dependency tree")
	} else {
		logger.WithField("matched_version", pkg.MatchedVersion).Debug("Cached dependency tree")
	}

	return &api.DependencyTree{Name: name, Version: pkg.MatchedVersion, Dependencies: children}, sourceRegistry, nil
}

// resolveChildren resolves every dependency concurrently. The result keeps
// declaration order. The first failure cancels the rest and is returned as is.
func (r *Resolver) resolveChildren(ctx context.Context, deps api.DependencyMap) ([]*api.DependencyTree, error) {
	children := make([]*api.DependencyTree, len(deps))
	if len(deps) == 0 {
		return children, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, dep := range deps {
		i, dep := i, dep
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = observability.MustRecover(rec)
				}
			}()

			child, _, err := r.resolve(gctx, dep.Name, dep.Version)
			if err != nil {
				return err
			}
			children[i] = child
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return children, nil
}

func (r *Resolver) log(ctx context.Context) *observability.Logger {
	if _, ok := ctx.Value(contextkeys.LoggerKey).(*observability.Logger); ok {
		return observability.FromContext(ctx)
	}
	return observability.UpdateLoggerWithTraceContext(ctx, r.logger)
}
