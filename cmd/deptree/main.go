package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/deptree/pkg/api"
	"github.com/platinummonkey/deptree/pkg/cache"
	"github.com/platinummonkey/deptree/pkg/config"
	"github.com/platinummonkey/deptree/pkg/dependencies"
	"github.com/platinummonkey/deptree/pkg/httputil"
	"github.com/platinummonkey/deptree/pkg/middleware"
	"github.com/platinummonkey/deptree/pkg/observability"
	"github.com/platinummonkey/deptree/pkg/registry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "deptree: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)
	if cfg.File != "" {
		logger = logger.WithField("config_file", cfg.File)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// OpenTelemetry
	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	var otelMetrics *observability.OTelMetrics
	if providers != nil {
		if otelMetrics, err = observability.NewOTelMetrics(); err != nil {
			logger.WithError(err).Warn("OpenTelemetry metrics disabled")
		}
	}

	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)

	// Cache
	storeConfig := cfg.Cache.Store()
	var redisClient *redis.Client
	if cfg.Cache.UsesRedis() {
		if redisClient, err = cache.NewRedisClient(ctx, storeConfig); err != nil {
			return err
		}
		logger.WithField("backend", cfg.Cache.Backend).Info("Connected to redis")
	}
	store, err := cache.NewStore(storeConfig, redisClient)
	if err != nil {
		return err
	}
	versionCache := cache.NewVersionCache(store, cfg.Cache.TTL,
		cache.WithLogger(logger),
		cache.WithMetrics(metrics),
		cache.WithOTelMetrics(otelMetrics),
		cache.WithBackendName(cfg.Cache.Backend),
	)
	janitor, err := cache.NewJanitor(versionCache, cfg.Cache.JanitorSchedule, logger)
	if err != nil {
		return err
	}
	janitor.Start()

	// Registry and resolver
	client := registry.NewClient(cfg.Registry.Client(),
		registry.WithLogger(logger),
		registry.WithMetrics(metrics),
		registry.WithOTelMetrics(otelMetrics),
	)
	resolver := dependencies.NewResolver(client, versionCache,
		dependencies.WithLogger(logger),
		dependencies.WithMetrics(metrics),
		dependencies.WithOTelMetrics(otelMetrics),
	)

	registrars := []api.RouteRegistrar{dependencies.NewDependencyHandlers(resolver)}
	if cfg.Admin.Enabled {
		registrars = append(registrars, dependencies.NewCacheAdminHandlers(versionCache))
		logger.Info("Cache admin routes enabled")
	}
	server := api.NewServer(registrars...)

	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
	}
	if cfg.Observability.OTelEnabled {
		chain = append(chain, observability.TracingMiddleware)
	}
	chain = append(chain,
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		observability.HTTPMetricsMiddleware(metrics),
	)
	if cfg.RateLimit.Enabled {
		var limiter middleware.Limiter
		if redisClient != nil {
			limiter = middleware.NewDistributedRateLimiter(redisClient, cfg.RateLimit.Limiter(), "")
		} else {
			memLimiter := middleware.NewRateLimiter(cfg.RateLimit.Limiter())
			memLimiter.StartCleanup(ctx)
			limiter = memLimiter
		}
		rl := middleware.NewRateLimitMiddleware(limiter, cfg.RateLimit.TrustProxyHeaders, logger, metrics)
		chain = append(chain, rl.Handler)
	}
	chain = append(chain,
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
		httputil.TimeoutMiddleware(cfg.Server.RequestTimeout),
	)
	server.Use(chain...)

	// Health and metrics on their own port
	checker := observability.NewHealthChecker(redisClient)
	checker.AddRequired("registry", observability.PingFunc(client.Ping))
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, promRegistry)
	}
	healthServer := &http.Server{
		Addr:              cfg.Server.HealthAddr(),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sm := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc("health-server", healthServer.Shutdown)
	sm.RegisterShutdownFunc("cache-janitor", janitor.Stop)
	sm.RegisterShutdownFunc("version-cache", func(context.Context) error {
		return versionCache.Close()
	})
	if redisClient != nil {
		sm.RegisterShutdownFunc("redis", func(context.Context) error {
			return redisClient.Close()
		})
	}
	if providers != nil {
		sm.RegisterShutdownFunc("otel", func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	if cfg.File != "" {
		watcher, err := config.Watch(cfg.File, logger, func(next *config.Config) {
			if ttl := next.Cache.TTL; ttl != versionCache.Expiry() {
				versionCache.SetExpiry(ttl)
				logger.WithField("ttl", ttl.String()).Info("Cache expiry updated from config file")
			}
		})
		if err != nil {
			logger.WithError(err).Warn("Config file will not be watched")
		} else {
			sm.RegisterShutdownFunc("config-watcher", func(context.Context) error {
				return watcher.Close()
			})
		}
	}

	serveErr := make(chan error, 2)
	go serve(healthServer, "health", logger, serveErr)
	go serve(httpServer, "api", logger, serveErr)

	go func() {
		if err := <-serveErr; err != nil {
			logger.WithError(err).Error("Server failed")
			cancel()
		}
	}()

	logger.WithField("addr", httpServer.Addr).
		WithField("health_addr", healthServer.Addr).
		WithField("registry", cfg.Registry.URL).
		WithField("cache_backend", cfg.Cache.Backend).
		Info("deptree started")

	return sm.WaitForShutdown(ctx)
}

func serve(srv *http.Server, name string, logger *observability.Logger, errs chan<- error) {
	defer observability.RecoverPanic(logger, name+" server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs <- fmt.Errorf("%s server: %w", name, err)
	}
}
