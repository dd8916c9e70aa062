package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/deptree/pkg/cache"
	"github.com/platinummonkey/deptree/pkg/middleware"
	"github.com/platinummonkey/deptree/pkg/observability"
	"github.com/platinummonkey/deptree/pkg/registry"
)

// EnvConfigFile names the optional YAML file overlaid on the defaults
const EnvConfigFile = "DEPTREE_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Registry client configuration
	Registry RegistryConfig `yaml:"registry"`

	// Version cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`

	// Admin routes
	Admin AdminConfig `yaml:"admin"`

	// File is the YAML file the configuration was read from, if any
	File string `yaml:"-"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// Addr returns the listen address of the API server
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// HealthAddr returns the listen address of the health server
func (s ServerConfig) HealthAddr() string {
	return net.JoinHostPort(s.Host, s.HealthPort)
}

// RegistryConfig holds package registry client configuration
type RegistryConfig struct {
	URL                   string        `yaml:"url"`
	Timeout               time.Duration `yaml:"timeout"`
	RetryMax              int           `yaml:"retry_max"`
	RetryWaitMin          time.Duration `yaml:"retry_wait_min"`
	RetryWaitMax          time.Duration `yaml:"retry_wait_max"`
	MaxConcurrentRequests int64         `yaml:"max_concurrent_requests"`
	UserAgent             string        `yaml:"user_agent"`
}

// Client returns the registry client configuration
func (r RegistryConfig) Client() *registry.Config {
	cfg := registry.DefaultConfig()
	cfg.BaseURL = r.URL
	cfg.Timeout = r.Timeout
	cfg.RetryMax = r.RetryMax
	cfg.RetryWaitMin = r.RetryWaitMin
	cfg.RetryWaitMax = r.RetryWaitMax
	cfg.MaxConcurrent = r.MaxConcurrentRequests
	cfg.UserAgent = r.UserAgent
	return cfg
}

// CacheConfig holds version cache configuration
type CacheConfig struct {
	Backend         string        `yaml:"backend"`
	TTL             time.Duration `yaml:"ttl"`
	MaxEntries      int           `yaml:"max_entries"`
	RedisURL        string        `yaml:"redis_url"`
	RedisPassword   string        `yaml:"redis_password"`
	RedisDB         int           `yaml:"redis_db"`
	RedisPoolSize   int           `yaml:"redis_pool_size"`
	RedisMaxRetries int           `yaml:"redis_max_retries"`
	KeyPrefix       string        `yaml:"key_prefix"`
	JanitorSchedule string        `yaml:"janitor_schedule"`
}

// UsesRedis reports whether the backend needs a redis connection
func (c CacheConfig) UsesRedis() bool {
	return c.Backend == cache.BackendRedis || c.Backend == cache.BackendTiered
}

// Store returns the cache package configuration
func (c CacheConfig) Store() *cache.Config {
	return &cache.Config{
		Backend:         c.Backend,
		TTL:             c.TTL,
		MaxEntries:      c.MaxEntries,
		RedisURL:        c.RedisURL,
		RedisPassword:   c.RedisPassword,
		RedisDB:         c.RedisDB,
		RedisPoolSize:   c.RedisPoolSize,
		RedisMaxRetries: c.RedisMaxRetries,
		KeyPrefix:       c.KeyPrefix,
		JanitorSchedule: c.JanitorSchedule,
	}
}

// RateLimitConfig holds per-client rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerWindow int           `yaml:"requests_per_window"`
	Window            time.Duration `yaml:"window"`
	Burst             int           `yaml:"burst"`
	TrustProxyHeaders bool          `yaml:"trust_proxy_headers"`
}

// Limiter returns the middleware configuration
func (r RateLimitConfig) Limiter() *middleware.RateLimitConfig {
	return &middleware.RateLimitConfig{
		RequestsPerWindow: r.RequestsPerWindow,
		WindowDuration:    r.Window,
		BurstSize:         r.Burst,
		TrustProxyHeaders: r.TrustProxyHeaders,
	}
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"` // Use insecure gRPC connection
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel returns the OpenTelemetry configuration
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// AdminConfig controls the cache administration routes
type AdminConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	reg := registry.DefaultConfig()
	store := cache.DefaultConfig()
	limits := middleware.DefaultRateLimitConfig()

	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "3000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			RequestTimeout:  45 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			HealthPort:      "9090",
		},
		Registry: RegistryConfig{
			URL:                   reg.BaseURL,
			Timeout:               reg.Timeout,
			RetryMax:              reg.RetryMax,
			RetryWaitMin:          reg.RetryWaitMin,
			RetryWaitMax:          reg.RetryWaitMax,
			MaxConcurrentRequests: reg.MaxConcurrent,
			UserAgent:             reg.UserAgent,
		},
		Cache: CacheConfig{
			Backend:         store.Backend,
			TTL:             store.TTL,
			MaxEntries:      store.MaxEntries,
			RedisURL:        store.RedisURL,
			RedisDB:         store.RedisDB,
			KeyPrefix:       store.KeyPrefix,
			JanitorSchedule: store.JanitorSchedule,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerWindow: limits.RequestsPerWindow,
			Window:            limits.WindowDuration,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "deptree",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1.0,
		},
	}
}

// LoadConfig loads the defaults, the file named by DEPTREE_CONFIG_FILE and
// then environment variables, in increasing precedence
func LoadConfig() (*Config, error) {
	return Load(os.Getenv(EnvConfigFile))
}

// Load is LoadConfig with an explicit file path. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// overlayFile decodes a YAML file onto the current values. Keys absent from
// the file keep their value.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	c.File = path
	return nil
}

func (c *Config) applyEnv() {
	c.Server = loadServerConfig(c.Server)
	c.Registry = loadRegistryConfig(c.Registry)
	c.Cache = loadCacheConfig(c.Cache)
	c.RateLimit = loadRateLimitConfig(c.RateLimit)
	c.Observability = loadObservabilityConfig(c.Observability)
	c.Admin.Enabled = getEnvBool("DEPTREE_ADMIN_ENABLED", c.Admin.Enabled)
}

// loadServerConfig loads server configuration from environment
func loadServerConfig(cfg ServerConfig) ServerConfig {
	cfg.Host = getEnv("DEPTREE_HOST", cfg.Host)
	cfg.Port = getEnv("DEPTREE_PORT", cfg.Port)
	cfg.ReadTimeout = getEnvDuration("DEPTREE_READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = getEnvDuration("DEPTREE_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.IdleTimeout = getEnvDuration("DEPTREE_IDLE_TIMEOUT", cfg.IdleTimeout)
	cfg.RequestTimeout = getEnvDuration("DEPTREE_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.ShutdownTimeout = getEnvDuration("DEPTREE_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.MaxBodyBytes = getEnvInt64("DEPTREE_MAX_BODY_BYTES", cfg.MaxBodyBytes)
	cfg.HealthPort = getEnv("DEPTREE_HEALTH_PORT", cfg.HealthPort)
	return cfg
}

// loadRegistryConfig loads registry client configuration from environment
func loadRegistryConfig(cfg RegistryConfig) RegistryConfig {
	cfg.URL = getEnv("DEPTREE_REGISTRY_URL", cfg.URL)
	cfg.Timeout = getEnvDuration("DEPTREE_REGISTRY_TIMEOUT", cfg.Timeout)
	cfg.RetryMax = getEnvInt("DEPTREE_REGISTRY_RETRY_MAX", cfg.RetryMax)
	cfg.RetryWaitMin = getEnvDuration("DEPTREE_REGISTRY_RETRY_WAIT_MIN", cfg.RetryWaitMin)
	cfg.RetryWaitMax = getEnvDuration("DEPTREE_REGISTRY_RETRY_WAIT_MAX", cfg.RetryWaitMax)
	cfg.MaxConcurrentRequests = getEnvInt64("DEPTREE_REGISTRY_MAX_CONCURRENT", cfg.MaxConcurrentRequests)
	cfg.UserAgent = getEnv("DEPTREE_REGISTRY_USER_AGENT", cfg.UserAgent)
	return cfg
}

// loadCacheConfig loads cache configuration from environment
func loadCacheConfig(cfg CacheConfig) CacheConfig {
	cfg.Backend = strings.ToLower(getEnv("DEPTREE_CACHE_BACKEND", cfg.Backend))
	cfg.TTL = getEnvDuration("DEPTREE_CACHE_TTL", cfg.TTL)
	cfg.MaxEntries = getEnvInt("DEPTREE_CACHE_MAX_ENTRIES", cfg.MaxEntries)
	cfg.KeyPrefix = getEnv("DEPTREE_CACHE_KEY_PREFIX", cfg.KeyPrefix)
	cfg.JanitorSchedule = getEnv("DEPTREE_CACHE_JANITOR_SCHEDULE", cfg.JanitorSchedule)

	// Redis config
	cfg.RedisURL = getEnv("DEPTREE_REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = getEnv("DEPTREE_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("DEPTREE_REDIS_DB", cfg.RedisDB)
	cfg.RedisPoolSize = getEnvInt("DEPTREE_REDIS_POOL_SIZE", cfg.RedisPoolSize)
	cfg.RedisMaxRetries = getEnvInt("DEPTREE_REDIS_MAX_RETRIES", cfg.RedisMaxRetries)
	return cfg
}

// loadRateLimitConfig loads rate limiting configuration from environment
func loadRateLimitConfig(cfg RateLimitConfig) RateLimitConfig {
	cfg.Enabled = getEnvBool("DEPTREE_RATE_LIMIT_ENABLED", cfg.Enabled)
	cfg.RequestsPerWindow = getEnvInt("DEPTREE_RATE_LIMIT_REQUESTS", cfg.RequestsPerWindow)
	cfg.Window = getEnvDuration("DEPTREE_RATE_LIMIT_WINDOW", cfg.Window)
	cfg.Burst = getEnvInt("DEPTREE_RATE_LIMIT_BURST", cfg.Burst)
	cfg.TrustProxyHeaders = getEnvBool("DEPTREE_RATE_LIMIT_TRUST_PROXY", cfg.TrustProxyHeaders)
	return cfg
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig(cfg ObservabilityConfig) ObservabilityConfig {
	cfg.LogLevel = getEnv("DEPTREE_LOG_LEVEL", cfg.LogLevel)
	cfg.MetricsEnabled = getEnvBool("DEPTREE_METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.OTelEnabled = getEnvBool("DEPTREE_OTEL_ENABLED", cfg.OTelEnabled)
	cfg.OTelEndpoint = getEnv("DEPTREE_OTEL_ENDPOINT", cfg.OTelEndpoint)
	cfg.OTelServiceName = getEnv("DEPTREE_OTEL_SERVICE_NAME", cfg.OTelServiceName)
	cfg.OTelServiceVersion = getEnv("DEPTREE_OTEL_SERVICE_VERSION", cfg.OTelServiceVersion)
	cfg.OTelInsecure = getEnvBool("DEPTREE_OTEL_INSECURE", cfg.OTelInsecure)
	cfg.OTelSampleRatio = getEnvFloat("DEPTREE_OTEL_SAMPLE_RATIO", cfg.OTelSampleRatio)
	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Server.HealthPort == "" {
		return errors.New("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return errors.New("server port and health port must be different")
	}

	// Validate registry config
	u, err := url.Parse(c.Registry.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid registry URL: %q", c.Registry.URL)
	}
	if c.Registry.MaxConcurrentRequests <= 0 {
		return errors.New("registry max concurrent requests must be positive")
	}
	if c.Registry.RetryMax < 0 {
		return errors.New("registry retry max must not be negative")
	}

	// Validate cache config based on backend
	switch c.Cache.Backend {
	case cache.BackendMemory:
	case cache.BackendRedis, cache.BackendTiered:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for %s cache", c.Cache.Backend)
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory, redis, or tiered)", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return errors.New("cache TTL must be positive")
	}
	if c.Cache.MaxEntries < 0 {
		return errors.New("cache max entries must not be negative")
	}
	if _, err := cron.ParseStandard(c.Cache.JanitorSchedule); err != nil {
		return fmt.Errorf("invalid cache janitor schedule %q: %w", c.Cache.JanitorSchedule, err)
	}

	// Validate rate limit config
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerWindow <= 0 {
			return errors.New("rate limit requests must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return errors.New("rate limit window must be positive")
		}
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return errors.New("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return errors.New("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default. Bare
// integers are read as seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
