package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/deptree/pkg/observability"
)

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "deptree.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "custom")
	t.Setenv("TEST_BOOL", "1")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty-two")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_SECONDS", "30")
	t.Setenv("TEST_FLOAT", "0.25")

	assert.Equal(t, "custom", getEnv("TEST_STR", "default"))
	assert.Equal(t, "default", getEnv("TEST_UNSET", "default"))
	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.True(t, getEnvBool("TEST_UNSET", true))
	assert.Equal(t, 42, getEnvInt("TEST_INT", 0))
	assert.Equal(t, 7, getEnvInt("TEST_BAD_INT", 7))
	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", 0))
	assert.Equal(t, 30*time.Second, getEnvDuration("TEST_SECONDS", 0))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_STR", time.Minute))
	assert.Equal(t, 0.25, getEnvFloat("TEST_FLOAT", 1))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:3000", cfg.Server.Addr())
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.HealthAddr())
	assert.Equal(t, "https://registry.npmjs.org", cfg.Registry.URL)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.False(t, cfg.Cache.UsesRedis())
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerWindow)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.Level())
	assert.False(t, cfg.Admin.Enabled)
	assert.Empty(t, cfg.File)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("DEPTREE_PORT", "8080")
	t.Setenv("DEPTREE_REGISTRY_URL", "http://localhost:4873")
	t.Setenv("DEPTREE_CACHE_BACKEND", "TIERED")
	t.Setenv("DEPTREE_CACHE_TTL", "3600")
	t.Setenv("DEPTREE_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("DEPTREE_RATE_LIMIT_ENABLED", "false")
	t.Setenv("DEPTREE_LOG_LEVEL", "debug")
	t.Setenv("DEPTREE_ADMIN_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "http://localhost:4873", cfg.Registry.Client().BaseURL)
	assert.Equal(t, "tiered", cfg.Cache.Backend)
	assert.True(t, cfg.Cache.UsesRedis())
	assert.Equal(t, time.Hour, cfg.Cache.Store().TTL)
	assert.Equal(t, "redis://cache:6379/1", cfg.Cache.Store().RedisURL)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.Level())
	assert.True(t, cfg.Admin.Enabled)
}

func TestLoad_FileOverlay(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
server:
  port: "4000"
cache:
  ttl: 2h
  max_entries: 5000
rate_limit:
  requests_per_window: 500
  window: 1m
`)
	t.Setenv("DEPTREE_PORT", "5000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 5000, cfg.Cache.MaxEntries)
	assert.Equal(t, "memory", cfg.Cache.Backend, "keys absent from the file keep their default")
	assert.Equal(t, 500, cfg.RateLimit.Limiter().RequestsPerWindow)
	assert.Equal(t, time.Minute, cfg.RateLimit.Limiter().WindowDuration)
	assert.Equal(t, path, cfg.File)
}

func TestLoadConfig_UsesConfigFileEnv(t *testing.T) {
	path := writeFile(t, t.TempDir(), "admin:\n  enabled: true\n")
	t.Setenv(EnvConfigFile, path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Admin.Enabled)
}

func TestLoad_FileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	path := writeFile(t, t.TempDir(), "cache: [not, a, map]\n")
	_, err = Load(path)
	assert.ErrorContains(t, err, "parsing config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"same ports", func(c *Config) { c.Server.HealthPort = c.Server.Port }, "must be different"},
		{"bad registry url", func(c *Config) { c.Registry.URL = "ftp://registry" }, "invalid registry URL"},
		{"no concurrency", func(c *Config) { c.Registry.MaxConcurrentRequests = 0 }, "max concurrent"},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }, "invalid cache backend"},
		{"redis without url", func(c *Config) {
			c.Cache.Backend = "redis"
			c.Cache.RedisURL = ""
		}, "redis URL is required"},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }, "cache TTL must be positive"},
		{"bad schedule", func(c *Config) { c.Cache.JanitorSchedule = "whenever" }, "janitor schedule"},
		{"bad rate limit", func(c *Config) { c.RateLimit.RequestsPerWindow = 0 }, "rate limit requests"},
		{"disabled rate limit skips checks", func(c *Config) {
			c.RateLimit.Enabled = false
			c.RateLimit.RequestsPerWindow = 0
		}, ""},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, "endpoint is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()

	otel := cfg.Observability.OTel()
	assert.False(t, otel.Enabled)
	assert.Equal(t, "deptree", otel.ServiceName)
	assert.Equal(t, "localhost:4317", otel.Endpoint)

	client := cfg.Registry.Client()
	assert.Equal(t, int64(32), client.MaxConcurrent)
	assert.Equal(t, 5, client.RetryMax)

	store := cfg.Cache.Store()
	assert.Equal(t, "memory", store.Backend)
	assert.Equal(t, -1, store.RedisDB)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cache:\n  ttl: 1h\n")

	changes := make(chan *Config, 4)
	w, err := Watch(path, observability.NopLogger(), func(cfg *Config) {
		changes <- cfg
	})
	require.NoError(t, err)
	defer w.Close()

	// invalid content is ignored
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  ttl: -1s\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  ttl: 5m\n"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			require.NotEqual(t, -time.Second, cfg.Cache.TTL)
			if cfg.Cache.TTL == 5*time.Minute {
				return
			}
		case <-deadline:
			t.Fatal("reload not observed")
		}
	}
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cache:\n  ttl: 1h\n")

	changes := make(chan *Config, 1)
	w, err := Watch(path, nil, func(cfg *Config) { changes <- cfg })
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0o644))

	select {
	case <-changes:
		t.Fatal("unrelated file triggered a reload")
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "close is idempotent")
}

func TestWatch_RequiresPath(t *testing.T) {
	_, err := Watch("", nil, nil)
	assert.Error(t, err)
}
