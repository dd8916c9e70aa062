package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platinummonkey/deptree/pkg/api"
	"github.com/platinummonkey/deptree/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistry serves package documents from memory and counts requests by
// escaped path
type fakeRegistry struct {
	mu       sync.Mutex
	packages map[string]map[string]string // name -> version -> raw manifest JSON
	latest   map[string]string
	hits     map[string]int
	status   map[string]int
	gate     chan struct{}
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		packages: map[string]map[string]string{},
		latest:   map[string]string{},
		hits:     map[string]int{},
		status:   map[string]int{},
	}
}

func (f *fakeRegistry) add(name, version, deps string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.packages[name] == nil {
		f.packages[name] = map[string]string{}
	}
	doc := `{"name":"` + name + `","version":"` + version + `"`
	if deps != "" {
		doc += `,"dependencies":` + deps
	}
	f.packages[name][version] = doc + "}"
	f.latest[name] = version
}

func (f *fakeRegistry) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.EscapedPath()

	f.mu.Lock()
	f.hits[path]++
	status, forced := f.status[path]
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if forced {
		w.WriteHeader(status)
		return
	}
	if path == "/-/ping" {
		w.Write([]byte("{}"))
		return
	}

	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	name, _ := url.PathUnescape(parts[0])

	f.mu.Lock()
	defer f.mu.Unlock()
	versions, ok := f.packages[name]
	if !ok {
		http.Error(w, `{"error":"Not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if len(parts) == 1 {
		var b strings.Builder
		b.WriteString(`{"name":"` + name + `","versions":{`)
		first := true
		for v, doc := range versions {
			if !first {
				b.WriteString(",")
			}
			first = false
			b.WriteString(`"` + v + `":` + doc)
		}
		b.WriteString("}}")
		w.Write([]byte(b.String()))
		return
	}

	version, _ := url.PathUnescape(parts[1])
	if version == api.LatestVersion {
		version = f.latest[name]
	}
	doc, ok := versions[version]
	if !ok {
		http.Error(w, `"version not found: `+version+`"`, http.StatusNotFound)
		return
	}
	w.Write([]byte(doc))
}

func testConfig(baseURL string) *Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.RetryMax = 0
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 5 * time.Millisecond
	cfg.Timeout = 5 * time.Second
	return cfg
}

func setup(t *testing.T, opts ...Option) (*fakeRegistry, *Client) {
	t.Helper()
	fake := newFakeRegistry()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return fake, NewClient(testConfig(server.URL), opts...)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "https://registry.npmjs.org", cfg.BaseURL)
	assert.Equal(t, 5, cfg.RetryMax)

	c := NewClient(&Config{BaseURL: "http://example.test/"})
	assert.Equal(t, "http://example.test", c.baseURL)
	assert.Equal(t, "deptree", c.userAgent)
}

func TestClient_FetchExact(t *testing.T) {
	fake, client := setup(t)
	fake.add("express", "4.18.2", `{"qs":"6.11.0","body-parser":"1.20.1","accepts":"~1.3.8"}`)

	pkg, err := client.Fetch(context.Background(), "express", "4.18.2")
	require.NoError(t, err)

	assert.Equal(t, "4.18.2", pkg.MatchedVersion)
	assert.Equal(t, []string{"qs", "body-parser", "accepts"}, pkg.Dependencies.Names())
	v, _ := pkg.Dependencies.Get("accepts")
	assert.Equal(t, "~1.3.8", v)
	assert.Equal(t, 1, fake.hitCount("/express/4.18.2"))
}

func TestClient_FetchLatest(t *testing.T) {
	fake, client := setup(t)
	fake.add("lodash", "4.17.20", "")
	fake.add("lodash", "4.17.21", "")

	pkg, err := client.Fetch(context.Background(), "lodash", "latest")
	require.NoError(t, err)
	assert.Equal(t, "4.17.21", pkg.MatchedVersion)
	assert.Empty(t, pkg.Dependencies, "missing dependencies decode to an empty map")
	assert.Equal(t, 1, fake.hitCount("/lodash/latest"))
	assert.Zero(t, fake.hitCount("/lodash"))
}

func TestClient_FetchByRange(t *testing.T) {
	fake, client := setup(t)
	fake.add("debug", "1.0.0", `{"ms":"0.6.2"}`)
	fake.add("debug", "2.0.0", `{"ms":"2.0.0"}`)
	fake.add("debug", "2.6.9", `{"ms":"2.0.0"}`)
	fake.add("debug", "3.0.0-rc.1", `{}`)

	tests := []struct {
		rng      string
		expected string
		ms       string
	}{
		{"^1.0.0 || ^2.0.0", "2.6.9", "2.0.0"},
		{"~2.0.0", "2.0.0", "2.0.0"},
		{"<2", "1.0.0", "0.6.2"},
		{"*", "2.6.9", "2.0.0"},
		{"", "2.6.9", "2.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.rng, func(t *testing.T) {
			pkg, err := client.FetchByRange(context.Background(), "debug", tt.rng)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, pkg.MatchedVersion)
			ms, ok := pkg.Dependencies.Get("ms")
			assert.True(t, ok)
			assert.Equal(t, tt.ms, ms)
		})
	}

	_, err := client.Fetch(context.Background(), "debug", "^2.0.0")
	require.NoError(t, err)
	assert.Zero(t, fake.hitCount("/debug/^2.0.0"), "ranges never hit the exact endpoint")
}

func TestClient_ScopedPackage(t *testing.T) {
	fake, client := setup(t)
	fake.add("@babel/core", "7.0.0", `{"@babel/types":"^7.0.0"}`)

	pkg, err := client.Fetch(context.Background(), "@babel/core", "7.0.0")
	require.NoError(t, err)
	assert.Equal(t, "7.0.0", pkg.MatchedVersion)
	assert.Equal(t, 1, fake.hitCount("/@babel%2Fcore/7.0.0"))

	_, err = client.Fetch(context.Background(), "@babel/core", "^7.0.0")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.hitCount("/@babel%2Fcore"))
}

func TestClient_Errors(t *testing.T) {
	fake, client := setup(t)
	fake.add("present", "1.0.0", "")
	fake.mu.Lock()
	fake.status["/broken/1.0.0"] = http.StatusInternalServerError
	fake.status["/teapot"] = http.StatusTeapot
	fake.mu.Unlock()

	tests := []struct {
		name    string
		pkg     string
		version string
		want    error
	}{
		{"unknown package exact", "missing", "1.0.0", api.ErrNotFound},
		{"unknown package range", "missing", "^1.0.0", api.ErrNotFound},
		{"unknown version", "present", "9.9.9", api.ErrNotFound},
		{"no matching version", "present", "^2.0.0", api.ErrNotFound},
		{"server error", "broken", "1.0.0", api.ErrRegistryUnavailable},
		{"unexpected status", "teapot", "^1.0.0", api.ErrRegistryUnavailable},
		{"invalid range", "present", "not a range", api.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Fetch(context.Background(), tt.pkg, tt.version)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	_, err := client.Fetch(context.Background(), "present", "^2.0.0")
	assert.EqualError(t, err, "not found: could not find matching version for present:^2.0.0")
}

func TestClient_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	_, err := client.Fetch(context.Background(), "pkg", "1.0.0")
	assert.ErrorIs(t, err, api.ErrRegistryUnavailable)

	_, err = client.Fetch(context.Background(), "pkg", "^1.0.0")
	assert.ErrorIs(t, err, api.ErrRegistryUnavailable)
}

func TestClient_Retries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"version": "1.0.0"})
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.RetryMax = 3
	client := NewClient(cfg, WithLogger(observability.NopLogger()))

	pkg, err := client.Fetch(context.Background(), "flaky", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", pkg.MatchedVersion)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DeduplicatesInFlight(t *testing.T) {
	fake, client := setup(t)
	fake.add("react", "18.2.0", `{"loose-envify":"^1.1.0"}`)
	fake.gate = make(chan struct{})

	var wg sync.WaitGroup
	results := make([]*api.ResolvedPackage, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pkg, err := client.Fetch(context.Background(), "react", "^18.0.0")
			assert.NoError(t, err)
			results[i] = pkg
		}(i)
	}

	require.Eventually(t, func() bool { return fake.hitCount("/react") == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(fake.gate)
	wg.Wait()

	assert.Equal(t, 1, fake.hitCount("/react"))
	for _, pkg := range results {
		require.NotNil(t, pkg)
		assert.Equal(t, "18.2.0", pkg.MatchedVersion)
	}
}

func TestClient_Cancellation(t *testing.T) {
	fake, client := setup(t)
	fake.add("slow", "1.0.0", "")
	fake.gate = make(chan struct{})
	defer close(fake.gate)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := client.Fetch(ctx, "slow", "1.0.0")
		errCh <- err
	}()

	require.Eventually(t, func() bool { return fake.hitCount("/slow/1.0.0") == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not return after cancellation")
	}
}

func TestClient_Ping(t *testing.T) {
	fake, client := setup(t)
	require.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, 1, fake.hitCount("/-/ping"))

	fake.mu.Lock()
	fake.status["/-/ping"] = http.StatusBadGateway
	fake.mu.Unlock()
	assert.ErrorIs(t, client.Ping(context.Background()), api.ErrRegistryUnavailable)
}

func TestClient_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	fake, client := setup(t, WithMetrics(metrics))
	fake.add("ms", "2.1.3", "")

	_, err := client.Fetch(context.Background(), "ms", "2.1.3")
	require.NoError(t, err)
	_, err = client.Fetch(context.Background(), "nope", "^1.0.0")
	require.Error(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RegistryRequestsTotal.WithLabelValues("exact", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RegistryRequestsTotal.WithLabelValues("range", "not_found")))
}
