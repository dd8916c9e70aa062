package dependencies

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/platinummonkey/deptree/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	mu    sync.Mutex
	calls []api.PackageRef
	tree  *api.DependencyTree
	err   error
}

func (s *stubResolver) Resolve(_ context.Context, name, version string) (*api.DependencyTree, error) {
	s.mu.Lock()
	s.calls = append(s.calls, api.PackageRef{Name: name, Version: version})
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.tree != nil {
		return s.tree, nil
	}
	return &api.DependencyTree{Name: name, Version: "1.0.0"}, nil
}

func sampleTree() *api.DependencyTree {
	shared := &api.DependencyTree{Name: "ms", Version: "2.1.3"}
	return &api.DependencyTree{
		Name:    "express",
		Version: "4.18.2",
		Dependencies: []*api.DependencyTree{
			{Name: "debug", Version: "2.6.9", Dependencies: []*api.DependencyTree{shared}},
			shared,
		},
	}
}

func newTestServer(resolver TreeResolver) *api.Server {
	return api.NewServer(NewDependencyHandlers(resolver))
}

func do(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestDependencyHandlers_Get(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		expected api.PackageRef
	}{
		{"defaults to latest", "/package/express", api.PackageRef{Name: "express", Version: "latest"}},
		{"explicit version", "/package/express?version=4.18.2", api.PackageRef{Name: "express", Version: "4.18.2"}},
		{"range", "/package/express?version=%5E4.0.0", api.PackageRef{Name: "express", Version: "^4.0.0"}},
		{"trimmed version", "/package/express?version=%204.18.2%20", api.PackageRef{Name: "express", Version: "4.18.2"}},
		{"scoped name", "/package/@babel/core?version=7.0.0", api.PackageRef{Name: "@babel/core", Version: "7.0.0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &stubResolver{}
			rec := do(t, newTestServer(resolver), http.MethodGet, tt.target, "")

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			require.Len(t, resolver.calls, 1)
			assert.Equal(t, tt.expected, resolver.calls[0])
		})
	}
}

func TestDependencyHandlers_Post(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{"version in body", `{"version":"1.2.3"}`, "1.2.3"},
		{"empty object", `{}`, "latest"},
		{"no body", "", "latest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &stubResolver{}
			rec := do(t, newTestServer(resolver), http.MethodPost, "/package/lodash", tt.body)

			assert.Equal(t, http.StatusOK, rec.Code)
			require.Len(t, resolver.calls, 1)
			assert.Equal(t, api.PackageRef{Name: "lodash", Version: tt.expected}, resolver.calls[0])
		})
	}
}

func TestDependencyHandlers_PostMalformedBody(t *testing.T) {
	resolver := &stubResolver{}
	rec := do(t, newTestServer(resolver), http.MethodPost, "/package/lodash", `{"version":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, resolver.calls)
}

func TestDependencyHandlers_TreeBody(t *testing.T) {
	resolver := &stubResolver{tree: sampleTree()}
	rec := do(t, newTestServer(resolver), http.MethodGet, "/package/express?version=4.18.2", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"express":{"version":"4.18.2","dependencies":[
		{"debug":{"version":"2.6.9","dependencies":[{"ms":{"version":"2.1.3","dependencies":[]}}]}},
		{"ms":{"version":"2.1.3","dependencies":[]}}
	]}}`, rec.Body.String())
}

func TestDependencyHandlers_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		message string
	}{
		{"leading period", "/package/.hidden", "name cannot start with a period"},
		{"leading underscore", "/package/_private", "name cannot start with an underscore"},
		{"blacklisted", "/package/node_modules", "node_modules is a blacklisted name"},
		{"bad version", "/package/express?version=not-a-version", "not a valid version or range"},
		{"dist tag", "/package/express?version=next", "not a valid version or range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &stubResolver{}
			rec := do(t, newTestServer(resolver), http.MethodGet, tt.target, "")

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, errorMessage(t, rec), tt.message)
			assert.Empty(t, resolver.calls, "invalid requests never reach the resolver")
		})
	}
}

func TestDependencyHandlers_ResolveErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"cyclic", fmt.Errorf("%w: a@1.0.0 depends on itself", api.ErrCyclicDependency), http.StatusBadRequest},
		{"not found", fmt.Errorf("%w: could not find matching version for a:^9.0.0", api.ErrNotFound), http.StatusNotFound},
		{"registry down", fmt.Errorf("%w: connection refused", api.ErrRegistryUnavailable), http.StatusBadGateway},
		{"canceled", context.Canceled, http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(&stubResolver{err: tt.err}), http.MethodGet, "/package/a", "")

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.err.Error(), errorMessage(t, rec))
		})
	}
}

func TestDependencyHandlers_NotImplemented(t *testing.T) {
	server := newTestServer(&stubResolver{})

	for _, tc := range []struct{ method, target string }{
		{http.MethodGet, "/"},
		{http.MethodGet, "/packages/express"},
		{http.MethodDelete, "/package/express"},
	} {
		rec := do(t, server, tc.method, tc.target, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, tc.target)
		assert.Equal(t, api.NotImplementedMessage, errorMessage(t, rec))
	}
}

func TestDependencyHandlers_GraphFormat(t *testing.T) {
	resolver := &stubResolver{tree: sampleTree()}
	server := newTestServer(resolver)

	rec := do(t, server, http.MethodGet, "/package/express?format=graph", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var graph CytoscapeGraph
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &graph))
	assert.Len(t, graph.Nodes, 3)
	assert.Len(t, graph.Edges, 3)

	rec = do(t, server, http.MethodGet, "/package/express?format=graph&depth=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	graph = CytoscapeGraph{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &graph))
	assert.Len(t, graph.Nodes, 3)
	assert.Len(t, graph.Edges, 2)
}

func TestDependencyHandlers_BadQuery(t *testing.T) {
	tests := []struct {
		name   string
		target string
	}{
		{"unknown format", "/package/express?format=xml"},
		{"negative depth", "/package/express?format=graph&depth=-1"},
		{"non numeric depth", "/package/express?format=graph&depth=deep"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &stubResolver{}
			rec := do(t, newTestServer(resolver), http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, resolver.calls)
		})
	}
}

func TestDependencyHandlers_EndToEnd(t *testing.T) {
	gateway := fixtureGateway()
	resolver := NewResolver(gateway, newSpyCache())
	server := newTestServer(resolver)

	rec := do(t, server, http.MethodGet, "/package/package", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fixtureTreeJSON, rec.Body.String())

	rec = do(t, server, http.MethodPost, "/package/missing", `{"version":"1.0.0"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
