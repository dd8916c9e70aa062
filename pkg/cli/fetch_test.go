package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeService(t *testing.T, requests *[]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Version string `json:"version"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		*requests = append(*requests, r.Method+" "+r.URL.Path+" "+body.Version)

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/package/@scope/pkg":
			w.Write([]byte(`{"@scope/pkg":{"version":"1.0.0","dependencies":[{"ms":{"version":"2.1.3","dependencies":[]}}]}}`))
		case "/package/broken":
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error":"registry unavailable: connection refused"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetchCommand(t *testing.T) {
	var requests []string
	server := newFakeService(t, &requests)
	var out bytes.Buffer
	root := newRootCommand(&out, &bytes.Buffer{})

	err := root.ExecuteArgs([]string{"fetch", "-package", "@scope/pkg", "-version", "^1.0.0", "-server", server.URL + "/"})
	require.NoError(t, err)

	assert.Equal(t, []string{"POST /package/@scope/pkg ^1.0.0"}, requests)
	assert.Equal(t, "@scope/pkg@1.0.0\n└── ms@2.1.3\n", out.String())
}

func TestFetchCommand_ServerErrors(t *testing.T) {
	var requests []string
	server := newFakeService(t, &requests)

	root := newRootCommand(&bytes.Buffer{}, &bytes.Buffer{})
	err := root.ExecuteArgs([]string{"fetch", "-package", "broken", "-server", server.URL})
	assert.EqualError(t, err, "server returned 502: registry unavailable: connection refused")

	err = root.ExecuteArgs([]string{"fetch", "-package", "other", "-server", server.URL})
	assert.EqualError(t, err, "server returned 500 Internal Server Error")
}

func TestFetchCommand_ValidatesLocally(t *testing.T) {
	var requests []string
	server := newFakeService(t, &requests)

	root := newRootCommand(&bytes.Buffer{}, &bytes.Buffer{})
	err := root.ExecuteArgs([]string{"fetch", "-package", ".hidden", "-server", server.URL})
	assert.Error(t, err)
	assert.Empty(t, requests)
}
