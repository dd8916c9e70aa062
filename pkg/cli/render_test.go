package cli

import (
	"bytes"
	"testing"

	"github.com/platinummonkey/deptree/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *api.DependencyTree {
	return &api.DependencyTree{
		Name:    "express",
		Version: "4.18.2",
		Dependencies: []*api.DependencyTree{
			{Name: "debug", Version: "2.6.9", Dependencies: []*api.DependencyTree{
				{Name: "ms", Version: "2.0.0"},
			}},
			{Name: "ms", Version: "2.1.3"},
		},
	}
}

func TestWriteTree(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, sampleTree(), formatTree))

	assert.Equal(t, "express@4.18.2\n"+
		"├── debug@2.6.9\n"+
		"│   └── ms@2.0.0\n"+
		"└── ms@2.1.3\n", buf.String())
}

func TestWriteTree_Leaf(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTree(&buf, &api.DependencyTree{Name: "leaf", Version: "1.0.0"}))
	assert.Equal(t, "leaf@1.0.0\n", buf.String())
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, sampleTree(), formatJSON))

	assert.JSONEq(t, `{"express":{"version":"4.18.2","dependencies":[
		{"debug":{"version":"2.6.9","dependencies":[{"ms":{"version":"2.0.0","dependencies":[]}}]}},
		{"ms":{"version":"2.1.3","dependencies":[]}}
	]}}`, buf.String())
}

func TestCheckFormat(t *testing.T) {
	assert.NoError(t, checkFormat("json"))
	assert.NoError(t, checkFormat("tree"))
	assert.Error(t, checkFormat("yaml"))
}
