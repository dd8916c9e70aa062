package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// LatestVersion is the moving version marker. It is accepted as input but is
// never used as a cache key.
const LatestVersion = "latest"

// PackageRef identifies a package and a version specifier
type PackageRef struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// String returns the name:version form used in logs and cache keys
func (p PackageRef) String() string {
	return p.Name + ":" + p.Version
}

// IsLatest reports whether the ref points at the moving latest marker
func (p PackageRef) IsLatest() bool {
	return p.Version == LatestVersion
}

// Dependency is one declared runtime dependency of a package version
type Dependency struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// DependencyMap holds the declared dependencies of a package version in the
// order the registry listed them. Names are unique.
type DependencyMap []Dependency

// Has reports whether name is declared in the map
func (m DependencyMap) Has(name string) bool {
	for _, dep := range m {
		if dep.Name == name {
			return true
		}
	}
	return false
}

// Get returns the version specifier declared for name
func (m DependencyMap) Get(name string) (string, bool) {
	for _, dep := range m {
		if dep.Name == name {
			return dep.Version, true
		}
	}
	return "", false
}

// Names returns the dependency names in declaration order
func (m DependencyMap) Names() []string {
	names := make([]string, len(m))
	for i, dep := range m {
		names[i] = dep.Name
	}
	return names
}

// MarshalJSON encodes the map as a JSON object, keeping declaration order
func (m DependencyMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, dep := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(dep.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(dep.Version)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of name to specifier. A null value
// yields an empty map. A repeated name keeps its first position and its last value.
func (m *DependencyMap) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}

	om := orderedmap.New[string, string]()
	if err := json.Unmarshal(data, om); err != nil {
		return fmt.Errorf("decoding dependencies: %w", err)
	}

	deps := make(DependencyMap, 0, om.Len())
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		deps = append(deps, Dependency{Name: pair.Key, Version: pair.Value})
	}
	*m = deps
	return nil
}

// ResolvedPackage is a registry answer: the concrete version picked for a
// request and the dependencies that version declares.
type ResolvedPackage struct {
	MatchedVersion string        `json:"version"`
	Dependencies   DependencyMap `json:"dependencies"`
}

// DependencyTree is one node of a resolved dependency tree. Version is always
// the concrete version that was resolved, except for nodes served from the
// cache, which echo the requested version.
type DependencyTree struct {
	Name         string
	Version      string
	Dependencies []*DependencyTree
}

type treeNode struct {
	Version      string            `json:"version"`
	Dependencies []*DependencyTree `json:"dependencies"`
}

// MarshalJSON encodes the node as {"<name>": {"version": ..., "dependencies": [...]}}
func (t DependencyTree) MarshalJSON() ([]byte, error) {
	deps := t.Dependencies
	if deps == nil {
		deps = []*DependencyTree{}
	}
	return json.Marshal(map[string]treeNode{
		t.Name: {Version: t.Version, Dependencies: deps},
	})
}

// UnmarshalJSON decodes the single-key object produced by MarshalJSON
func (t *DependencyTree) UnmarshalJSON(data []byte) error {
	var raw map[string]treeNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("dependency tree node must have exactly one key, got %d", len(raw))
	}
	for name, node := range raw {
		t.Name = name
		t.Version = node.Version
		t.Dependencies = node.Dependencies
	}
	return nil
}

// Walk visits the node and its descendants depth first, in child order.
// Returning false from fn stops the descent below that node.
func (t *DependencyTree) Walk(fn func(node *DependencyTree, depth int) bool) {
	t.walk(fn, 0)
}

func (t *DependencyTree) walk(fn func(node *DependencyTree, depth int) bool, depth int) {
	if !fn(t, depth) {
		return
	}
	for _, child := range t.Dependencies {
		child.walk(fn, depth+1)
	}
}

// Size returns the number of nodes in the tree
func (t *DependencyTree) Size() int {
	count := 0
	t.Walk(func(*DependencyTree, int) bool {
		count++
		return true
	})
	return count
}
