package dependencies

import "github.com/platinummonkey/deptree/pkg/api"

// CytoscapeNode represents a node in Cytoscape.js format
type CytoscapeNode struct {
	Data CytoscapeNodeData `json:"data"`
}

// CytoscapeNodeData contains node data for Cytoscape.js
type CytoscapeNodeData struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Type    string `json:"type"` // "root" or "dependency"
	Depth   int    `json:"depth"`
}

// CytoscapeEdge represents an edge in Cytoscape.js format
type CytoscapeEdge struct {
	Data CytoscapeEdgeData `json:"data"`
}

// CytoscapeEdgeData contains edge data for Cytoscape.js
type CytoscapeEdgeData struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"` // "direct" or "transitive"
}

// CytoscapeGraph represents the complete graph in Cytoscape.js format
type CytoscapeGraph struct {
	Nodes []CytoscapeNode `json:"nodes"`
	Edges []CytoscapeEdge `json:"edges"`
}

func nodeID(name, version string) string {
	return name + "@" + version
}

// BuildGraph converts a resolved tree into a Cytoscape.js graph. Packages
// appearing in several branches become a single node; depth is where the
// node was first seen. maxDepth < 0 means unlimited.
func BuildGraph(tree *api.DependencyTree, maxDepth int) *CytoscapeGraph {
	graph := &CytoscapeGraph{
		Nodes: []CytoscapeNode{},
		Edges: []CytoscapeEdge{},
	}
	if tree == nil {
		return graph
	}

	seenNodes := make(map[string]bool)
	seenEdges := make(map[string]bool)

	var visit func(node *api.DependencyTree, parent string, depth int)
	visit = func(node *api.DependencyTree, parent string, depth int) {
		id := nodeID(node.Name, node.Version)
		if !seenNodes[id] {
			seenNodes[id] = true
			nodeType := "dependency"
			if depth == 0 {
				nodeType = "root"
			}
			graph.Nodes = append(graph.Nodes, CytoscapeNode{
				Data: CytoscapeNodeData{
					ID:      id,
					Name:    node.Name,
					Version: node.Version,
					Type:    nodeType,
					Depth:   depth,
				},
			})
		}

		if parent != "" {
			edgeID := parent + "->" + id
			if !seenEdges[edgeID] {
				seenEdges[edgeID] = true
				edgeType := "transitive"
				if depth == 1 {
					edgeType = "direct"
				}
				graph.Edges = append(graph.Edges, CytoscapeEdge{
					Data: CytoscapeEdgeData{
						ID:     edgeID,
						Source: parent,
						Target: id,
						Type:   edgeType,
					},
				})
			}
		}

		if maxDepth >= 0 && depth >= maxDepth {
			return
		}
		for _, child := range node.Dependencies {
			visit(child, id, depth+1)
		}
	}
	visit(tree, "", 0)

	return graph
}
