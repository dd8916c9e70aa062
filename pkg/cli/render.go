package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/platinummonkey/deptree/pkg/api"
)

// Output formats
const (
	formatJSON = "json"
	formatTree = "tree"
)

func checkFormat(format string) error {
	if format != formatJSON && format != formatTree {
		return fmt.Errorf("unknown format %q (must be json or tree)", format)
	}
	return nil
}

func render(w io.Writer, tree *api.DependencyTree, format string) error {
	if format == formatTree {
		return writeTree(w, tree)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(tree)
}

// writeTree prints one name@version per line with box-drawing indentation
func writeTree(w io.Writer, tree *api.DependencyTree) error {
	if _, err := fmt.Fprintf(w, "%s@%s\n", tree.Name, tree.Version); err != nil {
		return err
	}
	return writeChildren(w, tree.Dependencies, "")
}

func writeChildren(w io.Writer, children []*api.DependencyTree, prefix string) error {
	for i, child := range children {
		branch, indent := "├── ", "│   "
		if i == len(children)-1 {
			branch, indent = "└── ", "    "
		}
		if _, err := fmt.Fprintf(w, "%s%s%s@%s\n", prefix, branch, child.Name, child.Version); err != nil {
			return err
		}
		if err := writeChildren(w, child.Dependencies, prefix+indent); err != nil {
			return err
		}
	}
	return nil
}
