package dependencies

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/deptree/pkg/api"
	"github.com/platinummonkey/deptree/pkg/httputil"
	"github.com/platinummonkey/deptree/pkg/observability"
	"github.com/platinummonkey/deptree/pkg/validation"
)

// Output formats for package lookups
const (
	FormatTree  = "tree"
	FormatGraph = "graph"
)

// packageRequest is the optional POST body of a package lookup
type packageRequest struct {
	Version string `json:"version"`
}

// DependencyHandlers provides HTTP handlers for dependency trees
type DependencyHandlers struct {
	resolver TreeResolver
}

// NewDependencyHandlers creates new dependency handlers
func NewDependencyHandlers(resolver TreeResolver) *DependencyHandlers {
	return &DependencyHandlers{
		resolver: resolver,
	}
}

// RegisterRoutes registers dependency routes. The package pattern spans
// slashes so scoped names (@scope/name) need no escaping.
func (h *DependencyHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/package/{package:.+}", h.getPackage).Methods(http.MethodGet)
	router.HandleFunc("/package/{package:.+}", h.postPackage).Methods(http.MethodPost)
}

// getPackage handles GET /package/{package}?version=V
// Query parameters:
//   - version: version specifier (default: latest)
//   - format: "tree" or "graph" (default: tree)
//   - depth: max depth rendered in graph format (default: unlimited)
func (h *DependencyHandlers) getPackage(w http.ResponseWriter, r *http.Request) {
	version := httputil.ParseQueryString(r, "version", api.LatestVersion)
	h.serve(w, r, version)
}

// postPackage handles POST /package/{package} with body {"version": V}
func (h *DependencyHandlers) postPackage(w http.ResponseWriter, r *http.Request) {
	req := packageRequest{}
	if err := httputil.ParseOptionalJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if req.Version == "" {
		req.Version = api.LatestVersion
	}
	h.serve(w, r, req.Version)
}

func (h *DependencyHandlers) serve(w http.ResponseWriter, r *http.Request, version string) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	name, err := httputil.ParsePathString(r, "package")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	format := httputil.ParseQueryString(r, "format", FormatTree)
	if format != FormatTree && format != FormatGraph {
		httputil.WriteBadRequest(w, "format must be tree or graph")
		return
	}
	maxDepth := -1
	if d := r.URL.Query().Get("depth"); d != "" {
		depth, err := strconv.Atoi(d)
		if err != nil || depth < 0 {
			httputil.WriteBadRequest(w, "depth must be a non-negative integer")
			return
		}
		maxDepth = depth
	}

	ref, err := validation.ValidateRef(name, version)
	if err != nil {
		logger.WithError(err).WithField("package", name).WithField("version", version).Warn("Package name or version was invalid")
		writeResolveError(w, err)
		return
	}

	logger.WithField("package", ref.Name).WithField("version", ref.Version).Info("Received call to get the dependency tree")

	tree, err := h.resolver.Resolve(ctx, ref.Name, ref.Version)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	if format == FormatGraph {
		httputil.WriteSuccess(w, BuildGraph(tree, maxDepth))
		return
	}
	httputil.WriteSuccess(w, tree)
}

// writeResolveError maps an error kind onto its status code
func writeResolveError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, api.StatusForError(err), err)
}
