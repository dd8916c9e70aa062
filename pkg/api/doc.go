// Package api holds the data model shared by the resolver, the registry gateway
// and the version cache, the closed set of resolution errors, and the HTTP
// server shell the service routes are mounted on.
//
// # Data Model
//
// A resolution request is a PackageRef: a package name and a version specifier
// that is either a concrete version ("1.2.3"), a range ("^1.2.0") or the moving
// marker LatestVersion. The registry answers with a ResolvedPackage carrying the
// concrete version it picked and the declared DependencyMap, which keeps the
// registry's declaration order.
//
// A resolved DependencyTree serialises as a single-key object:
//
//	{"express": {"version": "4.18.2", "dependencies": [ ... ]}}
//
// # Errors
//
// Every failure wraps one of ErrCyclicDependency, ErrNotFound,
// ErrRegistryUnavailable or ErrInvalidInput. StatusForError maps them onto HTTP
// status codes at the boundary:
//
//	if err != nil {
//		httputil.WriteError(w, api.StatusForError(err), err)
//	}
//
// # Server
//
// Server wraps a gorilla/mux router. Handler groups implement RouteRegistrar and
// are mounted with RegisterRoutes; unmatched routes answer 404 with
// {"error": "Not implemented!"}.
package api
