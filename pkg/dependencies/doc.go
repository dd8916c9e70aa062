// Package dependencies resolves the transitive dependency tree of a package
// and serves it over HTTP.
//
// # Resolution
//
//	resolver := dependencies.NewResolver(registryClient, versionCache)
//	tree, err := resolver.Resolve(ctx, "express", "^4.0.0")
//
// For each node the resolver checks the version cache (never for "latest"),
// asks the registry for the matched version and its dependencies, rejects
// packages that list themselves, resolves all children concurrently and
// caches the children under name:matchedVersion. Any failure fails the whole
// tree.
//
// Cached nodes report the version they were requested with, which is always
// concrete since only concrete versions are cached.
//
// # HTTP
//
//	GET  /package/{package}?version=V[&format=graph&depth=N]
//	POST /package/{package}  {"version": "V"}
//
// The version defaults to latest. Error kinds map to 400 (invalid input,
// cyclic dependency), 404 (not found), 502 (registry unavailable) and 503
// (request canceled or timed out).
//
// CacheAdminHandlers adds GET and DELETE /admin/cache and
// PUT /admin/cache/expiry.
package dependencies
