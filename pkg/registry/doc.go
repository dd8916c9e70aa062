// Package registry is the client for npm compatible package registries.
//
// Fetch decides how to look a package up from the version specifier:
//
//   - "latest" and exact semver versions ("1.2.3") are fetched from
//     {base}/{name}/{version}
//   - anything else is treated as a range: the package document is fetched
//     from {base}/{name} and the highest published version satisfying the
//     range is picked
//
// Either way the result is the concrete matched version and the dependencies
// that version declares, in registry order.
//
// Requests go through go-retryablehttp (5 retries by default) and are traced
// with otelhttp. Identical requests in flight at the same time share one
// round trip. 404 maps to api.ErrNotFound; any other failure maps to
// api.ErrRegistryUnavailable.
package registry
