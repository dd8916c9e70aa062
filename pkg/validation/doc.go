// Package validation checks package names and version specifiers before they
// reach the resolver.
//
// Names follow the public registry rules for existing packages: they must be
// non-empty, must not start with a period or an underscore, must not carry
// surrounding spaces, must not be a reserved name such as node_modules, and must
// be URL-safe apart from the "@scope/" prefix. Rules that only apply to newly
// published packages (length, case, core module names) are not enforced, so
// legacy names like "JSONStream" resolve.
//
// Versions are either the "latest" marker, a concrete semantic version, or a
// range understood by the registry gateway:
//
//	ref, err := validation.ValidateRef("@babel/core", "^7.0.0")
//	if err != nil {
//		// err wraps api.ErrInvalidInput
//	}
package validation
