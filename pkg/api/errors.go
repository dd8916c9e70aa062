package api

import (
	"context"
	"errors"
	"net/http"
)

// Resolution error kinds. Every error returned by the resolver, the registry
// gateway or the validator wraps exactly one of these.
var (
	// ErrCyclicDependency is returned when a package declares itself as a dependency
	ErrCyclicDependency = errors.New("cannot have cyclic dependencies")

	// ErrNotFound is returned when the registry has no such package, version or matching version
	ErrNotFound = errors.New("not found")

	// ErrRegistryUnavailable is returned when the registry cannot be reached or answers garbage
	ErrRegistryUnavailable = errors.New("registry unavailable")

	// ErrInvalidInput is returned when a package name or version specifier is rejected
	ErrInvalidInput = errors.New("invalid input")
)

// StatusForError maps an error onto the HTTP status code reported to clients
func StatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrCyclicDependency):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRegistryUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorKind returns a short label for the error kind, used as a metric label
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrCyclicDependency):
		return "cyclic"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRegistryUnavailable):
		return "registry_unavailable"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
