// Package httputil provides HTTP utilities for request parsing, JSON replies
// and the middleware shared by every route.
//
// Error replies always have the shape {"error": "message"}:
//
//	httputil.WriteBadRequest(w, "Invalid package name")
//	httputil.WriteNotFoundError(w, "Not implemented!")
//
// Request bodies are optional for package lookups:
//
//	var body struct{ Version string `json:"version"` }
//	if err := httputil.ParseOptionalJSON(r, &body); err != nil { ... }
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.RecoveryMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//		httputil.TimeoutMiddleware(30*time.Second),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// RequestIDMiddleware must run before LoggingMiddleware so the request logger
// carries the request_id field.
package httputil
