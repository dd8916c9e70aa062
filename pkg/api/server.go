package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/deptree/pkg/httputil"
)

// NotImplementedMessage is returned for every route the server does not serve
const NotImplementedMessage = "Not implemented!"

// Server represents our API server
type Server struct {
	router      *mux.Router
	middlewares []func(http.Handler) http.Handler
	handler     http.Handler
}

// NewServer creates a new API server with the given route registrars
func NewServer(registrars ...RouteRegistrar) *Server {
	s := &Server{
		router: mux.NewRouter(),
	}
	s.router.NotFoundHandler = http.HandlerFunc(notImplemented)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(notImplemented)
	s.handler = s.router

	for _, registrar := range registrars {
		s.RegisterRoutes(registrar)
	}
	return s
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}

// Use appends middleware wrapped around every request, including unmatched ones.
// Middleware runs in the order it was added. Call it before serving.
func (s *Server) Use(middlewares ...func(http.Handler) http.Handler) {
	s.middlewares = append(s.middlewares, middlewares...)
	s.handler = httputil.Chain(s.middlewares...)(s.router)
}

// Router exposes the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func notImplemented(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteNotFoundError(w, NotImplementedMessage)
}
