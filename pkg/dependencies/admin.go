package dependencies

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/deptree/pkg/cache"
	"github.com/platinummonkey/deptree/pkg/httputil"
	"github.com/platinummonkey/deptree/pkg/observability"
)

// CacheAdmin is the administrative surface of the version cache
type CacheAdmin interface {
	Stats(ctx context.Context) (*cache.Stats, error)
	Clear(ctx context.Context) error
	SetExpiry(ttl time.Duration)
	Expiry() time.Duration
}

var _ CacheAdmin = (*cache.VersionCache)(nil)

// expiryRequest is the body of PUT /admin/cache/expiry
type expiryRequest struct {
	Seconds float64 `json:"seconds"`
}

// CacheAdminHandlers exposes cache inspection and flushing
type CacheAdminHandlers struct {
	cache CacheAdmin
}

// NewCacheAdminHandlers creates new cache admin handlers
func NewCacheAdminHandlers(c CacheAdmin) *CacheAdminHandlers {
	return &CacheAdminHandlers{cache: c}
}

// RegisterRoutes registers admin routes
func (h *CacheAdminHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/cache", h.getStats).Methods(http.MethodGet)
	router.HandleFunc("/admin/cache", h.clear).Methods(http.MethodDelete)
	router.HandleFunc("/admin/cache/expiry", h.setExpiry).Methods(http.MethodPut)
}

// getStats handles GET /admin/cache
func (h *CacheAdminHandlers) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.Stats(r.Context())
	if err != nil {
		httputil.WriteServiceUnavailable(w, err.Error())
		return
	}
	httputil.WriteSuccess(w, stats)
}

// clear handles DELETE /admin/cache
func (h *CacheAdminHandlers) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(r.Context()); err != nil {
		httputil.WriteServiceUnavailable(w, err.Error())
		return
	}
	observability.FromContext(r.Context()).Info("Cache cleared by admin request")
	httputil.WriteNoContent(w)
}

// setExpiry handles PUT /admin/cache/expiry
func (h *CacheAdminHandlers) setExpiry(w http.ResponseWriter, r *http.Request) {
	var req expiryRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Seconds <= 0 {
		httputil.WriteBadRequest(w, "seconds must be positive")
		return
	}

	h.cache.SetExpiry(time.Duration(req.Seconds * float64(time.Second)))
	httputil.WriteSuccess(w, map[string]float64{"seconds": h.cache.Expiry().Seconds()})
}
