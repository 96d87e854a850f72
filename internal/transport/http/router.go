package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"droppy/internal/config"
	"droppy/internal/middleware"
	"droppy/internal/services"
)

// RouterDeps carries everything the router mounts
type RouterDeps struct {
	Config      *config.Config
	Logger      *slog.Logger
	Service     services.EntitlementService
	AccessHub   http.Handler
	MetricsHTTP http.Handler
}

// NewRouter assembles the daemon's localhost API surface
func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredLogger(deps.Logger))
	r.Use(middleware.Recoverer(deps.Logger))

	rateLimit := middleware.RateLimit(deps.Logger,
		deps.Config.Server.RateLimitRPS,
		deps.Config.Server.RateLimitBurst,
	)

	handler := NewEntitlementHandler(deps.Service, deps.Logger)
	r.Mount("/api/entitlement", handler.Routes(rateLimit))

	r.Method(http.MethodGet, "/api/health", NewHealthHandler(deps.Config.Product.Version))

	if deps.MetricsHTTP != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHTTP)
	}
	if deps.AccessHub != nil {
		r.Method(http.MethodGet, "/ws", deps.AccessHub)
	}

	return r
}
