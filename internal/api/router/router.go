package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/carelane/scheduling-platform/internal/http/handlers"
	httpmiddleware "github.com/carelane/scheduling-platform/internal/http/middleware"
	"github.com/carelane/scheduling-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Availability       handlers.AvailabilityService
	Health             *handlers.HealthHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Per-IP rate limit for the API; disabled when RateLimitPerSec is 0.
	RateLimitPerSec float64
	RateLimitBurst  int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (probes, metrics)
	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Get("/health", cfg.Health.Health)
			public.Get("/ready", cfg.Health.Ready)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Availability API (protected by admin JWT when a secret is configured)
	r.Route("/api/v1", func(api chi.Router) {
		if cfg.RateLimitPerSec > 0 {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSec, cfg.RateLimitBurst))
		}
		if cfg.AdminAuthSecret != "" {
			api.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		}
		handlers.RegisterAvailabilityRoutes(api, cfg.Availability, cfg.Logger)
	})

	return r
}
