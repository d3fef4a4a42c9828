package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/kalos-marketplace/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/kalos-marketplace/internal/http/middleware"
	"github.com/wolfman30/kalos-marketplace/internal/identity"
	"github.com/wolfman30/kalos-marketplace/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	AvailabilityHandler *handlers.AvailabilityHandler
	BookingsHandler     *handlers.BookingsHandler
	AdminHandler        *handlers.AdminHandler
	AuthSecret          string
	MetricsHandler      http.Handler
	CORS                httpmiddleware.CORSPolicy
	RateLimitRPS        float64
	RateLimitBurst      int

	// HealthChecks are probed by /health; a failing check reports 503.
	HealthChecks map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.CORS.Enabled() {
		r.Use(httpmiddleware.CORS(cfg.CORS))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	r.Route("/v1", func(v1 chi.Router) {
		if cfg.RateLimitRPS > 0 {
			v1.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		}

		if h := cfg.AvailabilityHandler; h != nil {
			v1.Route("/professionals/{professionalID}/availability", func(avail chi.Router) {
				avail.Get("/", h.GetRange)
				avail.Get("/{date}", h.GetByDate)
				avail.Get("/{date}/slots", h.GetSlots)
				avail.With(httpmiddleware.JWTAuth(cfg.AuthSecret)).Post("/{date}/holds", h.CreateHold)
			})
			v1.Route("/holds", func(holds chi.Router) {
				holds.Use(httpmiddleware.JWTAuth(cfg.AuthSecret))
				holds.Post("/release", h.ReleaseHold)
			})
		}

		if cfg.BookingsHandler != nil {
			v1.With(httpmiddleware.JWTAuth(cfg.AuthSecret)).Mount("/bookings", cfg.BookingsHandler.Routes())
		}
	})

	// Admin routes (HMAC JWT with the admin role)
	if cfg.AdminHandler != nil && cfg.AuthSecret != "" {
		r.With(
			httpmiddleware.JWTAuth(cfg.AuthSecret),
			httpmiddleware.RequireRole(identity.RoleAdmin),
		).Mount("/admin", cfg.AdminHandler.Routes())
	}

	return r
}
