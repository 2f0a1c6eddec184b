// Package api serves the read-only status API: health, last cycle summary,
// cooldown entries, Prometheus metrics and the Swagger UI.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/albapepper/pricewatch/internal/api/handler"
	"github.com/albapepper/pricewatch/internal/config"

	_ "github.com/albapepper/pricewatch/docs" // swagger docs
)

const rateLimitWindow = time.Minute

// NewRouter creates the Chi router with all middleware and routes. metrics
// may be nil, in which case /metrics answers 404.
func NewRouter(h *handler.Handler, metrics http.Handler, cfg config.ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5))

	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "If-None-Match", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "ETag"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	if cfg.RateLimitEnabled && cfg.RateLimitRequests > 0 {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, rateLimitWindow))
	}

	// --- Routes ---
	r.Get("/", h.Root)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/persistence", h.HealthCheckPersistence)
	})

	if metrics == nil {
		metrics = http.NotFoundHandler()
	}
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", h.GetStatus)
		r.Get("/cooldown", h.GetCooldown)
		r.Get("/cooldown/{sku}", h.GetCooldownSKU)
	})

	return r
}

// NewServer wraps the router in an http.Server with the same timeouts as
// the rest of the service.
func NewServer(router http.Handler, cfg config.ServerConfig) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
