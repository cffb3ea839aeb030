package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/cartstate/internal/notify"
	"github.com/utafrali/cartstate/internal/service"
	"github.com/utafrali/cartstate/pkg/health"
	"github.com/utafrali/cartstate/pkg/middleware"
)

const serviceName = "cart-state"

// RouterOptions configures cross-origin access and request rate limits.
type RouterOptions struct {
	CORS      middleware.CORSConfig
	RateLimit middleware.RateLimitConfig
}

// NewRouter creates a chi router with all cart routes registered.
func NewRouter(
	manager *service.CartManager,
	recorder *notify.Recorder,
	healthHandler *health.Handler,
	logger *slog.Logger,
	opts RouterOptions,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(opts.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	cartHandler := NewCartHandler(manager, recorder, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimit, logger))
		r.Use(ContentTypeJSON)

		r.Get("/cart", cartHandler.GetCart)
		r.Post("/cart/items", cartHandler.AddItem)
		r.Put("/cart/items/{productId}", cartHandler.UpdateItemAmount)
		r.Delete("/cart/items/{productId}", cartHandler.RemoveItem)

		r.Get("/notifications", cartHandler.ListNotifications)
	})

	return r
}
