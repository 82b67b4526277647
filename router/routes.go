package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mstgnz/oxipay/handler"
	"github.com/mstgnz/oxipay/infra/metrics"
	"github.com/mstgnz/oxipay/infra/middle"
	"github.com/mstgnz/oxipay/infra/response"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the handlers and shared infrastructure the routes are built from
type Deps struct {
	Checkout    *handler.CheckoutHandler
	Health      *handler.HealthHandler
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	RateLimiter *middle.RateLimiter
}

// Routes registers the middleware stack and every endpoint on r
func Routes(r chi.Router, deps Deps) {
	r.Use(middleware.RealIP)
	r.Use(middle.RequestIDMiddleware())
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middle.MetricsMiddleware(deps.Metrics))
	r.Use(middle.RequestLoggingMiddleware())
	r.Use(middle.SecurityHeadersMiddleware())
	r.Use(middle.RequestValidationMiddleware())
	r.Use(middleware.Timeout(60 * time.Second))
	if deps.RateLimiter != nil {
		r.Use(middle.RateLimitMiddleware(deps.RateLimiter))
	}

	r.Route("/oxipay/payment", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "Origin", "X-Requested-With", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))

		r.Get("/start", deps.Checkout.Start)
		r.Post("/start", deps.Checkout.Start)
		// the gateway uses one URL for the async callback and the browser return
		r.Get("/complete", deps.Checkout.Complete)
		r.Post("/complete", deps.Checkout.Complete)
		r.Get("/cancel", deps.Checkout.Cancel)
	})

	if deps.Health != nil {
		r.Get("/health", deps.Health.CheckHealth)
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.With(middle.IPWhitelistMiddleware()).Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Not Found", nil)
	})
}
