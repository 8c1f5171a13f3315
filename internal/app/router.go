// Package app assembles the mock's HTTP surface.
package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/payment-mock/internal/auth"
	"github.com/noah-isme/payment-mock/internal/common"
	"github.com/noah-isme/payment-mock/internal/health"
	"github.com/noah-isme/payment-mock/internal/obs"
	"github.com/noah-isme/payment-mock/internal/payment"
	"github.com/noah-isme/payment-mock/internal/ratelimit"
	"github.com/noah-isme/payment-mock/internal/security"
)

// Dependencies lists what the router needs. Optional collaborators are
// disabled when nil.
type Dependencies struct {
	Logger             zerolog.Logger
	Service            *payment.Service
	APIKey             string
	Health             health.Handler
	CORSAllowedOrigins []string
	BodyLimitBytes     int64
	SecurityHeaders    bool
	Tracing            bool
	HTTPMetrics        *obs.HTTPMetrics
	MetricsHandler     http.Handler
	RateLimiter        *limiter.Limiter
	Pprof              http.Handler
}

// NewRouter builds the chi router serving the payment API.
func NewRouter(deps Dependencies) http.Handler {
	authMiddleware := auth.Middleware{APIKey: deps.APIKey}
	paymentHandler := &payment.Handler{Svc: deps.Service}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if deps.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if deps.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: deps.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: deps.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(deps.CORSAllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", payment.IdempotencyHeader, "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))
	r.Use(security.Headers{Enable: deps.SecurityHeaders}.Middleware)

	r.Get("/health", deps.Health.Health)
	r.Get("/health/live", deps.Health.Live)
	r.Get("/health/ready", deps.Health.Ready)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	if deps.Pprof != nil {
		r.Mount("/debug/pprof", deps.Pprof)
	}

	r.Group(func(api chi.Router) {
		api.Use(authMiddleware.RequireAuth)
		api.Use(ratelimit.Handler{
			Limiter: deps.RateLimiter,
			OnError: func(err error) { deps.Logger.Warn().Err(err).Msg("rate limit store") },
		}.Middleware)
		api.Use(security.BodyLimit{Max: deps.BodyLimitBytes}.Middleware)

		api.Post("/payment_intents", paymentHandler.CreateIntent)
		api.Get("/payment_intents/{id}", paymentHandler.GetIntent)
		api.Patch("/payment_intents/{id}/confirm", paymentHandler.ConfirmIntent)
		api.Get("/payment_intents/{id}/jobs", paymentHandler.ListJobs)
		api.Get("/payments/{intentId}", paymentHandler.GetPayment)
		api.Get("/payments/{intentId}/refunds", paymentHandler.ListRefunds)
		api.Post("/refunds", paymentHandler.CreateRefund)
	})

	// unmatched routes still require the key, then answer not_found
	notFound := authMiddleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound)
	}))
	r.NotFound(notFound.ServeHTTP)
	r.MethodNotAllowed(notFound.ServeHTTP)

	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
