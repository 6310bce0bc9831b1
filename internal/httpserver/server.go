package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/coursepay/server/internal/catalog"
	"github.com/coursepay/server/internal/circuitbreaker"
	"github.com/coursepay/server/internal/config"
	"github.com/coursepay/server/internal/logger"
	"github.com/coursepay/server/internal/metrics"
	"github.com/coursepay/server/internal/orders"
	"github.com/coursepay/server/internal/ratelimit"
	"github.com/coursepay/server/internal/verify"
)

var serverStartTime = time.Now()

// Server wires handlers, middleware, and dependencies.
type Server struct {
	handlers
	httpServer *http.Server
}

type handlers struct {
	cfg      *config.Config
	orders   *orders.Service
	catalog  *catalog.Repository
	verifier *verify.Service
	breakers *circuitbreaker.Manager
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New builds the HTTP server with configured router.
func New(cfg *config.Config, orderSvc *orders.Service, catalogRepo *catalog.Repository, verifier *verify.Service, breakers *circuitbreaker.Manager, metricsCollector *metrics.Metrics, appLogger zerolog.Logger) *Server {
	router := chi.NewRouter()

	h := handlers{
		cfg:      cfg,
		orders:   orderSvc,
		catalog:  catalogRepo,
		verifier: verifier,
		breakers: breakers,
		metrics:  metricsCollector,
		logger:   appLogger,
	}

	s := &Server{
		handlers: h,
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}

	configureRouter(router, h)

	return s
}

// configureRouter attaches all routes and middleware.
func configureRouter(router chi.Router, h handlers) {
	cfg := h.cfg

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{"Location"},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	// Security headers first so every response carries them
	router.Use(securityHeadersMiddleware)

	// Structured logging middleware before RequestID for context propagation
	router.Use(logger.Middleware(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	limits := ratelimit.FromConfig(cfg.RateLimit, h.metrics)
	router.Use(ratelimit.GlobalLimiter(limits))
	router.Use(ratelimit.IPLimiter(limits))

	prefix := cfg.Server.RoutePrefix

	// Lightweight endpoints with a short timeout
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get(prefix+"/health", h.health)
		// Protected by optional admin API key (COURSEPAY_ADMIN_METRICS_API_KEY)
		r.With(adminMetricsAuth(cfg.Server.AdminMetricsAPIKey)).Handle(prefix+"/metrics", promhttp.Handler())
	})

	// Verification endpoints block on the gateway status inquiry and the
	// ledger commit, so they get a longer budget.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get(prefix+"/api/v1/courses", h.listCourses)
		r.Post(prefix+"/api/v1/orders", h.createOrder)

		r.Post(prefix+"/api/v1/payments/verify", h.verifyPayment)
		// The gateway delivers callbacks as a form POST or with query
		// parameters; both land here.
		r.Post(prefix+"/api/v1/payments/callback", h.paymentCallback)
		r.Get(prefix+"/api/v1/payments/callback", h.paymentCallback)

		r.Get(prefix+"/api/v1/payments/confirm", h.confirmPayment)
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
