package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/opensource-finance/merchantrisk/internal/domain"
	"github.com/opensource-finance/merchantrisk/internal/logger"
	"github.com/opensource-finance/merchantrisk/internal/metrics"
	"github.com/opensource-finance/merchantrisk/internal/onboarding"
	"github.com/opensource-finance/merchantrisk/internal/riskconfig"
)

// Deps are the components the API serves.
type Deps struct {
	Service  *onboarding.Service
	Config   *riskconfig.Store
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus
	Metrics  *metrics.Metrics
	Log      *zap.Logger
	Security domain.SecurityConfig
	Version  string
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	log := logger.OrNop(deps.Log)
	handler := NewHandler(deps)
	admin := AdminMiddleware(deps.Security.APIKeyHeader, deps.Security.AdminAPIKey)

	router := chi.NewRouter()
	router.Use(TracingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(LoggingMiddleware(log))
	router.Use(RecoverMiddleware(log))
	router.Use(CORSMiddleware(deps.Security.AllowedOrigins))
	router.Use(middleware.Compress(5))
	router.Use(MetricsMiddleware(deps.Metrics))
	router.Use(RateLimitMiddleware(deps.Cache, deps.Security.RateLimitPerMinute, log))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	router.Post("/evaluate", handler.Evaluate)

	router.Route("/merchants", func(r chi.Router) {
		r.Post("/", handler.CreateMerchant)
		r.Get("/", handler.ListMerchants)
		r.With(admin).Post("/reassess", handler.ReassessAll)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handler.GetMerchant)
			r.Put("/", handler.UpdateMerchant)
			r.With(admin).Delete("/", handler.DeleteMerchant)
			r.With(admin).Post("/approve", handler.ApproveMerchant)
			r.With(admin).Post("/reject", handler.RejectMerchant)

			r.Get("/risk", handler.GetRisk)
			r.Get("/risk/history", handler.RiskHistory)
			r.With(admin).Post("/risk/override", handler.OverrideRisk)
		})
	})

	router.Get("/assessments/{id}", handler.GetAssessment)
	router.Get("/assessments/{id}/replay", handler.ReplayAssessment)

	router.Route("/config", func(r chi.Router) {
		r.Get("/weights", handler.GetWeights)
		r.With(admin).Put("/weights", handler.PutWeights)
		r.Get("/thresholds", handler.GetThresholds)
		r.With(admin).Put("/thresholds", handler.PutThresholds)
		r.Get("/lists/{type}", handler.GetList)
		r.With(admin).Put("/lists/{type}", handler.PutList)
		r.Get("/rules", handler.ListRules)
	})

	router.Get("/alerts", handler.ListAlerts)
	router.With(admin).Post("/alerts/{id}/resolve", handler.ResolveAlert)

	router.Route("/audit", func(r chi.Router) {
		r.Use(admin)
		r.Get("/logs", handler.AuditLogs)
		r.Get("/config-history", handler.ConfigHistory)
	})

	router.Get("/dashboard/stats", handler.DashboardStats)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
		server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           router,
			ReadTimeout:       time.Duration(cfg.ReadTimeout) * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      time.Duration(cfg.WriteTimeout) * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Start serves until Shutdown. A Shutdown that lands first makes Start return http.ErrServerClosed.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
