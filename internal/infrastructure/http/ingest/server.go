// Package ingest exposes the analytics engine over HTTP: batch event
// capture, journey and cohort management, funnel and A/B reports, and a
// websocket alert feed. Every route except health and metrics is scoped to
// an authenticated tenant.
package ingest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tablewise/insights/internal/infrastructure/config"
	"github.com/tablewise/insights/internal/infrastructure/monitoring"
	"github.com/tablewise/insights/pkg/healthcheck"
)

// Server is the ingest HTTP server
type Server struct {
	cfg      *config.Config
	handlers *Handlers
	limiter  *RateLimiter
	metrics  *monitoring.MetricsCollector
	tracing  *monitoring.TracingService
	health   *healthcheck.Registry
	logger   *zap.Logger

	httpServer *http.Server
	startedAt  time.Time
}

// NewServer assembles the ingest server
func NewServer(
	cfg *config.Config,
	handlers *Handlers,
	metrics *monitoring.MetricsCollector,
	tracing *monitoring.TracingService,
	health *healthcheck.Registry,
	logger *zap.Logger,
) *Server {
	s := &Server{
		cfg:      cfg,
		handlers: handlers,
		metrics:  metrics,
		tracing:  tracing,
		health:   health,
		logger:   logger.Named("http"),
	}
	if cfg.RateLimit.Enable {
		s.limiter = NewRateLimiter(cfg, logger)
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// Router builds the route tree
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.cfg.Monitoring.EnableMetrics && s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(Authenticator(s.cfg, s.logger))
		if s.tracing != nil {
			r.Use(Tracing(s.tracing))
		}
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		if s.metrics != nil {
			r.Use(Metrics(s.metrics))
		}
		r.Use(chimiddleware.Timeout(s.cfg.Server.WriteTimeout))

		r.Post("/events", s.handlers.IngestEvents)

		r.Route("/journeys", func(r chi.Router) {
			r.Post("/start", s.handlers.StartJourney)
			r.Post("/steps", s.handlers.TrackJourneyStep)
			r.Post("/end", s.handlers.EndJourney)
			r.Get("/current", s.handlers.CurrentJourney)
			r.Get("/history", s.handlers.JourneyHistory)
			r.Get("/analysis", s.handlers.AnalyzeJourneys)
		})

		r.Route("/funnels", func(r chi.Router) {
			r.Post("/analyze", s.handlers.AnalyzeFunnel)
			r.Post("/compare", s.handlers.CompareFunnels)
		})

		r.Route("/cohorts", func(r chi.Router) {
			r.Post("/", s.handlers.CreateCohort)
			r.Get("/compare", s.handlers.CompareCohorts)
			r.Get("/{cohortID}", s.handlers.GetCohort)
			r.Post("/{cohortID}/users", s.handlers.AddCohortUser)
			r.Post("/{cohortID}/auto-assign", s.handlers.AutoAssignCohort)
			r.Get("/{cohortID}/metrics", s.handlers.CohortMetrics)
		})

		r.Route("/abtests", func(r chi.Router) {
			r.Post("/", s.handlers.CreateABTest)
			r.Get("/sample-size", s.handlers.SampleSize)
			r.Post("/{testID}/assign", s.handlers.AssignVariant)
			r.Post("/{testID}/impressions", s.handlers.RecordImpression)
			r.Post("/{testID}/conversions", s.handlers.RecordConversion)
			r.Get("/{testID}/results", s.handlers.ABTestResults)
		})

		r.Route("/vitals", func(r chi.Router) {
			r.Post("/", s.handlers.RecordVital)
			r.Get("/summary", s.handlers.VitalsSummary)
		})

		r.Route("/friction", func(r chi.Router) {
			r.Get("/events", s.handlers.LiveFrictionEvents)
			r.Get("/archive", s.handlers.FrictionArchive)
			r.Get("/counts", s.handlers.FrictionCounts)
		})

		r.Post("/features/use", s.handlers.TrackFeatureUse)
	})

	// The websocket route skips the metrics and timeout middleware: both wrap
	// the ResponseWriter in a way that breaks connection hijacking
	r.Group(func(r chi.Router) {
		r.Use(Authenticator(s.cfg, s.logger))
		r.Get("/ws/alerts", s.handlers.ServeAlerts)
	})

	return r
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.startedAt = time.Now()
	s.logger.Info("Ingest server listening",
		zap.String("addr", s.httpServer.Addr),
		zap.Bool("rate_limit", s.limiter != nil),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.logger.Info("Ingest server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Run(r.Context())
	status := http.StatusOK
	if report.Status == healthcheck.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"status":  report.Status,
		"app":     s.cfg.App.Name,
		"version": s.cfg.App.Version,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
		"checks":  report.Checks,
	})
}
