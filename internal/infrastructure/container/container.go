// Package container wires the application together with Uber FX. Each
// dependency is provided by a constructor; lifecycle hooks own startup and
// shutdown ordering.
package container

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tablewise/insights/internal/application/engine"
	frictionapp "github.com/tablewise/insights/internal/application/friction"
	funnelapp "github.com/tablewise/insights/internal/application/funnel"
	"github.com/tablewise/insights/internal/infrastructure/config"
	"github.com/tablewise/insights/internal/infrastructure/http/ingest"
	"github.com/tablewise/insights/internal/infrastructure/monitoring"
	"github.com/tablewise/insights/internal/infrastructure/persistence/database"
	gormrepo "github.com/tablewise/insights/internal/infrastructure/persistence/gorm"
	"github.com/tablewise/insights/internal/infrastructure/persistence/memory"
	redisstore "github.com/tablewise/insights/internal/infrastructure/persistence/redis"
	"github.com/tablewise/insights/internal/infrastructure/sinks"
	"github.com/tablewise/insights/internal/ports/outbound"
	"github.com/tablewise/insights/pkg/healthcheck"
	"github.com/tablewise/insights/pkg/logger"
)

// Module is the application's full dependency graph
var Module = fx.Options(
	fx.Provide(
		NewConfig,
		NewLogger,
		NewDatabase,
		NewStateStore,
		NewFrictionRepository,
		NewABTestRepository,
		NewAnalyticsSinks,
		NewReplaySink,
		NewMetricsCollector,
		NewTracingService,
		NewRegistry,
		NewHealthRegistry,
		NewFunnelAnalyzer,
		NewAlertHub,
		NewHandlers,
		NewServer,
	),
	fx.Invoke(RegisterLifecycle),
)

// NewConfig loads configuration from file and environment
func NewConfig() (*config.Config, error) {
	return config.Load("")
}

// NewLogger builds the root zap logger from config
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		Development: !cfg.IsProduction(),
	})
}

// NewDatabase opens the archive database
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	return database.Setup(cfg)
}

// NewStateStore picks Redis when enabled, in-memory otherwise
func NewStateStore(cfg *config.Config, log *zap.Logger) (outbound.StateStore, error) {
	if cfg.Redis.Enabled {
		return redisstore.NewStateStore(cfg.Redis, log)
	}
	log.Info("Using in-memory state store")
	return memory.NewStateStore(), nil
}

// NewFrictionRepository provides the friction archive
func NewFrictionRepository(db *gorm.DB) outbound.FrictionRepository {
	return gormrepo.NewFrictionRepository(db)
}

// NewABTestRepository provides the A/B test archive
func NewABTestRepository(db *gorm.DB) outbound.ABTestRepository {
	return gormrepo.NewABTestRepository(db)
}

// NewAnalyticsSinks provides the configured analytics sinks
func NewAnalyticsSinks(log *zap.Logger) []outbound.AnalyticsSink {
	return []outbound.AnalyticsSink{sinks.NewLogSink(log)}
}

// NewReplaySink provides the session replay sink
func NewReplaySink() outbound.ReplaySink {
	return sinks.NewNoopReplaySink()
}

// NewMetricsCollector provides Prometheus metrics
func NewMetricsCollector(log *zap.Logger) *monitoring.MetricsCollector {
	return monitoring.NewMetricsCollector(log)
}

// NewTracingService provides OpenTelemetry tracing
func NewTracingService(cfg *config.Config, log *zap.Logger) (*monitoring.TracingService, error) {
	return monitoring.NewTracingService(cfg, log)
}

// NewRegistry provides the per-tenant engine registry
func NewRegistry(
	cfg *config.Config,
	store outbound.StateStore,
	frictionRepo outbound.FrictionRepository,
	abtestRepo outbound.ABTestRepository,
	analyticsSinks []outbound.AnalyticsSink,
	replay outbound.ReplaySink,
	log *zap.Logger,
) *engine.Registry {
	return engine.NewRegistry(engine.Deps{
		StateStore:     store,
		FrictionRepo:   frictionRepo,
		ABTestRepo:     abtestRepo,
		Sinks:          analyticsSinks,
		Replay:         replay,
		FrictionCfg:    detectorConfig(cfg),
		JourneyHistory: cfg.Journeys.MaxHistory,
		Logger:         log,
	})
}

func detectorConfig(cfg *config.Config) frictionapp.Config {
	return frictionapp.Config{
		MinInteractionTime: cfg.Detectors.MinInteractionTime,
		IdleThreshold:      cfg.Detectors.IdleThreshold,
		SweepInterval:      cfg.Detectors.SweepInterval,
		RageThreshold:      cfg.Detectors.RageThreshold,
		RageTimeWindow:     cfg.Detectors.RageTimeWindow,
		ExcludeSelectors:   cfg.Detectors.ExcludeSelectors,
		MaxEvents:          cfg.Detectors.MaxEvents,
	}
}

// NewHealthRegistry provides the readiness probes. The archive database is
// critical; the state store probe only degrades the report since the
// in-memory fallback keeps the engine usable.
func NewHealthRegistry(db *gorm.DB, store outbound.StateStore) *healthcheck.Registry {
	registry := healthcheck.NewRegistry()
	registry.Register("database", true, func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	registry.Register("state_store", false, func(ctx context.Context) error {
		return store.Save(ctx, "healthcheck:probe", []byte("ok"))
	})
	return registry
}

// NewFunnelAnalyzer provides the stateless funnel analyzer
func NewFunnelAnalyzer() *funnelapp.Analyzer {
	return funnelapp.NewAnalyzer()
}

// NewAlertHub provides the websocket alert hub
func NewAlertHub(log *zap.Logger, metrics *monitoring.MetricsCollector) *ingest.Hub {
	return ingest.NewHub(log, metrics)
}

// NewHandlers provides the ingest API handlers
func NewHandlers(
	cfg *config.Config,
	registry *engine.Registry,
	funnels *funnelapp.Analyzer,
	frictionRepo outbound.FrictionRepository,
	metrics *monitoring.MetricsCollector,
	hub *ingest.Hub,
	log *zap.Logger,
) *ingest.Handlers {
	return ingest.NewHandlers(cfg, registry, funnels, frictionRepo, metrics, hub, log)
}

// NewServer provides the ingest HTTP server
func NewServer(
	cfg *config.Config,
	handlers *ingest.Handlers,
	metrics *monitoring.MetricsCollector,
	tracing *monitoring.TracingService,
	health *healthcheck.Registry,
	log *zap.Logger,
) *ingest.Server {
	return ingest.NewServer(cfg, handlers, metrics, tracing, health, log)
}

// RegisterLifecycle ties server startup and teardown to the FX lifecycle
func RegisterLifecycle(
	lc fx.Lifecycle,
	server *ingest.Server,
	registry *engine.Registry,
	hub *ingest.Hub,
	tracing *monitoring.TracingService,
	log *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := server.Start(); err != nil {
					log.Error("Server stopped unexpectedly", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := server.Shutdown(ctx); err != nil {
				log.Warn("Server shutdown failed", zap.Error(err))
			}
			hub.Close()
			registry.Shutdown()
			if err := tracing.Shutdown(ctx); err != nil {
				log.Warn("Tracing shutdown failed", zap.Error(err))
			}
			return nil
		},
	})
}
