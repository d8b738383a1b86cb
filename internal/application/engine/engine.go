// Package engine bundles the per-tenant analytics services behind a single
// lifecycle. Engines are explicitly constructed and injected, never global;
// Initialize attaches detectors to the event source and Destroy tears all
// timers and subscriptions down.
package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tablewise/insights/internal/application/abtest"
	"github.com/tablewise/insights/internal/application/cohort"
	"github.com/tablewise/insights/internal/application/feature"
	"github.com/tablewise/insights/internal/application/friction"
	"github.com/tablewise/insights/internal/application/journey"
	"github.com/tablewise/insights/internal/application/vitals"
	"github.com/tablewise/insights/internal/infrastructure/events"
	"github.com/tablewise/insights/internal/ports/outbound"
)

// Engine is the full analytics stack for one tenant
type Engine struct {
	TenantID string

	Bus      *events.Bus
	Friction *friction.Service
	Journeys *journey.Tracker
	Cohorts  *cohort.Analyzer
	ABTests  *abtest.Service
	Vitals   *vitals.Collector
	Features *feature.Tracker

	logger      *zap.Logger
	initialized bool
	mu          sync.Mutex
}

// Deps are the shared external collaborators an engine is built from
type Deps struct {
	StateStore     outbound.StateStore
	FrictionRepo   outbound.FrictionRepository
	ABTestRepo     outbound.ABTestRepository
	Sinks          []outbound.AnalyticsSink
	Replay         outbound.ReplaySink
	FrictionCfg    friction.Config
	JourneyHistory int
	Logger         *zap.Logger
}

// New assembles an engine for a tenant. Call Initialize before feeding it
// events.
func New(tenantID string, deps Deps) *Engine {
	logger := deps.Logger.With(zap.String("tenant_id", tenantID))
	bus := events.NewBus(logger)
	tracker := journey.NewTracker(tenantID, deps.StateStore, logger)
	tracker.SetMaxHistory(deps.JourneyHistory)

	return &Engine{
		TenantID: tenantID,
		Bus:      bus,
		Friction: friction.NewService(deps.FrictionCfg, tenantID, bus, deps.Sinks, deps.Replay, deps.FrictionRepo, logger),
		Journeys: tracker,
		Cohorts:  cohort.NewAnalyzer(tracker, logger),
		ABTests:  abtest.NewService(tenantID, deps.StateStore, deps.ABTestRepo, logger),
		Vitals:   vitals.NewCollector(logger),
		Features: feature.NewTracker(tenantID, deps.StateStore, deps.Sinks, logger),
		logger:   logger.Named("engine"),
	}
}

// Initialize starts the friction detectors and sweeps
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return nil
	}
	if err := e.Friction.Start(ctx); err != nil {
		return err
	}
	e.initialized = true
	e.logger.Info("Engine initialized")
	return nil
}

// Destroy stops detectors and drops subscriptions. Idempotent.
func (e *Engine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return
	}
	e.Friction.Stop()
	e.Bus.Close()
	e.initialized = false
	e.logger.Info("Engine destroyed")
}
