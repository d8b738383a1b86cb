// Package inbound defines the service interfaces exposed by the analytics
// engine to its callers (HTTP handlers, embedding applications, tests)
package inbound

import (
	"context"
	"time"

	"github.com/tablewise/insights/internal/domain/abtest"
	"github.com/tablewise/insights/internal/domain/cohort"
	"github.com/tablewise/insights/internal/domain/friction"
	"github.com/tablewise/insights/internal/domain/funnel"
	"github.com/tablewise/insights/internal/domain/journey"
)

// FrictionService classifies interaction streams into friction events
type FrictionService interface {
	// Start attaches the detectors to the event source and begins the
	// abandonment sweep. Stop detaches and cancels timers.
	Start(ctx context.Context) error
	Stop()

	// Events returns the friction events recorded this session, newest last
	Events() []friction.Event

	// Subscribe registers a callback invoked for every classified event
	Subscribe(fn func(friction.Event)) (cancel func())
}

// JourneyTracker records per-session navigation paths
type JourneyTracker interface {
	StartNewJourney(sessionID, userID string)
	TrackStep(path string, metadata map[string]string)
	EndJourney(completed bool, exitPoint string)
	CurrentJourney() *journey.Journey
	History() []*journey.Journey
	AnalyzeJourneys() journey.Analysis
}

// FunnelAnalyzer computes drop-off reports over stage sequences
type FunnelAnalyzer interface {
	Analyze(stages []funnel.Stage) funnel.Analysis
	Compare(baseline, current funnel.Analysis) funnel.Comparison
}

// CohortAnalyzer manages cohorts and computes comparative metrics
type CohortAnalyzer interface {
	CreateCohort(id, name string, criteria cohort.Criteria) (*cohort.Cohort, error)
	GetCohort(id string) (*cohort.Cohort, error)
	AddUser(cohortID, userID string) error
	AutoAssignUsers(cohortID string, profiles []cohort.UserProfile) (int, error)
	CalculateMetrics(cohortID string, window time.Duration) (CohortMetrics, error)
	CompareCohorts(aID, bID string, window time.Duration) (CohortComparison, error)
}

// CohortMetrics aggregates a cohort's behavior
type CohortMetrics struct {
	CohortID        string        `json:"cohort_id"`
	Users           int           `json:"users"`
	ActiveUsers     int           `json:"active_users"`
	RetentionRate   float64       `json:"retention_rate"`
	CompletionRate  float64       `json:"completion_rate"`
	ConversionRate  float64       `json:"conversion_rate"`
	AverageDuration time.Duration `json:"average_duration"`
	TopPaths        []PathCount   `json:"top_paths"`
}

// PathCount pairs a journey path with its frequency
type PathCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// CohortComparison is the delta report between two cohorts
type CohortComparison struct {
	CohortA         CohortMetrics `json:"cohort_a"`
	CohortB         CohortMetrics `json:"cohort_b"`
	RetentionDelta  float64       `json:"retention_delta"`
	CompletionDelta float64       `json:"completion_delta"`
	ConversionDelta float64       `json:"conversion_delta"`
	DurationDelta   time.Duration `json:"duration_delta"`
	Insights        []string      `json:"insights"`
}

// ABTestService assigns variants and computes significance
type ABTestService interface {
	CreateTest(ctx context.Context, test abtest.Test) error
	AssignVariant(ctx context.Context, testID, userID string) (abtest.Variant, error)
	RecordImpression(ctx context.Context, testID, variantID string) error
	RecordConversion(ctx context.Context, testID, variantID string) error
	CompareVariants(ctx context.Context, testID string) (abtest.Result, error)
	MinimumSampleSize(baselineRate, minimumDetectableEffect, confidenceLevel, power float64) int64
}
