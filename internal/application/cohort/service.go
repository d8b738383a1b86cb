// Package cohort implements cohort management and comparative behavior
// metrics over tracked journeys
package cohort

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	cohortdomain "github.com/tablewise/insights/internal/domain/cohort"
	journeydomain "github.com/tablewise/insights/internal/domain/journey"
	"github.com/tablewise/insights/internal/ports/inbound"
	"github.com/tablewise/insights/pkg/errors"
)

// topPathCount limits the path frequency table in cohort metrics
const topPathCount = 5

var _ inbound.CohortAnalyzer = (*Analyzer)(nil)

// JourneySource supplies the journey history metrics are computed from
type JourneySource interface {
	JourneysForUser(userID string) []*journeydomain.Journey
}

// Analyzer manages cohorts and computes their metrics. Cohort definitions
// are immutable after creation; membership is not.
type Analyzer struct {
	journeys JourneySource
	logger   *zap.Logger

	mu      sync.RWMutex
	cohorts map[string]*cohortdomain.Cohort
	now     func() time.Time
}

// NewAnalyzer creates a cohort analyzer
func NewAnalyzer(journeys JourneySource, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		journeys: journeys,
		logger:   logger.Named("cohort"),
		cohorts:  make(map[string]*cohortdomain.Cohort),
		now:      time.Now,
	}
}

// CreateCohort defines a new cohort. The ID must be unused.
func (a *Analyzer) CreateCohort(id, name string, criteria cohortdomain.Criteria) (*cohortdomain.Cohort, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.cohorts[id]; exists {
		return nil, errors.NewCohortExistsError(id)
	}
	c := cohortdomain.New(id, name, criteria, a.now())
	a.cohorts[id] = c
	a.logger.Info("Cohort created",
		zap.String("cohort_id", id),
		zap.String("criteria", criteria.Describe()),
	)
	return c, nil
}

// GetCohort looks up a cohort by ID
func (a *Analyzer) GetCohort(id string) (*cohortdomain.Cohort, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.cohorts[id]
	if !ok {
		return nil, errors.NewCohortNotFoundError(id)
	}
	return c, nil
}

// AddUser adds a member explicitly, bypassing criteria matching
func (a *Analyzer) AddUser(cohortID, userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.cohorts[cohortID]
	if !ok {
		return errors.NewCohortNotFoundError(cohortID)
	}
	c.AddUser(userID)
	return nil
}

// AutoAssignUsers batch-matches profiles against the cohort's criteria and
// adds every match. Returns the number of users added.
func (a *Analyzer) AutoAssignUsers(cohortID string, profiles []cohortdomain.UserProfile) (int, error) {
	a.mu.Lock()
	c, ok := a.cohorts[cohortID]
	a.mu.Unlock()
	if !ok {
		return 0, errors.NewCohortNotFoundError(cohortID)
	}

	added := 0
	for _, profile := range profiles {
		if a.matchesCriteria(profile, c.Criteria) {
			a.mu.Lock()
			if !c.HasUser(profile.UserID) {
				c.AddUser(profile.UserID)
				added++
			}
			a.mu.Unlock()
		}
	}
	a.logger.Debug("Auto-assignment complete",
		zap.String("cohort_id", cohortID),
		zap.Int("added", added),
		zap.Int("evaluated", len(profiles)),
	)
	return added, nil
}

// matchesCriteria dispatches on the criteria variant. Behavior criteria need
// journey history, so they are resolved here rather than on the domain type.
func (a *Analyzer) matchesCriteria(profile cohortdomain.UserProfile, criteria cohortdomain.Criteria) bool {
	if behavior, ok := criteria.(cohortdomain.BehaviorCriteria); ok {
		return a.behaviorCount(profile.UserID, behavior.Path) >= behavior.MinOccurrences
	}
	return criteria.Matches(profile)
}

func (a *Analyzer) behaviorCount(userID, path string) int {
	count := 0
	for _, j := range a.journeys.JourneysForUser(userID) {
		for _, step := range j.Steps {
			if step.Path == path {
				count++
			}
		}
	}
	return count
}

// CalculateMetrics scans the cohort members' journeys once, accumulating
// retention, completion, conversion and a top-5 path table.
// Cost is O(members x journeys-per-member).
func (a *Analyzer) CalculateMetrics(cohortID string, window time.Duration) (inbound.CohortMetrics, error) {
	a.mu.RLock()
	c, ok := a.cohorts[cohortID]
	a.mu.RUnlock()
	if !ok {
		return inbound.CohortMetrics{}, errors.NewCohortNotFoundError(cohortID)
	}

	// One membership snapshot so the scan and the user count agree even
	// while assignment is adding members
	members := c.Users()
	metrics := inbound.CohortMetrics{
		CohortID: cohortID,
		Users:    len(members),
	}
	cutoff := a.now().Add(-window)

	var totalJourneys, completedJourneys int
	var convertedUsers int
	var totalDuration time.Duration
	pathCounts := make(map[string]int)

	for _, userID := range members {
		journeys := a.journeys.JourneysForUser(userID)
		active := false
		converted := false
		for _, j := range journeys {
			totalJourneys++
			if j.Completed {
				completedJourneys++
				converted = true
			}
			totalDuration += j.Duration()
			if lastActivity(j).After(cutoff) {
				active = true
			}
			if p := j.PathString(); p != "" {
				pathCounts[p]++
			}
		}
		if active {
			metrics.ActiveUsers++
		}
		if converted {
			convertedUsers++
		}
	}

	if metrics.Users > 0 {
		metrics.RetentionRate = float64(metrics.ActiveUsers) / float64(metrics.Users)
		metrics.ConversionRate = float64(convertedUsers) / float64(metrics.Users)
	}
	if totalJourneys > 0 {
		metrics.CompletionRate = float64(completedJourneys) / float64(totalJourneys)
		metrics.AverageDuration = totalDuration / time.Duration(totalJourneys)
	}
	metrics.TopPaths = topPaths(pathCounts, topPathCount)
	return metrics, nil
}

// CompareCohorts runs two independent metric calculations and derives
// deltas plus threshold-triggered insights
func (a *Analyzer) CompareCohorts(aID, bID string, window time.Duration) (inbound.CohortComparison, error) {
	metricsA, err := a.CalculateMetrics(aID, window)
	if err != nil {
		return inbound.CohortComparison{}, err
	}
	metricsB, err := a.CalculateMetrics(bID, window)
	if err != nil {
		return inbound.CohortComparison{}, err
	}

	comparison := inbound.CohortComparison{
		CohortA:         metricsA,
		CohortB:         metricsB,
		RetentionDelta:  metricsA.RetentionRate - metricsB.RetentionRate,
		CompletionDelta: metricsA.CompletionRate - metricsB.CompletionRate,
		ConversionDelta: metricsA.ConversionRate - metricsB.ConversionRate,
		DurationDelta:   metricsA.AverageDuration - metricsB.AverageDuration,
	}
	comparison.Insights = insights(comparison)
	return comparison, nil
}

func insights(c inbound.CohortComparison) []string {
	var out []string
	if abs(c.RetentionDelta) > 0.10 {
		out = append(out, leader(c.RetentionDelta, c.CohortA.CohortID, c.CohortB.CohortID)+" retains users noticeably better")
	}
	if abs(c.CompletionDelta) > 0.10 {
		out = append(out, leader(c.CompletionDelta, c.CohortA.CohortID, c.CohortB.CohortID)+" completes more of its journeys")
	}
	if abs(c.ConversionDelta) > 0.05 {
		out = append(out, leader(c.ConversionDelta, c.CohortA.CohortID, c.CohortB.CohortID)+" converts a larger share of users")
	}
	if c.DurationDelta > 10*time.Second || c.DurationDelta < -10*time.Second {
		slower := c.CohortA.CohortID
		if c.DurationDelta < 0 {
			slower = c.CohortB.CohortID
		}
		out = append(out, slower+" spends materially longer per journey")
	}
	return out
}

func leader(delta float64, aID, bID string) string {
	if delta > 0 {
		return aID
	}
	return bID
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func lastActivity(j *journeydomain.Journey) time.Time {
	if j.Sealed && !j.EndTime.IsZero() {
		return j.EndTime
	}
	if n := len(j.Steps); n > 0 {
		return j.Steps[n-1].Timestamp
	}
	return j.StartTime
}

func topPaths(counts map[string]int, limit int) []inbound.PathCount {
	out := make([]inbound.PathCount, 0, len(counts))
	for path, count := range counts {
		out = append(out, inbound.PathCount{Path: path, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
