package journey

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tablewise/insights/internal/infrastructure/persistence/memory"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	return NewTracker("tenant-1", memory.NewStateStore(), zap.NewNop())
}

func TestStepDurationIsDeltaFromPreviousStep(t *testing.T) {
	tracker := newTestTracker(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tracker.StartNewJourney("s1", "u1")
	tracker.TrackStepAt("/home", nil, base)
	tracker.TrackStepAt("/menu", nil, base.Add(3*time.Second))
	tracker.TrackStepAt("/cart", nil, base.Add(10*time.Second))

	j := tracker.CurrentJourney()
	require.NotNil(t, j)
	require.Len(t, j.Steps, 3)
	assert.Equal(t, time.Duration(0), j.Steps[0].Duration)
	assert.Equal(t, 3*time.Second, j.Steps[1].Duration)
	assert.Equal(t, 7*time.Second, j.Steps[2].Duration)
}

func TestTrackStepWithoutActiveJourneyIsDropped(t *testing.T) {
	tracker := newTestTracker(t)
	tracker.TrackStep("/home", nil)
	assert.Nil(t, tracker.CurrentJourney())
	assert.Empty(t, tracker.History())
}

func TestEndJourneySealsIntoHistory(t *testing.T) {
	tracker := newTestTracker(t)

	tracker.StartNewJourney("s1", "u1")
	tracker.TrackStep("/home", nil)
	tracker.EndJourney(true, "/order-complete")

	assert.Nil(t, tracker.CurrentJourney())
	history := tracker.History()
	require.Len(t, history, 1)
	assert.True(t, history[0].Sealed)
	assert.True(t, history[0].Completed)
	assert.Equal(t, "/order-complete", history[0].ExitPoint)
}

func TestHistoryCapEvictsOldest(t *testing.T) {
	tracker := newTestTracker(t)
	tracker.maxHistory = 3

	for i := 0; i < 5; i++ {
		tracker.StartNewJourney(fmt.Sprintf("s%d", i), "u1")
		tracker.TrackStep(fmt.Sprintf("/page-%d", i), nil)
		tracker.EndJourney(false, "")
	}

	history := tracker.History()
	require.Len(t, history, 3)
	assert.Equal(t, "s2", history[0].SessionID)
	assert.Equal(t, "s4", history[2].SessionID)
}

func TestStateSurvivesRestart(t *testing.T) {
	store := memory.NewStateStore()

	first := NewTracker("tenant-1", store, zap.NewNop())
	first.StartNewJourney("s1", "u1")
	first.TrackStep("/home", map[string]string{"ref": "email"})
	first.EndJourney(true, "/home")

	second := NewTracker("tenant-1", store, zap.NewNop())
	history := second.History()
	require.Len(t, history, 1)
	assert.Equal(t, "u1", history[0].UserID)
	assert.Equal(t, "/home", history[0].Steps[0].Path)
	assert.Equal(t, "email", history[0].Steps[0].Metadata["ref"])
}

func TestCorruptStateFallsBackToEmpty(t *testing.T) {
	store := memory.NewStateStore()
	require.NoError(t, store.Save(context.Background(), StateKeyPrefix+":tenant-1", []byte("{not json")))

	tracker := NewTracker("tenant-1", store, zap.NewNop())
	assert.Nil(t, tracker.CurrentJourney())
	assert.Empty(t, tracker.History())
}

func TestTenantsDoNotShareState(t *testing.T) {
	store := memory.NewStateStore()

	a := NewTracker("tenant-a", store, zap.NewNop())
	a.StartNewJourney("s1", "u1")
	a.EndJourney(true, "/done")

	b := NewTracker("tenant-b", store, zap.NewNop())
	assert.Empty(t, b.History())
}

func TestAnalyzeJourneys(t *testing.T) {
	tracker := newTestTracker(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tracker.StartNewJourney("s1", "u1")
	tracker.TrackStepAt("/home", nil, base)
	tracker.TrackStepAt("/menu", nil, base.Add(10*time.Second))
	tracker.EndJourney(true, "/menu")

	tracker.StartNewJourney("s2", "u2")
	tracker.TrackStepAt("/home", nil, base.Add(time.Minute))
	tracker.TrackStepAt("/cart", nil, base.Add(time.Minute+20*time.Second))
	tracker.EndJourney(false, "")

	analysis := tracker.AnalyzeJourneys()
	assert.Equal(t, 2, analysis.TotalJourneys)
	assert.Equal(t, 1, analysis.CompletedJourneys)
	assert.InDelta(t, 0.5, analysis.CompletionRate, 1e-9)
	assert.Equal(t, 2, analysis.EntryPoints["/home"])
	assert.Equal(t, 1, analysis.PathFrequency["/home -> /menu"])
	assert.Equal(t, 1, analysis.PathFrequency["/home -> /cart"])
	assert.Equal(t, 1, analysis.ExitPoints["/menu"])
	// Incomplete journey drops off at its last step
	assert.Equal(t, 1, analysis.DropOffPoints["/cart"])
}

func TestJourneysForUser(t *testing.T) {
	tracker := newTestTracker(t)

	tracker.StartNewJourney("s1", "alice")
	tracker.EndJourney(true, "")
	tracker.StartNewJourney("s2", "bob")
	tracker.EndJourney(false, "")
	tracker.StartNewJourney("s3", "alice")
	tracker.EndJourney(false, "")

	assert.Len(t, tracker.JourneysForUser("alice"), 2)
	assert.Len(t, tracker.JourneysForUser("bob"), 1)
	assert.Empty(t, tracker.JourneysForUser("carol"))
}
