// Package journey implements the per-session journey tracker and the
// full-scan analysis over journey history
package journey

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	journeydomain "github.com/tablewise/insights/internal/domain/journey"
	"github.com/tablewise/insights/internal/ports/inbound"
	"github.com/tablewise/insights/internal/ports/outbound"
)

var _ inbound.JourneyTracker = (*Tracker)(nil)

// StateKeyPrefix namespaces journey snapshots in the state store
const StateKeyPrefix = "user_journey_data"

// DefaultMaxHistory caps journey history with FIFO eviction
const DefaultMaxHistory = 100

// Tracker records one active journey at a time and keeps a bounded history
// of sealed journeys. Every mutation rewrites the whole snapshot in the
// state store; the last writer wins.
type Tracker struct {
	tenantID   string
	store      outbound.StateStore
	logger     *zap.Logger
	maxHistory int

	mu        sync.Mutex
	sessionID string
	userID    string
	current   *journeydomain.Journey
	history   []*journeydomain.Journey
	now       func() time.Time
}

// snapshot is the persisted wire form of tracker state
type snapshot struct {
	SessionID string                   `json:"session_id"`
	UserID    string                   `json:"user_id,omitempty"`
	Current   *journeydomain.Journey   `json:"current_journey,omitempty"`
	History   []*journeydomain.Journey `json:"journey_history"`
}

// NewTracker creates a tracker and restores any persisted snapshot for the
// tenant. Malformed stored state falls back to empty history.
func NewTracker(tenantID string, store outbound.StateStore, logger *zap.Logger) *Tracker {
	t := &Tracker{
		tenantID:   tenantID,
		store:      store,
		logger:     logger.Named("journey"),
		maxHistory: DefaultMaxHistory,
		now:        time.Now,
	}
	t.restore()
	return t
}

// SetMaxHistory overrides the history cap. Non-positive values are ignored.
func (t *Tracker) SetMaxHistory(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.maxHistory = n
	t.mu.Unlock()
}

// StartNewJourney begins tracking a fresh journey. Any unsealed current
// journey is discarded; callers seal explicitly via EndJourney.
func (t *Tracker) StartNewJourney(sessionID, userID string) {
	t.mu.Lock()
	t.sessionID = sessionID
	t.userID = userID
	t.current = journeydomain.New(sessionID, userID, t.now())
	t.mu.Unlock()
	t.persist()
}

// TrackStep appends a step to the active journey. Without an active
// journey the call is dropped and logged; nothing starts implicitly.
func (t *Tracker) TrackStep(path string, metadata map[string]string) {
	t.mu.Lock()
	if t.current == nil {
		t.mu.Unlock()
		t.logger.Debug("Step dropped, no active journey", zap.String("path", path))
		return
	}
	t.current.AddStep(path, metadata, t.now())
	t.mu.Unlock()
	t.persist()
}

// TrackStepAt is TrackStep with an explicit timestamp, used when steps
// arrive batched from capture agents with their original times
func (t *Tracker) TrackStepAt(path string, metadata map[string]string, at time.Time) {
	t.mu.Lock()
	if t.current == nil {
		t.mu.Unlock()
		return
	}
	t.current.AddStep(path, metadata, at)
	t.mu.Unlock()
	t.persist()
}

// EndJourney seals the active journey into history. No new journey starts
// automatically.
func (t *Tracker) EndJourney(completed bool, exitPoint string) {
	t.mu.Lock()
	if t.current == nil {
		t.mu.Unlock()
		return
	}
	t.current.Seal(completed, exitPoint, t.now())
	t.history = append(t.history, t.current)
	if len(t.history) > t.maxHistory {
		t.history = t.history[len(t.history)-t.maxHistory:]
	}
	t.current = nil
	t.mu.Unlock()
	t.persist()
}

// CurrentJourney returns the active journey, nil when none
func (t *Tracker) CurrentJourney() *journeydomain.Journey {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// History returns the sealed journeys, oldest first
func (t *Tracker) History() []*journeydomain.Journey {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*journeydomain.Journey, len(t.history))
	copy(out, t.history)
	return out
}

// JourneysForUser returns the sealed journeys attributed to a user
func (t *Tracker) JourneysForUser(userID string) []*journeydomain.Journey {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*journeydomain.Journey
	for _, j := range t.history {
		if j.UserID == userID {
			out = append(out, j)
		}
	}
	return out
}

// AnalyzeJourneys recomputes aggregate statistics by a full scan of history.
// Cost is O(history x average path length) per call; fine at the capped
// history size.
func (t *Tracker) AnalyzeJourneys() journeydomain.Analysis {
	t.mu.Lock()
	defer t.mu.Unlock()

	analysis := journeydomain.Analysis{
		PathFrequency: make(map[string]int),
		EntryPoints:   make(map[string]int),
		ExitPoints:    make(map[string]int),
		DropOffPoints: make(map[string]int),
	}

	var totalDuration time.Duration
	for _, j := range t.history {
		analysis.TotalJourneys++
		if j.Completed {
			analysis.CompletedJourneys++
		}
		totalDuration += j.Duration()

		if p := j.PathString(); p != "" {
			analysis.PathFrequency[p]++
		}
		if entry := j.EntryPoint(); entry != "" {
			analysis.EntryPoints[entry]++
		}
		if j.ExitPoint != "" {
			analysis.ExitPoints[j.ExitPoint]++
		}
		if !j.Completed {
			if last := j.LastStep(); last != "" {
				analysis.DropOffPoints[last]++
			}
		}
	}

	if analysis.TotalJourneys > 0 {
		analysis.AverageDuration = totalDuration / time.Duration(analysis.TotalJourneys)
		analysis.CompletionRate = float64(analysis.CompletedJourneys) / float64(analysis.TotalJourneys)
	}
	return analysis
}

func (t *Tracker) stateKey() string {
	return StateKeyPrefix + ":" + t.tenantID
}

func (t *Tracker) restore() {
	if t.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	raw, err := t.store.Load(ctx, t.stateKey())
	if err != nil {
		var notFound outbound.ErrKeyNotFound
		if !errors.As(err, &notFound) {
			t.logger.Warn("Journey state load failed", zap.Error(err))
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.logger.Warn("Journey state corrupt, starting empty", zap.Error(err))
		return
	}
	t.sessionID = snap.SessionID
	t.userID = snap.UserID
	t.current = snap.Current
	t.history = snap.History
}

func (t *Tracker) persist() {
	if t.store == nil {
		return
	}
	t.mu.Lock()
	snap := snapshot{
		SessionID: t.sessionID,
		UserID:    t.userID,
		Current:   t.current,
		History:   t.history,
	}
	raw, err := json.Marshal(snap)
	t.mu.Unlock()
	if err != nil {
		t.logger.Warn("Journey state marshal failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := t.store.Save(ctx, t.stateKey(), raw); err != nil {
		t.logger.Warn("Journey state save failed", zap.Error(err))
	}
}
