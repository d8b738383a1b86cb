// Package journey models the ordered sequence of navigation steps within a
// tracked session and the aggregate statistics derived from journey history.
package journey

import (
	"time"

	"github.com/google/uuid"
)

// Step is one navigation/interaction step within a journey. Duration is the
// time elapsed since the previous step; it is zero for the first step.
type Step struct {
	Path      string            `json:"path"`
	Timestamp time.Time         `json:"timestamp"`
	Duration  time.Duration     `json:"duration"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Journey is a session's ordered path through the product. A journey is
// sealed exactly once; afterwards it is immutable.
type Journey struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty"`
	Steps     []Step    `json:"steps"`
	Completed bool      `json:"completed"`
	Sealed    bool      `json:"sealed"`
	ExitPoint string    `json:"exit_point,omitempty"`
}

// New starts a journey for the given session
func New(sessionID, userID string, at time.Time) *Journey {
	return &Journey{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserID:    userID,
		StartTime: at,
	}
}

// AddStep appends a step, deriving its duration from the previous step's
// timestamp. Invariant: Steps[i].Duration == Steps[i].Timestamp - Steps[i-1].Timestamp.
func (j *Journey) AddStep(path string, metadata map[string]string, at time.Time) {
	if j.Sealed {
		return
	}
	step := Step{
		Path:      path,
		Timestamp: at,
		Metadata:  metadata,
	}
	if n := len(j.Steps); n > 0 {
		step.Duration = at.Sub(j.Steps[n-1].Timestamp)
	}
	j.Steps = append(j.Steps, step)
}

// Seal marks the journey finished. Sealing twice is a no-op.
func (j *Journey) Seal(completed bool, exitPoint string, at time.Time) {
	if j.Sealed {
		return
	}
	j.Sealed = true
	j.Completed = completed
	j.ExitPoint = exitPoint
	j.EndTime = at
}

// Duration is the wall time between the first and last recorded activity
func (j *Journey) Duration() time.Duration {
	if len(j.Steps) == 0 {
		return 0
	}
	last := j.Steps[len(j.Steps)-1].Timestamp
	if j.Sealed && j.EndTime.After(last) {
		last = j.EndTime
	}
	return last.Sub(j.StartTime)
}

// PathString renders the step sequence as "a -> b -> c"
func (j *Journey) PathString() string {
	if len(j.Steps) == 0 {
		return ""
	}
	s := j.Steps[0].Path
	for _, step := range j.Steps[1:] {
		s += " -> " + step.Path
	}
	return s
}

// EntryPoint returns the first step's path, or "" for an empty journey
func (j *Journey) EntryPoint() string {
	if len(j.Steps) == 0 {
		return ""
	}
	return j.Steps[0].Path
}

// LastStep returns the final step's path, or "" for an empty journey
func (j *Journey) LastStep() string {
	if len(j.Steps) == 0 {
		return ""
	}
	return j.Steps[len(j.Steps)-1].Path
}

// Analysis holds aggregate statistics over journey history
type Analysis struct {
	TotalJourneys     int            `json:"total_journeys"`
	CompletedJourneys int            `json:"completed_journeys"`
	CompletionRate    float64        `json:"completion_rate"`
	AverageDuration   time.Duration  `json:"average_duration"`
	PathFrequency     map[string]int `json:"path_frequency"`
	EntryPoints       map[string]int `json:"entry_points"`
	ExitPoints        map[string]int `json:"exit_points"`
	DropOffPoints     map[string]int `json:"drop_off_points"`
}
