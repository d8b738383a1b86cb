package friction

import (
	"time"
)

// formState is the per-form abandonment state machine:
// untouched -> active (first focus/input) -> submitted | abandoned.
// One exists per actively tracked form; it is dropped on submit or once
// abandonment is reported.
type formState struct {
	sessionID           string
	formID              string
	startTime           time.Time
	lastInteractionTime time.Time
	totalFields         int
	interactedFields    map[string]struct{}
	fieldValues         map[string]string
	submitted           bool
}

func newFormState(sessionID, formID string, totalFields int, at time.Time) *formState {
	return &formState{
		sessionID:           sessionID,
		formID:              formID,
		startTime:           at,
		lastInteractionTime: at,
		totalFields:         totalFields,
		interactedFields:    make(map[string]struct{}),
		fieldValues:         make(map[string]string),
	}
}

func (f *formState) touch(fieldID string, at time.Time) {
	f.interactedFields[fieldID] = struct{}{}
	if at.After(f.lastInteractionTime) {
		f.lastInteractionTime = at
	}
}

func (f *formState) setValue(fieldID, value string, at time.Time) {
	f.fieldValues[fieldID] = value
	f.touch(fieldID, at)
}

// filledFields counts fields holding a non-empty value
func (f *formState) filledFields() int {
	n := 0
	for _, v := range f.fieldValues {
		if v != "" {
			n++
		}
	}
	return n
}

// completionRate is filled non-empty fields over total form fields
func (f *formState) completionRate() float64 {
	if f.totalFields == 0 {
		return 0
	}
	return float64(f.filledFields()) / float64(f.totalFields)
}

// shouldAbandon decides the abandoned transition: at least one interacted
// field, dwell time past the minimum, and idle past the threshold. A form
// with zero interacted fields never abandons regardless of elapsed time.
func (f *formState) shouldAbandon(now time.Time, minInteraction, idleThreshold time.Duration) bool {
	if f.submitted {
		return false
	}
	if len(f.interactedFields) == 0 {
		return false
	}
	if now.Sub(f.startTime) < minInteraction {
		return false
	}
	return now.Sub(f.lastInteractionTime) >= idleThreshold
}
