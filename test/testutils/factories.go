// Package testutils provides factories for building test fixtures
package testutils

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/tablewise/insights/internal/domain/cohort"
	"github.com/tablewise/insights/internal/domain/interaction"
	"github.com/tablewise/insights/internal/domain/journey"
)

// ClickableElement returns an element that looks and is interactive
func ClickableElement(id string) interaction.Element {
	return interaction.Element{
		ID:      id,
		TagName: "button",
		Cursor:  "pointer",
		Classes: []string{"btn"},
	}
}

// DeadElement returns an element that looks interactive but is not
func DeadElement(id string) interaction.Element {
	return interaction.Element{
		ID:      id,
		TagName: "div",
		Cursor:  "pointer",
	}
}

// ClickAt builds a click event on the element at the given time
func ClickAt(el interaction.Element, at time.Time) interaction.ClickEvent {
	return interaction.ClickEvent{
		Element:   el,
		X:         gofakeit.Number(0, 1920),
		Y:         gofakeit.Number(0, 1080),
		Timestamp: at,
	}
}

// Profile builds a user profile with the given signup date and properties
func Profile(userID string, signup time.Time, props map[string]interface{}) cohort.UserProfile {
	if userID == "" {
		userID = gofakeit.UUID()
	}
	return cohort.UserProfile{
		UserID:     userID,
		SignupDate: signup,
		Properties: props,
	}
}

// SealedJourney builds a finished journey walking the given paths with one
// second between steps
func SealedJourney(userID string, paths []string, start time.Time, completed bool) *journey.Journey {
	j := journey.New(fmt.Sprintf("session-%s", gofakeit.LetterN(8)), userID, start)
	at := start
	for _, p := range paths {
		j.AddStep(p, nil, at)
		at = at.Add(time.Second)
	}
	exit := ""
	if n := len(paths); n > 0 {
		exit = paths[n-1]
	}
	j.Seal(completed, exit, at)
	return j
}
