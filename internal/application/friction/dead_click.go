package friction

import (
	"strings"

	"github.com/tablewise/insights/internal/domain/interaction"
)

// Classes that make an element look clickable even without a pointer cursor
var interactiveClasses = []string{"clickable", "button", "btn", "link"}

// ClassifyDeadClick is a stateless predicate: an element is a dead click
// when it visually signals interactivity but carries no click affordance.
// Returns the reason the element looked interactive.
func ClassifyDeadClick(el interaction.Element) (string, bool) {
	reason, looksInteractive := interactivitySignal(el)
	if !looksInteractive {
		return "", false
	}
	if hasClickAffordance(el) {
		return "", false
	}
	return reason, true
}

func interactivitySignal(el interaction.Element) (string, bool) {
	if el.Cursor == "pointer" {
		return "pointer cursor", true
	}
	for _, c := range interactiveClasses {
		if el.HasClass(c) {
			return "class " + c, true
		}
	}
	return "", false
}

func hasClickAffordance(el interaction.Element) bool {
	if el.HasOnClick || el.HasDataClick || el.InteractiveUp {
		return true
	}
	switch strings.ToLower(el.TagName) {
	case "a", "button":
		return true
	}
	switch el.Role {
	case "button", "link":
		return true
	}
	return false
}
