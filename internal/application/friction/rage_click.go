package friction

import (
	"strings"
	"time"

	"github.com/tablewise/insights/internal/domain/interaction"
)

// rageTracker keeps the rolling click buffer for one session. The buffer
// holds recent clicks on any target; it is pruned to the window on every
// new click and cleared entirely after an event fires so one burst reports
// exactly once.
type rageTracker struct {
	clicks []interaction.Record
}

// observe records a click and reports whether it completed a rage burst on
// the clicked element
func (r *rageTracker) observe(rec interaction.Record, window time.Duration, threshold int) (int, bool) {
	cutoff := rec.Timestamp.Add(-window)
	kept := r.clicks[:0]
	for _, c := range r.clicks {
		if c.Timestamp.After(cutoff) {
			kept = append(kept, c)
		}
	}
	r.clicks = append(kept, rec)

	same := 0
	for _, c := range r.clicks {
		if c.ElementID == rec.ElementID {
			same++
		}
	}
	if same >= threshold {
		r.clicks = r.clicks[:0]
		return same, true
	}
	return same, false
}

// selectorExcluded reports whether an element matches any of the configured
// exclusion selectors. Supported forms: "#id", ".class" and a bare tag name;
// that covers the carousel/stepper style exclusions the config carries.
func selectorExcluded(el interaction.Element, selectors []string) bool {
	for _, sel := range selectors {
		switch {
		case strings.HasPrefix(sel, "#"):
			if el.ID == sel[1:] {
				return true
			}
		case strings.HasPrefix(sel, "."):
			if el.HasClass(sel[1:]) {
				return true
			}
		default:
			if strings.EqualFold(el.TagName, sel) {
				return true
			}
		}
	}
	return false
}
