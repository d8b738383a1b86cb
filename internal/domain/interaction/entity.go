// Package interaction defines the typed interaction events consumed by the
// analytics engine. Raw browser events are normalized into these records by
// the capture adapters before any classification happens.
package interaction

import (
	"time"
)

// Kind identifies the type of an interaction event
type Kind string

// Interaction event kinds
const (
	KindClick      Kind = "click"
	KindInput      Kind = "input"
	KindFocus      Kind = "focus"
	KindBlur       Kind = "blur"
	KindSubmit     Kind = "submit"
	KindScroll     Kind = "scroll"
	KindPageView   Kind = "page_view"
	KindUnload     Kind = "unload"
	KindVisibility Kind = "visibility"
)

// Element describes the DOM element an event targeted, carrying the
// affordance signals the dead-click classifier needs. Agents resolve these
// attributes at capture time so the engine never touches a live DOM.
type Element struct {
	ID            string   `json:"id"`
	TagName       string   `json:"tag_name"`
	Classes       []string `json:"classes,omitempty"`
	Role          string   `json:"role,omitempty"`
	Cursor        string   `json:"cursor,omitempty"`
	Selector      string   `json:"selector,omitempty"`
	HasOnClick    bool     `json:"has_onclick"`
	HasDataClick  bool     `json:"has_data_click"`
	InteractiveUp bool     `json:"interactive_ancestor"`
}

// Record is the normalized form of a single raw interaction, kept only for
// the duration of a classification window.
type Record struct {
	ElementID string
	TagName   string
	X         int
	Y         int
	Timestamp time.Time
}

// Event is the closed union of interaction payloads. Each concrete event
// carries exactly the fields its classifiers consume.
type Event interface {
	Kind() Kind
	OccurredAt() time.Time
}

// ClickEvent is a pointer click on an element
type ClickEvent struct {
	Element   Element   `json:"element"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Timestamp time.Time `json:"timestamp"`
}

// InputEvent is a value change on a form field
type InputEvent struct {
	FormID    string    `json:"form_id"`
	FieldID   string    `json:"field_id"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// FocusEvent is focus entering a form field. TotalFields is the field count
// of the enclosing form, resolved by the capture agent.
type FocusEvent struct {
	FormID      string    `json:"form_id"`
	FieldID     string    `json:"field_id"`
	TotalFields int       `json:"total_fields"`
	Timestamp   time.Time `json:"timestamp"`
}

// BlurEvent is focus leaving a form field
type BlurEvent struct {
	FormID    string    `json:"form_id"`
	FieldID   string    `json:"field_id"`
	Timestamp time.Time `json:"timestamp"`
}

// SubmitEvent is a form submission
type SubmitEvent struct {
	FormID     string    `json:"form_id"`
	FieldCount int       `json:"field_count"`
	Timestamp  time.Time `json:"timestamp"`
}

// ScrollEvent reports scroll depth as a fraction of page height
type ScrollEvent struct {
	Depth     float64   `json:"depth"`
	Timestamp time.Time `json:"timestamp"`
}

// PageViewEvent is a navigation to a path within the session
type PageViewEvent struct {
	Path      string            `json:"path"`
	Referrer  string            `json:"referrer,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// UnloadEvent is the page being torn down (beforeunload/pagehide)
type UnloadEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// VisibilityEvent reports the page moving in or out of view
type VisibilityEvent struct {
	Hidden    bool      `json:"hidden"`
	Timestamp time.Time `json:"timestamp"`
}

func (e ClickEvent) Kind() Kind      { return KindClick }
func (e InputEvent) Kind() Kind      { return KindInput }
func (e FocusEvent) Kind() Kind      { return KindFocus }
func (e BlurEvent) Kind() Kind       { return KindBlur }
func (e SubmitEvent) Kind() Kind     { return KindSubmit }
func (e ScrollEvent) Kind() Kind     { return KindScroll }
func (e PageViewEvent) Kind() Kind   { return KindPageView }
func (e UnloadEvent) Kind() Kind     { return KindUnload }
func (e VisibilityEvent) Kind() Kind { return KindVisibility }

func (e ClickEvent) OccurredAt() time.Time      { return e.Timestamp }
func (e InputEvent) OccurredAt() time.Time      { return e.Timestamp }
func (e FocusEvent) OccurredAt() time.Time      { return e.Timestamp }
func (e BlurEvent) OccurredAt() time.Time       { return e.Timestamp }
func (e SubmitEvent) OccurredAt() time.Time     { return e.Timestamp }
func (e ScrollEvent) OccurredAt() time.Time     { return e.Timestamp }
func (e PageViewEvent) OccurredAt() time.Time   { return e.Timestamp }
func (e UnloadEvent) OccurredAt() time.Time     { return e.Timestamp }
func (e VisibilityEvent) OccurredAt() time.Time { return e.Timestamp }

// HasClass reports whether the element carries the given CSS class
func (el Element) HasClass(name string) bool {
	for _, c := range el.Classes {
		if c == name {
			return true
		}
	}
	return false
}
