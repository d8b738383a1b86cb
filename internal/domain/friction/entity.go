// Package friction defines classified UX friction signals: abandoned forms,
// rage clicks and dead clicks. Events are immutable once recorded.
package friction

import (
	"time"

	"github.com/google/uuid"

	"github.com/tablewise/insights/internal/domain/interaction"
)

// Type identifies the classifier that produced an event
type Type string

// Friction event types
const (
	TypeFormAbandonment Type = "form_abandonment"
	TypeRageClick       Type = "rage_click"
	TypeDeadClick       Type = "dead_click"
)

// Severity tags how badly a friction event likely hurt the user
type Severity string

// Severity levels
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Event is a single classified friction occurrence. Detail is a closed union
// keyed by Type, so consumers can match exhaustively instead of digging
// through an open metadata bag.
type Event struct {
	ID        uuid.UUID           `json:"id"`
	TenantID  string              `json:"tenant_id"`
	SessionID string              `json:"session_id"`
	Type      Type                `json:"type"`
	Severity  Severity            `json:"severity"`
	Element   interaction.Element `json:"element"`
	Detail    Detail              `json:"detail"`
	Timestamp time.Time           `json:"timestamp"`
}

// Detail carries the classifier-specific payload of a friction event
type Detail interface {
	FrictionType() Type
}

// FormAbandonmentDetail describes an abandoned form
type FormAbandonmentDetail struct {
	FormID            string        `json:"form_id"`
	FieldsInteracted  int           `json:"fields_interacted"`
	FieldsFilled      int           `json:"fields_filled"`
	TotalFields       int           `json:"total_fields"`
	CompletionRate    float64       `json:"completion_rate"`
	DwellTime         time.Duration `json:"dwell_time"`
	TimeSinceActivity time.Duration `json:"time_since_activity"`
}

// RageClickDetail describes a burst of repeated clicks on one element
type RageClickDetail struct {
	ClickCount int           `json:"click_count"`
	Window     time.Duration `json:"window"`
}

// DeadClickDetail describes a click on an element that looked interactive
// but had no click affordance
type DeadClickDetail struct {
	Reason string `json:"reason"`
}

func (FormAbandonmentDetail) FrictionType() Type { return TypeFormAbandonment }
func (RageClickDetail) FrictionType() Type       { return TypeRageClick }
func (DeadClickDetail) FrictionType() Type       { return TypeDeadClick }

// NewEvent assembles a friction event from a classifier's output
func NewEvent(tenantID, sessionID string, severity Severity, element interaction.Element, detail Detail, at time.Time) Event {
	return Event{
		ID:        uuid.New(),
		TenantID:  tenantID,
		SessionID: sessionID,
		Type:      detail.FrictionType(),
		Severity:  severity,
		Element:   element,
		Detail:    detail,
		Timestamp: at,
	}
}

// AbandonmentSeverity derives severity from how far through the form the
// user got before walking away. Losing a nearly complete form hurts most.
func AbandonmentSeverity(completionRate float64) Severity {
	switch {
	case completionRate > 0.75:
		return SeverityHigh
	case completionRate >= 0.25:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
