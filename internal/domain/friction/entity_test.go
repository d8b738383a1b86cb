package friction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tablewise/insights/internal/domain/interaction"
)

func TestAbandonmentSeverity(t *testing.T) {
	tests := []struct {
		rate     float64
		severity Severity
	}{
		{0.0, SeverityLow},
		{0.24, SeverityLow},
		{0.25, SeverityMedium},
		{0.5, SeverityMedium},
		{0.75, SeverityMedium},
		{0.76, SeverityHigh},
		{1.0, SeverityHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.severity, AbandonmentSeverity(tt.rate), "rate %v", tt.rate)
	}
}

func TestNewEventDerivesTypeFromDetail(t *testing.T) {
	at := time.Now()
	el := interaction.Element{ID: "submit", TagName: "button"}

	rage := NewEvent("tenant-1", "s1", SeverityHigh, el, RageClickDetail{ClickCount: 4, Window: time.Second}, at)
	assert.Equal(t, TypeRageClick, rage.Type)
	assert.NotEqual(t, rage.ID.String(), NewEvent("tenant-1", "s1", SeverityHigh, el, RageClickDetail{}, at).ID.String())

	dead := NewEvent("tenant-1", "s1", SeverityMedium, el, DeadClickDetail{Reason: "pointer cursor"}, at)
	assert.Equal(t, TypeDeadClick, dead.Type)

	abandoned := NewEvent("tenant-1", "s1", SeverityLow, el, FormAbandonmentDetail{FormID: "signup"}, at)
	assert.Equal(t, TypeFormAbandonment, abandoned.Type)
	assert.Equal(t, at, abandoned.Timestamp)
}
