package friction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	frictiondomain "github.com/tablewise/insights/internal/domain/friction"
	"github.com/tablewise/insights/internal/domain/interaction"
	"github.com/tablewise/insights/internal/infrastructure/events"
	"github.com/tablewise/insights/test/testutils"
)

func newTestService(t *testing.T, cfg Config) (*Service, *events.Bus) {
	t.Helper()
	bus := events.NewBus(zap.NewNop())
	svc := NewService(cfg, "tenant-1", bus, nil, nil, nil, zap.NewNop())
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() {
		svc.Stop()
		bus.Close()
	})
	return svc, bus
}

func eventsOfType(svc *Service, ft frictiondomain.Type) []frictiondomain.Event {
	var out []frictiondomain.Event
	for _, ev := range svc.Events() {
		if ev.Type == ft {
			out = append(out, ev)
		}
	}
	return out
}

func TestRageClickFiresAtThreshold(t *testing.T) {
	svc, bus := newTestService(t, DefaultConfig())
	el := testutils.ClickableElement("buy-button")
	base := time.Now()

	for i := 0; i < 3; i++ {
		bus.Publish("s1", testutils.ClickAt(el, base.Add(time.Duration(i)*100*time.Millisecond)))
	}

	rage := eventsOfType(svc, frictiondomain.TypeRageClick)
	require.Len(t, rage, 1)
	assert.Equal(t, frictiondomain.SeverityHigh, rage[0].Severity)
	assert.Equal(t, "s1", rage[0].SessionID)

	detail, ok := rage[0].Detail.(frictiondomain.RageClickDetail)
	require.True(t, ok)
	assert.Equal(t, 3, detail.ClickCount)
}

func TestRageClickTwoClicksNeverFire(t *testing.T) {
	svc, bus := newTestService(t, DefaultConfig())
	el := testutils.ClickableElement("buy-button")
	base := time.Now()

	bus.Publish("s1", testutils.ClickAt(el, base))
	bus.Publish("s1", testutils.ClickAt(el, base.Add(100*time.Millisecond)))

	assert.Empty(t, eventsOfType(svc, frictiondomain.TypeRageClick))
}

func TestRageClickBufferClearsAfterFiring(t *testing.T) {
	svc, bus := newTestService(t, DefaultConfig())
	el := testutils.ClickableElement("buy-button")
	base := time.Now()

	// One burst of five rapid clicks reports exactly once: three clicks
	// fire and clear the buffer, two leftovers stay below threshold
	for i := 0; i < 5; i++ {
		bus.Publish("s1", testutils.ClickAt(el, base.Add(time.Duration(i)*50*time.Millisecond)))
	}
	assert.Len(t, eventsOfType(svc, frictiondomain.TypeRageClick), 1)

	// A fresh burst fires again
	for i := 0; i < 3; i++ {
		bus.Publish("s1", testutils.ClickAt(el, base.Add(5*time.Second).Add(time.Duration(i)*50*time.Millisecond)))
	}
	assert.Len(t, eventsOfType(svc, frictiondomain.TypeRageClick), 2)
}

func TestRageClickWindowPrunesOldClicks(t *testing.T) {
	svc, bus := newTestService(t, DefaultConfig())
	el := testutils.ClickableElement("buy-button")
	base := time.Now()

	// Three clicks spread past the one second window never accumulate
	bus.Publish("s1", testutils.ClickAt(el, base))
	bus.Publish("s1", testutils.ClickAt(el, base.Add(700*time.Millisecond)))
	bus.Publish("s1", testutils.ClickAt(el, base.Add(1400*time.Millisecond)))

	assert.Empty(t, eventsOfType(svc, frictiondomain.TypeRageClick))
}

func TestRageClickDifferentElementsDoNotCombine(t *testing.T) {
	svc, bus := newTestService(t, DefaultConfig())
	base := time.Now()

	bus.Publish("s1", testutils.ClickAt(testutils.ClickableElement("a"), base))
	bus.Publish("s1", testutils.ClickAt(testutils.ClickableElement("b"), base.Add(50*time.Millisecond)))
	bus.Publish("s1", testutils.ClickAt(testutils.ClickableElement("c"), base.Add(100*time.Millisecond)))

	assert.Empty(t, eventsOfType(svc, frictiondomain.TypeRageClick))
}

func TestRageClickSessionsAreIsolated(t *testing.T) {
	svc, bus := newTestService(t, DefaultConfig())
	el := testutils.ClickableElement("buy-button")
	base := time.Now()

	bus.Publish("s1", testutils.ClickAt(el, base))
	bus.Publish("s2", testutils.ClickAt(el, base.Add(50*time.Millisecond)))
	bus.Publish("s1", testutils.ClickAt(el, base.Add(100*time.Millisecond)))

	assert.Empty(t, eventsOfType(svc, frictiondomain.TypeRageClick))
}

func TestRageClickExcludedSelector(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExcludeSelectors = []string{".carousel-control", "#stepper", "video"}
	svc, bus := newTestService(t, cfg)
	base := time.Now()

	excluded := interaction.Element{ID: "next", TagName: "button", Classes: []string{"carousel-control"}}
	for i := 0; i < 5; i++ {
		bus.Publish("s1", testutils.ClickAt(excluded, base.Add(time.Duration(i)*50*time.Millisecond)))
	}

	assert.Empty(t, eventsOfType(svc, frictiondomain.TypeRageClick))
}

func TestDeadClickClassification(t *testing.T) {
	tests := []struct {
		name string
		el   interaction.Element
		dead bool
	}{
		{"pointer cursor div without affordance", testutils.DeadElement("d1"), true},
		{"clickable class span without affordance", interaction.Element{TagName: "span", Classes: []string{"clickable"}}, true},
		{"btn class without affordance", interaction.Element{TagName: "div", Classes: []string{"btn"}}, true},
		{"real button", interaction.Element{TagName: "button", Cursor: "pointer"}, false},
		{"anchor", interaction.Element{TagName: "a", Cursor: "pointer"}, false},
		{"div with onclick", interaction.Element{TagName: "div", Cursor: "pointer", HasOnClick: true}, false},
		{"div with data-click", interaction.Element{TagName: "div", Cursor: "pointer", HasDataClick: true}, false},
		{"div inside interactive ancestor", interaction.Element{TagName: "div", Cursor: "pointer", InteractiveUp: true}, false},
		{"div with button role", interaction.Element{TagName: "div", Cursor: "pointer", Role: "button"}, false},
		{"plain div", interaction.Element{TagName: "div"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, dead := ClassifyDeadClick(tt.el)
			assert.Equal(t, tt.dead, dead)
		})
	}
}

func TestDeadClickEmitsEvent(t *testing.T) {
	svc, bus := newTestService(t, DefaultConfig())

	bus.Publish("s1", testutils.ClickAt(testutils.DeadElement("fake-button"), time.Now()))

	dead := eventsOfType(svc, frictiondomain.TypeDeadClick)
	require.Len(t, dead, 1)
	assert.Equal(t, frictiondomain.SeverityMedium, dead[0].Severity)
	detail, ok := dead[0].Detail.(frictiondomain.DeadClickDetail)
	require.True(t, ok)
	assert.Equal(t, "pointer cursor", detail.Reason)
}

func TestFormAbandonmentAfterIdle(t *testing.T) {
	svc, bus := newTestService(t, DefaultConfig())
	base := time.Now()

	bus.Publish("s1", interaction.FocusEvent{FormID: "signup", FieldID: "email", TotalFields: 4, Timestamp: base})
	bus.Publish("s1", interaction.InputEvent{FormID: "signup", FieldID: "email", Value: "a@b.c", Timestamp: base.Add(2 * time.Second)})

	svc.Sweep(base.Add(40 * time.Second))

	abandoned := eventsOfType(svc, frictiondomain.TypeFormAbandonment)
	require.Len(t, abandoned, 1)
	detail, ok := abandoned[0].Detail.(frictiondomain.FormAbandonmentDetail)
	require.True(t, ok)
	assert.Equal(t, "signup", detail.FormID)
	assert.Equal(t, 1, detail.FieldsInteracted)
	assert.Equal(t, 1, detail.FieldsFilled)
	assert.Equal(t, 4, detail.TotalFields)
	assert.InDelta(t, 0.25, detail.CompletionRate, 1e-9)
	assert.Equal(t, frictiondomain.SeverityMedium, abandoned[0].Severity)
}

func TestFormAbandonmentReportsOnce(t *testing.T) {
	svc, bus := newTestService(t, DefaultConfig())
	base := time.Now()

	bus.Publish("s1", interaction.FocusEvent{FormID: "signup", FieldID: "email", TotalFields: 2, Timestamp: base})
	svc.Sweep(base.Add(40 * time.Second))
	svc.Sweep(base.Add(80 * time.Second))

	assert.Len(t, eventsOfType(svc, frictiondomain.TypeFormAbandonment), 1)
}

func TestFormSubmitPreventsAbandonment(t *testing.T) {
	svc, bus := newTestService(t, DefaultConfig())
	base := time.Now()

	bus.Publish("s1", interaction.FocusEvent{FormID: "signup", FieldID: "email", TotalFields: 2, Timestamp: base})
	bus.Publish("s1", interaction.SubmitEvent{FormID: "signup", Timestamp: base.Add(10 * time.Second)})
	svc.Sweep(base.Add(60 * time.Second))

	assert.Empty(t, eventsOfType(svc, frictiondomain.TypeFormAbandonment))
}

func TestFormAbandonmentNeedsMinimumDwell(t *testing.T) {
	svc, bus := newTestService(t, DefaultConfig())
	base := time.Now()

	bus.Publish("s1", interaction.FocusEvent{FormID: "signup", FieldID: "email", TotalFields: 2, Timestamp: base})
	// Idle is long enough relative to the last interaction only if dwell
	// passed the minimum; a sweep 3s in reports nothing
	svc.Sweep(base.Add(3 * time.Second))

	assert.Empty(t, eventsOfType(svc, frictiondomain.TypeFormAbandonment))
}

func TestUnloadTriggersFinalAbandonmentCheck(t *testing.T) {
	svc, bus := newTestService(t, DefaultConfig())
	base := time.Now()

	bus.Publish("s1", interaction.FocusEvent{FormID: "checkout", FieldID: "card", TotalFields: 4, Timestamp: base})
	bus.Publish("s2", interaction.FocusEvent{FormID: "checkout", FieldID: "card", TotalFields: 4, Timestamp: base})
	bus.Publish("s1", interaction.UnloadEvent{Timestamp: base.Add(45 * time.Second)})

	abandoned := eventsOfType(svc, frictiondomain.TypeFormAbandonment)
	require.Len(t, abandoned, 1)
	assert.Equal(t, "s1", abandoned[0].SessionID)
}

func TestZeroInteractionNeverAbandons(t *testing.T) {
	state := newFormState("s1", "signup", 4, time.Now())
	state.interactedFields = map[string]struct{}{}

	assert.False(t, state.shouldAbandon(time.Now().Add(time.Hour), 5*time.Second, 30*time.Second))
}

func TestEventLogCapEvictsOldest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEvents = 5
	svc, bus := newTestService(t, cfg)
	base := time.Now()

	for i := 0; i < 8; i++ {
		bus.Publish("s1", testutils.ClickAt(testutils.DeadElement("d"), base.Add(time.Duration(i)*time.Second)))
	}

	logged := svc.Events()
	require.Len(t, logged, 5)
	// Oldest three evicted; newest event is last
	assert.Equal(t, base.Add(7*time.Second).Unix(), logged[4].Timestamp.Unix())
}

func TestSubscribeReceivesEvents(t *testing.T) {
	svc, bus := newTestService(t, DefaultConfig())

	var received []frictiondomain.Event
	cancel := svc.Subscribe(func(ev frictiondomain.Event) {
		received = append(received, ev)
	})

	bus.Publish("s1", testutils.ClickAt(testutils.DeadElement("d"), time.Now()))
	require.Len(t, received, 1)

	cancel()
	bus.Publish("s1", testutils.ClickAt(testutils.DeadElement("d"), time.Now()))
	assert.Len(t, received, 1)
}
