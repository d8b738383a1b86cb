package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/tablewise/insights/internal/domain/interaction"
)

// eventEnvelope is the wire form of one captured interaction. Kind selects
// the payload type; unknown kinds are rejected per event, not per batch.
type eventEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// decodeEvent unmarshals an envelope into its typed interaction event
func decodeEvent(env eventEnvelope) (interaction.Event, error) {
	switch interaction.Kind(env.Kind) {
	case interaction.KindClick:
		var ev interaction.ClickEvent
		return ev, json.Unmarshal(env.Payload, &ev)
	case interaction.KindInput:
		var ev interaction.InputEvent
		return ev, json.Unmarshal(env.Payload, &ev)
	case interaction.KindFocus:
		var ev interaction.FocusEvent
		return ev, json.Unmarshal(env.Payload, &ev)
	case interaction.KindBlur:
		var ev interaction.BlurEvent
		return ev, json.Unmarshal(env.Payload, &ev)
	case interaction.KindSubmit:
		var ev interaction.SubmitEvent
		return ev, json.Unmarshal(env.Payload, &ev)
	case interaction.KindScroll:
		var ev interaction.ScrollEvent
		return ev, json.Unmarshal(env.Payload, &ev)
	case interaction.KindPageView:
		var ev interaction.PageViewEvent
		return ev, json.Unmarshal(env.Payload, &ev)
	case interaction.KindUnload:
		var ev interaction.UnloadEvent
		return ev, json.Unmarshal(env.Payload, &ev)
	case interaction.KindVisibility:
		var ev interaction.VisibilityEvent
		return ev, json.Unmarshal(env.Payload, &ev)
	default:
		return nil, fmt.Errorf("unknown event kind %q", env.Kind)
	}
}
