// Package outbound defines interfaces for external dependencies of the
// analytics engine. Adapters under internal/infrastructure implement them.
package outbound

import (
	"context"
	"time"

	"github.com/tablewise/insights/internal/domain/abtest"
	"github.com/tablewise/insights/internal/domain/friction"
	"github.com/tablewise/insights/internal/domain/interaction"
)

// EventSource delivers normalized interaction events to subscribers. The
// classification logic never touches a transport directly; capture adapters
// (HTTP ingest, test drivers) publish into a source.
type EventSource interface {
	// Subscribe registers a handler for the given event kinds. The handler
	// runs until the returned cancel function is called or ctx is done.
	Subscribe(ctx context.Context, handler func(sessionID string, event interaction.Event), kinds ...interaction.Kind) (cancel func(), err error)
}

// EventPublisher is the producing side of an event source
type EventPublisher interface {
	Publish(sessionID string, event interaction.Event)
}

// StateStore persists engine state snapshots. Writes replace the whole value
// for a key; there are no partial updates and the last writer wins.
type StateStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// ErrKeyNotFound is returned by StateStore.Load for missing keys
type ErrKeyNotFound struct{ Key string }

func (e ErrKeyNotFound) Error() string { return "state key not found: " + e.Key }

// AnalyticsSink receives custom analytics events. Implementations must be
// tolerant of being called with arbitrary payloads; the engine never awaits
// or retries a sink.
type AnalyticsSink interface {
	TrackEvent(ctx context.Context, name string, properties map[string]interface{}) error
}

// ReplaySink tags session-replay recordings so friction moments can be
// located in the replay timeline
type ReplaySink interface {
	TagRecording(ctx context.Context, sessionID, tag string) error
	TrackInteraction(ctx context.Context, sessionID string, record interaction.Record) error
}

// FrictionRepository archives classified friction events
type FrictionRepository interface {
	SaveEvent(ctx context.Context, event friction.Event) error
	ListEvents(ctx context.Context, tenantID string, since time.Time, limit int) ([]friction.Event, error)
	CountByType(ctx context.Context, tenantID string, since time.Time) (map[friction.Type]int64, error)
}

// ABTestRepository archives test definitions and variant counters
type ABTestRepository interface {
	SaveTest(ctx context.Context, tenantID string, testID, name string, confidenceLevel float64) error
	RecordImpression(ctx context.Context, tenantID, testID, variantID string) error
	RecordConversion(ctx context.Context, tenantID, testID, variantID string) error
	VariantCounts(ctx context.Context, tenantID, testID string) ([]abtest.VariantCounts, error)
}
