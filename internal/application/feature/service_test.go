package feature

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/tablewise/insights/internal/infrastructure/persistence/memory"
	"github.com/tablewise/insights/internal/ports/outbound"
)

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) TrackEvent(ctx context.Context, name string, properties map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
	return nil
}

func TestTrackUseFirstTimeOnly(t *testing.T) {
	sink := &recordingSink{}
	tracker := NewTracker("tenant-1", memory.NewStateStore(), []outbound.AnalyticsSink{sink}, zap.NewNop())
	ctx := context.Background()

	assert.True(t, tracker.TrackUse(ctx, "export", "alice"))
	assert.False(t, tracker.TrackUse(ctx, "export", "alice"))
	assert.False(t, tracker.TrackUse(ctx, "export", "alice"))

	assert.Equal(t, []string{"feature_first_use"}, sink.events)
}

func TestTrackUseIsPerUserAndFeature(t *testing.T) {
	tracker := NewTracker("tenant-1", memory.NewStateStore(), nil, zap.NewNop())
	ctx := context.Background()

	assert.True(t, tracker.TrackUse(ctx, "export", "alice"))
	assert.True(t, tracker.TrackUse(ctx, "export", "bob"))
	assert.True(t, tracker.TrackUse(ctx, "import", "alice"))
	assert.False(t, tracker.TrackUse(ctx, "export", "alice"))
}

func TestTrackUseIsPerTenant(t *testing.T) {
	store := memory.NewStateStore()
	a := NewTracker("tenant-a", store, nil, zap.NewNop())
	b := NewTracker("tenant-b", store, nil, zap.NewNop())
	ctx := context.Background()

	assert.True(t, a.TrackUse(ctx, "export", "alice"))
	assert.True(t, b.TrackUse(ctx, "export", "alice"))
}
