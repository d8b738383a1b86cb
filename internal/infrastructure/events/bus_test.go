package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tablewise/insights/internal/domain/interaction"
)

func TestSubscribeFiltersByKind(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	var clicks, all int
	_, err := bus.Subscribe(context.Background(), func(sessionID string, ev interaction.Event) {
		clicks++
	}, interaction.KindClick)
	require.NoError(t, err)
	_, err = bus.Subscribe(context.Background(), func(sessionID string, ev interaction.Event) {
		all++
	})
	require.NoError(t, err)

	bus.Publish("s1", interaction.ClickEvent{Timestamp: time.Now()})
	bus.Publish("s1", interaction.ScrollEvent{Depth: 0.5, Timestamp: time.Now()})

	assert.Equal(t, 1, clicks)
	assert.Equal(t, 2, all)
}

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	var order []int
	for i := 0; i < 8; i++ {
		i := i
		_, err := bus.Subscribe(context.Background(), func(string, interaction.Event) {
			order = append(order, i)
		})
		require.NoError(t, err)
	}

	bus.Publish("s1", interaction.ClickEvent{Timestamp: time.Now()})
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, order)
}

func TestCancelStopsDelivery(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	count := 0
	cancel, err := bus.Subscribe(context.Background(), func(string, interaction.Event) { count++ })
	require.NoError(t, err)

	bus.Publish("s1", interaction.UnloadEvent{Timestamp: time.Now()})
	cancel()
	bus.Publish("s1", interaction.UnloadEvent{Timestamp: time.Now()})

	assert.Equal(t, 1, count)
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	_, err := bus.Subscribe(context.Background(), func(string, interaction.Event) {
		panic("handler bug")
	})
	require.NoError(t, err)

	healthy := 0
	_, err = bus.Subscribe(context.Background(), func(string, interaction.Event) { healthy++ })
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		bus.Publish("s1", interaction.ClickEvent{Timestamp: time.Now()})
	})
	assert.Equal(t, 1, healthy)
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	bus := NewBus(zap.NewNop())

	count := 0
	_, err := bus.Subscribe(context.Background(), func(string, interaction.Event) { count++ })
	require.NoError(t, err)

	bus.Close()
	bus.Publish("s1", interaction.ClickEvent{Timestamp: time.Now()})
	assert.Zero(t, count)
}

func TestSessionIDReachesHandler(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	var got string
	_, err := bus.Subscribe(context.Background(), func(sessionID string, ev interaction.Event) {
		got = sessionID
	})
	require.NoError(t, err)

	bus.Publish("session-42", interaction.PageViewEvent{Path: "/home", Timestamp: time.Now()})
	assert.Equal(t, "session-42", got)
}
