// Package events provides the in-process interaction event bus. Capture
// adapters publish normalized events; classifiers subscribe by kind.
// Dispatch is synchronous and serialized, mirroring the single event queue
// the classifiers were designed around.
package events

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/tablewise/insights/internal/domain/interaction"
)

type subscription struct {
	id      int
	kinds   map[interaction.Kind]struct{}
	handler func(sessionID string, event interaction.Event)
}

// Bus fans interaction events out to kind-filtered subscribers
type Bus struct {
	logger *zap.Logger

	mu     sync.RWMutex
	subs   map[int]*subscription
	nextID int
	closed bool
}

// NewBus creates an event bus
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger.Named("events"),
		subs:   make(map[int]*subscription),
	}
}

// Subscribe registers a handler for the given kinds. An empty kind list
// subscribes to everything. The subscription ends when cancel is called or
// ctx is done.
func (b *Bus) Subscribe(ctx context.Context, handler func(sessionID string, event interaction.Event), kinds ...interaction.Kind) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}, nil
	}

	sub := &subscription{
		id:      b.nextID,
		handler: handler,
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[interaction.Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}
	b.nextID++
	b.subs[sub.id] = sub

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, sub.id)
		b.mu.Unlock()
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return cancel, nil
}

// Publish delivers an event to every matching subscriber, synchronously in
// subscription order. A panicking handler is isolated and logged.
func (b *Bus) Publish(sessionID string, event interaction.Event) {
	b.mu.RLock()
	matched := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.kinds == nil {
			matched = append(matched, sub)
			continue
		}
		if _, ok := sub.kinds[event.Kind()]; ok {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].id < matched[j].id })
	for _, sub := range matched {
		b.dispatch(sub, sessionID, event)
	}
}

func (b *Bus) dispatch(sub *subscription, sessionID string, event interaction.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				zap.Any("panic", r),
				zap.String("kind", string(event.Kind())),
			)
		}
	}()
	sub.handler(sessionID, event)
}

// Close drops all subscriptions; later publishes are no-ops
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[int]*subscription)
	b.closed = true
}
