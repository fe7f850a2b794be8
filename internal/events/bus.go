// Package events carries state transitions between the session, persona and
// compilation components, and out to the websocket hub and the broker.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"trip-planner/internal/domain"
	"trip-planner/internal/observability"
)

// Handler reacts to one event. Handlers run on the publisher's goroutine.
type Handler func(ctx context.Context, ev domain.Event)

// Bus is a synchronous in-process publish/subscribe channel
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
	now    func() time.Time
}

type subscription struct {
	id int
	fn Handler
}

func NewBus() *Bus {
	return &Bus{now: time.Now}
}

// Subscribe registers fn and returns the function that removes it
func (b *Bus) Subscribe(fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers ev to every subscriber in subscription order and returns
// once all of them have run. Handlers may publish further events.
func (b *Bus) Publish(ctx context.Context, ev domain.Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = b.now().UTC()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	observability.StateTransitionsTotal.WithLabelValues(string(ev.Kind)).Inc()
	observability.FromContext(ctx).Debug("state event",
		slog.String("type", string(ev.Kind)),
		slog.Int("subscribers", len(subs)),
	)

	for _, s := range subs {
		s.fn(ctx, ev)
	}
}

// Len returns the number of active subscriptions
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
