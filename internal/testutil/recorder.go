package testutil

import (
	"context"
	"sync"

	"trip-planner/internal/domain"
)

// EventRecorder captures published events, for use as a bus subscriber or publisher
type EventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

// Record matches the bus handler signature
func (r *EventRecorder) Record(ctx context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Publish lets the recorder stand in for the bus
func (r *EventRecorder) Publish(ctx context.Context, ev domain.Event) {
	r.Record(ctx, ev)
}

func (r *EventRecorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events in order
func (r *EventRecorder) Kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]domain.EventKind, len(r.events))
	for i, ev := range r.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

// Last returns the most recent event of kind, if any
func (r *EventRecorder) Last(kind domain.EventKind) (domain.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return domain.Event{}, false
}

func (r *EventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
