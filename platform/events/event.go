// Package events is the in-process event bus the funnel uses to move CRM
// side effects (tier tags, handoff notes, transfer retries) out of the
// per-message pipeline.
package events

import (
	"context"
	"time"
)

// Event is a fact published by the pipeline after its state is persisted.
type Event interface {
	// EventName is the subscription key, e.g. "funnel.score.tier_changed".
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent stamps an event with its publish time in UTC.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now().UTC()}
}

// Handler reacts to one event. A returned error is logged by the bus and
// never reaches the publisher of an async Publish.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to the handlers subscribed under their name.
type Bus interface {
	// Publish runs handlers in the background. They see ctx's values but not
	// its cancellation.
	Publish(ctx context.Context, event Event)
	// PublishSync runs handlers inline and joins their errors.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
