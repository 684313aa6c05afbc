package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"leadfunnel_backend/platform/logger"
)

type testEvent struct {
	BaseEvent
}

func (testEvent) EventName() string { return "test.event" }

func TestPublishSyncJoinsErrors(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard())
	var calls int32
	bus.Subscribe("test.event", HandlerFunc(func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))
	bus.Subscribe("test.event", HandlerFunc(func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	}))

	err := bus.PublishSync(context.Background(), testEvent{BaseEvent: NewBaseEvent()})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected both handlers to run, got %d", calls)
	}
}

func TestPublishRunsAsyncHandlers(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard())
	var calls int32
	bus.Subscribe("test.event", HandlerFunc(func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	bus.Publish(context.Background(), testEvent{BaseEvent: NewBaseEvent()})
	bus.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected handler to run once, got %d", calls)
	}
}

func TestPublishIgnoresUnknownEvents(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard())
	if err := bus.PublishSync(context.Background(), testEvent{BaseEvent: NewBaseEvent()}); err != nil {
		t.Fatalf("expected no error without subscribers, got %v", err)
	}
}

func TestPublishDetachesCancellation(t *testing.T) {
	bus := NewInMemoryBus(logger.Discard())
	var live int32
	bus.Subscribe("test.event", HandlerFunc(func(ctx context.Context, e Event) error {
		if ctx.Err() == nil && e.OccurredAt().Location() == time.UTC {
			atomic.AddInt32(&live, 1)
		}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, testEvent{BaseEvent: NewBaseEvent()})
	bus.Wait()

	if atomic.LoadInt32(&live) != 1 {
		t.Fatal("handler should run with a live context and a UTC timestamp")
	}
}
