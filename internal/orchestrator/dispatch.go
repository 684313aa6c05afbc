package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"leadfunnel_backend/platform/logger"
)

// Dispatcher hands accepted events to the pipeline so the webhook can
// acknowledge right away.
type Dispatcher interface {
	Dispatch(ctx context.Context, in Inbound) error
}

// Handler is the pipeline entry point used by dispatchers.
type Handler interface {
	Handle(ctx context.Context, in Inbound) (Outcome, error)
}

// InlineDispatcher runs each event on its own goroutine in this process.
// The per-contact lock keeps events of one contact serialized.
type InlineDispatcher struct {
	handler Handler
	timeout time.Duration
	log     *logger.Logger
	wg      sync.WaitGroup
}

func NewInlineDispatcher(handler Handler, timeout time.Duration, log *logger.Logger) *InlineDispatcher {
	return &InlineDispatcher{handler: handler, timeout: timeout, log: log}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, in Inbound) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("pipeline panicked", "event_id", in.ID, "panic", r)
			}
		}()
		runCtx := context.WithoutCancel(ctx)
		if d.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, d.timeout)
			defer cancel()
		}
		if _, err := d.handler.Handle(runCtx, in); err != nil {
			d.log.Error("pipeline failed", "event_id", in.ID, "contact_id", in.ContactID, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every dispatched event finished. Used on shutdown.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}

// Enqueuer puts a serialized inbound event on the task queue under its id.
type Enqueuer interface {
	EnqueueInbound(ctx context.Context, eventID string, payload []byte) error
}

// QueueDispatcher hands events to the worker process.
type QueueDispatcher struct {
	queue Enqueuer
}

func NewQueueDispatcher(queue Enqueuer) *QueueDispatcher {
	return &QueueDispatcher{queue: queue}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, in Inbound) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return d.queue.EnqueueInbound(ctx, in.ID, payload)
}

// ProcessInbound decodes a queued event and runs the pipeline.
func (o *Orchestrator) ProcessInbound(ctx context.Context, payload []byte) error {
	var in Inbound
	if err := json.Unmarshal(payload, &in); err != nil {
		return err
	}
	_, err := o.Handle(ctx, in)
	return err
}

var (
	_ Dispatcher = (*InlineDispatcher)(nil)
	_ Dispatcher = (*QueueDispatcher)(nil)
	_ Handler    = (*Orchestrator)(nil)
)
