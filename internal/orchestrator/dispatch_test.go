package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"leadfunnel_backend/platform/logger"
)

type recordingHandler struct {
	mu  sync.Mutex
	ids []string
}

func (h *recordingHandler) Handle(_ context.Context, in Inbound) (Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ids = append(h.ids, in.ID)
	return Outcome{}, nil
}

type recordingQueue struct {
	eventID string
	payload []byte
}

func (q *recordingQueue) EnqueueInbound(_ context.Context, eventID string, payload []byte) error {
	q.eventID, q.payload = eventID, payload
	return nil
}

func TestInlineDispatcherRunsDetached(t *testing.T) {
	h := &recordingHandler{}
	d := NewInlineDispatcher(h, time.Second, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	for _, id := range []string{"a", "b", "c"} {
		if err := d.Dispatch(ctx, Inbound{ID: id}); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	cancel()
	d.Wait()

	if len(h.ids) != 3 {
		t.Fatalf("expected 3 handled events, got %v", h.ids)
	}
}

func TestQueueDispatcherUsesEventID(t *testing.T) {
	q := &recordingQueue{}
	d := NewQueueDispatcher(q)
	in := Inbound{ID: "evt-9", ContactID: "c1", LocationID: "loc", Channel: ChannelSMS, Text: "hola"}

	if err := d.Dispatch(context.Background(), in); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if q.eventID != "evt-9" {
		t.Fatalf("expected task id evt-9, got %q", q.eventID)
	}
	var decoded Inbound
	if err := json.Unmarshal(q.payload, &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded.ContactID != "c1" || decoded.Text != "hola" {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}
