package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/transfer"
	"leadfunnel_backend/platform/logger"

	"github.com/google/uuid"
)

type tagCall struct {
	op      string
	contact string
	values  []string
}

type fakeCRM struct {
	mu    sync.Mutex
	calls []tagCall
	err   error
}

func (f *fakeCRM) record(op, contactID string, values ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tagCall{op: op, contact: contactID, values: values})
	return f.err
}

func (f *fakeCRM) AddTags(_ context.Context, _, contactID string, tags ...string) error {
	return f.record("add", contactID, tags...)
}

func (f *fakeCRM) RemoveTags(_ context.Context, _, contactID string, tags ...string) error {
	return f.record("remove", contactID, tags...)
}

func (f *fakeCRM) AddNote(_ context.Context, _, contactID, body string) error {
	return f.record("note", contactID, body)
}

type fakeQueue struct {
	ids    []string
	delays []time.Duration
}

func (q *fakeQueue) EnqueueTransferResume(_ context.Context, transferID string, delay time.Duration) error {
	q.ids = append(q.ids, transferID)
	q.delays = append(q.delays, delay)
	return nil
}

type fakeResumer struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (r *fakeResumer) Resume(_ context.Context, id uuid.UUID) (transfer.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return transfer.Transfer{ID: id, Status: transfer.StatusCompleted}, nil
}

func TestScoreTierChangedReplacesTierTags(t *testing.T) {
	crm := &fakeCRM{}
	m := New(crm, logger.Discard())

	err := m.Handle(context.Background(), events.ScoreTierChanged{
		BaseEvent:  events.NewBaseEvent(),
		ContactID:  "c1",
		LocationID: "loc1",
		Score:      60,
		OldTier:    "warm",
		NewTier:    "hot",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(crm.calls) != 2 {
		t.Fatalf("expected remove and add, got %+v", crm.calls)
	}
	remove, add := crm.calls[0], crm.calls[1]
	if remove.op != "remove" || len(remove.values) != 3 {
		t.Fatalf("unexpected remove call %+v", remove)
	}
	for _, tag := range remove.values {
		if tag == "Lead Caliente" {
			t.Fatalf("new tier tag must not be removed: %+v", remove)
		}
	}
	if add.op != "add" || len(add.values) != 1 || add.values[0] != "Lead Caliente" {
		t.Fatalf("unexpected add call %+v", add)
	}
}

func TestScoreTierChangedRejectsUnknownTier(t *testing.T) {
	crm := &fakeCRM{}
	m := New(crm, logger.Discard())
	err := m.Handle(context.Background(), events.ScoreTierChanged{ContactID: "c1", NewTier: "lukewarm"})
	if err == nil {
		t.Fatalf("expected error for unknown tier")
	}
	if len(crm.calls) != 0 {
		t.Fatalf("expected no crm calls, got %+v", crm.calls)
	}
}

func TestContactTaggedAddsTag(t *testing.T) {
	crm := &fakeCRM{}
	m := New(crm, logger.Discard())

	if err := m.Handle(context.Background(), events.ContactTagged{ContactID: "c1", LocationID: "loc1", Tag: "Sitio Web"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(crm.calls) != 1 || crm.calls[0].op != "add" || crm.calls[0].values[0] != "Sitio Web" {
		t.Fatalf("unexpected calls %+v", crm.calls)
	}
}

func TestContactTaggedReturnsCRMError(t *testing.T) {
	crm := &fakeCRM{err: errors.New("crm down")}
	m := New(crm, logger.Discard())
	if err := m.Handle(context.Background(), events.ContactTagged{ContactID: "c1", Tag: "Sitio Web"}); err == nil {
		t.Fatalf("expected crm error to surface")
	}
}

func TestHandoffTriggeredAddsNote(t *testing.T) {
	crm := &fakeCRM{}
	m := New(crm, logger.Discard())

	err := m.Handle(context.Background(), events.HandoffTriggered{ContactID: "c1", LocationID: "loc1", Rule: "human_request", Sticky: true})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(crm.calls) != 1 || crm.calls[0].op != "note" {
		t.Fatalf("unexpected calls %+v", crm.calls)
	}
	if !strings.Contains(crm.calls[0].values[0], "human_request") {
		t.Fatalf("note should name the rule: %q", crm.calls[0].values[0])
	}
}

func TestTransferRetryUsesQueue(t *testing.T) {
	q := &fakeQueue{}
	m := New(&fakeCRM{}, logger.Discard())
	m.SetTransferQueue(q)
	m.SetRetryDelay(time.Minute)

	id := uuid.NewString()
	if err := m.Handle(context.Background(), events.TransferRetryRequested{TransferID: id}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(q.ids) != 1 || q.ids[0] != id || q.delays[0] != time.Minute {
		t.Fatalf("unexpected queue state ids=%v delays=%v", q.ids, q.delays)
	}
}

func TestTransferRetryResumesInline(t *testing.T) {
	r := &fakeResumer{}
	m := New(&fakeCRM{}, logger.Discard())
	m.SetTransferResumer(r)
	m.SetRetryDelay(time.Millisecond)

	id := uuid.New()
	if err := m.Handle(context.Background(), events.TransferRetryRequested{TransferID: id.String()}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(r.ids) != 1 || r.ids[0] != id {
		t.Fatalf("expected one resume of %s, got %v", id, r.ids)
	}
}

func TestRegisterHandlersOnBus(t *testing.T) {
	crm := &fakeCRM{}
	bus := events.NewInMemoryBus(logger.Discard())
	m := New(crm, logger.Discard())
	m.RegisterHandlers(bus)

	if err := bus.PublishSync(context.Background(), events.ContactTagged{ContactID: "c1", Tag: "Transferido"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(crm.calls) != 1 {
		t.Fatalf("expected subscriber to run, got %+v", crm.calls)
	}
}
