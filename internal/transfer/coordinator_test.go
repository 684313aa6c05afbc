package transfer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"leadfunnel_backend/internal/conversation"
	"leadfunnel_backend/internal/crm"
	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/leadstate"
	"leadfunnel_backend/platform/logger"
)

type fakeCRM struct {
	mu         sync.Mutex
	created    []string
	duplicate  string
	notes      []string
	sent       []string
	noteErr    error
	nextID     string
	createErrs int
}

func (f *fakeCRM) GetContact(_ context.Context, _, contactID string) (crm.Contact, error) {
	return crm.Contact{ID: contactID, FirstName: "Ana", LastName: "López", Phone: "+522221234567"}, nil
}

func (f *fakeCRM) FindDuplicate(_ context.Context, _ string, _ crm.ContactFields) (string, bool, error) {
	return f.duplicate, f.duplicate != "", nil
}

func (f *fakeCRM) CreateContact(_ context.Context, locationID string, _ crm.NewContact) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErrs > 0 {
		f.createErrs--
		return "", errors.New("crm unavailable")
	}
	f.created = append(f.created, locationID)
	return f.nextID, nil
}

func (f *fakeCRM) AddNote(_ context.Context, _, _, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noteErr != nil {
		return f.noteErr
	}
	f.notes = append(f.notes, body)
	return nil
}

func (f *fakeCRM) SendMessage(_ context.Context, _, _, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

type flakyConversations struct {
	*conversation.MemoryStore
	migrateErrs int
}

func (f *flakyConversations) Migrate(ctx context.Context, oldID, newID, to string) error {
	if f.migrateErrs > 0 {
		f.migrateErrs--
		return errors.New("db down")
	}
	return f.MemoryStore.Migrate(ctx, oldID, newID, to)
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.EventName())
	}
	return out
}

type names map[string]string

func (n names) Name(id string) string { return n[id] }

func setup(t *testing.T, migrateErrs int) (*Coordinator, *fakeCRM, *flakyConversations, *recordingBus) {
	t.Helper()
	convs := &flakyConversations{MemoryStore: conversation.NewMemoryStore(), migrateErrs: migrateErrs}
	ctx := context.Background()
	if _, err := convs.GetOrCreate(ctx, "old", "loc-a", "WhatsApp"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, err := convs.AppendMessage(ctx, conversation.Message{ContactID: "old", Role: conversation.RoleIncoming, Content: "me interesa Poza Rica"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	client := &fakeCRM{nextID: "new"}
	bus := &recordingBus{}
	c := NewCoordinator(NewMemoryStore(), client, convs, names{"loc-a": "Puebla", "loc-b": "Poza Rica"}, bus, logger.Discard())
	return c, client, convs, bus
}

func request() Request {
	return Request{
		ContactID:      "old",
		FromLocationID: "loc-a",
		ToLocationID:   "loc-b",
		Channel:        "WhatsApp",
		Lead:           leadstate.Captured{Name: "Ana López", Phone: "2221234567"},
	}
}

func TestTransferCompletes(t *testing.T) {
	c, client, convs, bus := setup(t, 0)
	ctx := context.Background()

	tr, err := c.Transfer(ctx, request())
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if !tr.Done() || tr.NewContactID != "new" {
		t.Fatalf("unexpected transfer %+v", tr)
	}

	conv, err := convs.Get(ctx, "new")
	if err != nil || conv.LocationID != "loc-b" {
		t.Fatalf("conversation not migrated: %+v err=%v", conv, err)
	}
	history, _ := convs.History(ctx, "new", 10)
	if len(history) != 2 {
		t.Fatalf("expected inbound + notice under new id, got %d", len(history))
	}
	if len(client.sent) != 1 || len(client.notes) != 1 {
		t.Fatalf("expected one notice and one note, got %d/%d", len(client.sent), len(client.notes))
	}
	if !strings.Contains(client.notes[0], "PUEBLA") || !strings.Contains(client.notes[0], "👤 Usuario: me interesa Poza Rica") {
		t.Fatalf("unexpected note:\n%s", client.notes[0])
	}
	if got := bus.names(); len(got) != 1 || got[0] != (events.LeadTransferred{}).EventName() {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestTransferResumesFromMigration(t *testing.T) {
	c, client, convs, bus := setup(t, 1)
	ctx := context.Background()

	tr, err := c.Transfer(ctx, request())
	if err == nil {
		t.Fatalf("expected migration failure")
	}
	if tr.Status != StatusContactCreated || tr.Migrated() {
		t.Fatalf("expected contact_created, got %s", tr.Status)
	}
	if got := bus.names(); len(got) != 1 || got[0] != (events.TransferRetryRequested{}).EventName() {
		t.Fatalf("expected retry request, got %v", got)
	}

	resumed, err := c.Resume(ctx, tr.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !resumed.Done() {
		t.Fatalf("expected completed, got %s", resumed.Status)
	}
	if len(client.created) != 1 {
		t.Fatalf("contact created %d times", len(client.created))
	}
	if _, err := convs.Get(ctx, "old"); !errors.Is(err, conversation.ErrNotFound) {
		t.Fatalf("old conversation should be gone, err=%v", err)
	}
}

func TestTransferIsIdempotent(t *testing.T) {
	c, client, _, _ := setup(t, 0)
	ctx := context.Background()

	first, err := c.Transfer(ctx, request())
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	second, err := c.Transfer(ctx, request())
	if err != nil {
		t.Fatalf("second Transfer: %v", err)
	}
	if first.ID != second.ID || second.NewContactID != "new" {
		t.Fatalf("second call should return the same transfer")
	}
	if len(client.created) != 1 || len(client.sent) != 1 {
		t.Fatalf("side effects repeated: created=%d sent=%d", len(client.created), len(client.sent))
	}
}

func TestTransferReusesDuplicateContact(t *testing.T) {
	c, client, _, _ := setup(t, 0)
	client.duplicate = "existing"

	tr, err := c.Transfer(context.Background(), request())
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if tr.NewContactID != "existing" || len(client.created) != 0 {
		t.Fatalf("expected duplicate reuse, got %+v created=%d", tr, len(client.created))
	}
}

func TestNoteFailureKeepsMigration(t *testing.T) {
	c, client, _, _ := setup(t, 0)
	client.noteErr = errors.New("note api down")

	tr, err := c.Transfer(context.Background(), request())
	if err != nil {
		t.Fatalf("note failure must not fail the transfer: %v", err)
	}
	if !tr.Migrated() || tr.Done() {
		t.Fatalf("expected migrated, got %s", tr.Status)
	}

	client.noteErr = nil
	resumed, err := c.Resume(context.Background(), tr.ID)
	if err != nil || !resumed.Done() {
		t.Fatalf("resume should complete: %+v err=%v", resumed, err)
	}
}

func TestCreateFailuresEndInFailed(t *testing.T) {
	c, client, _, _ := setup(t, 0)
	client.createErrs = 10
	c.maxAttempts = 2
	ctx := context.Background()

	tr, _ := c.Transfer(ctx, request())
	tr, _ = c.Resume(ctx, tr.ID)
	if tr.Status != StatusFailed {
		t.Fatalf("expected failed after max attempts, got %s", tr.Status)
	}

	client.createErrs = 0
	tr, err := c.Resume(ctx, tr.ID)
	if err != nil || !tr.Done() {
		t.Fatalf("failed transfer should be resumable: %+v err=%v", tr, err)
	}
}
