package conversation

import (
	"context"
	"testing"
	"time"

	"leadfunnel_backend/internal/leadstate"
)

func TestHistoryReturnsLastMessagesOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.GetOrCreate(ctx, "c1", "loc", "WhatsApp"); err != nil {
		t.Fatalf("create: %v", err)
	}
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, text := range []string{"uno", "dos", "tres"} {
		if _, err := store.AppendMessage(ctx, Message{ContactID: "c1", Role: RoleIncoming, Content: text, CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, _ := store.History(ctx, "c1", 2)
	if len(got) != 2 || got[0].Content != "dos" || got[1].Content != "tres" {
		t.Fatalf("unexpected history %+v", got)
	}
}

func TestAppendRequiresConversation(t *testing.T) {
	_, err := NewMemoryStore().AppendMessage(context.Background(), Message{ContactID: "ghost", Role: RoleIncoming, Content: "hola"})
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLastOutboundAndMarker(t *testing.T) {
	history := []Message{
		{Role: RoleOutgoing, Content: SystemMarker + "¡Hola! Soy Luca"},
		{Role: RoleIncoming, Content: "hola"},
		{Role: RoleOutgoing, Content: "Hola, soy Marta del plantel"},
		{Role: RoleIncoming, Content: "gracias"},
	}
	last, ok := LastOutbound(history)
	if !ok || last.SystemAuthored() {
		t.Fatalf("expected the human-written message, got %+v", last)
	}
	if !history[0].SystemAuthored() || history[0].Text() != "¡Hola! Soy Luca" {
		t.Fatalf("expected marker to be detected and stripped")
	}

	texts := LastOutboundTexts(history, 5)
	if len(texts) != 2 || texts[0] != "Hola, soy Marta del plantel" {
		t.Fatalf("unexpected outbound texts %v", texts)
	}
}

func TestMigrateMovesHistoryAndLeadState(t *testing.T) {
	ctx := context.Background()
	leads := leadstate.NewMemoryStore()
	store := NewMemoryStore(leads)

	_, _ = store.GetOrCreate(ctx, "old", "loc-a", "WhatsApp")
	_, _ = store.AppendMessage(ctx, Message{ContactID: "old", Role: RoleIncoming, Content: "hola"})
	_ = store.SetHumanActive(ctx, "old")
	_, _ = leads.Update(ctx, "old", leadstate.Captured{Campus: "Poza Rica"})

	if err := store.Migrate(ctx, "old", "new", "loc-b"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := store.Migrate(ctx, "old", "new", "loc-b"); err != nil {
		t.Fatalf("second migrate should be a no-op: %v", err)
	}

	c, err := store.Get(ctx, "new")
	if err != nil || c.LocationID != "loc-b" || !c.HumanActive {
		t.Fatalf("unexpected migrated conversation %+v (%v)", c, err)
	}
	if _, err := store.Get(ctx, "old"); err != ErrNotFound {
		t.Fatalf("expected old conversation gone, got %v", err)
	}
	msgs, _ := store.History(ctx, "new", 0)
	if len(msgs) != 1 || msgs[0].ContactID != "new" {
		t.Fatalf("expected history to follow the contact, got %+v", msgs)
	}
	s, err := leads.Get(ctx, "new")
	if err != nil || s.Captured.Campus != "Poza Rica" {
		t.Fatalf("expected lead state re-keyed, got %+v (%v)", s, err)
	}
}
