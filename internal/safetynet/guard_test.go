package safetynet

import (
	"strings"
	"testing"
	"time"

	"leadfunnel_backend/internal/conversation"
	"leadfunnel_backend/internal/leadstate"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func newGuard() *Guard {
	return NewGuard(30*time.Minute, []string{"Puebla", "Poza Rica", "Coatzacoalcos"}, []string{"link.superleads.mx/widget/booking"})
}

func bot(text string, at time.Time) conversation.Message {
	return conversation.Message{Role: conversation.RoleOutgoing, Content: conversation.SystemMarker + text, CreatedAt: at}
}

func user(text string) conversation.Message {
	return conversation.Message{Role: conversation.RoleIncoming, Content: text, CreatedAt: now}
}

func completeLead() leadstate.State {
	st := leadstate.State{ContactID: "c1", Captured: leadstate.Captured{
		Campus: "Puebla", Program: "Primaria", Name: "Ana López", Phone: "2221234567", Email: "ana@example.com",
	}}
	st.CurrentStep = st.Captured.Step()
	st.IsComplete = st.CurrentStep == leadstate.StepComplete
	return st
}

func TestHumanTakeoverWins(t *testing.T) {
	g := newGuard()
	d := g.Evaluate(Input{Now: now, Text: "boleta", History: []conversation.Message{
		bot("¡Hola! Soy Luca", now.Add(-time.Hour)),
		{Role: conversation.RoleOutgoing, Content: "Hola, soy Marta", CreatedAt: now.Add(-time.Minute)},
	}})
	if d.Action != Handoff || d.Rule != RuleHumanTakeover || !d.SetHumanActive || d.Reply != "" {
		t.Fatalf("expected silent sticky takeover, got %+v", d)
	}

	d = g.Evaluate(Input{Now: now, Text: "hola", HumanActive: true})
	if d.Action != Handoff || d.Rule != RuleHumanTakeover || d.Reply != "" {
		t.Fatalf("expected takeover from flag, got %+v", d)
	}
}

func TestCooldown(t *testing.T) {
	g := newGuard()
	recent := now.Add(-10 * time.Minute)
	d := g.Evaluate(Input{Now: now, Text: "hola", LastHandoffAt: &recent})
	if d.Action != Handoff || d.Rule != RuleCooldown {
		t.Fatalf("expected cooldown handoff, got %+v", d)
	}

	old := now.Add(-31 * time.Minute)
	d = g.Evaluate(Input{Now: now, Text: "hola", LastHandoffAt: &old})
	if d.Action != Continue {
		t.Fatalf("expected cooldown to expire, got %+v", d)
	}

	d = g.Evaluate(Input{Now: now, Text: "ok", History: []conversation.Message{bot(TextHandoff, now.Add(-5*time.Minute))}})
	if d.Rule != RuleCooldown {
		t.Fatalf("expected handoff text in history to start the cooldown, got %+v", d)
	}
}

func TestAdminTopic(t *testing.T) {
	d := newGuard().Evaluate(Input{Now: now, Text: "¿Dónde tramito la constancia de estudios?"})
	if d.Action != Handoff || d.Rule != RuleAdminTopic {
		t.Fatalf("expected admin handoff, got %+v", d)
	}
	if !strings.Contains(d.Reply, "constancia") || len(d.Tags) != 2 {
		t.Fatalf("unexpected admin reply %+v", d)
	}
}

func TestPostBooking(t *testing.T) {
	g := newGuard()
	lead := completeLead()
	sent := now.Add(-time.Hour)
	lead.BookingSentAt = &sent

	d := g.Evaluate(Input{Now: now, Text: "¿y el uniforme?", Lead: lead})
	if d.Action != Continue || !d.PostBooking {
		t.Fatalf("expected one restrictive generation, got %+v", d)
	}

	lead.PostBookingCount = 1
	d = g.Evaluate(Input{Now: now, Text: "¿y el uniforme?", Lead: lead})
	if d.Action != Handoff || !d.SetHumanActive || d.Reply != TextPostBooking {
		t.Fatalf("expected permanent handoff, got %+v", d)
	}
}

func TestPostBookingDetectedFromHistory(t *testing.T) {
	history := []conversation.Message{bot("agenda aquí: https://link.superleads.mx/widget/booking/abc", now.Add(-2*time.Hour)), user("gracias")}
	d := newGuard().Evaluate(Input{Now: now, Text: "una duda", History: history, Lead: completeLead()})
	if !d.PostBooking || !d.BookingSeenInHistory {
		t.Fatalf("expected booking to be detected from history, got %+v", d)
	}
}

func TestUserLoop(t *testing.T) {
	g := newGuard()
	history := []conversation.Message{bot("¿En qué plantel te interesa?", now.Add(-time.Hour)), user("¿En qué plantel te interesa?")}

	d := g.Evaluate(Input{Now: now, Text: "¿en que plantel te interesa?", History: history, Lead: leadstate.New("c1", now)})
	if d.Action != RespondAndStop || d.Rule != RuleUserLoop || !strings.Contains(d.Reply, "Poza Rica") {
		t.Fatalf("expected forced campus question, got %+v", d)
	}

	d = g.Evaluate(Input{Now: now, Text: "¿en que plantel te interesa?", History: history, Lead: completeLead()})
	if d.Action != Handoff || !strings.Contains(d.Reply, BookingLinkPlaceholder) || !strings.Contains(d.Reply, "Ana") {
		t.Fatalf("expected booking link handoff, got %+v", d)
	}
}

func TestRepeatedSystemRepliesForceNextField(t *testing.T) {
	g := newGuard()
	history := []conversation.Message{
		user("hola"),
		bot("¡Hola! Soy Luca, asesor de Colegio San Ángel. ¿En qué plantel te gustaría inscribir a tu hijo/a?", now.Add(-2*time.Minute)),
		user("hola"),
		bot("¡Hola! Soy Luca, asesor del Colegio San Ángel. ¿En qué plantel te interesa inscribir a tu hijo/a?", now.Add(-time.Minute)),
	}

	d := g.Evaluate(Input{Now: now, Text: "hola", History: history, Lead: leadstate.New("c1", now)})
	if d.Action != RespondAndStop || d.Rule != RuleUserLoop || d.Reply != NextFieldQuestion(leadstate.FieldCampus, g.CampusNames()) {
		t.Fatalf("expected forced campus question, got %+v", d)
	}
}

func TestHumanRequestAndCompleteData(t *testing.T) {
	g := newGuard()
	d := g.Evaluate(Input{Now: now, Text: "quiero hablar con un asesor", Lead: leadstate.New("c1", now)})
	if d.Action != Handoff || d.Rule != RuleHumanRequest {
		t.Fatalf("expected human request bypass, got %+v", d)
	}

	long := "quiero saber si el asesor me puede explicar los costos de inscripción y colegiatura"
	if IsHumanRequest(long) {
		t.Fatalf("long messages are not treated as human requests")
	}

	d = g.Evaluate(Input{Now: now, Text: "2221234567 ana@example.com", Lead: completeLead(), CarriesContactData: true})
	if d.Action != RespondAndStop || d.Rule != RuleCompleteData {
		t.Fatalf("expected complete-data bypass, got %+v", d)
	}

	d = g.Evaluate(Input{Now: now, Text: "¿tienen transporte?", Lead: completeLead()})
	if d.Action != Continue {
		t.Fatalf("expected generation for a plain question, got %+v", d)
	}
}

func TestNextFieldQuestion(t *testing.T) {
	q := NextFieldQuestion(leadstate.FieldCampus, []string{"Puebla", "Poza Rica", "Coatzacoalcos"})
	if !strings.Contains(q, "Puebla, Poza Rica y Coatzacoalcos") {
		t.Fatalf("unexpected campus question %q", q)
	}
	if NextFieldQuestion(leadstate.FieldEmail, nil) == NextFieldQuestion(leadstate.FieldPhone, nil) {
		t.Fatalf("expected distinct questions per field")
	}
}

func TestRecoverModelLoop(t *testing.T) {
	g := newGuard()

	empty := leadstate.State{ContactID: "c1", CurrentStep: 1}
	d := g.RecoverModelLoop("¿Cómo puedo ayudarte hoy?", empty)
	if d.Action != RespondAndStop || !strings.Contains(d.Reply, "planteles") {
		t.Fatalf("expected campus question, got %+v", d)
	}

	partial := leadstate.State{ContactID: "c1", Captured: leadstate.Captured{Campus: "Puebla"}}
	d = g.RecoverModelLoop("¡Hola! Soy Luca, ¿en qué plantel te gustaría inscribir a tu hijo?", partial)
	if d.Action != RespondAndStop || !strings.Contains(d.Reply, "nivel educativo") {
		t.Fatalf("greeting loop should force the program question, got %+v", d)
	}

	d = g.RecoverModelLoop("Las colegiaturas varían según el nivel.", partial)
	if d.Action != Handoff || !strings.Contains(d.Reply, BookingLinkPlaceholder) || d.Tags[0] != TagNeedsHuman {
		t.Fatalf("partial data loop should hand off with link, got %+v", d)
	}

	d = g.RecoverModelLoop("¡Hola! Soy Luca.", completeLead())
	if d.Action != Handoff || !strings.Contains(d.Reply, "Ana") {
		t.Fatalf("complete lead loop should send the advisor link, got %+v", d)
	}
}
