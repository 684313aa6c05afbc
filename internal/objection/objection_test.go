package objection

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"leadfunnel_backend/platform/logger"
)

type stubLoader struct {
	calls   atomic.Int32
	entries []Entry
	err     error
	delay   time.Duration
}

func (s *stubLoader) LoadActive(context.Context) ([]Entry, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	return s.entries, s.err
}

func playbook() []Entry {
	return []Entry{
		{Category: "costos", Keywords: []string{"Colegiatura", "precio", "costo", "mensualidad"}, ResponseTemplate: "Las colegiaturas varían por nivel.", Priority: 5, RedirectToBooking: true, Active: true},
		{Category: "becas", Keywords: []string{"beca", "descuento"}, ResponseTemplate: "Contamos con becas.", Priority: 10, Active: true},
		{Category: "transporte", Keywords: []string{"transporte"}, ResponseTemplate: "Hay rutas de transporte.", Priority: 1, Active: false},
	}
}

func TestMatchPrefersPriority(t *testing.T) {
	s := NewSnapshot(playbook(), time.Now())
	e, ok := s.Match("¿Hay descuento en la colegiatura?")
	if !ok || e.Category != "becas" {
		t.Fatalf("expected the higher-priority becas entry, got %+v", e)
	}
	if _, ok := s.Match("¿tienen transporte?"); ok {
		t.Fatalf("inactive entries must not match")
	}
}

func TestAnswer(t *testing.T) {
	s := NewSnapshot(playbook(), time.Now())
	if got := s.Answer("precio"); !strings.HasSuffix(got, bookingNudge) {
		t.Fatalf("expected booking nudge, got %q", got)
	}
	if got := s.Answer("beca"); got != "Contamos con becas." {
		t.Fatalf("unexpected answer %q", got)
	}
	if got := s.Answer("uniformes"); got != noMatchAnswer {
		t.Fatalf("expected fallback answer, got %q", got)
	}
}

func TestSummary(t *testing.T) {
	got := NewSnapshot(playbook(), time.Now()).Summary()
	want := "- becas: (beca, descuento)\n- costos: (colegiatura, precio, costo)"
	if got != want {
		t.Fatalf("unexpected summary:\n%s", got)
	}
}

func TestRefreshKeepsPreviousSnapshotOnError(t *testing.T) {
	loader := &stubLoader{entries: playbook()}
	c := NewCache(loader, logger.Discard())
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	before := c.Snapshot()

	loader.err = errors.New("db down")
	if _, err := c.Refresh(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if c.Snapshot() != before || before.Len() != 2 {
		t.Fatalf("expected the previous snapshot to survive")
	}
}

func TestConcurrentRefreshIsCoalesced(t *testing.T) {
	loader := &stubLoader{entries: playbook(), delay: 50 * time.Millisecond}
	c := NewCache(loader, logger.Discard())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Refresh(context.Background())
		}()
	}
	wg.Wait()
	if n := loader.calls.Load(); n >= 8 {
		t.Fatalf("expected concurrent refreshes to share loads, got %d loads", n)
	}
}
