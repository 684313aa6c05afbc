package leadstate

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestStepFollowsFirstMissingField(t *testing.T) {
	cases := []struct {
		name string
		in   Captured
		want Step
	}{
		{"empty", Captured{}, 1},
		{"campus only", Captured{Campus: "Puebla"}, 2},
		{"gap keeps earliest", Captured{Campus: "Puebla", Name: "Ana López"}, 2},
		{"needs email", Captured{Campus: "Puebla", Program: "Primaria", Name: "Ana López", Phone: "2221234567"}, 5},
		{"whitespace counts as missing", Captured{Campus: "  "}, 1},
		{"complete", Captured{Campus: "Puebla", Program: "Primaria", Name: "Ana López", Phone: "2221234567", Email: "ana@example.com"}, StepComplete},
	}
	for _, tc := range cases {
		if got := tc.in.Step(); got != tc.want {
			t.Fatalf("%s: expected step %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestMergeNeverClearsCapturedField(t *testing.T) {
	base := Captured{Campus: "Puebla", Phone: "2221234567"}
	merged := base.Merge(Captured{Campus: "", Phone: "   ", Email: "ana@example.com"})
	if merged.Campus != "Puebla" || merged.Phone != "2221234567" {
		t.Fatalf("expected captured fields to survive empty values, got %+v", merged)
	}
	if merged.Email != "ana@example.com" {
		t.Fatalf("expected email to be merged, got %q", merged.Email)
	}
}

func TestParseStepRoundTrip(t *testing.T) {
	for _, s := range []Step{1, 2, 3, 4, 5, StepComplete} {
		if got := ParseStep(s.String()); got != s {
			t.Fatalf("expected %s, got %s", s, got)
		}
	}
	if got := ParseStep("garbage"); got != 1 {
		t.Fatalf("expected unknown step to reset to 1, got %s", got)
	}
}

func TestMemoryStoreUpdateRecomputesStep(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s, err := store.Update(ctx, "c1", Captured{Campus: "Puebla", Program: "Primaria"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if s.CurrentStep != 3 || s.NextMissing() != FieldName {
		t.Fatalf("expected step 3 asking for name, got %s", s.CurrentStep)
	}

	s, _ = store.Update(ctx, "c1", Captured{Name: "Ana López", Phone: "2221234567", Email: "ana@example.com"})
	if !s.IsComplete || s.CurrentStep != StepComplete {
		t.Fatalf("expected complete state, got %+v", s)
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	if _, err := NewMemoryStore().Get(context.Background(), "nobody"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkBookingSentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	first := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	if _, err := store.MarkBookingSent(ctx, "c1", first); err != nil {
		t.Fatalf("mark: %v", err)
	}
	s, _ := store.MarkBookingSent(ctx, "c1", first.Add(time.Hour))
	if s.BookingSentAt == nil || !s.BookingSentAt.Equal(first) {
		t.Fatalf("expected first booking timestamp to stick, got %v", s.BookingSentAt)
	}
}

func TestConcurrentUpdatesKeepEveryField(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	partials := []Captured{
		{Campus: "Puebla"},
		{Program: "Primaria"},
		{Name: "Ana López"},
		{Phone: "2221234567"},
		{Email: "ana@example.com"},
	}

	var wg sync.WaitGroup
	for _, p := range partials {
		wg.Add(1)
		go func(p Captured) {
			defer wg.Done()
			_, _ = store.Update(ctx, "c1", p)
		}(p)
	}
	wg.Wait()

	s, _ := store.Get(ctx, "c1")
	if s.Captured.Count() != 5 || !s.IsComplete {
		t.Fatalf("expected all five fields after concurrent updates, got %+v", s.Captured)
	}
}

func TestRekeyMovesState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_, _ = store.Update(ctx, "old", Captured{Campus: "Puebla"})

	if err := store.Rekey(ctx, "old", "new"); err != nil {
		t.Fatalf("rekey: %v", err)
	}
	if _, err := store.Get(ctx, "old"); err != ErrNotFound {
		t.Fatalf("expected old key gone, got %v", err)
	}
	s, err := store.Get(ctx, "new")
	if err != nil || s.Captured.Campus != "Puebla" || s.ContactID != "new" {
		t.Fatalf("expected state under new key, got %+v (%v)", s, err)
	}
}
