package scoring

import (
	"testing"

	"leadfunnel_backend/internal/leadstate"
)

func TestScoreSignals(t *testing.T) {
	cases := []struct {
		name string
		in   Signals
		want int
	}{
		{"nothing", Signals{}, 0},
		{"campus and program", Signals{Captured: leadstate.Captured{Campus: "Puebla", Program: "Primaria"}}, 25},
		{"whatsapp fast reply", Signals{Channel: "WhatsApp", FastReply: true}, 15},
		{"facebook gets no channel points", Signals{Channel: "FB"}, 0},
		{"enrollment intent", Signals{Text: "Quiero INSCRIBIR a mi hijo"}, 20},
	}
	for _, tc := range cases {
		if got := Score(tc.in); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestCompleteLeadFormIsUrgent(t *testing.T) {
	score := Score(Signals{
		Captured: leadstate.Captured{
			Campus: "Puebla", Program: "Primaria", Name: "Ana López", Phone: "2221234567", Email: "ana@example.com",
		},
		FromLeadForm:     true,
		LeadFormComplete: true,
	})
	if score < 95 {
		t.Fatalf("expected at least 95, got %d", score)
	}
	if TierFor(score) != TierUrgent {
		t.Fatalf("expected urgent tier, got %s", TierFor(score))
	}
}

func TestTierBoundaries(t *testing.T) {
	cases := map[int]Tier{0: TierCold, 25: TierCold, 26: TierWarm, 50: TierWarm, 51: TierHot, 80: TierHot, 81: TierUrgent, 500: TierUrgent}
	for score, want := range cases {
		if got := TierFor(score); got != want {
			t.Fatalf("TierFor(%d): expected %s, got %s", score, want, got)
		}
	}
}

func TestParseTier(t *testing.T) {
	for _, tier := range AllTiers() {
		got, ok := ParseTier(tier.String())
		if !ok || got != tier {
			t.Fatalf("expected %s to round trip", tier)
		}
	}
	if _, ok := ParseTier(""); ok {
		t.Fatalf("empty tier must not parse")
	}
}
