package loop

import "testing"

func TestSimilarity(t *testing.T) {
	cases := []struct {
		a, b     string
		min, max float64
	}{
		{"Hola", "hola", 1, 1},
		{"  hola   que tal ", "HOLA que tal", 1, 1},
		{"", "", 1, 1},
		{"abc", "", 0, 0},
		{"abcd", "abxd", 0.74, 0.76},
		{"¿En qué plantel?", "precio de colegiatura", 0, 0.5},
	}
	for _, tc := range cases {
		got := Similarity(tc.a, tc.b)
		if got < tc.min || got > tc.max {
			t.Fatalf("Similarity(%q, %q) = %.3f, expected in [%.2f, %.2f]", tc.a, tc.b, got, tc.min, tc.max)
		}
	}
}

func TestSimilarityIsSymmetric(t *testing.T) {
	a, b := "¿Qué nivel educativo te interesa?", "¿Qué nivel te interesa para tu hijo?"
	if Similarity(a, b) != Similarity(b, a) {
		t.Fatalf("expected symmetric similarity")
	}
}

func TestUserStuckOnlyLooksAtRecentReplies(t *testing.T) {
	recent := []string{"¿En cuál plantel?", "¿Qué nivel?", "hola"}
	if UserStuck("hola", recent) {
		t.Fatalf("third reply is outside the pre-generation window")
	}
	if !UserStuck("¿en cual plantel?", recent) {
		t.Fatalf("expected near-copy of the last reply to be flagged")
	}
	if UserStuck("", recent) {
		t.Fatalf("empty text never loops")
	}
}

func TestModelStuckNeedsNearExactCopy(t *testing.T) {
	recent := []string{"¿Cuál es tu nombre completo?"}
	if ModelStuck("¿Cuál es tu nombre?", recent) {
		t.Fatalf("paraphrase should stay under the post-generation threshold")
	}
	if !ModelStuck("¿Cuál es tu nombre completo? ", recent) {
		t.Fatalf("verbatim repeat should be flagged")
	}
}

func TestHistoryStuckComparesLastTwoReplies(t *testing.T) {
	g1 := "¡Hola! Soy Luca, asesor de Colegio San Ángel. ¿En qué plantel te gustaría inscribir a tu hijo/a?"
	g2 := "¡Hola! Soy Luca, asesor del Colegio San Ángel. ¿En qué plantel te interesa inscribir a tu hijo/a?"
	if !HistoryStuck([]string{g2, g1}) {
		t.Fatalf("reworded greetings should count as a loop")
	}
	if HistoryStuck([]string{g2}) {
		t.Fatalf("a single reply is never a loop")
	}
	if HistoryStuck([]string{"¿Qué nivel educativo te interesa?", g1, g1}) {
		t.Fatalf("only the two newest replies are compared")
	}
	if HistoryStuck([]string{"", ""}) {
		t.Fatalf("empty replies never loop")
	}
}
