package pii

import (
	"strings"
	"testing"
)

func TestGenerate_Deterministic(t *testing.T) {
	g := NewGenerator()
	id := IdentityOf("Alice Smith", "PERSON")

	a := g.Generate(id, nil)
	b := g.Generate(id, nil)
	if a != b {
		t.Errorf("same identity produced %q and %q", a, b)
	}
	if !strings.HasPrefix(a, "PERSON_") {
		t.Errorf("token %q lacks the PERSON_ prefix", a)
	}
	if len(a) != len("PERSON_")+minTokenHex {
		t.Errorf("token %q has unexpected length", a)
	}
}

func TestGenerate_DistinctIdentitiesDistinctTokens(t *testing.T) {
	g := NewGenerator()
	a := g.Generate(IdentityOf("Alice", "PERSON"), nil)
	b := g.Generate(IdentityOf("Bob", "PERSON"), nil)
	if a == b {
		t.Errorf("distinct identities share token %q", a)
	}
}

func TestGenerate_CollisionGrowsSuffix(t *testing.T) {
	g := NewGenerator()
	id := IdentityOf("Alice", "PERSON")

	first := g.Generate(id, nil)
	taken := map[string]struct{}{first: {}}
	second := g.Generate(id, taken)

	if second == first {
		t.Fatalf("collision not avoided: %q", second)
	}
	if !strings.HasPrefix(second, first) {
		t.Errorf("expected %q to extend %q", second, first)
	}
	if len(second) != len(first)+4 {
		t.Errorf("suffix should grow by 4 hex digits, got %q", second)
	}
}

func TestGenerate_ExhaustedDigestFallsBackToProbe(t *testing.T) {
	g := NewGenerator()
	id := IdentityOf("Alice", "PERSON")

	taken := make(map[string]struct{})
	// Occupy every digest-prefix token for this identity: suffixes of
	// 8, 12, ..., 64 hex digits, 15 in total.
	for i := 0; i < 15; i++ {
		taken[g.Generate(id, taken)] = struct{}{}
	}

	token := g.Generate(id, taken)
	if _, exists := taken[token]; exists {
		t.Fatalf("probe returned a taken token %q", token)
	}
	if !strings.HasSuffix(token, "_2") {
		t.Errorf("expected the first numeric probe, got %q", token)
	}
}

func TestLabelComponent(t *testing.T) {
	cases := []struct {
		label string
		want  string
	}{
		{"PERSON", "PERSON"},
		{"person", "PERSON"},
		{"credit card", "CREDIT_CARD"},
		{"phone-number", "PHONE_NUMBER"},
		{"e--mail", "E_MAIL"},
		{"  org  ", "ORG"},
		{"", "ENTITY"},
		{"***", "ENTITY"},
	}

	for _, tc := range cases {
		if got := labelComponent(tc.label); got != tc.want {
			t.Errorf("labelComponent(%q) = %q, want %q", tc.label, got, tc.want)
		}
	}
}

func TestGenerate_NoBrackets(t *testing.T) {
	g := NewGenerator()
	token := g.Generate(IdentityOf("[weird]", "[TYPE]"), nil)
	if strings.ContainsAny(token, "[]") {
		t.Errorf("token %q contains bracket characters", token)
	}
}
