package pii

import (
	"context"
	"errors"
	"strings"
	"testing"

	detectors "github.com/anonydoc/anonydoc/pii/detectors"
)

func mustResolve(t *testing.T, text string, spans []detectors.Entity) ResolvedSpans {
	t.Helper()
	resolved, err := ResolveSpans(text, spans)
	if err != nil {
		t.Fatalf("ResolveSpans failed: %v", err)
	}
	return resolved
}

func TestAnonymize_FixedLabels(t *testing.T) {
	text := "Alice met Bob in Paris."
	spans := mustResolve(t, text, []detectors.Entity{
		span("Alice", "PERSON", 0, 5, 0.9),
		span("Bob", "PERSON", 10, 13, 0.9),
		span("Paris", "LOC", 17, 22, 0.9),
	})

	engine := NewEngine(0)
	result, err := engine.Anonymize(text, spans, LabelTable{
		Labels: map[string]string{"PERSON": "[PERSON]", "LOC": "[LOC]"},
	})
	if err != nil {
		t.Fatalf("Anonymize failed: %v", err)
	}

	want := "[PERSON] met [PERSON] in [LOC]."
	if result.Text != want {
		t.Errorf("Text = %q, want %q", result.Text, want)
	}
	if len(result.Record) != 3 {
		t.Errorf("expected 3 substitutions, got %d", len(result.Record))
	}
}

func TestAnonymize_UnknownLabelFailsBeforeOutput(t *testing.T) {
	text := "Alice met Bob."
	spans := mustResolve(t, text, []detectors.Entity{
		span("Alice", "PERSON", 0, 5, 0.9),
		span("Bob", "MISC", 10, 13, 0.9),
	})

	engine := NewEngine(0)
	_, err := engine.Anonymize(text, spans, LabelTable{
		Labels: map[string]string{"PERSON": "[PERSON]"},
	})
	var labelErr *UnknownLabelError
	if !errors.As(err, &labelErr) {
		t.Fatalf("expected UnknownLabelError, got %v", err)
	}
	if labelErr.Label != "MISC" {
		t.Errorf("Label = %q, want MISC", labelErr.Label)
	}
}

func TestAnonymize_DefaultLabelCoversUnknownTypes(t *testing.T) {
	text := "Alice met Bob."
	spans := mustResolve(t, text, []detectors.Entity{
		span("Bob", "MISC", 10, 13, 0.9),
	})

	engine := NewEngine(0)
	result, err := engine.Anonymize(text, spans, LabelTable{
		Labels:  map[string]string{"PERSON": "[PERSON]"},
		Default: "[REDACTED]",
	})
	if err != nil {
		t.Fatalf("Anonymize failed: %v", err)
	}
	if result.Text != "Alice met [REDACTED]." {
		t.Errorf("Text = %q", result.Text)
	}
}

func TestAnonymize_RejectsOverlappingSpans(t *testing.T) {
	text := "John Smith"
	unresolved := ResolvedSpans{
		span("John Smith", "PERSON", 0, 10, 0.9),
		span("Smith", "PERSON", 5, 10, 0.9),
	}

	engine := NewEngine(0)
	_, err := engine.Anonymize(text, unresolved, LabelTable{Default: "[X]"})
	var spanErr *InvalidSpanError
	if !errors.As(err, &spanErr) {
		t.Fatalf("expected InvalidSpanError, got %v", err)
	}
}

func TestPseudonymize_SameIdentitySharesToken(t *testing.T) {
	text := "Alice met Alice."
	spans := mustResolve(t, text, []detectors.Entity{
		span("Alice", "PERSON", 0, 5, 0.9),
		span("Alice", "PERSON", 10, 15, 0.9),
	})

	engine := NewEngine(0)
	mapping := NewMapping()
	result, err := engine.Pseudonymize(context.Background(), text, spans, mapping)
	if err != nil {
		t.Fatalf("Pseudonymize failed: %v", err)
	}

	if len(result.Record) != 2 {
		t.Fatalf("expected 2 substitutions, got %d", len(result.Record))
	}
	if result.Record[0].Replacement != result.Record[1].Replacement {
		t.Errorf("same identity got different tokens: %q vs %q",
			result.Record[0].Replacement, result.Record[1].Replacement)
	}
	if mapping.Len() != 1 {
		t.Errorf("mapping has %d entries, want 1", mapping.Len())
	}
}

// Case and whitespace variants share one identity; accents do not.
func TestPseudonymize_NormalizationRules(t *testing.T) {
	text := "alice, ALICE, Alice  Smith, Alice Smith, René, Rene"
	spans := mustResolve(t, text, []detectors.Entity{
		span("alice", "PERSON", 0, 5, 0.9),
		span("ALICE", "PERSON", 7, 12, 0.9),
		span("Alice  Smith", "PERSON", 14, 26, 0.9),
		span("Alice Smith", "PERSON", 28, 39, 0.9),
		span("René", "PERSON", 41, 46, 0.9),
		span("Rene", "PERSON", 48, 52, 0.9),
	})

	engine := NewEngine(0)
	mapping := NewMapping()
	result, err := engine.Pseudonymize(context.Background(), text, spans, mapping)
	if err != nil {
		t.Fatalf("Pseudonymize failed: %v", err)
	}

	r := result.Record
	if r[0].Replacement != r[1].Replacement {
		t.Error("case variants should share a token")
	}
	if r[2].Replacement != r[3].Replacement {
		t.Error("whitespace variants should share a token")
	}
	if r[4].Replacement == r[5].Replacement {
		t.Error("accented and unaccented forms should get distinct tokens")
	}
	if mapping.Len() != 3 {
		t.Errorf("mapping has %d entries, want 3", mapping.Len())
	}
}

func TestPseudonymize_DistinctTypesDistinctTokens(t *testing.T) {
	text := "Paris loves Paris"
	spans := mustResolve(t, text, []detectors.Entity{
		span("Paris", "PERSON", 0, 5, 0.9),
		span("Paris", "LOC", 12, 17, 0.9),
	})

	engine := NewEngine(0)
	mapping := NewMapping()
	result, err := engine.Pseudonymize(context.Background(), text, spans, mapping)
	if err != nil {
		t.Fatalf("Pseudonymize failed: %v", err)
	}
	if result.Record[0].Replacement == result.Record[1].Replacement {
		t.Error("same text with different types should get distinct tokens")
	}
}

func TestPseudonymize_ContextWindow(t *testing.T) {
	text := "The quick brown fox saw Alice near the riverbank today."
	spans := mustResolve(t, text, []detectors.Entity{
		span("Alice", "PERSON", 24, 29, 0.9),
	})

	engine := NewEngine(10)
	mapping := NewMapping()
	result, err := engine.Pseudonymize(context.Background(), text, spans, mapping)
	if err != nil {
		t.Fatalf("Pseudonymize failed: %v", err)
	}

	sub := result.Record[0]
	if sub.Before != "n fox saw " {
		t.Errorf("Before = %q", sub.Before)
	}
	if sub.After != " near the " {
		t.Errorf("After = %q", sub.After)
	}
	if sub.Context() != "n fox saw Alice near the " {
		t.Errorf("Context = %q", sub.Context())
	}
}

func TestRoundTrip(t *testing.T) {
	text := "Alice met Bob in Paris. Later Alice wrote to Bob."
	spans := mustResolve(t, text, []detectors.Entity{
		span("Alice", "PERSON", 0, 5, 0.9),
		span("Bob", "PERSON", 10, 13, 0.9),
		span("Paris", "LOC", 17, 22, 0.9),
		span("Alice", "PERSON", 30, 35, 0.9),
		span("Bob", "PERSON", 45, 48, 0.9),
	})

	engine := NewEngine(0)
	mapping := NewMapping()
	pseudonymized, err := engine.Pseudonymize(context.Background(), text, spans, mapping)
	if err != nil {
		t.Fatalf("Pseudonymize failed: %v", err)
	}
	if strings.Contains(pseudonymized.Text, "Alice") || strings.Contains(pseudonymized.Text, "Bob") {
		t.Fatalf("original values leaked into %q", pseudonymized.Text)
	}

	restored, err := engine.Depseudonymize(pseudonymized.Text, mapping)
	if err != nil {
		t.Fatalf("Depseudonymize failed: %v", err)
	}
	if restored.Text != text {
		t.Errorf("round trip mismatch:\n got %q\nwant %q", restored.Text, text)
	}
	if restored.Restored != 5 {
		t.Errorf("Restored = %d, want 5", restored.Restored)
	}
	if len(restored.Unresolved) != 0 {
		t.Errorf("unexpected unresolved tokens: %v", restored.Unresolved)
	}
}

func TestRoundTrip_MultiByteText(t *testing.T) {
	text := "Müller besuchte 北京 im Frühjahr."
	start := strings.Index(text, "Müller")
	end := start + len("Müller")
	cityStart := strings.Index(text, "北京")
	cityEnd := cityStart + len("北京")

	spans := mustResolve(t, text, []detectors.Entity{
		span("Müller", "PERSON", start, end, 0.9),
		span("北京", "LOC", cityStart, cityEnd, 0.9),
	})

	engine := NewEngine(5)
	mapping := NewMapping()
	result, err := engine.Pseudonymize(context.Background(), text, spans, mapping)
	if err != nil {
		t.Fatalf("Pseudonymize failed: %v", err)
	}

	restored, err := engine.Depseudonymize(result.Text, mapping)
	if err != nil {
		t.Fatalf("Depseudonymize failed: %v", err)
	}
	if restored.Text != text {
		t.Errorf("round trip mismatch:\n got %q\nwant %q", restored.Text, text)
	}
}

func TestDepseudonymize_UnknownTokenReported(t *testing.T) {
	mapping := NewMapping()
	token, err := mapping.LookupOrCreate(context.Background(), "Alice", "PERSON", "")
	if err != nil {
		t.Fatalf("LookupOrCreate failed: %v", err)
	}

	text := token + " wrote to PERSON_deadbeef yesterday."
	engine := NewEngine(0)
	restored, err := engine.Depseudonymize(text, mapping)
	if err != nil {
		t.Fatalf("Depseudonymize failed: %v", err)
	}

	if !strings.HasPrefix(restored.Text, "Alice wrote to ") {
		t.Errorf("known token not restored: %q", restored.Text)
	}
	if !strings.Contains(restored.Text, "PERSON_deadbeef") {
		t.Errorf("unknown token must stay in place: %q", restored.Text)
	}
	if len(restored.Unresolved) != 1 {
		t.Fatalf("expected 1 unresolved token, got %d", len(restored.Unresolved))
	}
	u := restored.Unresolved[0]
	if u.Token != "PERSON_deadbeef" {
		t.Errorf("Token = %q", u.Token)
	}
	if text[u.StartPos:u.EndPos] != u.Token {
		t.Errorf("offsets [%d,%d) do not frame the token", u.StartPos, u.EndPos)
	}
}

// A known token is restored even when trailing text happens to continue in
// token-shaped characters.
func TestDepseudonymize_TokenFollowedByHexText(t *testing.T) {
	mapping := NewMapping()
	token, err := mapping.LookupOrCreate(context.Background(), "Alice", "PERSON", "")
	if err != nil {
		t.Fatalf("LookupOrCreate failed: %v", err)
	}

	text := "See " + token + "0123 for details."
	engine := NewEngine(0)
	restored, err := engine.Depseudonymize(text, mapping)
	if err != nil {
		t.Fatalf("Depseudonymize failed: %v", err)
	}
	if restored.Restored != 1 {
		t.Errorf("Restored = %d, want 1", restored.Restored)
	}
	if restored.Text != "See Alice0123 for details." {
		t.Errorf("Text = %q", restored.Text)
	}
}

// Adjacent spans produce adjacent tokens; both must come back.
func TestRoundTrip_AdjacentSpans(t *testing.T) {
	text := "北京上海"
	spans := mustResolve(t, text, []detectors.Entity{
		span("北京", "LOC", 0, 6, 0.9),
		span("上海", "LOC", 6, 12, 0.9),
	})

	engine := NewEngine(0)
	mapping := NewMapping()
	result, err := engine.Pseudonymize(context.Background(), text, spans, mapping)
	if err != nil {
		t.Fatalf("Pseudonymize failed: %v", err)
	}

	restored, err := engine.Depseudonymize(result.Text, mapping)
	if err != nil {
		t.Fatalf("Depseudonymize failed: %v", err)
	}
	if restored.Text != text {
		t.Errorf("round trip mismatch:\n got %q\nwant %q", restored.Text, text)
	}
	if restored.Restored != 2 {
		t.Errorf("Restored = %d, want 2", restored.Restored)
	}
	if len(restored.Unresolved) != 0 {
		t.Errorf("unexpected unresolved tokens: %v", restored.Unresolved)
	}
}

// A span directly followed by digits must still round-trip.
func TestRoundTrip_DigitAdjacentSpan(t *testing.T) {
	text := "Paris2024 was great"
	spans := mustResolve(t, text, []detectors.Entity{
		span("Paris", "LOC", 0, 5, 0.9),
	})

	engine := NewEngine(0)
	mapping := NewMapping()
	result, err := engine.Pseudonymize(context.Background(), text, spans, mapping)
	if err != nil {
		t.Fatalf("Pseudonymize failed: %v", err)
	}

	restored, err := engine.Depseudonymize(result.Text, mapping)
	if err != nil {
		t.Fatalf("Depseudonymize failed: %v", err)
	}
	if restored.Text != text {
		t.Errorf("round trip mismatch:\n got %q\nwant %q", restored.Text, text)
	}
	if len(restored.Unresolved) != 0 {
		t.Errorf("unexpected unresolved tokens: %v", restored.Unresolved)
	}
}

func TestDepseudonymize_NoTokens(t *testing.T) {
	engine := NewEngine(0)
	restored, err := engine.Depseudonymize("nothing to see here", NewMapping())
	if err != nil {
		t.Fatalf("Depseudonymize failed: %v", err)
	}
	if restored.Text != "nothing to see here" || restored.Restored != 0 {
		t.Errorf("unexpected result: %+v", restored)
	}
}
