package pii

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeSpanFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spans.json")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestFileDetector_ObjectFormat(t *testing.T) {
	path := writeSpanFile(t, `{
		"entities": [
			{"text": "Alice", "label": "PERSON", "start_pos": 0, "end_pos": 5, "confidence": 0.9}
		]
	}`)

	d, err := NewFileDetector(path)
	if err != nil {
		t.Fatalf("NewFileDetector failed: %v", err)
	}

	output, err := d.Detect(context.Background(), DetectorInput{Text: "Alice met Bob"})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(output.Entities) != 1 || output.Entities[0].Label != "PERSON" {
		t.Errorf("entities = %+v", output.Entities)
	}
	if output.Text != "Alice met Bob" {
		t.Errorf("output text = %q", output.Text)
	}
}

func TestFileDetector_BareArrayFormat(t *testing.T) {
	path := writeSpanFile(t, `[
		{"text": "Alice", "label": "PERSON", "start_pos": 0, "end_pos": 5, "confidence": 0.9},
		{"text": "Paris", "label": "LOC", "start_pos": 17, "end_pos": 22, "confidence": 0.8}
	]`)

	d, err := NewFileDetector(path)
	if err != nil {
		t.Fatalf("NewFileDetector failed: %v", err)
	}

	output, err := d.Detect(context.Background(), DetectorInput{Text: "Alice met Bob in Paris."})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(output.Entities) != 2 {
		t.Errorf("entities = %+v", output.Entities)
	}
}

func TestFileDetector_AllowlistFilter(t *testing.T) {
	path := writeSpanFile(t, `[
		{"text": "Alice", "label": "PERSON", "start_pos": 0, "end_pos": 5, "confidence": 0.9},
		{"text": "Paris", "label": "LOC", "start_pos": 17, "end_pos": 22, "confidence": 0.8}
	]`)

	d, err := NewFileDetector(path)
	if err != nil {
		t.Fatalf("NewFileDetector failed: %v", err)
	}

	output, err := d.Detect(context.Background(), DetectorInput{
		Text:          "Alice met Bob in Paris.",
		AllowedLabels: []string{"LOC"},
	})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(output.Entities) != 1 || output.Entities[0].Label != "LOC" {
		t.Errorf("entities = %+v", output.Entities)
	}
}

func TestFileDetector_MalformedFileFailsEarly(t *testing.T) {
	path := writeSpanFile(t, "not json")
	if _, err := NewFileDetector(path); err == nil {
		t.Fatal("expected an error for malformed span data")
	}
}

func TestFileDetector_MissingFile(t *testing.T) {
	if _, err := NewFileDetector(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
