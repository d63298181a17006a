package extract

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestText_PlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte("Alice met Bob."), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	got, err := Text(path)
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if got != "Alice met Bob." {
		t.Errorf("Text = %q", got)
	}
}

func TestForPath_KnownExtensions(t *testing.T) {
	for _, path := range []string{"a.txt", "b.TXT", "c.md", "d.text", "noext"} {
		if _, err := ForPath(path); err != nil {
			t.Errorf("ForPath(%q) failed: %v", path, err)
		}
	}
}

func TestForPath_UnsupportedFormat(t *testing.T) {
	_, err := ForPath("report.pdf")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestText_MissingFile(t *testing.T) {
	if _, err := Text(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
