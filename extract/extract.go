// Package extract turns document files into plain text for the engine.
// Only plain-text formats are handled in-process; rich formats (PDF, DOCX,
// spreadsheets) belong to external converters and surface here as
// ErrUnsupportedFormat so callers can route the file elsewhere.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat marks a file extension with no registered extractor.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extractor converts a document file into plain text.
type Extractor interface {
	Extract(path string) (string, error)
	Extensions() []string
}

// TextExtractor reads plain-text files as-is.
type TextExtractor struct{}

func (TextExtractor) Extensions() []string {
	return []string{".txt", ".text", ".md", ""}
}

func (TextExtractor) Extract(path string) (string, error) {
	// #nosec G304 - Document path comes from the operator's command line
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	return string(data), nil
}

// ForPath returns the extractor registered for the file's extension.
func ForPath(path string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range registry {
		for _, known := range e.Extensions() {
			if known == ext {
				return e, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
}

// Text is a convenience wrapper: pick the extractor for path and run it.
func Text(path string) (string, error) {
	e, err := ForPath(path)
	if err != nil {
		return "", err
	}
	return e.Extract(path)
}

var registry = []Extractor{
	TextExtractor{},
}
