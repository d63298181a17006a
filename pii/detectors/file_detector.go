package pii

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileDetector replays detector output stored as JSON. It exists for
// offline runs where detection happened elsewhere: the operator feeds the
// saved span list alongside the document instead of calling a service.
//
// The file holds either a DetectorOutput object or a bare entity array.
type FileDetector struct {
	path     string
	entities []Entity
}

// NewFileDetector loads the span file eagerly so malformed input fails at
// construction time, before any document is touched.
func NewFileDetector(path string) (*FileDetector, error) {
	// #nosec G304 - Span file path comes from the operator's command line
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read span file: %w", err)
	}

	var output DetectorOutput
	if err := json.Unmarshal(data, &output); err != nil {
		var entities []Entity
		if err2 := json.Unmarshal(data, &entities); err2 != nil {
			return nil, fmt.Errorf("failed to decode span file %s: %w", path, err)
		}
		output.Entities = entities
	}

	return &FileDetector{path: path, entities: output.Entities}, nil
}

func (d *FileDetector) GetName() string {
	return "file_detector"
}

// Detect returns the stored spans, optionally filtered by the allowlist.
func (d *FileDetector) Detect(ctx context.Context, input DetectorInput) (DetectorOutput, error) {
	entities := d.entities
	if len(input.AllowedLabels) > 0 {
		allowed := make(map[string]bool, len(input.AllowedLabels))
		for _, l := range input.AllowedLabels {
			allowed[l] = true
		}
		filtered := make([]Entity, 0, len(entities))
		for _, e := range entities {
			if allowed[e.Label] {
				filtered = append(filtered, e)
			}
		}
		entities = filtered
	}
	return DetectorOutput{Text: input.Text, Entities: entities}, nil
}

func (d *FileDetector) Close() error {
	return nil
}
