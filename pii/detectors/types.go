package pii

// DetectorInput represents the input for entity detection
type DetectorInput struct {
	Text string `json:"text"`
	// AllowedLabels restricts detection to the given entity types.
	// Empty means the detector's full label set.
	AllowedLabels []string `json:"allowed_labels,omitempty"`
}

// DetectorOutput represents the output of entity detection
type DetectorOutput struct {
	Text     string   `json:"text"`
	Entities []Entity `json:"entities"`
}

// Entity represents a detected entity span. StartPos and EndPos are byte
// offsets into the source text, half-open: text[StartPos:EndPos] == Text.
// Label is an open-ended type tag; detectors may emit categories unknown
// to the rest of the system.
type Entity struct {
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	StartPos   int     `json:"start_pos"`
	EndPos     int     `json:"end_pos"`
	Confidence float64 `json:"confidence"`
}

// Length returns the byte length of the span.
func (e Entity) Length() int {
	return e.EndPos - e.StartPos
}
