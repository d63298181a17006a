package pii

import (
	"sort"

	detectors "github.com/anonydoc/anonydoc/pii/detectors"
)

// ResolvedSpans is an ordered span list ready for substitution: sorted
// ascending by start position and pairwise non-overlapping, so for any two
// consecutive spans a, b it holds that a.EndPos <= b.StartPos.
type ResolvedSpans []detectors.Entity

// ResolveSpans validates raw detector spans against the source text and
// resolves overlaps. Overlapping detections are common (a full-name span
// with a nested first-name span, duplicate model predictions), so spans are
// sorted by (start asc, length desc, confidence desc) and swept left to
// right: a span is kept only if it starts at or after the end of the last
// kept span. An overlapping span is discarded whole rather than clipped;
// clipping would produce truncated, semantically broken substitutions.
//
// Resolution is idempotent: resolving an already-resolved list returns it
// unchanged.
func ResolveSpans(text string, spans []detectors.Entity) (ResolvedSpans, error) {
	for _, s := range spans {
		if s.StartPos < 0 || s.StartPos >= s.EndPos || s.EndPos > len(text) {
			return nil, &InvalidSpanError{
				StartPos: s.StartPos,
				EndPos:   s.EndPos,
				TextLen:  len(text),
				Reason:   "offsets out of range",
			}
		}
		if s.Text != "" && s.Text != text[s.StartPos:s.EndPos] {
			return nil, &InvalidSpanError{
				StartPos: s.StartPos,
				EndPos:   s.EndPos,
				TextLen:  len(text),
				Reason:   "surface text does not match offsets",
			}
		}
	}

	sorted := make([]detectors.Entity, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.StartPos != b.StartPos {
			return a.StartPos < b.StartPos
		}
		if a.Length() != b.Length() {
			return a.Length() > b.Length()
		}
		return a.Confidence > b.Confidence
	})

	resolved := make(ResolvedSpans, 0, len(sorted))
	lastEnd := 0
	for _, s := range sorted {
		if len(resolved) > 0 && s.StartPos < lastEnd {
			continue
		}
		if s.Text == "" {
			s.Text = text[s.StartPos:s.EndPos]
		}
		resolved = append(resolved, s)
		lastEnd = s.EndPos
	}

	return resolved, nil
}

// validateResolved checks the ResolvedSpans invariant against the text the
// spans will be applied to. Substitution refuses unresolved input instead
// of silently producing overlapping rewrites.
func validateResolved(text string, spans ResolvedSpans) error {
	lastEnd := 0
	for _, s := range spans {
		if s.StartPos < 0 || s.StartPos >= s.EndPos || s.EndPos > len(text) {
			return &InvalidSpanError{
				StartPos: s.StartPos,
				EndPos:   s.EndPos,
				TextLen:  len(text),
				Reason:   "offsets out of range",
			}
		}
		if s.StartPos < lastEnd {
			return &InvalidSpanError{
				StartPos: s.StartPos,
				EndPos:   s.EndPos,
				TextLen:  len(text),
				Reason:   "spans overlap or are unsorted",
			}
		}
		lastEnd = s.EndPos
	}
	return nil
}
