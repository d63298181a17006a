package pii

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	detectors "github.com/anonydoc/anonydoc/pii/detectors"
)

// DefaultContextWindow is the number of bytes captured on each side of a
// substituted span when no window size is configured.
const DefaultContextWindow = 40

// LabelTable maps entity types to fixed anonymization labels. Default, when
// non-empty, is used for types with no specific label.
type LabelTable struct {
	Labels  map[string]string
	Default string
}

// labelFor returns the label for an entity type.
func (t LabelTable) labelFor(label string) (string, bool) {
	if l, ok := t.Labels[label]; ok {
		return l, true
	}
	if t.Default != "" {
		return t.Default, true
	}
	return "", false
}

// Substitution records one replaced span: the original entity, its
// replacement, and the surrounding context clipped from the source text.
type Substitution struct {
	Entity      detectors.Entity `json:"entity"`
	Replacement string           `json:"replacement"`
	Before      string           `json:"before"`
	After       string           `json:"after"`
}

// Context returns the substitution's surroundings with the original value
// in place, for inspection.
func (s Substitution) Context() string {
	return s.Before + s.Entity.Text + s.After
}

// Record is the ordered list of substitutions produced by one document
// transformation. It is never mutated after creation.
type Record []Substitution

// Result holds the rewritten text and the substitution record.
type Result struct {
	Text   string
	Record Record
}

// RestoreResult holds depseudonymized text plus per-occurrence diagnostics.
// Unresolved token-looking regions are left untouched in Text; callers need
// the partial restoration for audit even when the mapping is incomplete.
type RestoreResult struct {
	Text       string
	Restored   int
	Unresolved []*UnresolvedTokenError
}

// Engine rewrites text from a resolved span list. All span offsets refer to
// the original text, so the output is assembled in one left-to-right pass
// (prefix + substitute + gap + substitute + ... + tail) and spans are never
// re-indexed after a replacement.
type Engine struct {
	contextWindow int
}

// NewEngine creates an engine capturing contextWindow bytes of context on
// each side of a substitution (DefaultContextWindow if <= 0).
func NewEngine(contextWindow int) *Engine {
	if contextWindow <= 0 {
		contextWindow = DefaultContextWindow
	}
	return &Engine{contextWindow: contextWindow}
}

// Anonymize replaces each span with the fixed label for its entity type.
// The whole table is checked up front: a type with no label and no default
// fails with UnknownLabelError before any output exists, since a partially
// anonymized document is worse than none. Not reversible.
func (e *Engine) Anonymize(text string, spans ResolvedSpans, labels LabelTable) (Result, error) {
	if err := validateResolved(text, spans); err != nil {
		return Result{}, err
	}
	for _, s := range spans {
		if _, ok := labels.labelFor(s.Label); !ok {
			return Result{}, &UnknownLabelError{Label: s.Label}
		}
	}
	return e.rewrite(text, spans, func(s detectors.Entity) (string, error) {
		label, _ := labels.labelFor(s.Label)
		return label, nil
	})
}

// Pseudonymize replaces each span with a unique substitute token from the
// mapping store, reusing the token for every span sharing the same identity
// across the document and across documents sharing the store.
func (e *Engine) Pseudonymize(ctx context.Context, text string, spans ResolvedSpans, store *Mapping) (Result, error) {
	if err := validateResolved(text, spans); err != nil {
		return Result{}, err
	}
	return e.rewrite(text, spans, func(s detectors.Entity) (string, error) {
		before, after := e.contextAround(text, s)
		return store.LookupOrCreate(ctx, s.Text, s.Label, before+s.Text+after)
	})
}

// rewrite builds the output left to right from the resolved spans.
func (e *Engine) rewrite(text string, spans ResolvedSpans, repl func(detectors.Entity) (string, error)) (Result, error) {
	var b strings.Builder
	b.Grow(len(text))
	record := make(Record, 0, len(spans))

	last := 0
	for _, s := range spans {
		replacement, err := repl(s)
		if err != nil {
			return Result{}, err
		}
		b.WriteString(text[last:s.StartPos])
		b.WriteString(replacement)
		before, after := e.contextAround(text, s)
		record = append(record, Substitution{
			Entity:      s,
			Replacement: replacement,
			Before:      before,
			After:       after,
		})
		last = s.EndPos
	}
	b.WriteString(text[last:])

	return Result{Text: b.String(), Record: record}, nil
}

// contextAround clips the configured window on each side of the span,
// snapped inward to UTF-8 rune boundaries so a window never splits a
// multi-byte character.
func (e *Engine) contextAround(text string, s detectors.Entity) (before, after string) {
	start := s.StartPos - e.contextWindow
	if start < 0 {
		start = 0
	}
	for start < s.StartPos && !utf8.RuneStart(text[start]) {
		start++
	}

	end := s.EndPos + e.contextWindow
	if end > len(text) {
		end = len(text)
	}
	for end > s.EndPos && end < len(text) && !utf8.RuneStart(text[end]) {
		end--
	}

	return text[start:s.StartPos], text[s.EndPos:end]
}

// tokenNeedle is one claimed occurrence of a known token during restoration.
type tokenNeedle struct {
	start int
	end   int
	token string
}

// pseudonymPattern matches regions shaped like generated substitute tokens:
// an upper-case label component, an underscore, and a hex suffix of at
// least minTokenHex digits. Used only to diagnose leftovers after real
// tokens are claimed.
var pseudonymPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9_]*_[0-9a-f]{8,}(_[0-9]+)?\b`)

// Depseudonymize scans the text for exact occurrences of known substitute
// tokens and splices the original values back in. Tokens are matched
// longest first so a known token that is a prefix of another known token
// cannot claim the longer token's occurrences. Every exact occurrence is
// claimed, including ones directly adjacent to other tokens or to ordinary
// text; tokens only ever enter a document through pseudonymization, so an
// embedded occurrence is a real one and skipping it would break the round
// trip. Token-looking regions with no mapping entry are reported as
// diagnostics and left untouched.
func (e *Engine) Depseudonymize(text string, store *Mapping) (RestoreResult, error) {
	var needles []tokenNeedle
	for _, token := range store.TokensLongestFirst() {
		from := 0
		for {
			i := strings.Index(text[from:], token)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(token)
			if overlapsNeedle(needles, start, end) {
				from = start + 1
				continue
			}
			needles = append(needles, tokenNeedle{start: start, end: end, token: token})
			from = end
		}
	}

	sort.Slice(needles, func(i, j int) bool { return needles[i].start < needles[j].start })

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, n := range needles {
		entry, ok := store.LookupToken(n.token)
		if !ok {
			// Cannot happen: needles only come from the store.
			continue
		}
		b.WriteString(text[last:n.start])
		b.WriteString(entry.Original)
		last = n.end
	}
	b.WriteString(text[last:])

	var unresolved []*UnresolvedTokenError
	for _, loc := range pseudonymPattern.FindAllStringIndex(text, -1) {
		if overlapsNeedle(needles, loc[0], loc[1]) {
			continue
		}
		unresolved = append(unresolved, &UnresolvedTokenError{
			Token:    text[loc[0]:loc[1]],
			StartPos: loc[0],
			EndPos:   loc[1],
		})
	}

	return RestoreResult{
		Text:       b.String(),
		Restored:   len(needles),
		Unresolved: unresolved,
	}, nil
}

// overlapsNeedle reports whether [start, end) intersects any claimed region.
func overlapsNeedle(needles []tokenNeedle, start, end int) bool {
	for _, n := range needles {
		if start < n.end && n.start < end {
			return true
		}
	}
	return false
}
