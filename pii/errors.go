package pii

import "fmt"

// InvalidSpanError reports a detector span that does not fit the source
// text. It is fatal to the document being processed but should not abort
// a batch of documents.
type InvalidSpanError struct {
	StartPos int
	EndPos   int
	TextLen  int
	Reason   string
}

func (e *InvalidSpanError) Error() string {
	return fmt.Sprintf("invalid entity span [%d:%d) in text of length %d: %s",
		e.StartPos, e.EndPos, e.TextLen, e.Reason)
}

// UnknownLabelError reports an entity type with no configured anonymization
// label and no default. It is surfaced before any output is written, since
// a partially anonymized document is worse than none.
type UnknownLabelError struct {
	Label string
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("no anonymization label configured for entity type %q", e.Label)
}

// CorruptMappingError reports malformed or internally inconsistent persisted
// mapping data. Loading aborts entirely; a partial mapping must never be
// used for restoration.
type CorruptMappingError struct {
	Source string
	Reason string
}

func (e *CorruptMappingError) Error() string {
	return fmt.Sprintf("corrupt mapping data in %s: %s", e.Source, e.Reason)
}

// UnresolvedTokenError reports a token-looking region of pseudonymized text
// with no entry in the loaded mapping. It is collected as a diagnostic
// rather than raised: partial mapping files are a realistic operator
// scenario and callers need the best-effort restored text for audit.
type UnresolvedTokenError struct {
	Token    string
	StartPos int
	EndPos   int
}

func (e *UnresolvedTokenError) Error() string {
	return fmt.Sprintf("no mapping entry for token %q at [%d:%d)", e.Token, e.StartPos, e.EndPos)
}
