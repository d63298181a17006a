package pii

import "strings"

// Identity is the canonical key deciding whether two entity occurrences
// refer to the same real-world value. Two spans share one pseudonym exactly
// when their identities are equal.
type Identity struct {
	Norm  string
	Label string
}

// IdentityOf normalizes the surface text and pairs it with the entity type.
// Normalization lower-cases (Unicode-aware), trims surrounding whitespace
// and collapses internal whitespace runs to a single space. Accents are
// deliberately not folded: "Rene" and "René" stay distinct identities.
func IdentityOf(text, label string) Identity {
	return Identity{
		Norm:  strings.Join(strings.Fields(strings.ToLower(text)), " "),
		Label: label,
	}
}

// key returns the map key for the identity. The unit separator cannot
// appear in Norm (it is whitespace-collapsed away), so keys are unambiguous.
func (id Identity) key() string {
	return id.Norm + "\x1f" + id.Label
}
