package pii

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// minTokenHex is the initial hash-suffix length of a pseudonym token.
const minTokenHex = 8

// Generator produces substitute tokens for pseudonymization.
//
// A token has the form LABEL_hhhhhhhh where the suffix is a prefix of the
// SHA-256 digest of the identity, so the same (normalized text, type) pair
// always yields the same token regardless of encounter order. On a clash
// with an already-taken token the suffix grows four hex digits at a time,
// then falls back to a numeric probe. Tokens never contain '[' or ']', the
// delimiters conventionally used by anonymization labels, so a pseudonym
// and a fixed label are distinguishable by format alone.
type Generator struct{}

// NewGenerator creates a pseudonym generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate returns a token for the identity that is not present in taken.
func (g *Generator) Generate(id Identity, taken map[string]struct{}) string {
	sum := sha256.Sum256([]byte(id.key()))
	digest := hex.EncodeToString(sum[:])
	prefix := labelComponent(id.Label)

	for n := minTokenHex; n <= len(digest); n += 4 {
		token := prefix + "_" + digest[:n]
		if _, exists := taken[token]; !exists {
			return token
		}
	}

	// Full digest taken too; a numeric probe terminates the search.
	for i := 2; ; i++ {
		token := fmt.Sprintf("%s_%s_%d", prefix, digest, i)
		if _, exists := taken[token]; !exists {
			return token
		}
	}
}

// labelComponent maps an open-ended entity type tag to the token prefix:
// upper-cased, with runs of non-alphanumeric characters collapsed to one
// underscore. An empty or fully non-alphanumeric label becomes ENTITY.
func labelComponent(label string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToUpper(label) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		} else {
			pendingSep = true
		}
	}
	if b.Len() == 0 {
		return "ENTITY"
	}
	return b.String()
}
