// Package textnorm folds case and diacritics so page labels such as
// "Ciências da Natureza" can be found regardless of accents.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize decomposes s (NFD), drops combining marks and lower-cases the
// result. It is meant for label search only; values must be read from the
// original text.
func Normalize(s string) string {
	// transform.Chain is stateful, so each call builds its own.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}
