package ledger

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize returns the canonical comparison form of human-entered text:
// diacritics removed, lowercased, whitespace collapsed to single spaces.
// Idempotent and total; the empty string maps to itself.
func Normalize(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		// Removing combining marks cannot fail on valid UTF-8; fall back to
		// the raw input for anything else.
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}
