package face

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeLabel returns the canonical form of an identity label:
// trimmed, inner whitespace collapsed, Unicode NFC.
// Visually identical labels typed on different devices map to the same identity.
func NormalizeLabel(label string) string {
	label = norm.NFC.String(label)
	return strings.Join(strings.Fields(label), " ")
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// FoldLabel returns a loose comparison key (lowercase, no diacritics, dashes as spaces).
// Two labels with the same key are likely the same person typed differently.
func FoldLabel(label string) string {
	label = RemoveDiacritics(NormalizeLabel(label))
	label = strings.ToLower(label)
	label = strings.ReplaceAll(label, "-", " ")
	return strings.Join(strings.Fields(label), " ")
}
