// Package canon turns free review text into its canonical form: single-spaced,
// ASCII quotes and dashes, and emoji spelled out as bracketed descriptions.
// Every function is pure and applying Canonicalize twice is the same as once.
package canon

import (
	"strings"
	"unicode"
)

var punctuation = strings.NewReplacer(
	"\u201c", `"`, "\u201d", `"`, "\u201e", `"`, "\u00ab", `"`, "\u00bb", `"`,
	"\u2018", "'", "\u2019", "'", "\u201a", "'", "`", "'",
	"\u2013", "-", "\u2014", "-", "\u2015", "-",
)

// Canonicalize applies whitespace collapsing, punctuation standardization and
// emoji description, in that order.
func Canonicalize(text string) string {
	if text == "" {
		return ""
	}
	text = NormalizeWhitespace(text)
	text = StandardizePunctuation(text)
	return DescribeEmoji(text)
}

// NormalizeWhitespace collapses every run of Unicode whitespace to a single
// space and trims both ends.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " ")
}

// StandardizePunctuation maps typographic quotes and dashes to ASCII.
func StandardizePunctuation(text string) string {
	return punctuation.Replace(text)
}
