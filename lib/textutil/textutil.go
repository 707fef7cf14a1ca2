package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// apostrophes glue a name together ("D'Ávila" -> "davila") instead of splitting it
var apostrophes = map[rune]struct{}{
	'\'': {}, '’': {}, '‘': {}, '`': {}, '´': {},
}

func foldMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// NormalizeName puts a display name into the canonical form used for comparison:
// lowercase, no diacritics, punctuation replaced by spaces and whitespace collapsed.
// It is idempotent and maps "" to "".
func NormalizeName(name string) string {
	name = foldMarks(strings.ToLower(name))

	var out strings.Builder
	out.Grow(len(name))
	for _, r := range name {
		if _, ok := apostrophes[r]; ok {
			continue
		}
		switch {
		case unicode.IsMark(r):
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			out.WriteRune(unicode.ToLower(r))
		default:
			out.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(out.String()), " ")
}

// Tokens splits an already normalized name into its words.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}
