package feed

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var titleSeparators = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// NormalizeTitle folds a display title for fuzzy comparison: accents are
// stripped, non-Latin scripts are transliterated to ASCII, case is lowered
// and every run of punctuation, whitespace or underscores becomes a single
// space.
func NormalizeTitle(title string) string {
	if title == "" {
		return ""
	}

	text := title

	// transform.Chain keeps internal buffers, so it is built per call.
	stripMarks := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(stripMarks, text); err == nil {
		text = folded
	}

	// Covers letters without a decomposition (ß, ø, ł) and Cyrillic or Greek.
	text = unidecode.Unidecode(text)

	text = strings.ToLower(text)
	text = titleSeparators.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}
