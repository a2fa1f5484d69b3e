package export

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"edugen/internal/domain"
)

var dStroke = strings.NewReplacer("đ", "d", "Đ", "D")

// Fold removes diacritics, e.g. "Bài Kiểm Tra" becomes "Bai Kiem Tra".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, dStroke.Replace(s))
	if err != nil {
		return s
	}
	return out
}

// Slug builds a lowercase ASCII identifier from s.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(Fold(s)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if len(out) > 80 {
		out = strings.TrimSuffix(out[:80], "-")
	}
	return out
}

// KindLabel is the human-readable name of kind, e.g. "Lesson Plan".
func KindLabel(kind domain.Kind) string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(kind), "_", " "))
}
