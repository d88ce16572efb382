package textutil

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize reduces a value to the comparison form shared by every matcher:
// diacritics are folded, case is folded, punctuation other than hyphens and
// underscores is dropped and whitespace runs collapse to a single space.
func Normalize(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	folded := foldCase(foldDiacritics(value))

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens splits the normalized value into words.
func Tokens(value string) []string {
	return strings.Fields(Normalize(value))
}

// SortedTokens returns the normalized tokens in lexical order joined by a
// single space, so "Liu Cixin" and "Cixin Liu" share one form.
func SortedTokens(value string) string {
	tokens := Tokens(value)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// TokenSet returns the distinct normalized tokens of value.
func TokenSet(value string) map[string]struct{} {
	tokens := Tokens(value)
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}

// Transformers and casers keep internal buffers, so each call builds its own.
func foldDiacritics(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}

func foldCase(value string) string {
	return cases.Fold().String(value)
}
