// Package titlenorm builds comparison keys for release and library titles.
//
// Every function here is total: blank input yields "" (or an empty slice)
// and no input panics.
package titlenorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// leadingArticles are dropped by NormalizeLoose and by the article variant.
var leadingArticles = map[string]bool{
	"the": true, "a": true, "an": true,
	"le": true, "la": true, "les": true, "l": true,
}

// fold decomposes s and drops combining marks, so "é" becomes "e".
func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeStrict lowercases title, strips diacritics, replaces every rune
// that is not a letter or digit with a space and collapses whitespace.
// It is idempotent.
func NormalizeStrict(title string) string {
	if strings.TrimSpace(title) == "" {
		return ""
	}
	// Folding twice catches letters whose lowercase form decomposes differently.
	s := fold(strings.ToLower(fold(title)))

	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// NormalizeLoose is the strict form without a leading article and without
// spaces: "The Matrix" and "matrix" share the key "matrix".
func NormalizeLoose(title string) string {
	words := strings.Fields(NormalizeStrict(title))
	if len(words) > 1 && leadingArticles[words[0]] {
		words = words[1:]
	}
	return strings.Join(words, "")
}

// Slug converts a normalized key to the hyphenated form used by library
// managers, e.g. "the lantern office" -> "the-lantern-office".
func Slug(key string) string {
	return strings.Join(strings.Fields(key), "-")
}

// BuildVariants returns the strict key first, then deterministic alternates
// that raise match recall: ampersands spelled out or dropped, apostrophes
// removed instead of split, the leading article dropped and the loose form.
// The result is ordered, contains no duplicates and never contains "".
func BuildVariants(title string) []string {
	strict := NormalizeStrict(title)
	if strict == "" {
		return nil
	}

	out := make([]string, 0, 6)
	seen := make(map[string]bool, 6)
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	add(strict)

	lower := strings.ToLower(title)
	add(NormalizeStrict(strings.ReplaceAll(lower, "&", " and ")))
	add(dropWord(strict, "and"))

	for _, apos := range []string{"'", "’", "`"} {
		lower = strings.ReplaceAll(lower, apos, "")
	}
	add(NormalizeStrict(lower))

	if words := strings.Fields(strict); len(words) > 1 && leadingArticles[words[0]] {
		add(strings.Join(words[1:], " "))
	}

	add(NormalizeLoose(title))

	return out
}

func dropWord(key, word string) string {
	words := strings.Fields(key)
	kept := words[:0:0]
	for _, w := range words {
		if w != word {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, " ")
}
