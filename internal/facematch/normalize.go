package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldDiacritics strips combining marks so "Dvořáková" and "Dvorakova"
// land on the same search key.
func FoldDiacritics(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		return s
	}
	return folded
}

// NormalizeStudentName builds the key used for name search and namesake
// detection at registration. Hyphenated surnames match their spaced form.
func NormalizeStudentName(name string) string {
	name = strings.ToLower(FoldDiacritics(name))
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}
