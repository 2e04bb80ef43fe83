package utils

import (
	"strings"
	"unicode"
)

// latinFold maps ranges of accented Latin-1 letters to their base letter
var latinFold = []struct {
	lo, hi rune
	to     rune
}{
	{'\u00c0', '\u00c5', 'A'},
	{'\u00e0', '\u00e5', 'a'},
	{'\u00c7', '\u00c7', 'C'},
	{'\u00e7', '\u00e7', 'c'},
	{'\u00c8', '\u00cb', 'E'},
	{'\u00e8', '\u00eb', 'e'},
	{'\u00cc', '\u00cf', 'I'},
	{'\u00ec', '\u00ef', 'i'},
	{'\u00d1', '\u00d1', 'N'},
	{'\u00f1', '\u00f1', 'n'},
	{'\u00d2', '\u00d6', 'O'},
	{'\u00f2', '\u00f6', 'o'},
	{'\u00d9', '\u00dc', 'U'},
	{'\u00f9', '\u00fc', 'u'},
}

// SanitizeFilename turns a client supplied filename into a single object key
// segment: printable ASCII only, accented Latin letters folded to their base
// letter, and path separators and anything else replaced with '-'.
func SanitizeFilename(filename string) string {
	var b strings.Builder
	b.Grow(len(filename))

	for _, r := range filename {
		switch {
		case r == '/' || r == '\\':
			b.WriteByte('-')
		case r < unicode.MaxASCII && unicode.IsPrint(r):
			b.WriteRune(r)
		default:
			b.WriteRune(fold(r))
		}
	}

	return strings.TrimSpace(b.String())
}

func fold(r rune) rune {
	for _, f := range latinFold {
		if r >= f.lo && r <= f.hi {
			return f.to
		}
	}
	return '-'
}
