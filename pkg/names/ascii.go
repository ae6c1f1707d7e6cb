// Package names normalizes submitted business names for storage and
// comparison. The registry of record only accepts uppercase ASCII, so
// accented characters are folded and anything unrepresentable is dropped.
package names

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var asciiFold = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
	norm.NFC,
)

// ToASCII folds accented characters to their ASCII base and strips anything
// that has no ASCII representation. Whitespace is collapsed to single spaces.
func ToASCII(s string) string {
	folded, _, err := transform.String(asciiFold, s)
	if err != nil {
		// Fall back to dropping non-ASCII bytes outright.
		var b strings.Builder
		for _, r := range s {
			if r <= unicode.MaxASCII {
				b.WriteRune(r)
			}
		}
		folded = b.String()
	}
	return strings.Join(strings.Fields(folded), " ")
}

// Normalize prepares a name choice for persistence: ASCII fold, trim, and
// uppercase. Empty input stays empty.
func Normalize(name string) string {
	return strings.ToUpper(ToASCII(strings.TrimSpace(name)))
}

// SearchBlob builds the packed name-search column value used for substring
// matching across choices: "|1<name 1>1||2<name 2>2|" and so on. The markers
// keep a match from spanning two names.
func SearchBlob(choices map[int]string) string {
	var b strings.Builder
	for choice := 1; choice <= 3; choice++ {
		name, ok := choices[choice]
		if !ok || name == "" {
			continue
		}
		d := digit(choice)
		b.WriteString("|")
		b.WriteByte(d)
		b.WriteString(name)
		b.WriteByte(d)
		b.WriteString("|")
	}
	return b.String()
}

func digit(n int) byte {
	return byte('0' + n)
}
