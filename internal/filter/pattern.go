package filter

import (
	"regexp"
	"strings"
)

// LiteralToAnchoredPattern escapes every metacharacter in s and anchors it so the
// resulting case-insensitive pattern matches only strings equal to s once both
// sides are trimmed and case-folded.
func LiteralToAnchoredPattern(s string) string {
	return `(?i)^` + space + `*` + regexp.QuoteMeta(strings.TrimSpace(s)) + space + `*$`
}

// space is the set unicode.IsSpace accepts, so stored values are trimmed the
// same way user input is.
const space = `[\s\v\x{85}\p{Z}]`

// Anchored returns a clause matching field values equal to literal, ignoring case
// and surrounding whitespace.
func Anchored(field, literal string) Pattern {
	return Pattern{Field: field, Regexp: regexp.MustCompile(LiteralToAnchoredPattern(literal))}
}

// AnyAnchored matches field values equal to any of literals, as Anchored does.
func AnyAnchored(field string, literals []string) Expr {
	or := make(Or, 0, len(literals))
	for _, l := range literals {
		or = append(or, Anchored(field, l))
	}
	if len(or) == 1 {
		return or[0]
	}
	return or
}

// Contains returns a case-insensitive substring clause. text is used as a pattern
// so callers may pass partial expressions; when it does not compile it is matched
// literally instead.
func Contains(field, text string) Pattern {
	re, err := regexp.Compile("(?i)" + text)
	if err != nil {
		re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(text))
	}
	return Pattern{Field: field, Regexp: re}
}
