// Package items recognizes and canonicalizes 10-K section markers ("ITEM 7A.").
package items

import (
	"regexp"
	"strings"
)

// MarkerPattern is the loose section-marker pattern used while walking the
// document tree and when deciding whether a table is really narrative.
// Group 1 holds the marker without trailing punctuation.
var MarkerPattern = regexp.MustCompile(`(?i)\b(ITEM\s*\d{1,2}[A-Z]?)\b\s*[.:]?`)

// SplitPattern locates section boundaries in extracted narrative text.
// Group 1 holds the item number and optional letter.
var SplitPattern = regexp.MustCompile(`(?i)\bITEM\s+(\d{1,2}[A-Z]?)\b[.:]?`)

var (
	trailingPunct = regexp.MustCompile(`[.:]\s*$`)
	whitespaceRun = regexp.MustCompile(`\s+`)
	itemPrefix    = regexp.MustCompile(`^ITEM\s*`)
	canonical     = regexp.MustCompile(`^ITEM (\d{1,2})([A-Z]?)$`)
)

// Normalize canonicalizes a raw marker such as "item 7a." into "Item 7A".
// A bare item number such as "7A" is accepted and given the ITEM prefix.
// It reports false for anything that is not exactly a one or two digit item
// number with an optional single letter.
func Normalize(raw string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = trailingPunct.ReplaceAllString(s, "")
	s = strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
	s = "ITEM " + itemPrefix.ReplaceAllString(s, "")

	m := canonical.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return "Item " + m[1] + m[2], true
}

// NormalizeSubmatch normalizes a FindStringSubmatch result, preferring the
// first capture group when the pattern defines one.
func NormalizeSubmatch(m []string) (string, bool) {
	if len(m) == 0 {
		return "", false
	}
	raw := m[0]
	if len(m) > 1 && m[1] != "" {
		raw = m[1]
	}
	return Normalize(raw)
}

// Find returns the canonical code of the first marker in text.
func Find(text string) (string, bool) {
	return NormalizeSubmatch(MarkerPattern.FindStringSubmatch(text))
}

// FindLast returns the canonical code of the last marker in text that
// normalizes.
func FindLast(text string) (string, bool) {
	ms := MarkerPattern.FindAllStringSubmatch(text, -1)
	for i := len(ms) - 1; i >= 0; i-- {
		if code, ok := NormalizeSubmatch(ms[i]); ok {
			return code, true
		}
	}
	return "", false
}

// Contains reports whether text mentions a section marker anywhere.
func Contains(text string) bool {
	return MarkerPattern.MatchString(text)
}
