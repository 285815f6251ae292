// Package textlimit caps inbound and outbound text at a character ceiling.
// Characters are Unicode code points, so a cut never splits a UTF-8 sequence.
package textlimit

import "unicode/utf8"

// Truncate returns the first maxChars characters of text. No marker is
// appended. A ceiling of zero or less yields the empty string.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}

	n := 0
	for i := range text {
		if n == maxChars {
			return text[:i]
		}
		n++
	}
	return text
}
