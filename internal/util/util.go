// internal/util/util.go
package util

import (
	"strings"
	"unicode/utf8"
)

// Ellipsis marks text that was cut short.
const Ellipsis = "..."

// TruncateRunes cuts text to maxRunes characters, appending Ellipsis when it did.
func TruncateRunes(text string, maxRunes int) string {
	if maxRunes < 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes]) + Ellipsis
}

// SingleLine collapses whitespace runs, newlines included, into single spaces.
func SingleLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Excerpt renders text as one line of at most width characters.
func Excerpt(text string, width int) string {
	return TruncateRunes(SingleLine(text), width)
}
