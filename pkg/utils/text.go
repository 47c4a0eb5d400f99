// Package utils provides shared text and logging helpers.
package utils

// Truncate shortens s to at most maxRunes runes and appends "..." when it cut
// anything. A non-positive maxRunes returns s unchanged.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}
