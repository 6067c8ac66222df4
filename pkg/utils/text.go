// Package utils provides shared helpers for text, math, and logging.
package utils

// Truncate shortens s to at most max runes and appends "..." when anything
// was cut. Counting runes rather than bytes keeps multibyte characters
// intact in previews. A non-positive max returns s unchanged.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	seen := 0
	for i := range s {
		if seen == max {
			return s[:i] + "..."
		}
		seen++
	}
	return s
}
