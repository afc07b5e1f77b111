package utils

import "unicode/utf8"

// TruncateText cuts s to at most limit bytes without splitting a multibyte
// rune; the cut backs up to the nearest rune boundary.
func TruncateText(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
