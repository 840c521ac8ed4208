package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeString trims s, drops control characters other than newline and
// tab, and cuts the result to at most maxLen bytes without splitting a rune.
// maxLen <= 0 disables the cut.
func SanitizeString(s string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, strings.TrimSpace(s))

	if maxLen <= 0 || len(cleaned) <= maxLen {
		return cleaned
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
		cut--
	}
	return strings.TrimSpace(cleaned[:cut])
}
