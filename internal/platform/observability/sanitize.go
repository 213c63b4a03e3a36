package observability

import (
	"strings"
	"unicode"
)

// logSafe drops control characters from request-supplied values and caps them at
// limit runes before they reach a log field.
func logSafe(value string, limit int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if runes := []rune(cleaned); len(runes) > limit {
		return string(runes[:limit])
	}
	return cleaned
}
