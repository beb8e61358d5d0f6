package logger

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxLoggedLen = 512

// SanitizeForLog escapes control characters so that ids, paths and encoder
// output cannot forge log entries or move the terminal cursor. Printable
// Unicode is preserved. Values longer than 512 bytes are cut with an
// ellipsis marker.
func SanitizeForLog(s string) string {
	s, truncated := Truncate(s, maxLoggedLen)

	var result strings.Builder
	result.Grow(len(s))

	for _, r := range s {
		switch r {
		case '\n':
			result.WriteString("\\n")
		case '\r':
			result.WriteString("\\r")
		case '\t':
			result.WriteString("\\t")
		default:
			if r < 32 || r == 127 {
				result.WriteString(fmt.Sprintf("\\x%02x", r))
			} else {
				result.WriteRune(r)
			}
		}
	}
	if truncated {
		result.WriteString("...")
	}
	return result.String()
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
// It reports whether anything was cut.
func Truncate(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n], true
}
