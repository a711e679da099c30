package ansi

import "strings"

// Strip removes ANSI escape sequences from a string. An escape sequence
// that is still unterminated at the end of s is kept as it is.
func Strip(s string) string {
	var b strings.Builder
	inEscape := false
	escStart := 0
	for i, r := range s {
		if r == '\x1b' {
			inEscape = true
			escStart = i
			continue
		}
		if inEscape {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
			continue
		}
		b.WriteRune(r)
	}
	if inEscape {
		b.WriteString(s[escStart:])
	}
	return b.String()
}
