//go:build unix

package shellregistry

import (
	"regexp"
	"strings"

	"github.com/agentplus/hbagent/internal/ansi"
)

var driveLetterCwd = regexp.MustCompile(`^[A-Z]:\\`)

// extractCwd looks for a trailing path line in data, as produced by the
// `; pwd` suffix the Task Executor appends to every normalized command. If
// found, it returns the detected path and data with that line elided;
// otherwise it returns ("", data) unchanged.
//
// This is a heuristic, not a protocol: a command whose own output happens
// to end in a line starting with '/' will be misread as a cwd change. The
// candidate line is checked with ANSI escapes stripped, since an
// interactive shell's prompt machinery can color or otherwise decorate the
// `pwd` line before it reaches the PTY reader; the elision itself still
// operates on the original (decorated) line so escape sequences that
// legitimately belong to the rest of the output survive.
func extractCwd(data []byte) (string, []byte) {
	lines := strings.Split(string(data), "\n")

	lastIdx := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			lastIdx = i
			break
		}
	}

	if lastIdx < 0 {
		return "", data
	}

	rawLine := strings.TrimRight(lines[lastIdx], "\r")
	candidate := strings.TrimSpace(ansi.Strip(rawLine))

	if !strings.HasPrefix(candidate, "/") && !driveLetterCwd.MatchString(candidate) {
		return "", data
	}

	lines[lastIdx] = strings.Replace(rawLine, candidate, "", 1)

	return candidate, []byte(strings.Join(lines, "\n"))
}
