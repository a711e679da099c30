package taskexec

import (
	"encoding/json"
	"regexp"
	"strings"
)

var redirectOperator = regexp.MustCompile(`\s*(>>?)\s*`)

// normalizeCommand turns a raw server-supplied command string into the
// exact bytes written to the shell's PTY. Every quirk here exists because
// the server's command strings are free-form and need to survive transport
// and quoting round trips intact; this is kept as one function so the
// whole transform can be read (and tested) in one place.
func normalizeCommand(raw string) string {
	cmd := raw

	if strings.HasPrefix(cmd, `"`) {
		var decoded string
		if err := json.Unmarshal([]byte(cmd), &decoded); err == nil {
			cmd = decoded
		}
	}

	cmd = strings.ReplaceAll(cmd, `\"`, `"`)
	cmd = strings.ReplaceAll(cmd, `\'`, `'`)

	if strings.HasPrefix(cmd, "echo") && strings.Contains(cmd, ">") {
		cmd = redirectOperator.ReplaceAllString(cmd, " $1 ")
	}

	if strings.Contains(cmd, "\n") {
		cmd = collapseNewlines(cmd)
	}

	return cmd + "; pwd\n"
}

func collapseNewlines(cmd string) string {
	parts := strings.Split(cmd, "\n")
	segs := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			segs = append(segs, p)
		}
	}

	return strings.Join(segs, "; ")
}
