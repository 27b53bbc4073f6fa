package natsgath

import "strings"

// trimStrToRect cuts a string down to at most maxHeight lines of
// maxWidth characters, marking elisions with "...".
func trimStrToRect(s string, maxHeight, maxWidth int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > maxHeight {
		lines = append(lines[:maxHeight], "...")
	}
	for i, line := range lines {
		if len(line) > maxWidth {
			lines[i] = line[:maxWidth] + "..."
		}
	}
	return strings.Join(lines, "\n")
}
