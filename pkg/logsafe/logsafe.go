// Package logsafe renders attacker-controlled strings (paths, header
// values, user agents) safely for structured logs: control bytes and ANSI
// escape sequences are replaced so a hostile request cannot corrupt a
// terminal or forge log lines.
package logsafe

import (
	"strings"
)

const DefaultMaxLength = 256

// String sanitizes s and truncates it to maxLen (with an ellipsis when
// truncated). maxLen <= 0 disables truncation.
func String(s string, maxLen int) string {
	sanitized := scrub(s)

	if maxLen > 0 && len(sanitized) > maxLen {
		if maxLen > 3 {
			return sanitized[:maxLen-3] + "..."
		}
		return sanitized[:maxLen]
	}
	return sanitized
}

// scrub replaces control characters with printable markers. The common
// case (clean string) returns the input without allocating.
func scrub(s string) string {
	clean := true
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7F {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	i := 0
	for i < len(s) {
		c := s[i]

		// swallow ANSI CSI sequences whole
		if c == 0x1B && i+1 < len(s) && s[i+1] == '[' {
			i += 2
			for i < len(s) && !isCSITerminator(s[i]) {
				i++
			}
			if i < len(s) {
				i++
			}
			b.WriteString("[ESC]")
			continue
		}

		switch {
		case c == '\t', c == '\n':
			b.WriteByte(' ')
		case c == '\r':
			b.WriteString("[CR]")
		case c < 0x20:
			b.WriteString("[CTRL]")
		case c == 0x7F:
			b.WriteString("[DEL]")
		default:
			b.WriteByte(c)
		}
		i++
	}

	return b.String()
}

func isCSITerminator(c byte) bool {
	return c >= 0x40 && c <= 0x7E
}
