package safety

import (
	"strings"
	"unicode"
)

// ShellQuote wraps s in single quotes so it is safe to splice into a shell
// command line. Embedded single quotes are closed, escaped, and reopened.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// EscapeCommitMessage sanitizes a commit message that will be passed through
// a shell: control characters are stripped, and backslash, backtick, dollar
// and double quote are escaped so the message cannot be interpreted as shell
// metacharacters.
func EscapeCommitMessage(msg string) string {
	var b strings.Builder
	b.Grow(len(msg))
	for _, r := range msg {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		switch r {
		case '\\', '`', '$', '"':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
