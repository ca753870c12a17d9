package oracle

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/lucasnoah/buildmedic/internal/safety"
)

// fileLinePattern matches file:line references as emitted by most compilers
// and test runners (main.go:42, src/app.ts:10:5, ./lib/x.c:7).
var fileLinePattern = regexp.MustCompile(`(?m)(?:^|[\s("'])((?:\./)?[\w./-]+\.\w{1,5}):(\d+)`)

const (
	excerptRadius   = 10
	maxExcerptFiles = 5
	maxContextBytes = 16 * 1024
)

// SourceContext builds bounded source excerpts around the file:line
// references found in failure logs. Paths are resolved through the safety
// layer; references outside the project root are skipped.
func SourceContext(projectRoot, logs string) string {
	matches := fileLinePattern.FindAllStringSubmatch(logs, -1)
	if len(matches) == 0 {
		return ""
	}

	var b strings.Builder
	seen := make(map[string]bool)
	for _, m := range matches {
		if len(seen) >= maxExcerptFiles || b.Len() >= maxContextBytes {
			break
		}
		file := strings.TrimPrefix(m[1], "./")
		line, _ := strconv.Atoi(m[2])
		key := fmt.Sprintf("%s:%d", file, line)
		if seen[key] {
			continue
		}
		seen[key] = true

		resolved, err := safety.WithinRoot(projectRoot, file)
		if err != nil {
			continue
		}
		excerpt := readExcerpt(resolved, line)
		if excerpt == "" {
			continue
		}
		fmt.Fprintf(&b, "--- %s (around line %d) ---\n%s\n", file, line, excerpt)
	}
	out := b.String()
	if len(out) > maxContextBytes {
		out = out[:maxContextBytes] + "\n... (context truncated)"
	}
	return out
}

// readExcerpt returns numbered lines within excerptRadius of the given line.
func readExcerpt(path string, line int) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	lines := strings.Split(string(data), "\n")
	start := line - 1 - excerptRadius
	if start < 0 {
		start = 0
	}
	end := line + excerptRadius
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return ""
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&b, "%4d| %s\n", i+1, lines[i])
	}
	return b.String()
}
