package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lucasnoah/buildmedic/internal/oracle"
	"github.com/lucasnoah/buildmedic/internal/safety"
)

// applyEdits writes oracle-suggested edits into the project tree. Edit
// targets are untrusted input: each path is resolved through the safety
// layer and edits that escape the project root are skipped with a warning,
// never applied. Returns the relative paths that were written.
func applyEdits(projectRoot string, edits []oracle.Edit, warnf func(format string, args ...interface{})) []string {
	var written []string
	for _, edit := range edits {
		resolved, err := safety.WithinRoot(projectRoot, edit.File)
		if err != nil {
			warnf("skipping unsafe edit target %q: %v", edit.File, err)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
			warnf("skipping edit %q: %v", edit.File, err)
			continue
		}
		if err := os.WriteFile(resolved, []byte(edit.Content), 0o644); err != nil {
			warnf("skipping edit %q: %v", edit.File, err)
			continue
		}
		rel, err := filepath.Rel(projectRoot, resolved)
		if err != nil {
			rel = edit.File
		}
		written = append(written, rel)
	}
	return written
}

// editSummary renders a short commit-message line for a fix attempt.
func editSummary(ordinal int, failureType string, files []string) string {
	if len(files) == 0 {
		return fmt.Sprintf("medic: fix attempt %d (%s failure)", ordinal, failureType)
	}
	return fmt.Sprintf("medic: fix attempt %d (%s failure, %d files)", ordinal, failureType, len(files))
}
