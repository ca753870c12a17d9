package safety

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WithinRoot resolves path relative to root and returns the absolute,
// symlink-resolved location, or an error if the resolved path escapes the
// root. Both `../` traversal and symlinks inside the root that point outside
// it are rejected: the deepest existing ancestor of the target is resolved
// through filepath.EvalSymlinks before the containment check.
func WithinRoot(root string, path string) (string, error) {
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains NUL byte")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(absRoot, target)
	}
	target = filepath.Clean(target)

	// The target itself may not exist yet (new file from an edit), so resolve
	// the deepest existing ancestor and re-append the remainder.
	resolved, err := resolveExisting(target)
	if err != nil {
		return "", err
	}

	if resolved != realRoot && !strings.HasPrefix(resolved, realRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes project root %q", path, root)
	}
	return resolved, nil
}

// resolveExisting walks up from target until it finds an existing directory,
// resolves that through EvalSymlinks, and joins the non-existing remainder
// back on.
func resolveExisting(target string) (string, error) {
	var rest []string
	dir := target
	for {
		if _, err := os.Lstat(dir); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		rest = append([]string{filepath.Base(dir)}, rest...)
		dir = parent
	}

	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	if len(rest) == 0 {
		return real, nil
	}
	return filepath.Join(append([]string{real}, rest...)...), nil
}
