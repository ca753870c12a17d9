package safety

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ClampInt bounds v to [min, max].
func ClampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// CoerceBool parses a loose boolean from untrusted input ("1"/"0",
// "true"/"false", "yes"/"no", any case). Unrecognized values fall back to
// def rather than erroring, matching the clamp-don't-throw posture of the
// other coercions.
func CoerceBool(raw string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

// CheckProjectRoot validates an untrusted project root path: it must be
// absolute and free of NUL bytes.
func CheckProjectRoot(path string) error {
	if path == "" {
		return fmt.Errorf("project root is required")
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("project root contains NUL byte")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("project root %q is not absolute", path)
	}
	return nil
}

// CheckHTTPURL validates an untrusted URL string, accepting only absolute
// http or https URLs.
func CheckHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme %q is not http(s)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}
