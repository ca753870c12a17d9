package safety

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestWithinRootAllowsRelative(t *testing.T) {
	root := t.TempDir()
	got, err := WithinRoot(root, "src/main.go")
	if err != nil {
		t.Fatalf("WithinRoot: %v", err)
	}
	if !strings.HasSuffix(got, filepath.Join("src", "main.go")) {
		t.Errorf("resolved to %q", got)
	}
}

func TestWithinRootRejectsDotDotEscape(t *testing.T) {
	root := t.TempDir()
	if _, err := WithinRoot(root, "../outside.txt"); err == nil {
		t.Error("expected error for ../ escape")
	}
	if _, err := WithinRoot(root, "a/b/../../../etc/passwd"); err == nil {
		t.Error("expected error for nested ../ escape")
	}
}

func TestWithinRootRejectsAbsoluteEscape(t *testing.T) {
	root := t.TempDir()
	if _, err := WithinRoot(root, "/etc/passwd"); err == nil {
		t.Error("expected error for absolute path outside root")
	}
}

func TestWithinRootAllowsAbsoluteInside(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "pkg", "util.go")
	if _, err := WithinRoot(root, inside); err != nil {
		t.Errorf("WithinRoot: %v", err)
	}
}

func TestWithinRootRejectsNUL(t *testing.T) {
	root := t.TempDir()
	if _, err := WithinRoot(root, "file\x00.go"); err == nil {
		t.Error("expected error for NUL byte")
	}
}

func TestWithinRootRejectsSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks not reliable on windows")
	}
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "sneaky")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	if _, err := WithinRoot(root, "sneaky/file.txt"); err == nil {
		t.Error("expected error for symlink pointing outside root")
	}
}

func TestWithinRootRootItself(t *testing.T) {
	root := t.TempDir()
	got, err := WithinRoot(root, ".")
	if err != nil {
		t.Fatalf("WithinRoot: %v", err)
	}
	real, _ := filepath.EvalSymlinks(root)
	if got != real {
		t.Errorf("got %q, want %q", got, real)
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "'hello'"},
		{"", "''"},
		{"a b", "'a b'"},
		{"it's", `'it'\''s'`},
		{"$HOME", "'$HOME'"},
		{"`rm -rf /`", "'`rm -rf /`'"},
	}
	for _, tt := range tests {
		if got := ShellQuote(tt.in); got != tt.want {
			t.Errorf("ShellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscapeCommitMessage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"fix build", "fix build"},
		{`say "hi"`, `say \"hi\"`},
		{"cost $5", `cost \$5`},
		{"run `ls`", "run \\`ls\\`"},
		{`back\slash`, `back\\slash`},
		{"line1\nline2", "line1\nline2"},
		{"bell\x07ring", "bellring"},
		{"esc\x1b[31m", "esc[31m"},
	}
	for _, tt := range tests {
		if got := EscapeCommitMessage(tt.in); got != tt.want {
			t.Errorf("EscapeCommitMessage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSecureCompare(t *testing.T) {
	if !SecureCompare("abc", "abc") {
		t.Error("equal tokens should compare true")
	}
	if SecureCompare("abc", "ab") {
		t.Error("prefix should compare false")
	}
	if SecureCompare("abc", "abd") {
		t.Error("different tokens should compare false")
	}
	if !SecureCompare("", "") {
		t.Error("empty tokens should compare true")
	}
}

func TestClampInt(t *testing.T) {
	if got := ClampInt(5, 0, 10); got != 5 {
		t.Errorf("ClampInt(5,0,10) = %d", got)
	}
	if got := ClampInt(-1, 0, 10); got != 0 {
		t.Errorf("ClampInt(-1,0,10) = %d", got)
	}
	if got := ClampInt(99, 0, 10); got != 10 {
		t.Errorf("ClampInt(99,0,10) = %d", got)
	}
}

func TestCoerceBool(t *testing.T) {
	tests := []struct {
		raw  string
		def  bool
		want bool
	}{
		{"1", false, true},
		{"true", false, true},
		{"YES", false, true},
		{" on ", false, true},
		{"0", true, false},
		{"false", true, false},
		{"No", true, false},
		{"garbage", true, true},
		{"garbage", false, false},
		{"", true, true},
	}
	for _, tt := range tests {
		if got := CoerceBool(tt.raw, tt.def); got != tt.want {
			t.Errorf("CoerceBool(%q, %v) = %v, want %v", tt.raw, tt.def, got, tt.want)
		}
	}
}

func TestCheckProjectRoot(t *testing.T) {
	if err := CheckProjectRoot("/srv/app"); err != nil {
		t.Errorf("absolute path rejected: %v", err)
	}
	if err := CheckProjectRoot("relative/path"); err == nil {
		t.Error("relative path accepted")
	}
	if err := CheckProjectRoot(""); err == nil {
		t.Error("empty path accepted")
	}
	if err := CheckProjectRoot("/srv/\x00app"); err == nil {
		t.Error("NUL byte accepted")
	}
}

func TestCheckHTTPURL(t *testing.T) {
	if err := CheckHTTPURL("https://example.com/hook"); err != nil {
		t.Errorf("https rejected: %v", err)
	}
	if err := CheckHTTPURL("http://localhost:3000"); err != nil {
		t.Errorf("http rejected: %v", err)
	}
	if err := CheckHTTPURL("file:///etc/passwd"); err == nil {
		t.Error("file scheme accepted")
	}
	if err := CheckHTTPURL("javascript:alert(1)"); err == nil {
		t.Error("javascript scheme accepted")
	}
}
