package detect

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDetectGoProject(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "go.mod", "module example.com/demo\n")

	r := Commands(dir)
	if r.Ecosystem != "go" {
		t.Fatalf("ecosystem = %q", r.Ecosystem)
	}
	if r.BuildCommand != "go build ./..." || r.TestCommand != "go test ./..." {
		t.Errorf("commands = %q/%q", r.BuildCommand, r.TestCommand)
	}
}

func TestGoWinsOverNode(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "go.mod", "module example.com/demo\n")
	writeFile(t, dir, "package.json", `{"scripts":{"build":"tsc"}}`)

	if r := Commands(dir); r.Ecosystem != "go" {
		t.Errorf("ecosystem = %q, want go", r.Ecosystem)
	}
}

func TestNodeScriptsRespected(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"scripts":{"build":"tsc","test":"jest","lint":"eslint ."}}`)

	r := Commands(dir)
	if r.Ecosystem != "node" {
		t.Fatalf("ecosystem = %q", r.Ecosystem)
	}
	if r.BuildCommand != "npm run build" || r.TestCommand != "npm test" || r.LintCommand != "npm run lint" {
		t.Errorf("commands = %q/%q/%q", r.BuildCommand, r.TestCommand, r.LintCommand)
	}
}

func TestNodeMissingScriptsDropped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"scripts":{}}`)

	r := Commands(dir)
	if r.BuildCommand != "" || r.TestCommand != "" {
		t.Errorf("commands = %q/%q, want empty", r.BuildCommand, r.TestCommand)
	}
}

func TestMakefileFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Makefile", "all:\n\ttrue\n")

	r := Commands(dir)
	if r.Ecosystem != "make" || r.BuildCommand != "make" {
		t.Errorf("result = %+v", r)
	}
}

func TestEmptyDirDetectsNothing(t *testing.T) {
	r := Commands(t.TempDir())
	if r.Ecosystem != "" || r.BuildCommand != "" {
		t.Errorf("result = %+v", r)
	}
}
