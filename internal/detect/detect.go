// Package detect infers build, test, and lint commands from project markers
// so a run can start in a repository with no medic.yaml.
package detect

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Result holds the inferred toolchain commands. Empty fields mean nothing
// was inferred for that concern.
type Result struct {
	Ecosystem    string   `json:"ecosystem"`
	BuildCommand string   `json:"build_command,omitempty"`
	TestCommand  string   `json:"test_command,omitempty"`
	LintCommand  string   `json:"lint_command,omitempty"`
	Reasons      []string `json:"reasons"`
}

// packageJSON is the subset of package.json we inspect.
type packageJSON struct {
	Scripts map[string]string `json:"scripts"`
}

// Commands inspects the project root and infers commands. Detection is
// first-match by marker file; a project with both go.mod and package.json is
// treated as a Go project.
func Commands(root string) *Result {
	result := &Result{Reasons: []string{}}

	switch {
	case exists(root, "go.mod"):
		result.Ecosystem = "go"
		result.BuildCommand = "go build ./..."
		result.TestCommand = "go test ./..."
		result.LintCommand = "go vet ./..."
		result.Reasons = append(result.Reasons, "found go.mod")

	case exists(root, "package.json"):
		result.Ecosystem = "node"
		result.Reasons = append(result.Reasons, "found package.json")
		detectNodeScripts(root, result)

	case exists(root, "Cargo.toml"):
		result.Ecosystem = "rust"
		result.BuildCommand = "cargo build"
		result.TestCommand = "cargo test"
		result.LintCommand = "cargo clippy"
		result.Reasons = append(result.Reasons, "found Cargo.toml")

	case exists(root, "pyproject.toml"), exists(root, "setup.py"):
		result.Ecosystem = "python"
		result.BuildCommand = "python -m compileall ."
		result.TestCommand = "pytest"
		result.Reasons = append(result.Reasons, "found Python project files")

	case exists(root, "Makefile"):
		result.Ecosystem = "make"
		result.BuildCommand = "make"
		result.TestCommand = "make test"
		result.Reasons = append(result.Reasons, "found Makefile")
	}

	return result
}

// detectNodeScripts reads package.json scripts and maps the conventional
// entries. A script name present in the file wins over the generic fallback.
func detectNodeScripts(root string, result *Result) {
	result.BuildCommand = "npm run build"
	result.TestCommand = "npm test"

	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return
	}

	if _, ok := pkg.Scripts["build"]; !ok {
		// No build script: type-check or fall back to nothing to build.
		if _, ok := pkg.Scripts["compile"]; ok {
			result.BuildCommand = "npm run compile"
		} else {
			result.BuildCommand = ""
			result.Reasons = append(result.Reasons, "package.json has no build script")
		}
	}
	if _, ok := pkg.Scripts["test"]; !ok {
		result.TestCommand = ""
		result.Reasons = append(result.Reasons, "package.json has no test script")
	}
	if _, ok := pkg.Scripts["lint"]; ok {
		result.LintCommand = "npm run lint"
		result.Reasons = append(result.Reasons, "package.json has a lint script")
	}
}

func exists(root, name string) bool {
	_, err := os.Stat(filepath.Join(root, name))
	return err == nil
}
