// Package config loads medic.yaml, the per-project configuration file.
package config

import (
	"time"

	"github.com/lucasnoah/buildmedic/internal/pipeline"
)

// FileConfig is the on-disk shape of medic.yaml.
type FileConfig struct {
	Project ProjectConfig `yaml:"project"`
	Fix     FixConfig     `yaml:"fix"`
	Git     GitConfig     `yaml:"git"`
	Server  ServerConfig  `yaml:"server"`
	Watch   WatchConfig   `yaml:"watch"`
	Oracle  OracleConfig  `yaml:"oracle"`
}

// ProjectConfig names the project and the commands run against it.
type ProjectConfig struct {
	Root         string        `yaml:"root"`
	BuildCommand string        `yaml:"build_command"`
	TestCommand  string        `yaml:"test_command"`
	LintCommand  string        `yaml:"lint_command"`
	RunTests     *bool         `yaml:"run_tests"`
	RunLint      bool          `yaml:"run_lint"`
	Timeout      time.Duration `yaml:"timeout"`
}

// FixConfig controls the automatic repair loop.
type FixConfig struct {
	Enabled     *bool `yaml:"enabled"`
	MaxAttempts *int  `yaml:"max_attempts"`
}

// GitConfig controls checkpointing.
type GitConfig struct {
	Enabled     *bool `yaml:"enabled"`
	CommitFixes *bool `yaml:"commit_fixes"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	WebhookToken string `yaml:"webhook_token"`
}

// WatchConfig configures the file watcher.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	Ignore   []string      `yaml:"ignore"`
}

// OracleConfig configures the diagnosis backend. The API key itself is never
// stored in the file; APIKeyEnv names the environment variable holding it.
type OracleConfig struct {
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// RunConfig translates the file config into a pipeline run request.
func (c *FileConfig) RunConfig() pipeline.Config {
	return pipeline.Config{
		ProjectRoot:    c.Project.Root,
		BuildCommand:   c.Project.BuildCommand,
		TestCommand:    c.Project.TestCommand,
		LintCommand:    c.Project.LintCommand,
		MaxFixAttempts: *c.Fix.MaxAttempts,
		AutoFix:        *c.Fix.Enabled,
		RunTests:       *c.Project.RunTests,
		RunLint:        c.Project.RunLint,
		GitEnabled:     *c.Git.Enabled,
		GitCommitFixes: *c.Git.CommitFixes,
		Timeout:        c.Project.Timeout,
	}
}
