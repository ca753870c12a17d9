package pipeline

import (
	"fmt"
	"time"

	"github.com/lucasnoah/buildmedic/internal/checkpoint"
	"github.com/lucasnoah/buildmedic/internal/command"
	"github.com/lucasnoah/buildmedic/internal/oracle"
	"github.com/lucasnoah/buildmedic/internal/safety"
)

// Stage identifies where a run is in its lifecycle. Stages only move
// forward through the transition graph, or jump straight to one of the two
// terminal stages.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageLinting   Stage = "linting"
	StageBuilding  Stage = "building"
	StageTesting   Stage = "testing"
	StageAnalyzing Stage = "analyzing"
	StageFixing    Stage = "fixing"
	StageVerifying Stage = "verifying"
	StageComplete  Stage = "complete"
	StageFailed    Stage = "failed"
)

// Terminal reports whether the stage ends a run.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// Config describes one run request. Untrusted inputs (HTTP bodies, webhook
// payloads) must pass through Normalize before a run starts.
type Config struct {
	ProjectRoot    string        `json:"project_root" yaml:"project_root"`
	BuildCommand   string        `json:"build_command,omitempty" yaml:"build_command"`
	TestCommand    string        `json:"test_command,omitempty" yaml:"test_command"`
	LintCommand    string        `json:"lint_command,omitempty" yaml:"lint_command"`
	MaxFixAttempts int           `json:"max_fix_attempts" yaml:"max_fix_attempts"`
	AutoFix        bool          `json:"auto_fix" yaml:"auto_fix"`
	RunTests       bool          `json:"run_tests" yaml:"run_tests"`
	RunLint        bool          `json:"run_lint" yaml:"run_lint"`
	GitEnabled     bool          `json:"git_enabled" yaml:"git_enabled"`
	GitCommitFixes bool          `json:"git_commit_fixes" yaml:"git_commit_fixes"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	APIKey         string        `json:"-" yaml:"-"`
}

const (
	DefaultMaxFixAttempts = 3
	MaxFixAttemptsCeiling = 10
	DefaultTimeout        = 5 * time.Minute
	MinTimeout            = 10 * time.Second
	MaxTimeout            = 10 * time.Minute
)

// Normalize validates the project root and clamps numeric fields to their
// safe ranges.
func (c *Config) Normalize() error {
	if err := safety.CheckProjectRoot(c.ProjectRoot); err != nil {
		return err
	}
	if c.BuildCommand == "" {
		return fmt.Errorf("build command is required")
	}
	c.MaxFixAttempts = safety.ClampInt(c.MaxFixAttempts, 0, MaxFixAttemptsCeiling)
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Timeout < MinTimeout {
		c.Timeout = MinTimeout
	}
	if c.Timeout > MaxTimeout {
		c.Timeout = MaxTimeout
	}
	return nil
}

// FixAttempt records one repair cycle within a run. Immutable once appended.
type FixAttempt struct {
	Ordinal      int               `json:"ordinal"`
	FailureType  string            `json:"failure_type"` // "build" or "test"
	Diagnosis    *oracle.Diagnosis `json:"diagnosis,omitempty"`
	FixPrompt    string            `json:"fix_prompt,omitempty"`
	Result       *command.Result   `json:"result,omitempty"`
	CommitHash   string            `json:"commit_hash,omitempty"`
	ChangedFiles []string          `json:"changed_files,omitempty"`
	Success      bool              `json:"success"`
	Regressed    bool              `json:"regressed,omitempty"` // fix broke the build
	Error        string            `json:"error,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Run is one build/fix/verify session. It is owned exclusively by the run
// goroutine; everything handed to subscribers or history is a copy.
type Run struct {
	ID          string               `json:"id"`
	ProjectRoot string               `json:"project_root"`
	Stage       Stage                `json:"stage"`
	Attempts    []FixAttempt         `json:"attempts"`
	Snapshot    *checkpoint.Snapshot `json:"snapshot,omitempty"`
	StartedAt   time.Time            `json:"started_at"`
	EndedAt     time.Time            `json:"ended_at,omitempty"`
	Success     bool                 `json:"success"`
	Summary     string               `json:"summary,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// clone returns a deep-enough copy for read-only consumers. Attempt entries
// are immutable once appended, so sharing them is safe.
func (r *Run) clone() *Run {
	cp := *r
	cp.Attempts = append([]FixAttempt(nil), r.Attempts...)
	return &cp
}
