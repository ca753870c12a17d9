package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lucasnoah/buildmedic/internal/checkpoint"
	"github.com/lucasnoah/buildmedic/internal/command"
	"github.com/lucasnoah/buildmedic/internal/oracle"
)

// execute is the run goroutine. It owns the run struct exclusively until
// finalize hands a frozen copy to history.
func (o *Orchestrator) execute(ctx context.Context, run *Run, cfg Config) {
	defer o.finalize(run)

	o.publish(run, EventStart, run.clone())

	var cp *checkpoint.Client
	if cfg.GitEnabled {
		cp = checkpoint.NewClient(o.git, cfg.ProjectRoot)
		snap := cp.Snapshot()
		o.mu.Lock()
		run.Snapshot = snap
		o.mu.Unlock()
		if snap == nil {
			o.logf("no git checkpoint available; rollback disabled for this run")
		}
	}

	if cfg.RunLint && cfg.LintCommand != "" {
		o.setStage(run, StageLinting)
		res := o.runStage(ctx, run, cfg, StageLinting, cfg.LintCommand)
		if o.wasStopped(ctx, run) {
			return
		}
		if !res.Success {
			// Lint failures are style problems, not breakage: surface them and
			// stop rather than letting the repair loop rewrite files over them.
			o.fail(run, "lint failed", res)
			return
		}
	}

	o.setStage(run, StageBuilding)
	res := o.runStage(ctx, run, cfg, StageBuilding, cfg.BuildCommand)
	if o.wasStopped(ctx, run) {
		return
	}
	if !res.Success {
		fixed, last := o.fixLoop(ctx, run, cfg, cp, "build", cfg.BuildCommand, res)
		if o.wasStopped(ctx, run) {
			return
		}
		if !fixed {
			o.fail(run, "build failed after repair attempts", last)
			return
		}
	}

	if cfg.RunTests && cfg.TestCommand != "" {
		o.setStage(run, StageTesting)
		res = o.runStage(ctx, run, cfg, StageTesting, cfg.TestCommand)
		if o.wasStopped(ctx, run) {
			return
		}
		if !res.Success {
			fixed, last := o.fixLoop(ctx, run, cfg, cp, "test", cfg.TestCommand, res)
			if o.wasStopped(ctx, run) {
				return
			}
			if !fixed {
				o.fail(run, "tests failed after repair attempts", last)
				return
			}
		}
	}

	o.mu.Lock()
	run.Stage = StageComplete
	run.Success = true
	run.Summary = fmt.Sprintf("completed with %d fix attempt(s)", len(run.Attempts))
	o.mu.Unlock()
}

// runStage executes one stage command, streaming its output as log events
// and persisting the captured output as a stage artifact.
func (o *Orchestrator) runStage(ctx context.Context, run *Run, cfg Config, stage Stage, cmd string) *command.Result {
	onLine := func(channel, line string) {
		o.publish(run, EventLog, LogPayload{Stage: stage, Channel: channel, Line: line})
	}
	res, err := o.runner.Run(ctx, cfg.ProjectRoot, cmd, cfg.Timeout, onLine)
	if err != nil {
		// Spawn failures (command not found, pipe errors) are reported as a
		// failed result so the caller follows the normal failure path.
		res = &command.Result{ExitCode: -1, Stderr: err.Error()}
	}
	if o.store != nil {
		_ = o.store.SaveStageLog(run.ID, string(stage), combinedOutput(res))
	}
	if o.events != nil {
		_ = o.events.LogCommandRun(run.ID, string(stage), res.ExitCode, int(res.Duration/time.Millisecond), res.TimedOut)
	}
	return res
}

// fixLoop is the bounded analyze → fix → verify cycle. It returns whether
// the failing command eventually went green, plus the last failing result
// for the error summary. Every iteration appends exactly one FixAttempt,
// so a permanently failing build with N attempts configured yields N
// records.
func (o *Orchestrator) fixLoop(ctx context.Context, run *Run, cfg Config, cp *checkpoint.Client, failureType, failingCmd string, failed *command.Result) (bool, *command.Result) {
	if !cfg.AutoFix || cfg.MaxFixAttempts == 0 || o.oracle == nil {
		return false, failed
	}

	logs := combinedOutput(failed)
	for ordinal := 1; ordinal <= cfg.MaxFixAttempts; ordinal++ {
		if ctx.Err() != nil {
			return false, failed
		}
		attempt := FixAttempt{
			Ordinal:     ordinal,
			FailureType: failureType,
			Timestamp:   time.Now().UTC(),
		}

		o.setStage(run, StageAnalyzing)
		srcCtx := oracle.SourceContext(cfg.ProjectRoot, logs)
		diagnosis, err := o.oracle.Analyze(ctx, failureType, logs, srcCtx)
		if err != nil {
			var oErr *oracle.Error
			if errors.As(err, &oErr) {
				o.logf("oracle unavailable (%v); using default diagnosis", oErr)
				diagnosis = oracle.DefaultDiagnosis(failureType)
			} else {
				attempt.Error = err.Error()
				o.recordAttempt(run, attempt)
				continue
			}
		}
		attempt.Diagnosis = diagnosis
		if o.store != nil {
			_ = o.store.SaveDiagnosis(run.ID, ordinal, diagnosis)
		}

		o.setStage(run, StageFixing)
		prompt, err := o.oracle.GenerateFixPrompt(ctx, diagnosis, failureType, logs)
		if err != nil {
			attempt.Error = fmt.Sprintf("fix prompt: %v", err)
			o.recordAttempt(run, attempt)
			continue
		}
		attempt.FixPrompt = prompt
		if o.store != nil {
			_ = o.store.SaveFixPrompt(run.ID, ordinal, prompt)
		}

		fix, err := o.oracle.ApplyFix(ctx, prompt, srcCtx)
		if err != nil {
			attempt.Error = fmt.Sprintf("apply fix: %v", err)
			o.recordAttempt(run, attempt)
			continue
		}
		attempt.ChangedFiles = applyEdits(cfg.ProjectRoot, fix.Edits, o.logf)
		if len(attempt.ChangedFiles) == 0 {
			attempt.Error = "oracle produced no applicable edits"
			o.recordAttempt(run, attempt)
			continue
		}

		committed := false
		if cp != nil && cfg.GitCommitFixes {
			attempt.CommitHash = cp.Commit(editSummary(ordinal, failureType, attempt.ChangedFiles))
			committed = attempt.CommitHash != ""
		}

		o.setStage(run, StageVerifying)

		// A test fix must not break the build: re-verify the build before
		// re-running tests, and roll the edit back if it regressed. The
		// regression does not consume a test run.
		if failureType == "test" {
			buildRes := o.runStage(ctx, run, cfg, StageVerifying, cfg.BuildCommand)
			if ctx.Err() != nil {
				return false, failed
			}
			if !buildRes.Success {
				o.revertAttempt(cp, committed)
				attempt.Regressed = true
				attempt.Error = "fix broke the build; rolled back"
				o.recordAttempt(run, attempt)
				continue
			}
		}

		res := o.runStage(ctx, run, cfg, StageVerifying, failingCmd)
		if ctx.Err() != nil {
			return false, failed
		}
		attempt.Result = res
		if res.Success {
			attempt.Success = true
			o.recordAttempt(run, attempt)
			return true, res
		}

		failed = res
		logs = combinedOutput(res)
		o.recordAttempt(run, attempt)
	}
	return false, failed
}

// recordAttempt appends the attempt to the run and mirrors it to
// subscribers and the event log.
func (o *Orchestrator) recordAttempt(run *Run, attempt FixAttempt) {
	o.mu.Lock()
	run.Attempts = append(run.Attempts, attempt)
	o.mu.Unlock()
	o.publish(run, EventUpdate, attempt)
	if o.events != nil {
		summary := attempt.Error
		if summary == "" && attempt.Diagnosis != nil {
			summary = attempt.Diagnosis.SuggestedStrategy
		}
		_ = o.events.LogFixAttempt(run.ID, attempt.Ordinal, attempt.FailureType, attempt.Success, attempt.CommitHash, summary)
	}
}

// revertAttempt undoes a regressed fix: drop the fix commit when one was
// made, otherwise discard the uncommitted edits.
func (o *Orchestrator) revertAttempt(cp *checkpoint.Client, committed bool) {
	if cp == nil {
		return
	}
	if committed {
		if !cp.RollbackOne() {
			o.logf("rollback of regressed fix commit failed; tree may need manual attention")
		}
		return
	}
	if !cp.DiscardChanges() {
		o.logf("discard of regressed fix failed; tree may need manual attention")
	}
}

// fail marks the run failed. When a checkpoint exists the summary carries
// the exact command to restore the pre-run state by hand.
func (o *Orchestrator) fail(run *Run, reason string, res *command.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run.Stage = StageFailed
	run.Summary = reason
	if res != nil {
		run.Error = tail(combinedOutput(res), 2048)
	}
	if run.Snapshot != nil {
		run.Summary += fmt.Sprintf("; restore pre-run state with: git reset --hard %s", run.Snapshot.CommitHash)
	}
}

// wasStopped checks for cancellation and, if Stop was called, marks the run
// failed with the manual-stop reason. Returns true when the run must end.
func (o *Orchestrator) wasStopped(ctx context.Context, run *Run) bool {
	if ctx.Err() == nil {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	run.Stage = StageFailed
	if o.stopped {
		run.Summary = "manually stopped"
	} else {
		run.Summary = "run canceled"
	}
	return true
}

func combinedOutput(res *command.Result) string {
	if res == nil {
		return ""
	}
	if res.Stderr == "" {
		return res.Stdout
	}
	if res.Stdout == "" {
		return res.Stderr
	}
	return res.Stdout + "\n" + res.Stderr
}

// tail returns the last n bytes of s, starting at a line boundary when one
// is close.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[len(s)-n:]
	if i := strings.IndexByte(s, '\n'); i >= 0 && i < 200 {
		s = s[i+1:]
	}
	return s
}
