package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/buildmedic/internal/history"
	"github.com/lucasnoah/buildmedic/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run build/test/fix against the configured project",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		app, cleanup, err := newApp(configPath)
		if err != nil {
			return err
		}
		defer cleanup()

		cfg := app.cfg.RunConfig()
		applyRunFlags(cmd, &cfg)

		run, err := app.orch.Start(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s started (%s)\n", run.ID, cfg.ProjectRoot)

		streamRun(cmd, app.orch, run.ID)

		rec := latestRecord(app.orch, run.ID)
		if rec == nil {
			return fmt.Errorf("run %s did not record a result", run.ID)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s: %s (%d fix attempts)\n", rec.Stage, rec.Summary, rec.Attempts)
		if !rec.Success {
			return fmt.Errorf("run failed")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().String("config", "", "Path to medic.yaml (default: search standard locations)")
	runCmd.Flags().String("root", "", "Project root override")
	runCmd.Flags().String("build", "", "Build command override")
	runCmd.Flags().String("test", "", "Test command override")
	runCmd.Flags().String("lint", "", "Lint command override (implies running lint)")
	runCmd.Flags().Int("max-attempts", -1, "Maximum fix attempts (0 disables the repair loop)")
	runCmd.Flags().Bool("no-fix", false, "Disable the automatic repair loop")
	runCmd.Flags().Bool("no-tests", false, "Skip the test stage")
	runCmd.Flags().Bool("no-git", false, "Disable git checkpointing")
	runCmd.Flags().Duration("timeout", 0, "Per-command timeout override")
}

func applyRunFlags(cmd *cobra.Command, cfg *pipeline.Config) {
	if v, _ := cmd.Flags().GetString("root"); v != "" {
		cfg.ProjectRoot = v
	}
	if v, _ := cmd.Flags().GetString("build"); v != "" {
		cfg.BuildCommand = v
	}
	if v, _ := cmd.Flags().GetString("test"); v != "" {
		cfg.TestCommand = v
	}
	if v, _ := cmd.Flags().GetString("lint"); v != "" {
		cfg.LintCommand = v
		cfg.RunLint = true
	}
	if v, _ := cmd.Flags().GetInt("max-attempts"); v >= 0 {
		cfg.MaxFixAttempts = v
	}
	if v, _ := cmd.Flags().GetBool("no-fix"); v {
		cfg.AutoFix = false
	}
	if v, _ := cmd.Flags().GetBool("no-tests"); v {
		cfg.RunTests = false
	}
	if v, _ := cmd.Flags().GetBool("no-git"); v {
		cfg.GitEnabled = false
		cfg.GitCommitFixes = false
	}
	if v, _ := cmd.Flags().GetDuration("timeout"); v > 0 {
		cfg.Timeout = v
	}
}

// streamRun prints subprocess output lines until the run's event stream
// closes.
func streamRun(cmd *cobra.Command, orch *pipeline.Orchestrator, runID string) {
	snapshot, events, cancel := orch.Subscribe()
	defer cancel()
	if snapshot.RunID != runID {
		// Run already finished before we attached.
		return
	}
	for ev := range events {
		if ev.Type != pipeline.EventLog {
			continue
		}
		if lp, ok := ev.Payload.(pipeline.LogPayload); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", lp.Stage, lp.Line)
		}
	}
}

// latestRecord finds the frozen history record for a run, waiting briefly
// for finalization to land after the event stream closes.
func latestRecord(orch *pipeline.Orchestrator, runID string) *history.RunRecord {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, rec := range orch.History().List() {
			if rec.ID == runID {
				return &rec
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	return nil
}
