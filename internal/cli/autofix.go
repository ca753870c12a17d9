package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/buildmedic/internal/autofix"
	"github.com/lucasnoah/buildmedic/internal/checkpoint"
	"github.com/lucasnoah/buildmedic/internal/command"
	"github.com/lucasnoah/buildmedic/internal/oracle"
)

var autofixCmd = &cobra.Command{
	Use:   "autofix <issues.json>",
	Short: "Work through a verification report's issue list with oracle fixes",
	Long: `autofix reads a JSON issue list (from a code review, a linter, or any
external verification report) and repairs the issues highest severity first
under one shared attempt budget. After each fix the verification command is
re-run; an issue that stays flagged twice is dropped as unfixable.

The issue file is a JSON array:

  [{"id": "a1", "severity": "high", "message": "...", "file": "pkg/x.go"}]`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		app, cleanup, err := newApp(configPath)
		if err != nil {
			return err
		}
		defer cleanup()

		issues, err := loadIssues(args[0])
		if err != nil {
			return err
		}
		if len(issues) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no issues to fix")
			return nil
		}

		key := app.cfg.APIKey()
		if key == "" {
			return fmt.Errorf("autofix needs a diagnosis oracle; set %s", app.cfg.Oracle.APIKeyEnv)
		}
		orc := oracle.NewOpenAIOracle(key, app.cfg.Oracle.Model)

		cfg := app.cfg.RunConfig()
		verifyCmd, _ := cmd.Flags().GetString("verify")
		if verifyCmd == "" {
			verifyCmd = cfg.BuildCommand
		}
		if verifyCmd == "" {
			return fmt.Errorf("no verification command: pass --verify or configure a build command")
		}

		attempts, _ := cmd.Flags().GetInt("max-attempts")
		if attempts <= 0 {
			// Default budget: two tries per issue, the drop threshold.
			attempts = 2 * len(issues)
		}

		var cp *checkpoint.Client
		commitFixes := false
		if cfg.GitEnabled {
			cp = checkpoint.NewClient(&checkpoint.ExecGit{}, cfg.ProjectRoot)
			noCommit, _ := cmd.Flags().GetBool("no-commit")
			commitFixes = cfg.GitCommitFixes && !noCommit
		}

		loop := autofix.NewLoop(orc, cp, cfg.ProjectRoot, attempts, commitFixes)
		loop.SetLogf(func(format string, a ...interface{}) {
			fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", a...)
		})

		verifier := commandVerifier(&command.ExecRunner{}, cfg.ProjectRoot, verifyCmd, cfg.Timeout)
		res, err := loop.Run(cmd.Context(), issues, verifier)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "fixed %d of %d issue(s) in %d attempt(s)\n",
			res.IssuesFixed, len(issues), len(res.Attempts))
		if res.CommitHash != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "fixes committed as %s\n", res.CommitHash)
		}
		for _, flag := range res.FinalFlags {
			fmt.Fprintf(cmd.OutOrStdout(), "still flagged: %s\n", flag)
		}
		if res.IssuesRemaining > 0 {
			return fmt.Errorf("%d issue(s) remain", res.IssuesRemaining)
		}
		return nil
	},
}

func init() {
	autofixCmd.Flags().String("config", "", "Path to medic.yaml (default: search standard locations)")
	autofixCmd.Flags().String("verify", "", "Verification command re-run after each fix (default: build command)")
	autofixCmd.Flags().Int("max-attempts", 0, "Total fix attempt budget (default: twice the issue count)")
	autofixCmd.Flags().Bool("no-commit", false, "Leave fixes uncommitted even when git commits are configured")
}

// loadIssues reads a JSON issue list from disk.
func loadIssues(path string) ([]autofix.Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read issues file: %w", err)
	}
	var issues []autofix.Issue
	if err := json.Unmarshal(data, &issues); err != nil {
		return nil, fmt.Errorf("parse issues file %s: %w", path, err)
	}
	return issues, nil
}

// commandVerifier adapts a shell command into a verification pass: a passing
// command means nothing is outstanding, a failing one flags every non-empty
// output line.
func commandVerifier(runner command.Runner, root, cmdStr string, timeout time.Duration) autofix.Verifier {
	return func(ctx context.Context) ([]string, error) {
		res, err := runner.Run(ctx, root, cmdStr, timeout, nil)
		if err != nil {
			return nil, fmt.Errorf("verification command: %w", err)
		}
		if res.Success {
			return nil, nil
		}
		var flags []string
		for _, line := range strings.Split(res.Stdout+"\n"+res.Stderr, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				flags = append(flags, line)
			}
		}
		return flags, nil
	}
}
