package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "medic",
	Short: "medic — autonomous build-verify-repair orchestrator",
	Long: `medic runs your build, tests, and lint, and when something breaks it asks a
diagnosis oracle for a fix, applies it behind a git checkpoint, and verifies
the result — rolling back anything that makes things worse.

State is stored in ~/.medic/ (SQLite for the event log, JSON for run
artifacts). Runs are triggered from this CLI, the HTTP API, or a file
watcher.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(autofixCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(detectCmd)
}
