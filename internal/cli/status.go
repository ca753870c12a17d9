package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active run and aggregate counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		app, cleanup, err := newApp(configPath)
		if err != nil {
			return err
		}
		defer cleanup()

		w := cmd.OutOrStdout()
		active := app.orch.Active()
		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			out := map[string]interface{}{
				"active": active,
				"stats":  app.orch.History().Stats(),
			}
			data, _ := json.MarshalIndent(out, "", "  ")
			fmt.Fprintln(w, string(data))
			return nil
		}

		if active == nil {
			fmt.Fprintln(w, "No active run.")
		} else {
			fmt.Fprintf(w, "Active run %s: stage %s, %d fix attempts\n", active.ID, active.Stage, len(active.Attempts))
		}

		if app.db != nil {
			totals, err := app.db.GetTotals()
			if err == nil {
				fmt.Fprintf(w, "All time: %d runs, %d complete, %d failed, %d/%d fixes succeeded\n",
					totals.Runs, totals.SuccessfulRuns, totals.FailedRuns, totals.SuccessfulFix, totals.FixAttempts)
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("config", "", "Path to medic.yaml")
	statusCmd.Flags().String("format", "text", "Output format: text or json")
}
