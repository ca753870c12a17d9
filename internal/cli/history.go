package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show recorded runs, or the event log of one run",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		app, cleanup, err := newApp(configPath)
		if err != nil {
			return err
		}
		defer cleanup()

		if app.db == nil {
			return fmt.Errorf("event log unavailable")
		}
		w := cmd.OutOrStdout()

		if len(args) == 1 {
			events, err := app.db.GetRunHistory(args[0])
			if err != nil {
				return err
			}
			attempts, err := app.db.GetFixAttempts(args[0])
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("format")
			if format == "json" {
				data, _ := json.MarshalIndent(map[string]interface{}{
					"events":   events,
					"attempts": attempts,
				}, "", "  ")
				fmt.Fprintln(w, string(data))
				return nil
			}
			if len(events) == 0 {
				fmt.Fprintln(w, "No events for that run.")
				return nil
			}
			for _, e := range events {
				line := fmt.Sprintf("%s  %-10s %-10s", e.Timestamp, e.Event, e.Stage)
				if e.Detail != "" {
					line += "  " + e.Detail
				}
				fmt.Fprintln(w, line)
			}
			for _, a := range attempts {
				outcome := "failed"
				if a.Success {
					outcome = "fixed"
				}
				fmt.Fprintf(w, "attempt %d (%s): %s  %s\n", a.Ordinal, a.Failure, outcome, a.Summary)
			}
			return nil
		}

		totals, err := app.db.GetTotals()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d runs total, %d complete, %d failed, %d/%d fix attempts succeeded\n",
			totals.Runs, totals.SuccessfulRuns, totals.FailedRuns, totals.SuccessfulFix, totals.FixAttempts)

		recs := app.orch.History().List()
		if len(recs) == 0 {
			return nil
		}
		fmt.Fprintf(w, "\n%-36s %-10s %-4s %-7s %s\n", "RUN", "STAGE", "ATT", "OK", "SUMMARY")
		fmt.Fprintf(w, "%-36s %-10s %-4s %-7s %s\n",
			strings.Repeat("-", 36),
			strings.Repeat("-", 10),
			strings.Repeat("-", 4),
			strings.Repeat("-", 7),
			strings.Repeat("-", 7))
		for _, rec := range recs {
			fmt.Fprintf(w, "%-36s %-10s %-4d %-7v %s\n", rec.ID, rec.Stage, rec.Attempts, rec.Success, rec.Summary)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().String("config", "", "Path to medic.yaml")
	historyCmd.Flags().String("format", "text", "Output format: text or json")
}
