package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/buildmedic/internal/detect"
)

var detectCmd = &cobra.Command{
	Use:   "detect [dir]",
	Short: "Infer build/test/lint commands from project markers",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return err
		}

		result := detect.Commands(abs)
		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, _ := json.MarshalIndent(result, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		w := cmd.OutOrStdout()
		if result.Ecosystem == "" {
			fmt.Fprintln(w, "No recognized project markers found.")
			return nil
		}
		fmt.Fprintf(w, "ecosystem: %s\n", result.Ecosystem)
		if result.BuildCommand != "" {
			fmt.Fprintf(w, "build:     %s\n", result.BuildCommand)
		}
		if result.TestCommand != "" {
			fmt.Fprintf(w, "test:      %s\n", result.TestCommand)
		}
		if result.LintCommand != "" {
			fmt.Fprintf(w, "lint:      %s\n", result.LintCommand)
		}
		return nil
	},
}

func init() {
	detectCmd.Flags().String("format", "text", "Output format: text or json")
}
