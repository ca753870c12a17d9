package cli

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/buildmedic/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the project tree and run on every settled change burst",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		app, cleanup, err := newApp(configPath)
		if err != nil {
			return err
		}
		defer cleanup()

		debounce := app.cfg.Watch.Debounce
		if v, _ := cmd.Flags().GetDuration("debounce"); v > 0 {
			debounce = v
		}

		w := watch.New(app.cfg.Project.Root, debounce, app.cfg.Watch.Ignore)
		w.SetLogf(log.Printf)
		return w.Run(cmd.Context(), watchTrigger(app))
	},
}

func init() {
	watchCmd.Flags().String("config", "", "Path to medic.yaml")
	watchCmd.Flags().Duration("debounce", 0, "Quiet window before a change burst triggers a run")
}
