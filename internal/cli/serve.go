package cli

import (
	"errors"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/buildmedic/internal/pipeline"
	"github.com/lucasnoah/buildmedic/internal/watch"
	"github.com/lucasnoah/buildmedic/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API (and optionally the file watcher)",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		app, cleanup, err := newApp(configPath)
		if err != nil {
			return err
		}
		defer cleanup()

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = app.cfg.Server.Addr
		}
		withWatch, _ := cmd.Flags().GetBool("watch")

		base := func() pipeline.Config { return app.cfg.RunConfig() }
		srv := web.NewServer(app.orch, addr, app.cfg.Server.WebhookToken, base)

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(srv.Start)
		if withWatch {
			w := watch.New(app.cfg.Project.Root, app.cfg.Watch.Debounce, app.cfg.Watch.Ignore)
			w.SetLogf(log.Printf)
			g.Go(func() error {
				return w.Run(ctx, watchTrigger(app))
			})
		}
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to medic.yaml")
	serveCmd.Flags().String("addr", "", "Listen address (default from config, :8787)")
	serveCmd.Flags().Bool("watch", false, "Also watch the project tree and trigger runs on change")
}

// watchTrigger starts a run per settled change burst. A burst landing while
// a run is still active is skipped, not queued; the next burst tries again.
func watchTrigger(app *app) watch.Trigger {
	return func(changed []string) {
		_, err := app.orch.Start(app.cfg.RunConfig())
		if errors.Is(err, pipeline.ErrRunActive) {
			log.Printf("change detected during active run, skipping trigger")
			return
		}
		if err != nil {
			log.Printf("watch trigger failed: %v", err)
		}
	}
}
