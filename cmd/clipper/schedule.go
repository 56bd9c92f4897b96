package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gn-clipper/news-clipper/internal/app"
	"github.com/gn-clipper/news-clipper/internal/schedule"
	"github.com/gn-clipper/news-clipper/internal/server"
)

func newScheduleCmd(root *rootOptions) *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline at the configured times until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ops := server.New(cfg.Server.Listen, a.Registry, log)
			runFn := func(ctx context.Context, name string, lookback time.Duration) {
				sum, err := a.Run(ctx, name, lookback)
				ops.SetLastRun(server.RunInfo{
					Name:       name,
					FinishedAt: time.Now(),
					Published:  sum.Published,
					Failed:     sum.Failed,
					Aborted:    err != nil,
				})
			}

			sched, err := schedule.New(cfg.Schedule.Timezone, cfg.Schedule.Runs, runFn, log)
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			if cfg.Server.Listen != "" {
				g.Go(func() error { return ops.Run(gctx) })
			}
			g.Go(func() error {
				if runNow {
					runFn(gctx, "startup", cfg.DefaultLookback)
				}
				sched.Run(gctx)
				return nil
			})
			return ignoreCanceled(g.Wait())
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run once immediately before waiting for the schedule")
	return cmd
}
