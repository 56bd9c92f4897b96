package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gn-clipper/news-clipper/internal/app"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		lookback time.Duration
		name     string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
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

			sum, err := a.Run(ctx, name, lookback)
			fmt.Fprintf(cmd.OutOrStdout(),
				"collected=%d skipped_seen=%d rejected=%d published=%d failed=%d deferred=%d provider_failures=%d duration=%s\n",
				sum.Collected, sum.SkippedSeen, sum.Rejected, sum.Published, sum.Failed, sum.Deferred,
				sum.ProviderFailures, sum.Duration.Round(time.Millisecond))
			if err != nil {
				return fmt.Errorf("run aborted: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&lookback, "lookback", 0, "collection window (default is default_lookback)")
	cmd.Flags().StringVar(&name, "name", "manual", "run name used in logs and events")
	return cmd
}

// ignoreCanceled treats a context cancellation as a clean stop.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
