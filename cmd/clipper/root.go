package main

import (
	"github.com/spf13/cobra"

	"github.com/gn-clipper/news-clipper/internal/config"
	"github.com/gn-clipper/news-clipper/internal/logger"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "clipper",
		Short: "Regional news clipper",
		Long: `clipper collects regional news for configured keyword combinations, scores each
article with Gemini and publishes the relevant ones to a Notion database, never
publishing the same article twice.

Example usage:
  clipper run                      # one run with the default lookback
  clipper run --lookback 8h        # one run over the last 8 hours
  clipper schedule                 # run at the configured times until stopped
  clipper seen stats               # count seen-set records by status`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default is ./config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log_level")

	cmd.AddCommand(newRunCmd(opts), newScheduleCmd(opts), newSeenCmd(opts))
	return cmd
}

// load reads and validates the configuration, then builds the logger it describes.
func (o *rootOptions) load() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := o.logger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func (o *rootOptions) logger(cfg *config.Config) (logger.Logger, error) {
	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	return logger.New(logger.Options{Level: level, Format: cfg.LogFormat})
}
