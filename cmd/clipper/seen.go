package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gn-clipper/news-clipper/internal/app"
	"github.com/gn-clipper/news-clipper/internal/config"
	"github.com/gn-clipper/news-clipper/internal/domain"
	"github.com/gn-clipper/news-clipper/internal/store"
)

func newSeenCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seen",
		Short: "Inspect or edit the seen-set",
	}
	cmd.AddCommand(newSeenGetCmd(root), newSeenStatsCmd(root), newSeenMarkCmd(root))
	return cmd
}

// withStore opens the seen-set without requiring API credentials.
func (o *rootOptions) withStore(fn func(st *store.BoltStore) error) error {
	cfg, err := config.Read(o.configFile)
	if err != nil {
		return err
	}
	st, err := app.OpenStore(cfg)
	if err != nil {
		return err
	}
	return errors.Join(fn(st), st.Close())
}

func newSeenGetCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <fingerprint>",
		Short: "Print the record of a fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withStore(func(st *store.BoltStore) error {
				rec, err := st.Get(args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			})
		},
	}
}

func newSeenStatsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count records by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.withStore(func(st *store.BoltStore) error {
				stats, err := st.Stats()
				if err != nil {
					return err
				}
				total := 0
				for _, s := range domain.Statuses {
					fmt.Fprintf(cmd.OutOrStdout(), "%-10s %d\n", s, stats[s])
					total += stats[s]
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %d\n", "total", total)
				return nil
			})
		},
	}
}

func newSeenMarkCmd(root *rootOptions) *cobra.Command {
	var ref string
	cmd := &cobra.Command{
		Use:   "mark <fingerprint> <status>",
		Short: "Force the status of a fingerprint",
		Long: `Force the status of a fingerprint. Marking a record failed makes it eligible for
another publish attempt; marking it rejected or published keeps it from being processed again.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := domain.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return root.withStore(func(st *store.BoltStore) error {
				if err := st.Upsert(args[0], status, ref); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "external sink reference to record")
	return cmd
}
