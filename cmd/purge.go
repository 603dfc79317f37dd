package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"overcastmirror/internal/logger"
)

func newPurgeCacheCommand() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge-cache",
		Short: "Delete expired and over-age HTTP cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(a *app) error {
				cutoff := olderThan
				if !cmd.Flags().Changed("older-than") {
					cutoff = a.cfg.PurgeOlderThan
				}
				a.log.Info("purging response cache", logger.Duration("older_than", cutoff))
				return a.client.PurgeCache(cutoff)
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour,
		"delete entries whose response date is older than this (hour units, e.g. 2160h for 90 days)")
	return cmd
}
