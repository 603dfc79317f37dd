// Package cmd implements the command-line interface for the Overcast
// mirror. Subcommands share one session scope: the database and artifact
// cache are opened before the command runs and flushed only on success.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "overcastmirror",
	Short:         "Mirror an Overcast account into flat files",
	Long:          "Mirror an Overcast account's feeds and episodes into local CSV files,\nwith a persistent HTTP response cache in front of every upstream request.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("db-path", "", "directory holding feeds.csv and episodes.csv")
	flags.String("cache-dir", "", "HTTP response cache directory (default is the user cache dir)")
	flags.Bool("offline", false, "serve cached responses only, never touch the network")
	flags.BoolP("verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("overcastmirror version %s\n", "1.0.0")
		},
	})

	rootCmd.AddCommand(newRefreshCommand())
	rootCmd.AddCommand(newBackfillCommand())
	rootCmd.AddCommand(newFeedsCommand())
	rootCmd.AddCommand(newMetricsCommand())
	rootCmd.AddCommand(newPurgeCacheCommand())
}
