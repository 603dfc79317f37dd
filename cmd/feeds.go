package cmd

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newFeedsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Inspect the mirrored feeds",
	}
	cmd.AddCommand(newFeedsListCommand())
	return cmd
}

func newFeedsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the mirrored feeds in a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, listFeeds)
		},
	}
}

func listFeeds(a *app) error {
	downloads := a.db.Episodes.DownloadCounts()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Title", "Slug", "Added At", "Added", "Following", "Downloads"})

	for _, feed := range a.db.Feeds.All() {
		addedAt := ""
		if !feed.AddedAt.IsZero() {
			addedAt = feed.AddedAt.Format("2006-01-02")
		}
		following := ""
		if feed.IsFollowing != nil {
			following = formatYesNo(*feed.IsFollowing)
		}
		t.AppendRow(table.Row{
			feed.ID,
			feed.CleanTitle(),
			feed.Slug(),
			addedAt,
			formatYesNo(feed.IsAdded),
			following,
			downloads[feed.ID],
		})
	}

	t.Render()
	return nil
}

func formatYesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
