package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"overcastmirror/internal/logger"
	"overcastmirror/internal/metrics"
)

func newMetricsCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Export account metrics in Prometheus text format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(a *app) error {
				return exportMetrics(a, out)
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "textfile path to write (logs only when empty)")
	return cmd
}

func exportMetrics(a *app, out string) error {
	registry, err := metrics.Build(a.db.Feeds, a.db.Episodes)
	if err != nil {
		return err
	}

	text, err := metrics.Render(registry)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		a.log.Info(line)
	}

	if out != "" {
		a.log.Debug("writing metrics textfile", logger.String("path", out))
		return metrics.WriteTextfile(out, registry)
	}
	return nil
}
