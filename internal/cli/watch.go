package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nais/gcp-cost/internal/display"
)

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Show the cost summary in a terminal status bar",
		Long:  "Show the cost summary in a terminal status bar. Press r to refresh and q to quit.",
		Args:  cobra.NoArgs,
		Annotations: map[string]string{
			defaultLogFile: "gcp-cost.log",
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			m, closeHistory, err := a.newMonitor(ctx)
			if err != nil {
				return err
			}
			defer closeHistory()

			if err := m.Start(ctx); err != nil {
				return err
			}
			defer m.Stop()

			title := fmt.Sprintf("%s.%s", a.cfg.BigQuery.ProjectID, a.cfg.BigQuery.Dataset)
			return display.NewWatch(m, title).Run(ctx)
		},
	}
}
