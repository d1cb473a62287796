package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nais/gcp-cost/internal/display"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	green = color.New(color.FgGreen, color.Bold).SprintFunc()
	red   = color.New(color.FgRed, color.Bold).SprintFunc()
)

func newTablesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "Resolve the billing export table of the dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runTables(cmd)
		},
	}
}

func (a *app) runTables(cmd *cobra.Command) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Refresh.Timeout)
	defer cancel()

	client, err := a.newClient(ctx, a.cfg.BigQuery)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	dataset := a.cfg.BigQuery.ProjectID + "." + a.cfg.BigQuery.Dataset

	tableID, err := client.ResolveTable(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(out, "%s %s: %s\n", red("✗"), bold(dataset), display.ErrorText(err))
		return fmt.Errorf("failed to resolve billing export table: %w", err)
	}

	_, err = fmt.Fprintf(out, "%s %s.%s\n", green("✓"), bold(dataset), tableID)
	return err
}
