package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nais/gcp-cost/internal/bigquery"
	"github.com/nais/gcp-cost/internal/display"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputCSV   = "csv"
)

func newSummaryCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Fetch the cost summary once and print it",
		Args:  cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			switch output {
			case outputTable, outputJSON, outputCSV:
				return nil
			default:
				return fmt.Errorf("%w: unknown output format %q", ErrConfig, output)
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSummary(cmd, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format: table, json or csv")
	return cmd
}

func (a *app) runSummary(cmd *cobra.Command, output string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Refresh.Timeout)
	defer cancel()

	client, err := a.newClient(ctx, a.cfg.BigQuery)
	if err != nil {
		return err
	}

	summary, err := client.FetchCostSummary(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch cost summary: %w", err)
	}

	history, err := a.newHistory(ctx)
	if err != nil {
		a.log.WithError(err).Warn("history disabled")
	} else if history != nil {
		defer func() { _ = history.Close() }()
		if err := history.Record(ctx, bigquery.NewHistoryRow(client.Target(), summary)); err != nil {
			a.log.WithError(err).Warn("failed to record cost history")
		}
	}

	out := cmd.OutOrStdout()
	switch output {
	case outputJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	case outputCSV:
		_, err := fmt.Fprintln(out, summary.String())
		return err
	default:
		target := client.Target()
		if _, err := fmt.Fprintf(out, "%s.%s.%s\n", target.ProjectID, target.Dataset, target.TableID); err != nil {
			return err
		}
		return display.RenderTable(out, summary)
	}
}
