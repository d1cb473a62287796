// Package display renders cost summaries for terminals.
package display

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/nais/gcp-cost/internal/bigquery"
	"github.com/nais/gcp-cost/internal/billing"
)

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// FormatAmount formats amount in currency. Currencies without a known symbol
// are prefixed with their code.
func FormatAmount(amount float64, currency string) string {
	decimals := 2
	if currency == "JPY" {
		decimals = 0
	}

	digits := strconv.FormatFloat(math.Abs(amount), 'f', decimals, 64)
	sign := ""
	if amount < 0 && strings.Trim(digits, "0.") != "" {
		sign = "-"
	}

	if symbol, ok := currencySymbols[currency]; ok {
		return sign + symbol + digits
	}
	return sign + currency + " " + digits
}

// StatusText is the month to date cost, e.g. "$12.34 MTD".
func StatusText(summary billing.CostSummary) string {
	return FormatAmount(summary.CurrentMonth, summary.Currency) + " MTD"
}

func Rows(summary billing.CostSummary) [][]string {
	return [][]string{
		{"Current month", FormatAmount(summary.CurrentMonth, summary.Currency)},
		{"Previous month", FormatAmount(summary.PreviousMonth, summary.Currency)},
		{"Trailing 3 months", FormatAmount(summary.Trailing3Months, summary.Currency)},
		{"Year to date", FormatAmount(summary.YearToDate, summary.Currency)},
		{"Currency", summary.Currency},
		{"Retrieved", summary.RetrievedAt.Format(time.RFC3339)},
	}
}

func RenderTable(w io.Writer, summary billing.CostSummary) error {
	data := pterm.TableData{{"Window", "Amount"}}
	data = append(data, Rows(summary)...)

	rendered, err := pterm.DefaultTable.
		WithHasHeader().
		WithBoxed().
		WithRightAlignment().
		WithData(data).
		Srender()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	_, err = fmt.Fprintln(w, rendered)
	return err
}

// ErrorText describes err for someone looking at a status bar.
func ErrorText(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, bigquery.ErrNotFound):
		return "No billing export found, check project and dataset"
	case errors.Is(err, bigquery.ErrAuth):
		return "Not authorized to read billing export, check credentials"
	case errors.Is(err, bigquery.ErrTransport):
		return "Could not reach BigQuery"
	default:
		return "Cost summary unavailable: " + err.Error()
	}
}
