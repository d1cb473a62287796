package display

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pterm/pterm"

	"github.com/nais/gcp-cost/internal/bigquery"
	"github.com/nais/gcp-cost/internal/billing"
)

var testSummary = billing.CostSummary{
	Currency:        "USD",
	CurrentMonth:    12.34,
	PreviousMonth:   56.78,
	Trailing3Months: 200,
	YearToDate:      1345.6,
	RetrievedAt:     time.Date(2025, time.January, 15, 8, 30, 0, 0, time.UTC),
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   float64
		currency string
		want     string
	}{
		{12.34, "USD", "$12.34"},
		{0, "USD", "$0.00"},
		{1345.6, "EUR", "€1345.60"},
		{7, "GBP", "£7.00"},
		{1234.5, "JPY", "¥1234"},
		{99.9, "NOK", "NOK 99.90"},
		{-3.25, "USD", "-$3.25"},
		{-0.001, "USD", "$0.00"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %v", tt.currency, tt.amount), func(t *testing.T) {
			if got := FormatAmount(tt.amount, tt.currency); got != tt.want {
				t.Errorf("FormatAmount(%v, %q) = %q, want %q", tt.amount, tt.currency, got, tt.want)
			}
		})
	}
}

func TestStatusText(t *testing.T) {
	if got := StatusText(testSummary); got != "$12.34 MTD" {
		t.Errorf("unexpected status text %q", got)
	}
	if got := StatusText(billing.EmptySummary(time.Now())); got != "$0.00 MTD" {
		t.Errorf("unexpected status text for empty summary %q", got)
	}
}

func TestRows(t *testing.T) {
	want := [][]string{
		{"Current month", "$12.34"},
		{"Previous month", "$56.78"},
		{"Trailing 3 months", "$200.00"},
		{"Year to date", "$1345.60"},
		{"Currency", "USD"},
		{"Retrieved", "2025-01-15T08:30:00Z"},
	}
	if diff := cmp.Diff(want, Rows(testSummary)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderTable(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	var buf bytes.Buffer
	if err := RenderTable(&buf, testSummary); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{"Window", "Current month", "$12.34", "Year to date", "$1345.60"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected table to contain %q, got:\n%s", want, out)
		}
	}
}

func TestErrorText(t *testing.T) {
	tests := map[string]struct {
		err  error
		want string
	}{
		"nil":       {nil, ""},
		"not found": {fmt.Errorf("%w: dataset is empty", bigquery.ErrNotFound), "No billing export found, check project and dataset"},
		"auth":      {fmt.Errorf("%w: denied", bigquery.ErrAuth), "Not authorized to read billing export, check credentials"},
		"transport": {fmt.Errorf("%w: timeout", bigquery.ErrTransport), "Could not reach BigQuery"},
		"other":     {errors.New("boom"), "Cost summary unavailable: boom"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := ErrorText(tt.err); got != tt.want {
				t.Errorf("ErrorText() = %q, want %q", got, tt.want)
			}
		})
	}
}
