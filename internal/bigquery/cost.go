package bigquery

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	bqapi "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/googleapi"

	"github.com/nais/gcp-cost/internal/billing"
)

// costQuery sums the cost column per window. The export may hold several currencies;
// only the first group is read.
const costQuery = `SELECT
  SUM(IF(invoice.month = @current_period, cost, 0)) AS current_month,
  SUM(IF(invoice.month = @previous_period, cost, 0)) AS previous_month,
  SUM(IF(invoice.month BETWEEN @trailing_start AND @current_period, cost, 0)) AS trailing_3_months,
  SUM(IF(SUBSTR(invoice.month, 1, 4) = @current_year, cost, 0)) AS year_to_date,
  currency
FROM %s
WHERE invoice.month >= @scan_start
GROUP BY currency
LIMIT 1`

// cell positions in the result row
const (
	currentMonthField = iota
	previousMonthField
	trailing3MonthsField
	yearToDateField
	currencyField
	costFields
)

// FetchCostSummary queries the export table for the current windows and caches the result.
// An export without cost rows yields an all zero summary, not an error.
func (c *Client) FetchCostSummary(ctx context.Context) (billing.CostSummary, error) {
	tableID, err := c.ResolveTable(ctx)
	if err != nil {
		return billing.CostSummary{}, err
	}

	c.mu.RLock()
	projectID := c.projectID
	c.mu.RUnlock()

	now := c.now().UTC()
	periods := billing.PeriodsAt(now)

	resp, err := c.api.Jobs.Query(projectID, c.costQueryRequest(projectID, tableID, periods)).Context(ctx).Do()
	if err != nil {
		return billing.CostSummary{}, classify("run cost query", err)
	}
	if !resp.JobComplete {
		return billing.CostSummary{}, fmt.Errorf("%w: cost query job %s did not complete within %s", ErrTransport, jobID(resp), c.queryTimeout)
	}

	summary := summaryFromRows(resp.Rows, now)

	c.mu.Lock()
	c.summary = &summary
	c.mu.Unlock()

	log := c.logger().WithFields(logrus.Fields{
		"table":         tableID,
		"period":        periods.Current,
		"currency":      summary.Currency,
		"current_month": summary.CurrentMonth,
		"rows":          len(resp.Rows),
	})
	if summary.IsZero() {
		log.Info("no cost recorded in billing export yet")
	} else {
		log.Debug("fetched cost summary")
	}

	return summary, nil
}

func (c *Client) costQueryRequest(projectID, tableID string, p billing.Periods) *bqapi.QueryRequest {
	table := fmt.Sprintf("`%s.%s.%s`", projectID, c.dataset, tableID)

	return &bqapi.QueryRequest{
		Query:         fmt.Sprintf(costQuery, table),
		UseLegacySql:  googleapi.Bool(false),
		ParameterMode: "NAMED",
		QueryParameters: []*bqapi.QueryParameter{
			stringParameter("current_period", p.Current),
			stringParameter("previous_period", p.Previous),
			stringParameter("trailing_start", p.TrailingStart),
			stringParameter("current_year", p.Year),
			stringParameter("scan_start", p.ScanStart()),
		},
		MaxResults: 1,
		TimeoutMs:  c.queryTimeout.Milliseconds(),
		Location:   c.location,
	}
}

func stringParameter(name, value string) *bqapi.QueryParameter {
	return &bqapi.QueryParameter{
		Name:           name,
		ParameterType:  &bqapi.QueryParameterType{Type: "STRING"},
		ParameterValue: &bqapi.QueryParameterValue{Value: value},
	}
}

// summaryFromRows maps the first result row. A missing row, or a row with fewer
// cells than expected, means no cost has been exported yet.
func summaryFromRows(rows []*bqapi.TableRow, retrievedAt time.Time) billing.CostSummary {
	if len(rows) == 0 || rows[0] == nil || len(rows[0].F) < costFields {
		return billing.EmptySummary(retrievedAt)
	}

	cells := rows[0].F
	return billing.CostSummary{
		Currency:        currency(cells[currencyField]),
		CurrentMonth:    amount(cells[currentMonthField]),
		PreviousMonth:   amount(cells[previousMonthField]),
		Trailing3Months: amount(cells[trailing3MonthsField]),
		YearToDate:      amount(cells[yearToDateField]),
		RetrievedAt:     retrievedAt,
	}
}

// amount parses a numeric cell. The REST API encodes numbers as strings; null,
// missing and unparsable values count as zero.
func amount(cell *bqapi.TableCell) float64 {
	if cell == nil {
		return 0
	}

	var f float64
	switch v := cell.V.(type) {
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		f = parsed
	case float64:
		f = v
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func currency(cell *bqapi.TableCell) string {
	if cell == nil {
		return billing.DefaultCurrency
	}
	if s, ok := cell.V.(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return billing.DefaultCurrency
}

func jobID(resp *bqapi.QueryResponse) string {
	ref := lo.FromPtr(resp.JobReference)
	if ref.JobId == "" {
		return "(unknown)"
	}
	return ref.JobId
}
