package billing

import (
	"strconv"
	"time"
)

// DefaultCurrency is reported when the export returns no rows or no currency.
const DefaultCurrency = "USD"

// CostSummary is the aggregated spend of one billing export at a point in time.
// All four amounts are in Currency.
type CostSummary struct {
	Currency        string    `json:"currency"`
	CurrentMonth    float64   `json:"current_month"`
	PreviousMonth   float64   `json:"previous_month"`
	Trailing3Months float64   `json:"trailing_3_months"`
	YearToDate      float64   `json:"year_to_date"`
	RetrievedAt     time.Time `json:"retrieved_at"`
}

// EmptySummary is the summary of an export that has no cost rows yet.
func EmptySummary(retrievedAt time.Time) CostSummary {
	return CostSummary{
		Currency:    DefaultCurrency,
		RetrievedAt: retrievedAt,
	}
}

// IsZero reports whether no spend has been recorded in any window.
func (s CostSummary) IsZero() bool {
	return s.CurrentMonth == 0 && s.PreviousMonth == 0 && s.Trailing3Months == 0 && s.YearToDate == 0
}

func (s CostSummary) String() string {
	return s.Currency + "," + costToString(s.CurrentMonth) + "," + costToString(s.PreviousMonth) + "," +
		costToString(s.Trailing3Months) + "," + costToString(s.YearToDate) + "," + s.RetrievedAt.Format(time.RFC3339)
}

func costToString(cost float64) string {
	return strconv.FormatFloat(cost, 'f', 2, 64)
}
