package billing

import "time"

const periodLayout = "200601"

// Periods holds the invoice period keys (YYYYMM) the cost query is keyed on.
type Periods struct {
	Current       string
	Previous      string
	TrailingStart string
	Year          string
}

// PeriodsAt computes the period keys for the calendar month containing now, in UTC.
// Month arithmetic is done on dates so January rolls back into the previous year.
func PeriodsAt(now time.Time) Periods {
	now = now.UTC()
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	return Periods{
		Current:       month.Format(periodLayout),
		Previous:      month.AddDate(0, -1, 0).Format(periodLayout),
		TrailingStart: month.AddDate(0, -3, 0).Format(periodLayout),
		Year:          month.Format("2006"),
	}
}

// ScanStart is the oldest period any of the windows touch.
func (p Periods) ScanStart() string {
	yearStart := p.Year + "01"
	if p.TrailingStart < yearStart {
		return p.TrailingStart
	}
	return yearStart
}
