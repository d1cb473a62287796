package billing

import (
	"testing"
	"time"
)

func TestPeriodsAt(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want Periods
	}{
		{
			name: "january rolls back into previous year",
			now:  time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC),
			want: Periods{Current: "202501", Previous: "202412", TrailingStart: "202410", Year: "2025"},
		},
		{
			name: "march trailing window starts in december",
			now:  time.Date(2025, time.March, 31, 23, 59, 59, 0, time.UTC),
			want: Periods{Current: "202503", Previous: "202502", TrailingStart: "202412", Year: "2025"},
		},
		{
			name: "mid year",
			now:  time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC),
			want: Periods{Current: "202408", Previous: "202407", TrailingStart: "202405", Year: "2024"},
		},
		{
			name: "converted to utc before computing",
			now:  time.Date(2025, time.February, 1, 0, 30, 0, 0, time.FixedZone("CET", 3600)),
			want: Periods{Current: "202501", Previous: "202412", TrailingStart: "202410", Year: "2025"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PeriodsAt(tt.now)
			if got != tt.want {
				t.Errorf("PeriodsAt(%s) = %+v, want %+v", tt.now, got, tt.want)
			}
		})
	}
}

func TestPeriodsScanStart(t *testing.T) {
	jan := PeriodsAt(time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC))
	if got := jan.ScanStart(); got != "202410" {
		t.Errorf("expected trailing start 202410 to bound the scan, got %s", got)
	}

	sep := PeriodsAt(time.Date(2025, time.September, 15, 0, 0, 0, 0, time.UTC))
	if got := sep.ScanStart(); got != "202501" {
		t.Errorf("expected year start 202501 to bound the scan, got %s", got)
	}
}
