package monitor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nais/gcp-cost/internal/bigquery"
)

const meterName = "github.com/nais/gcp-cost/internal/monitor"

type metrics struct {
	fetches  metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter(meterName)
	m := &metrics{}
	var err error

	m.fetches, err = meter.Int64Counter("gcp_cost.fetches",
		metric.WithDescription("Number of cost summary fetches"))
	if err != nil {
		return nil, err
	}

	m.failures, err = meter.Int64Counter("gcp_cost.fetch_failures",
		metric.WithDescription("Number of failed cost summary fetches"))
	if err != nil {
		return nil, err
	}

	m.duration, err = meter.Float64Histogram("gcp_cost.fetch.duration_seconds",
		metric.WithDescription("Cost summary fetch duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metrics) observe(ctx context.Context, elapsed time.Duration, err error) {
	m.fetches.Add(ctx, 1)
	m.duration.Record(ctx, elapsed.Seconds())
	if err != nil {
		m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("error_class", bigquery.ErrorClass(err))))
	}
}
