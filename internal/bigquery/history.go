package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/nais/gcp-cost/internal/billing"
	"github.com/nais/gcp-cost/internal/config"
)

// HistoryRow is one fetched summary as stored in the history table.
type HistoryRow struct {
	ProjectID       string    `bigquery:"project_id"`
	Dataset         string    `bigquery:"dataset"`
	TableID         string    `bigquery:"table_id"`
	Currency        string    `bigquery:"currency"`
	CurrentMonth    float64   `bigquery:"current_month"`
	PreviousMonth   float64   `bigquery:"previous_month"`
	Trailing3Months float64   `bigquery:"trailing_3_months"`
	YearToDate      float64   `bigquery:"year_to_date"`
	RetrievedAt     time.Time `bigquery:"retrieved_at"`
}

func NewHistoryRow(target Target, summary billing.CostSummary) HistoryRow {
	return HistoryRow{
		ProjectID:       target.ProjectID,
		Dataset:         target.Dataset,
		TableID:         target.TableID,
		Currency:        summary.Currency,
		CurrentMonth:    summary.CurrentMonth,
		PreviousMonth:   summary.PreviousMonth,
		Trailing3Months: summary.Trailing3Months,
		YearToDate:      summary.YearToDate,
		RetrievedAt:     summary.RetrievedAt,
	}
}

// History appends fetched summaries to a table next to the billing export.
type History struct {
	client  *bigquery.Client
	dataset string
	table   string
}

func NewHistory(ctx context.Context, cfg config.BigQuery, opts ...option.ClientOption) (*History, error) {
	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}
	if cfg.Location != "" {
		client.Location = cfg.Location
	}

	return &History{
		client:  client,
		dataset: cfg.Dataset,
		table:   cfg.HistoryTable,
	}, nil
}

func (h *History) CreateTableIfNotExists(ctx context.Context) error {
	exists, err := h.tableExists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check if table exists: %w", err)
	}
	if exists {
		return nil
	}

	return h.createTable(ctx)
}

func (h *History) createTable(ctx context.Context) error {
	s, err := bigquery.InferSchema(HistoryRow{})
	if err != nil {
		return fmt.Errorf("failed to infer schema: %w", err)
	}

	if err := h.client.Dataset(h.dataset).Table(h.table).Create(ctx, &bigquery.TableMetadata{Schema: s}); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return nil
}

// tableExists checks whether the history table exists in the dataset.
func (h *History) tableExists(ctx context.Context) (bool, error) {
	tableRef := h.client.Dataset(h.dataset).Table(h.table)
	if _, err := tableRef.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (h *History) Record(ctx context.Context, row HistoryRow) error {
	saver := &bigquery.StructSaver{
		Struct:   row,
		InsertID: uuid.NewString(),
	}

	if err := h.client.Dataset(h.dataset).Table(h.table).Inserter().Put(ctx, saver); err != nil {
		return fmt.Errorf("failed to insert history row: %w", err)
	}
	return nil
}

func (h *History) Close() error {
	return h.client.Close()
}
