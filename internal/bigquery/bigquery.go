package bigquery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	bqapi "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/option"

	"github.com/nais/gcp-cost/internal/billing"
	"github.com/nais/gcp-cost/internal/config"
)

// Client resolves the billing export table of one dataset and aggregates its costs.
//
// The resolved table and the last summary are kept for the lifetime of the client.
// Fetches are not serialized; callers run at most one at a time.
type Client struct {
	api          *bqapi.Service
	dataset      string
	location     string
	queryTimeout time.Duration
	log          logrus.FieldLogger
	now          func() time.Time

	mu        sync.RWMutex
	projectID string
	tableID   string
	summary   *billing.CostSummary
}

// Target identifies the export table a client reads from. TableID is empty until resolved.
type Target struct {
	ProjectID string
	Dataset   string
	TableID   string
}

// New builds a client for cfg. opts carry the API access, see ClientOptions.
func New(ctx context.Context, cfg config.BigQuery, log logrus.FieldLogger, opts ...option.ClientOption) (*Client, error) {
	api, err := bqapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery service: %w", err)
	}

	return &Client{
		api:          api,
		dataset:      cfg.Dataset,
		location:     cfg.Location,
		queryTimeout: cfg.QueryTimeout,
		log:          log.WithField("dataset", cfg.ProjectID+"."+cfg.Dataset),
		now:          time.Now,
		projectID:    cfg.ProjectID,
	}, nil
}

// SetProjectID points the client at another project. The resolved table belongs
// to the old project and is forgotten; the last summary is kept.
func (c *Client) SetProjectID(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.projectID == projectID {
		return
	}
	c.projectID = projectID
	c.tableID = ""
	c.log = c.log.WithField("dataset", projectID+"."+c.dataset)
}

// CachedSummary returns the summary of the last successful fetch, if any.
func (c *Client) CachedSummary() (billing.CostSummary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.summary == nil {
		return billing.CostSummary{}, false
	}
	return *c.summary, true
}

func (c *Client) Target() Target {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Target{
		ProjectID: c.projectID,
		Dataset:   c.dataset,
		TableID:   c.tableID,
	}
}

func (c *Client) logger() logrus.FieldLogger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.log
}
