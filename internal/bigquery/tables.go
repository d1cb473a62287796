package bigquery

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	bqapi "google.golang.org/api/bigquery/v2"
)

// exportTablePrefixes are the names Cloud Billing gives its export tables:
// the standard export per billing account and the detailed export per resource.
var exportTablePrefixes = []string{
	"gcp_billing_export_v1_",
	"gcp_billing_export_resource_v1_",
}

func isExportTable(tableID string) bool {
	return lo.SomeBy(exportTablePrefixes, func(prefix string) bool {
		return strings.HasPrefix(tableID, prefix)
	})
}

// ResolveTable returns the billing export table of the dataset. The first match in
// listing order wins. The result is kept, so only the first call lists tables.
func (c *Client) ResolveTable(ctx context.Context) (string, error) {
	c.mu.RLock()
	tableID, projectID := c.tableID, c.projectID
	c.mu.RUnlock()

	if tableID != "" {
		return tableID, nil
	}

	tableID, err := c.findExportTable(ctx, projectID)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	// the project may have changed while listing
	if c.projectID == projectID {
		c.tableID = tableID
	}
	c.mu.Unlock()

	c.logger().WithField("table", tableID).Info("resolved billing export table")
	return tableID, nil
}

func (c *Client) findExportTable(ctx context.Context, projectID string) (string, error) {
	call := c.api.Tables.List(projectID, c.dataset).Context(ctx)

	listed := 0
	for {
		list, err := call.Do()
		if err != nil {
			if isNotFound(err) {
				return "", fmt.Errorf("%w: dataset %s.%s does not exist", ErrNotFound, projectID, c.dataset)
			}
			return "", classify("list tables", err)
		}

		tableIDs := lo.FilterMap(list.Tables, func(t *bqapi.TableListTables, _ int) (string, bool) {
			if t == nil || t.TableReference == nil {
				return "", false
			}
			return t.TableReference.TableId, true
		})
		listed += len(tableIDs)

		if tableID, ok := lo.Find(tableIDs, isExportTable); ok {
			return tableID, nil
		}

		if list.NextPageToken == "" {
			break
		}
		call.PageToken(list.NextPageToken)
	}

	if listed == 0 {
		return "", fmt.Errorf("%w: dataset %s.%s has no tables", ErrNotFound, projectID, c.dataset)
	}
	return "", fmt.Errorf("%w: no table in %s.%s starts with %s", ErrNotFound, projectID, c.dataset, strings.Join(exportTablePrefixes, " or "))
}
