package bigquery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	bqapi "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/option"

	"github.com/nais/gcp-cost/internal/config"
)

const (
	testProject = "billing-project"
	testDataset = "billing_export"
)

var testNow = time.Date(2025, time.January, 15, 8, 30, 0, 0, time.UTC)

// fakeBigQuery serves the tables.list and jobs.query REST endpoints.
type fakeBigQuery struct {
	mu sync.Mutex

	// tablePages holds table IDs per listing page
	tablePages  [][]string
	listStatus  int
	queryStatus int
	// queryBody is written verbatim as the jobs.query response
	queryBody string

	listCalls      int
	queryCalls     int
	listedProjects []string
	queries        []bqapi.QueryRequest
}

func (f *fakeBigQuery) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/datasets/"+testDataset+"/tables"):
		f.listCalls++
		f.listedProjects = append(f.listedProjects, projectFromPath(r.URL.Path))
		if f.listStatus != 0 && f.listStatus != http.StatusOK {
			writeError(w, f.listStatus)
			return
		}
		f.writeTablePage(w, r.URL.Query().Get("pageToken"))
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/queries"):
		f.queryCalls++
		var req bqapi.QueryRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.queries = append(f.queries, req)
		if f.queryStatus != 0 && f.queryStatus != http.StatusOK {
			writeError(w, f.queryStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, f.queryBody)
	default:
		http.Error(w, "unexpected request "+r.Method+" "+r.URL.Path, http.StatusTeapot)
	}
}

func (f *fakeBigQuery) writeTablePage(w http.ResponseWriter, token string) {
	page := 0
	if token != "" {
		page, _ = strconv.Atoi(strings.TrimPrefix(token, "page-"))
	}

	list := bqapi.TableList{}
	if page < len(f.tablePages) {
		for _, id := range f.tablePages[page] {
			list.Tables = append(list.Tables, &bqapi.TableListTables{
				TableReference: &bqapi.TableReference{ProjectId: testProject, DatasetId: testDataset, TableId: id},
			})
		}
		if page+1 < len(f.tablePages) {
			list.NextPageToken = fmt.Sprintf("page-%d", page+1)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (f *fakeBigQuery) counts() (list, query int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.queryCalls
}

func (f *fakeBigQuery) lastQuery(t *testing.T) bqapi.QueryRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		t.Fatal("expected a query request")
	}
	return f.queries[len(f.queries)-1]
}

func projectFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "projects" {
			return parts[i+1]
		}
	}
	return ""
}

func writeError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"error": {"code": %d, "message": %q}}`, status, http.StatusText(status))
}

// queryResponse renders a jobs.query response with the given rows of cells.
func queryResponse(rows ...[]any) string {
	type cell struct {
		V any `json:"v"`
	}
	type row struct {
		F []cell `json:"f"`
	}

	resp := struct {
		Kind         string            `json:"kind"`
		JobComplete  bool              `json:"jobComplete"`
		JobReference map[string]string `json:"jobReference"`
		Rows         []row             `json:"rows,omitempty"`
		TotalRows    string            `json:"totalRows"`
	}{
		Kind:         "bigquery#queryResponse",
		JobComplete:  true,
		JobReference: map[string]string{"projectId": testProject, "jobId": "job_cost_summary"},
		TotalRows:    strconv.Itoa(len(rows)),
	}
	for _, r := range rows {
		cells := make([]cell, 0, len(r))
		for _, v := range r {
			cells = append(cells, cell{V: v})
		}
		resp.Rows = append(resp.Rows, row{F: cells})
	}

	b, _ := json.Marshal(resp)
	return string(b)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestClient(t *testing.T, fake *fakeBigQuery) *Client {
	t.Helper()

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := config.BigQuery{
		ProjectID:    testProject,
		Dataset:      testDataset,
		QueryTimeout: 10 * time.Second,
	}
	c, err := New(context.Background(), cfg, testLogger(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatal(err)
	}
	c.now = func() time.Time { return testNow }
	return c
}
