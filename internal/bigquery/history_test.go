package bigquery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/option"

	"github.com/nais/gcp-cost/internal/billing"
	"github.com/nais/gcp-cost/internal/config"
)

const historyTablePath = "/projects/" + testProject + "/datasets/" + testDataset + "/tables"

// fakeHistory serves the table metadata, insert and insertAll endpoints.
type fakeHistory struct {
	mu      sync.Mutex
	exists  bool
	created int
	rows    []map[string]any
}

func (f *fakeHistory) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	body, _ := io.ReadAll(r.Body)

	switch {
	case r.Method == http.MethodGet && r.URL.Path == historyTablePath+"/cost_history":
		if !f.exists {
			writeError(w, http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"kind": "bigquery#table", "tableReference": {"projectId": "`+testProject+`", "datasetId": "`+testDataset+`", "tableId": "cost_history"}}`)
	case r.Method == http.MethodPost && r.URL.Path == historyTablePath:
		f.created++
		f.exists = true
		_, _ = w.Write(body)
	case r.Method == http.MethodPost && r.URL.Path == historyTablePath+"/cost_history/insertAll":
		var req struct {
			Rows []map[string]any `json:"rows"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.rows = append(f.rows, req.Rows...)
		_, _ = io.WriteString(w, `{"kind": "bigquery#tableDataInsertAllResponse"}`)
	default:
		http.Error(w, "unexpected request "+r.Method+" "+r.URL.Path, http.StatusTeapot)
	}
}

func newTestHistory(t *testing.T, fake *fakeHistory) *History {
	t.Helper()

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := config.BigQuery{
		ProjectID:    testProject,
		Dataset:      testDataset,
		HistoryTable: "cost_history",
	}
	h, err := NewHistory(context.Background(), cfg,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestNewHistoryRow(t *testing.T) {
	target := Target{ProjectID: testProject, Dataset: testDataset, TableID: testExportTable}
	summary := billing.CostSummary{
		Currency:        "EUR",
		CurrentMonth:    1,
		PreviousMonth:   2,
		Trailing3Months: 3,
		YearToDate:      4,
		RetrievedAt:     testNow,
	}

	want := HistoryRow{
		ProjectID:       testProject,
		Dataset:         testDataset,
		TableID:         testExportTable,
		Currency:        "EUR",
		CurrentMonth:    1,
		PreviousMonth:   2,
		Trailing3Months: 3,
		YearToDate:      4,
		RetrievedAt:     testNow,
	}
	if diff := cmp.Diff(want, NewHistoryRow(target, summary)); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestHistoryCreateTableIfNotExists(t *testing.T) {
	fake := &fakeHistory{}
	h := newTestHistory(t, fake)
	ctx := context.Background()

	if err := h.CreateTableIfNotExists(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.CreateTableIfNotExists(ctx); err != nil {
		t.Fatal(err)
	}

	if fake.created != 1 {
		t.Errorf("expected table to be created once, got %d", fake.created)
	}
}

func TestHistoryRecord(t *testing.T) {
	fake := &fakeHistory{exists: true}
	h := newTestHistory(t, fake)

	row := NewHistoryRow(
		Target{ProjectID: testProject, Dataset: testDataset, TableID: testExportTable},
		billing.CostSummary{Currency: "USD", CurrentMonth: 12.5, RetrievedAt: testNow},
	)
	if err := h.Record(context.Background(), row); err != nil {
		t.Fatal(err)
	}

	if len(fake.rows) != 1 {
		t.Fatalf("expected 1 inserted row, got %d", len(fake.rows))
	}
	inserted := fake.rows[0]
	if id, _ := inserted["insertId"].(string); strings.TrimSpace(id) == "" {
		t.Error("expected an insert id")
	}

	values, _ := inserted["json"].(map[string]any)
	if values["project_id"] != testProject || values["table_id"] != testExportTable || values["currency"] != "USD" {
		t.Errorf("unexpected row values %v", values)
	}
}
