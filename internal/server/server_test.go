package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TobiSchelling/reviewguard/internal/classify"
	"github.com/TobiSchelling/reviewguard/internal/database"
	"github.com/TobiSchelling/reviewguard/internal/records"
	"github.com/TobiSchelling/reviewguard/internal/score"
	"github.com/TobiSchelling/reviewguard/internal/signals"
	"github.com/TobiSchelling/reviewguard/internal/verdict"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

// seedRun stores a finished run with one ok, one flagged and one failed row.
func seedRun(t *testing.T, db *database.DB) {
	t.Helper()
	if err := db.InsertRun(database.Run{ID: "run-1", Command: "run", Provider: ptr("openai"), Model: ptr("gpt-4o")}); err != nil {
		t.Fatalf("insert run: %v", err)
	}
	rows := []records.Row{
		{ID: "a", Index: 0, Name: "Blue Diner", Text: "Call 555-123-4567 now for a discount"},
		{ID: "b", Index: 1, Name: "Blue Diner", Text: "Lovely staff"},
		{ID: "c", Index: 2, Name: "Red Cafe", Text: "Okay"},
	}
	results := []classify.Result{
		{RowID: "a", Index: 0, Outcome: verdict.Decode(`{"advertisement":true,"relevance":"low","quality":"low"}`), Signals: signals.Scan(rows[0].Text)},
		{RowID: "b", Index: 1, Outcome: verdict.Decode(`{"relevance":"high","quality":"high"}`), Signals: signals.Scan(rows[1].Text)},
		{RowID: "c", Index: 2, Outcome: verdict.Decode("Sorry, I can't help with that"), Signals: signals.Scan(rows[2].Text)},
	}
	rel, err := score.Score([]string{"low", "high", "average"}, []string{"low", "high", "high"})
	if err != nil {
		t.Fatalf("score: %v", err)
	}

	if err := db.SaveRows("run-1", rows); err != nil {
		t.Fatalf("save rows: %v", err)
	}
	if err := db.SaveResults("run-1", results); err != nil {
		t.Fatalf("save results: %v", err)
	}
	if err := db.SaveMetrics("run-1", score.Report{score.Relevance: rel}); err != nil {
		t.Fatalf("save metrics: %v", err)
	}
	if err := db.FinishRun("run-1", 3, nil); err != nil {
		t.Fatalf("finish run: %v", err)
	}
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func newServer(t *testing.T, db *database.DB) *Server {
	t.Helper()
	srv, err := New(db)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func TestIndexRouteEmpty(t *testing.T) {
	srv := newServer(t, openTestDB(t))

	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No runs yet") {
		t.Error("expected empty state in response body")
	}
}

func TestIndexRouteListsRuns(t *testing.T) {
	db := openTestDB(t)
	seedRun(t, db)
	srv := newServer(t, db)

	body := get(t, srv, "/").Body.String()
	if !strings.Contains(body, `href="/runs/run-1"`) {
		t.Error("expected link to run-1")
	}
	if !strings.Contains(body, "status-done") {
		t.Error("expected done status")
	}
}

func TestRunRoute(t *testing.T) {
	db := openTestDB(t)
	seedRun(t, db)
	srv := newServer(t, db)

	rec := get(t, srv, "/runs/run-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()

	for _, want := range []string{
		"Run run-1",
		"Relevance Score",
		"66.7%",
		"Failures (1)",
		"decode_failure",
		"Flagged reviews (1)",
		"advertisement",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in response", want)
		}
	}
	if strings.Contains(body, "555-123-4567") {
		t.Error("expected phone number to be redacted")
	}
}

func TestRunRouteNotFound(t *testing.T) {
	srv := newServer(t, openTestDB(t))

	if rec := get(t, srv, "/runs/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := get(t, srv, "/runs/missing/report"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for report, got %d", rec.Code)
	}
}

func TestReportRouteComposesMissingReport(t *testing.T) {
	db := openTestDB(t)
	seedRun(t, db)
	srv := newServer(t, db)

	rec := get(t, srv, "/runs/run-1/report")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<h1") || !strings.Contains(body, "Run run-1") {
		t.Error("expected rendered markdown heading")
	}
	if !strings.Contains(body, "<table>") {
		t.Error("expected markdown tables rendered as HTML")
	}

	stored, err := db.GetReport("run-1")
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if stored == "" {
		t.Error("expected composed report to be stored")
	}
}

func TestMetricsAPI(t *testing.T) {
	db := openTestDB(t)
	seedRun(t, db)
	srv := newServer(t, db)

	rec := get(t, srv, "/api/runs/run-1/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	var got score.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	rel, ok := got[score.Relevance]
	if !ok {
		t.Fatal("expected relevance dimension")
	}
	if rel.ConfusionMatrix[1][2] != 1 {
		t.Errorf("expected one average->high miss, got %v", rel.ConfusionMatrix)
	}
}

func TestMetricsAPINotFound(t *testing.T) {
	srv := newServer(t, openTestDB(t))

	rec := get(t, srv, "/api/runs/missing/metrics")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
		t.Errorf("expected JSON error body, got %q", rec.Body.String())
	}
}

func TestStaticRoute(t *testing.T) {
	srv := newServer(t, openTestDB(t))

	rec := get(t, srv, "/static/style.css")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "font-family") {
		t.Error("expected CSS content")
	}
}
