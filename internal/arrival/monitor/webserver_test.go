package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/precision.report/internal/arrival"
	"github.com/banshee-data/precision.report/internal/db"
	"github.com/banshee-data/precision.report/internal/fsutil"
	"github.com/banshee-data/precision.report/internal/testutil"
)

func newTestServer(t *testing.T, config WebServerConfig) *WebServer {
	t.Helper()
	if config.Address == "" {
		config.Address = ":0"
	}
	if config.Interface == "" {
		config.Interface = "eth2"
	}
	if config.BurstSize == 0 {
		config.BurstSize = 4
	}
	return NewWebServer(config)
}

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "monitor-test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestNewWebServer(t *testing.T) {
	stats := NewCaptureStats()

	server := newTestServer(t, WebServerConfig{
		Address:   ":0",
		Stats:     stats,
		Interface: "eth3",
		BurstSize: 8,
	})

	if server == nil {
		t.Fatal("NewWebServer returned nil")
	}
	if server.stats != stats {
		t.Error("WebServer stats not set correctly")
	}
	if server.iface != "eth3" {
		t.Error("WebServer interface not set correctly")
	}
	if server.burstSize != 8 {
		t.Error("WebServer burst size not set correctly")
	}
	if server.outputDir != "." {
		t.Errorf("WebServer outputDir = %q, want \".\"", server.outputDir)
	}
}

func TestNewWebServerDefaultsStats(t *testing.T) {
	server := newTestServer(t, WebServerConfig{})
	if server.stats == nil {
		t.Error("Expected NewWebServer to default a stats instance")
	}
}

func TestWebServer_HealthHandler(t *testing.T) {
	server := newTestServer(t, WebServerConfig{})

	req := testutil.NewTestRequest("GET", "/health")
	rr := testutil.NewTestRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Health handler returned %d, want %d", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()
	if !strings.Contains(body, `"status": "ok"`) {
		t.Errorf("Health response missing ok status: %s", body)
	}
	if !strings.Contains(body, `"service": "precision"`) {
		t.Errorf("Health response missing service name: %s", body)
	}
}

func TestWebServer_StatusHandler(t *testing.T) {
	stats := NewCaptureStats()
	server := newTestServer(t, WebServerConfig{Stats: stats, Interface: "eth2"})

	stats.AddReceived(1000)
	stats.AddTimestamped(400)
	stats.AddDiffs(300)
	stats.LogStats()

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Status handler returned %d, want %d", rr.Code, http.StatusOK)
	}

	body := rr.Body.String()
	for _, want := range []string{"precision capture", "eth2", "1,000", "400", "300"} {
		if !strings.Contains(body, want) {
			t.Errorf("Status page missing %q", want)
		}
	}
}

func TestWebServer_StatusHandlerNotFound(t *testing.T) {
	server := newTestServer(t, WebServerConfig{})

	req := testutil.NewTestRequest("GET", "/no-such-page")
	rr := testutil.NewTestRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	testutil.AssertStatusCode(t, rr.Code, http.StatusNotFound)
}

func TestWebServer_APIStatus(t *testing.T) {
	stats := NewCaptureStats()
	server := newTestServer(t, WebServerConfig{Stats: stats, Interface: "eth2", BurstSize: 4})

	stats.AddReceived(10)
	stats.AddTimestamped(8)
	stats.AddEvaluated(8)
	stats.AddDiffs(6)
	stats.AddDiffsDropped(1)

	req := httptest.NewRequest("GET", "/api/status", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("API status returned %d, want %d", rr.Code, http.StatusOK)
	}

	var resp struct {
		Service   string `json:"service"`
		Interface string `json:"interface"`
		BurstSize int    `json:"burst_size"`
		Totals    struct {
			PacketsReceived    int64 `json:"packets_received"`
			PacketsTimestamped int64 `json:"packets_timestamped"`
			PacketsEvaluated   int64 `json:"packets_evaluated"`
			DiffsRecorded      int64 `json:"diffs_recorded"`
			DiffsDropped       int64 `json:"diffs_dropped"`
		} `json:"totals"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode API status response: %v", err)
	}

	if resp.Service != "precision" || resp.Interface != "eth2" || resp.BurstSize != 4 {
		t.Errorf("Unexpected identity fields: %+v", resp)
	}
	if resp.Totals.PacketsReceived != 10 || resp.Totals.PacketsTimestamped != 8 ||
		resp.Totals.PacketsEvaluated != 8 || resp.Totals.DiffsRecorded != 6 ||
		resp.Totals.DiffsDropped != 1 {
		t.Errorf("Unexpected totals: %+v", resp.Totals)
	}
}

func TestWebServer_APIStatusMethodNotAllowed(t *testing.T) {
	server := newTestServer(t, WebServerConfig{})

	req := httptest.NewRequest("POST", "/api/status", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/status returned %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
}

func TestWebServer_RunsHandler(t *testing.T) {
	database := newTestDB(t)
	for i, id := range []string{"a", "b", "c"} {
		run := &db.CaptureRun{RunID: id, StartedAtNs: int64(i+1) * 1000, Interface: "eth2"}
		if err := database.RecordCaptureRun(run); err != nil {
			t.Fatalf("RecordCaptureRun failed: %v", err)
		}
	}

	server := newTestServer(t, WebServerConfig{DB: database})

	req := httptest.NewRequest("GET", "/api/runs", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("GET /api/runs returned %d, want %d (body: %s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	var runs []db.CaptureRun
	if err := json.NewDecoder(rr.Body).Decode(&runs); err != nil {
		t.Fatalf("Failed to decode runs response: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(runs))
	}
	if runs[0].RunID != "c" {
		t.Errorf("Expected newest run first, got %q", runs[0].RunID)
	}

	// limit query param caps the result
	req = httptest.NewRequest("GET", "/api/runs?limit=1", nil)
	rr = httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	runs = nil
	if err := json.NewDecoder(rr.Body).Decode(&runs); err != nil {
		t.Fatalf("Failed to decode limited runs response: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("Expected 1 run with limit=1, got %d", len(runs))
	}
}

func TestWebServer_RunsHandlerNoDB(t *testing.T) {
	server := newTestServer(t, WebServerConfig{})

	req := httptest.NewRequest("GET", "/api/runs", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("GET /api/runs without db returned %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestWebServer_RunHandler(t *testing.T) {
	database := newTestDB(t)
	run := &db.CaptureRun{RunID: "the-run", StartedAtNs: 1000, Interface: "eth2", DiffsRecorded: 3}
	run.SetSummary(arrival.Summarize([]uint64{100, 150, 10}))
	if err := database.RecordCaptureRun(run); err != nil {
		t.Fatalf("RecordCaptureRun failed: %v", err)
	}

	server := newTestServer(t, WebServerConfig{DB: database})

	req := httptest.NewRequest("GET", "/api/run?run_id=the-run", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("GET /api/run returned %d, want %d (body: %s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	var got db.CaptureRun
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode run response: %v", err)
	}
	if got.RunID != "the-run" || got.DiffsRecorded != 3 {
		t.Errorf("Unexpected run payload: %+v", got)
	}
	if got.P50Ns == nil || *got.P50Ns != 100 {
		t.Errorf("Expected p50 of 100 in payload, got %v", got.P50Ns)
	}

	// Missing parameter
	req = httptest.NewRequest("GET", "/api/run", nil)
	rr = httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("GET /api/run without run_id returned %d, want %d", rr.Code, http.StatusBadRequest)
	}

	// Unknown run
	req = httptest.NewRequest("GET", "/api/run?run_id=missing", nil)
	rr = httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("GET /api/run for unknown id returned %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestWebServer_StartAndShutdown(t *testing.T) {
	server := newTestServer(t, WebServerConfig{Address: "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}

func TestWebServer_DiffsChart(t *testing.T) {
	outputDir := t.TempDir()
	path := filepath.Join(outputDir, arrival.DefaultOutputFile)
	diffs := []uint64{100, 150, 10, 120, 130, 100, 90, 110}
	if err := arrival.WriteDiffFile(fsutil.OSFileSystem{}, path, diffs); err != nil {
		t.Fatalf("WriteDiffFile failed: %v", err)
	}

	server := newTestServer(t, WebServerConfig{OutputDir: outputDir})

	req := httptest.NewRequest("GET", "/debug/charts/diffs", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("GET /debug/charts/diffs returned %d, want %d (body: %s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("Chart content type = %q, want text/html", ct)
	}
	if body := rr.Body.String(); !strings.Contains(body, "echarts") {
		t.Error("Chart page does not embed an echarts chart")
	}
}

func TestWebServer_DiffsChartRejectsTraversal(t *testing.T) {
	server := newTestServer(t, WebServerConfig{OutputDir: t.TempDir()})

	req := httptest.NewRequest("GET", "/debug/charts/diffs?file=../outside.dat", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Traversal attempt returned %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestWebServer_DiffsChartMissingFile(t *testing.T) {
	server := newTestServer(t, WebServerConfig{OutputDir: t.TempDir()})

	req := httptest.NewRequest("GET", "/debug/charts/diffs", nil)
	rr := httptest.NewRecorder()
	server.setupRoutes().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("Missing file returned %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestHistogram(t *testing.T) {
	diffs := make([]uint64, 10)
	for i := range diffs {
		diffs[i] = uint64(i)
	}

	labels, counts := histogram(diffs, 5)
	if len(labels) != 5 || len(counts) != 5 {
		t.Fatalf("histogram returned %d labels, %d counts, want 5 each", len(labels), len(counts))
	}

	var total int64
	for _, c := range counts {
		total += c
	}
	if total != 10 {
		t.Errorf("histogram counts sum to %d, want 10", total)
	}
	if counts[4] == 0 {
		t.Error("max value bin is empty, clamping lost the top value")
	}
}

func TestHistogramSingleValue(t *testing.T) {
	labels, counts := histogram([]uint64{42, 42, 42}, 5)
	if len(labels) != 1 || len(counts) != 1 {
		t.Fatalf("single-value histogram returned %d bins, want 1", len(counts))
	}
	if labels[0] != "42" || counts[0] != 3 {
		t.Errorf("single-value histogram = %v/%v, want [42]/[3]", labels, counts)
	}
}
