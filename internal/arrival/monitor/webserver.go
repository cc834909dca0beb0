package monitor

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/banshee-data/precision.report/internal/db"
	"github.com/banshee-data/precision.report/internal/httputil"
)

//go:embed status.html
var StatusHTML embed.FS

// WebServer handles the HTTP interface for monitoring the capture pipeline.
// It provides endpoints for health checks, real-time counters, recorded run
// history and debug charts.
type WebServer struct {
	address   string
	stats     *CaptureStats
	server    *http.Server
	db        *db.DB
	iface     string
	burstSize int
	outputDir string
}

// WebServerConfig contains configuration options for the web server
type WebServerConfig struct {
	Address   string
	Stats     *CaptureStats
	DB        *db.DB
	Interface string
	BurstSize int
	// OutputDir is the directory holding the measurement files served by
	// the debug charts. Empty means the working directory.
	OutputDir string
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:   config.Address,
		stats:     config.Stats,
		db:        config.DB,
		iface:     config.Interface,
		burstSize: config.BurstSize,
		outputDir: config.OutputDir,
	}
	if ws.outputDir == "" {
		ws.outputDir = "."
	}
	if ws.stats == nil {
		ws.stats = NewCaptureStats()
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
func (ws *WebServer) Start(ctx context.Context) error {
	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	// Create a shutdown context with a shorter timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/status", ws.handleAPIStatus)
	mux.HandleFunc("/api/runs", ws.handleRuns)
	mux.HandleFunc("/api/run", ws.handleRun)
	mux.HandleFunc("/debug/charts/diffs", ws.handleDiffsChart)

	if ws.db != nil {
		ws.db.AttachAdminRoutes(mux)
	}

	return mux
}

// handleHealth handles the health check endpoint
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "precision", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// handleStatus handles the main status page endpoint
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	// Load and parse the HTML template from embedded filesystem
	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	received, timestamped, evaluated, diffs, dropped := ws.stats.Totals()

	// Template data
	data := struct {
		Interface        string
		HTTPAddress      string
		BurstSize        int
		Uptime           string
		Stats            *StatsSnapshot
		TotalReceived    string
		TotalTimestamped string
		TotalEvaluated   string
		TotalDiffs       string
		TotalDropped     string
	}{
		Interface:        ws.iface,
		HTTPAddress:      ws.address,
		BurstSize:        ws.burstSize,
		Uptime:           ws.stats.GetUptime().Round(time.Second).String(),
		Stats:            ws.stats.GetLatestSnapshot(),
		TotalReceived:    FormatWithCommas(received),
		TotalTimestamped: FormatWithCommas(timestamped),
		TotalEvaluated:   FormatWithCommas(evaluated),
		TotalDiffs:       FormatWithCommas(diffs),
		TotalDropped:     FormatWithCommas(dropped),
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// handleAPIStatus returns the live counters as JSON.
func (ws *WebServer) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	received, timestamped, evaluated, diffs, dropped := ws.stats.Totals()

	httputil.WriteJSONOK(w, map[string]interface{}{
		"service":    "precision",
		"interface":  ws.iface,
		"burst_size": ws.burstSize,
		"uptime_sec": ws.stats.GetUptime().Seconds(),
		"totals": map[string]int64{
			"packets_received":    received,
			"packets_timestamped": timestamped,
			"packets_evaluated":   evaluated,
			"diffs_recorded":      diffs,
			"diffs_dropped":       dropped,
		},
		"rates": ws.stats.GetLatestSnapshot(),
	})
}

// handleRuns returns a JSON array of the last N recorded capture runs.
// Query params:
//
//	limit (optional, default 10)
func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.db == nil {
		httputil.InternalServerError(w, "no database configured for run lookup")
		return
	}

	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
		if limit <= 0 || limit > 100 {
			limit = 10
		}
	}

	runs, err := ws.db.ListCaptureRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list capture runs: %v", err))
		return
	}
	if runs == nil {
		runs = []*db.CaptureRun{}
	}

	httputil.WriteJSONOK(w, runs)
}

// handleRun returns one recorded capture run.
// Query params:
//
//	run_id (required)
func (ws *WebServer) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.db == nil {
		httputil.InternalServerError(w, "no database configured for run lookup")
		return
	}

	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		httputil.BadRequest(w, "missing 'run_id' parameter")
		return
	}

	run, err := ws.db.GetCaptureRun(runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httputil.NotFound(w, fmt.Sprintf("no capture run '%s'", runID))
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("get capture run: %v", err))
		return
	}

	httputil.WriteJSONOK(w, run)
}
