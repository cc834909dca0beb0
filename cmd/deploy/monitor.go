package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/precision.report/internal/arrival/monitor"
	"github.com/banshee-data/precision.report/internal/deploy"
)

// Monitor handles status checking and health monitoring
type Monitor struct {
	Station deploy.Station
	Exec    *deploy.Executor
	APIHost string
	APIPort int
}

// HealthStatus represents the health check result
type HealthStatus struct {
	Healthy bool
	Message string
	Details string
}

// APIStatus mirrors the daemon's /api/status payload.
type APIStatus struct {
	Service   string  `json:"service"`
	Interface string  `json:"interface"`
	BurstSize int     `json:"burst_size"`
	UptimeSec float64 `json:"uptime_sec"`
	Totals    struct {
		PacketsReceived    int64 `json:"packets_received"`
		PacketsTimestamped int64 `json:"packets_timestamped"`
		PacketsEvaluated   int64 `json:"packets_evaluated"`
		DiffsRecorded      int64 `json:"diffs_recorded"`
		DiffsDropped       int64 `json:"diffs_dropped"`
	} `json:"totals"`
	Rates *struct {
		ReceivedPerSec    float64 `json:"received_per_sec"`
		TimestampedPerSec float64 `json:"timestamped_per_sec"`
		DiffsPerSec       float64 `json:"diffs_per_sec"`
		DroppedRecent     int64   `json:"dropped_recent"`
	} `json:"rates"`
}

// StatusReport aggregates everything the status command shows.
type StatusReport struct {
	Host         string
	ServiceState string
	Enabled      string
	StartedAt    string
	DatabaseSize string
	OutputSize   string
	DiskFree     string
	API          *APIStatus
	APIError     string
}

// GetStatus collects service state over ssh and live counters over HTTP.
func (m *Monitor) GetStatus(ctx context.Context) (*StatusReport, error) {
	report := &StatusReport{Host: m.APIHost}

	state, err := m.Exec.Run(fmt.Sprintf("systemctl is-active %s 2>/dev/null || true", m.Station.UnitName()))
	if err != nil {
		return nil, fmt.Errorf("failed to reach target: %w", err)
	}
	report.ServiceState = strings.TrimSpace(state)

	if enabled, err := m.Exec.Run(fmt.Sprintf("systemctl is-enabled %s 2>/dev/null || true", m.Station.UnitName())); err == nil {
		report.Enabled = strings.TrimSpace(enabled)
	}
	if started, err := m.Exec.Run(fmt.Sprintf("systemctl show %s --property=ActiveEnterTimestamp --value", m.Station.UnitName())); err == nil {
		report.StartedAt = strings.TrimSpace(started)
	}

	report.DatabaseSize = m.fileSize(m.Station.DatabaseFile())
	report.OutputSize = m.fileSize(m.Station.OutputFile())
	if free, err := m.Exec.Run(fmt.Sprintf("df -h %s 2>/dev/null | tail -1 | awk '{print $4}'", m.Station.DataDir)); err == nil {
		report.DiskFree = strings.TrimSpace(free)
	}

	api, err := m.fetchAPIStatus(ctx)
	if err != nil {
		report.APIError = err.Error()
	} else {
		report.API = api
	}

	return report, nil
}

func (m *Monitor) fileSize(path string) string {
	output, err := m.Exec.Run(fmt.Sprintf("test -f %s && du -h %s | cut -f1 || echo 'missing'", path, path))
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(output)
}

func (m *Monitor) apiURL(path string) string {
	host := m.APIHost
	if host == "" {
		host = "localhost"
	}
	port := m.APIPort
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("http://%s:%d%s", host, port, path)
}

func (m *Monitor) fetchAPIStatus(ctx context.Context) (*APIStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.apiURL("/api/status"), nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api returned status %d", resp.StatusCode)
	}

	var status APIStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("bad api response: %w", err)
	}
	return &status, nil
}

// FormatStatus renders the report for the terminal.
func (r *StatusReport) FormatStatus() string {
	var b strings.Builder

	host := r.Host
	if host == "" {
		host = "localhost"
	}

	fmt.Fprintf(&b, "=== Station status: %s ===\n", host)
	state := r.ServiceState
	if state == "" {
		state = "unknown"
	}
	if r.Enabled != "" {
		fmt.Fprintf(&b, "Service:    %s (%s)\n", state, r.Enabled)
	} else {
		fmt.Fprintf(&b, "Service:    %s\n", state)
	}
	if r.StartedAt != "" {
		fmt.Fprintf(&b, "Started:    %s\n", r.StartedAt)
	}
	fmt.Fprintf(&b, "Database:   %s\n", r.DatabaseSize)
	fmt.Fprintf(&b, "Output:     %s\n", r.OutputSize)
	if r.DiskFree != "" {
		fmt.Fprintf(&b, "Disk free:  %s\n", r.DiskFree)
	}

	if r.API == nil {
		fmt.Fprintf(&b, "\nCapture API: unreachable")
		if r.APIError != "" {
			fmt.Fprintf(&b, " (%s)", r.APIError)
		}
		fmt.Fprintln(&b)
		return b.String()
	}

	api := r.API
	uptime := time.Duration(api.UptimeSec * float64(time.Second)).Round(time.Second)
	fmt.Fprintf(&b, "\nCapture:\n")
	fmt.Fprintf(&b, "  Interface:   %s\n", api.Interface)
	fmt.Fprintf(&b, "  Burst size:  %d\n", api.BurstSize)
	fmt.Fprintf(&b, "  Uptime:      %s\n", uptime)
	fmt.Fprintf(&b, "  Received:    %s packets\n", monitor.FormatWithCommas(api.Totals.PacketsReceived))
	fmt.Fprintf(&b, "  Timestamped: %s\n", monitor.FormatWithCommas(api.Totals.PacketsTimestamped))
	fmt.Fprintf(&b, "  Evaluated:   %s\n", monitor.FormatWithCommas(api.Totals.PacketsEvaluated))
	fmt.Fprintf(&b, "  Diffs:       %s recorded, %s dropped\n",
		monitor.FormatWithCommas(api.Totals.DiffsRecorded), monitor.FormatWithCommas(api.Totals.DiffsDropped))
	if api.Rates != nil {
		fmt.Fprintf(&b, "  Rates:       %.1f pkt/s, %.1f diffs/s\n", api.Rates.ReceivedPerSec, api.Rates.DiffsPerSec)
	}

	return b.String()
}

// ScanDiskUsage lists the largest entries under the data directory.
func (m *Monitor) ScanDiskUsage() (string, error) {
	output, err := m.Exec.RunSudo(fmt.Sprintf("du -x -d 2 -h %s 2>/dev/null | sort -rh | head -20", m.Station.DataDir))
	if err != nil {
		return "", fmt.Errorf("disk scan failed: %w", err)
	}
	return output, nil
}

// CheckHealth performs comprehensive health check
func (m *Monitor) CheckHealth() (*HealthStatus, error) {
	health := &HealthStatus{
		Healthy: true,
	}

	var checks []string

	// Check 1: Service is running
	output, err := m.Exec.Run(fmt.Sprintf("systemctl is-active %s 2>/dev/null || true", m.Station.UnitName()))
	if err != nil || strings.TrimSpace(output) != "active" {
		health.Healthy = false
		health.Message = "Service is not running"
		checks = append(checks, "✗ Service: NOT RUNNING")
	} else {
		checks = append(checks, "✓ Service: RUNNING")
	}

	// Check 2: Service has been up for some time (not crash-looping)
	uptimeOutput, err := m.Exec.Run(fmt.Sprintf("systemctl show %s --property=ActiveEnterTimestamp --value", m.Station.UnitName()))
	if err == nil && strings.TrimSpace(uptimeOutput) != "" {
		checks = append(checks, fmt.Sprintf("✓ Started: %s", strings.TrimSpace(uptimeOutput)))
	}

	// Check 3: Check for recent errors in logs
	logsOutput, err := m.Exec.RunSudo(fmt.Sprintf("journalctl -u %s -n 20 --no-pager", m.Station.UnitName()))
	if err == nil {
		errorCount := strings.Count(strings.ToLower(logsOutput), "error")
		if errorCount > 5 {
			health.Healthy = false
			health.Message = fmt.Sprintf("Too many errors in logs (%d)", errorCount)
			checks = append(checks, fmt.Sprintf("✗ Logs: %d errors found", errorCount))
		} else {
			checks = append(checks, fmt.Sprintf("✓ Logs: %d errors (acceptable)", errorCount))
		}
	}

	// Check 4: Health endpoint is responding
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(m.apiURL("/health"))
	if err != nil {
		health.Healthy = false
		if health.Message == "" {
			health.Message = "Health endpoint not responding"
		}
		checks = append(checks, "✗ API: NOT RESPONDING")
	} else {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			var payload map[string]interface{}
			if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload["service"] == "precision" {
				checks = append(checks, "✓ API: RESPONDING")
			} else {
				health.Healthy = false
				if health.Message == "" {
					health.Message = "Unexpected health payload"
				}
				checks = append(checks, "✗ API: UNEXPECTED RESPONSE")
			}
		} else {
			health.Healthy = false
			if health.Message == "" {
				health.Message = fmt.Sprintf("API returned status %d", resp.StatusCode)
			}
			checks = append(checks, fmt.Sprintf("✗ API: Status %d", resp.StatusCode))
		}
	}

	// Check 5: Database file exists
	dbPath := m.Station.DatabaseFile()
	dbCheck, err := m.Exec.Run(fmt.Sprintf("test -f %s && echo 'exists' || echo 'missing'", dbPath))
	if err == nil && strings.TrimSpace(dbCheck) == "exists" {
		sizeOutput, err := m.Exec.RunSudo(fmt.Sprintf("du -h %s | cut -f1", dbPath))
		if err == nil {
			checks = append(checks, fmt.Sprintf("✓ Database: %s", strings.TrimSpace(sizeOutput)))
		} else {
			checks = append(checks, "✓ Database: EXISTS")
		}
	} else {
		health.Healthy = false
		if health.Message == "" {
			health.Message = "Database file not found"
		}
		checks = append(checks, "✗ Database: MISSING")
	}

	// Check 6: Output file. It is written at clean shutdown, so absence
	// during a run is normal.
	outName := filepath.Base(m.Station.OutputFile())
	outCheck, err := m.Exec.Run(fmt.Sprintf("test -f %s && echo 'exists' || echo 'missing'", m.Station.OutputFile()))
	if err == nil && strings.TrimSpace(outCheck) == "exists" {
		checks = append(checks, fmt.Sprintf("✓ Output: %s present", outName))
	} else {
		checks = append(checks, fmt.Sprintf("- Output: %s pending (written at shutdown)", outName))
	}

	health.Details = strings.Join(checks, "\n")

	if health.Healthy {
		health.Message = "All checks passed"
	}

	return health, nil
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner renders a terminal progress indicator for slow ssh round trips.
type Spinner struct {
	label string
	frame int
}

func NewSpinner(label string) *Spinner {
	return &Spinner{label: label}
}

// Next returns the next frame, prefixed with a carriage return so the
// caller can print it in place.
func (s *Spinner) Next() string {
	frame := spinnerFrames[s.frame%len(spinnerFrames)]
	s.frame++
	return fmt.Sprintf("\r%s %s", frame, s.label)
}
