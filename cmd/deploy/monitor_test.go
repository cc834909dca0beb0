package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/precision.report/internal/deploy"
)

func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("Failed to split host/port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Failed to parse port: %v", err)
	}
	return host, port
}

// statusServer serves the daemon's status and health endpoints with
// fixed counters.
func statusServer(t *testing.T) (string, int) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/status":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"service":    "precision",
				"interface":  "eth0",
				"burst_size": 4,
				"uptime_sec": 3600.0,
				"totals": map[string]int64{
					"packets_received":    1000,
					"packets_timestamped": 996,
					"packets_evaluated":   992,
					"diffs_recorded":      744,
					"diffs_dropped":       0,
				},
				"rates": map[string]interface{}{
					"received_per_sec":    100.0,
					"timestamped_per_sec": 99.5,
					"diffs_per_sec":       74.6,
					"dropped_recent":      0,
				},
			})
		case "/health":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"status": "ok", "service": "precision", "timestamp": %q}`,
				time.Now().UTC().Format(time.RFC3339))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return hostPort(t, ts.URL)
}

// deadServer returns an address nothing is listening on.
func deadServer(t *testing.T) (string, int) {
	t.Helper()
	ts := httptest.NewServer(http.NotFoundHandler())
	host, port := hostPort(t, ts.URL)
	ts.Close()
	return host, port
}

func TestMonitor_GetStatus(t *testing.T) {
	host, port := statusServer(t)

	exec, _ := scriptedExec(func(cmd string) *deploy.MockRunner {
		r := &deploy.MockRunner{}
		switch {
		case strings.Contains(cmd, "is-active"):
			r.Output = []byte("active\n")
		case strings.Contains(cmd, "is-enabled"):
			r.Output = []byte("enabled\n")
		case strings.Contains(cmd, "ActiveEnterTimestamp"):
			r.Output = []byte("Mon 2026-08-24 10:11:12 UTC\n")
		case strings.Contains(cmd, "du -h"):
			r.Output = []byte("1.2M\n")
		case strings.Contains(cmd, "df -h"):
			r.Output = []byte("3.1G\n")
		}
		return r
	})

	m := &Monitor{
		Station: deploy.DefaultStation(),
		Exec:    exec,
		APIHost: host,
		APIPort: port,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	report, err := m.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus() error: %v", err)
	}

	if report.ServiceState != "active" {
		t.Errorf("ServiceState = %q, want active", report.ServiceState)
	}
	if report.API == nil {
		t.Fatalf("API = nil (APIError %q)", report.APIError)
	}
	if report.API.BurstSize != 4 {
		t.Errorf("BurstSize = %d, want 4", report.API.BurstSize)
	}
	if report.API.Totals.DiffsRecorded != 744 {
		t.Errorf("DiffsRecorded = %d, want 744", report.API.Totals.DiffsRecorded)
	}
	if report.API.Rates == nil || report.API.Rates.DiffsPerSec != 74.6 {
		t.Errorf("Rates = %+v, want diffs_per_sec 74.6", report.API.Rates)
	}

	out := report.FormatStatus()
	for _, want := range []string{
		"active (enabled)",
		"Burst size:  4",
		"Uptime:      1h0m0s",
		"1,000 packets",
		"744 recorded, 0 dropped",
		"74.6 diffs/s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatStatus() missing %q in:\n%s", want, out)
		}
	}
}

func TestMonitor_GetStatus_APIDown(t *testing.T) {
	host, port := deadServer(t)

	exec, _ := scriptedExec(func(cmd string) *deploy.MockRunner {
		r := &deploy.MockRunner{}
		if strings.Contains(cmd, "is-active") {
			r.Output = []byte("inactive\n")
		}
		return r
	})

	m := &Monitor{
		Station: deploy.DefaultStation(),
		Exec:    exec,
		APIHost: host,
		APIPort: port,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	report, err := m.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus() error: %v", err)
	}
	if report.API != nil {
		t.Error("API should be nil when the endpoint is unreachable")
	}
	if report.APIError == "" {
		t.Error("APIError should be set when the endpoint is unreachable")
	}
	if !strings.Contains(report.FormatStatus(), "Capture API: unreachable") {
		t.Errorf("FormatStatus() should report the unreachable API:\n%s", report.FormatStatus())
	}
}

func TestMonitor_CheckHealth_AllPassing(t *testing.T) {
	host, port := statusServer(t)

	exec, _ := scriptedExec(func(cmd string) *deploy.MockRunner {
		r := &deploy.MockRunner{}
		switch {
		case strings.Contains(cmd, "is-active"):
			r.Output = []byte("active\n")
		case strings.Contains(cmd, "ActiveEnterTimestamp"):
			r.Output = []byte("Mon 2026-08-24 10:11:12 UTC\n")
		case strings.Contains(cmd, "journalctl"):
			r.Output = []byte("Aug 24 10:11:12 station1 precision[123]: capture started\n")
		case strings.Contains(cmd, "test -f /var/lib/precision/precision.db"):
			r.Output = []byte("exists\n")
		case strings.Contains(cmd, "du -h"):
			r.Output = []byte("1.2M\n")
		case strings.Contains(cmd, "timestamp_diffs_measured.dat"):
			r.Output = []byte("missing\n")
		}
		return r
	})

	m := &Monitor{
		Station: deploy.DefaultStation(),
		Exec:    exec,
		APIHost: host,
		APIPort: port,
	}

	health, err := m.CheckHealth()
	if err != nil {
		t.Fatalf("CheckHealth() error: %v", err)
	}
	if !health.Healthy {
		t.Fatalf("Healthy = false: %s\n%s", health.Message, health.Details)
	}
	if health.Message != "All checks passed" {
		t.Errorf("Message = %q, want 'All checks passed'", health.Message)
	}
	for _, want := range []string{
		"✓ Service: RUNNING",
		"✓ Logs: 0 errors (acceptable)",
		"✓ API: RESPONDING",
		"✓ Database: 1.2M",
		"pending (written at shutdown)",
	} {
		if !strings.Contains(health.Details, want) {
			t.Errorf("Details missing %q:\n%s", want, health.Details)
		}
	}
}

func TestMonitor_CheckHealth_ServiceDown(t *testing.T) {
	host, port := deadServer(t)

	exec, _ := scriptedExec(func(cmd string) *deploy.MockRunner {
		r := &deploy.MockRunner{}
		switch {
		case strings.Contains(cmd, "is-active"):
			r.Output = []byte("inactive\n")
		case strings.Contains(cmd, "test -f"):
			r.Output = []byte("missing\n")
		}
		return r
	})

	m := &Monitor{
		Station: deploy.DefaultStation(),
		Exec:    exec,
		APIHost: host,
		APIPort: port,
	}

	health, err := m.CheckHealth()
	if err != nil {
		t.Fatalf("CheckHealth() error: %v", err)
	}
	if health.Healthy {
		t.Fatal("Healthy = true for a downed service")
	}
	if health.Message != "Service is not running" {
		t.Errorf("Message = %q, want service-down message", health.Message)
	}
	for _, want := range []string{"✗ Service: NOT RUNNING", "✗ API: NOT RESPONDING", "✗ Database: MISSING"} {
		if !strings.Contains(health.Details, want) {
			t.Errorf("Details missing %q:\n%s", want, health.Details)
		}
	}
}

func TestMonitor_CheckHealth_NoisyLogs(t *testing.T) {
	host, port := statusServer(t)

	exec, _ := scriptedExec(func(cmd string) *deploy.MockRunner {
		r := &deploy.MockRunner{}
		switch {
		case strings.Contains(cmd, "is-active"):
			r.Output = []byte("active\n")
		case strings.Contains(cmd, "journalctl"):
			r.Output = []byte(strings.Repeat("error: poll failed\n", 6))
		case strings.Contains(cmd, "test -f /var/lib/precision/precision.db"):
			r.Output = []byte("exists\n")
		}
		return r
	})

	m := &Monitor{
		Station: deploy.DefaultStation(),
		Exec:    exec,
		APIHost: host,
		APIPort: port,
	}

	health, err := m.CheckHealth()
	if err != nil {
		t.Fatalf("CheckHealth() error: %v", err)
	}
	if health.Healthy {
		t.Fatal("Healthy = true with an error-filled journal")
	}
	if !strings.Contains(health.Message, "Too many errors") {
		t.Errorf("Message = %q, want log-noise message", health.Message)
	}
}

func TestMonitor_ScanDiskUsage(t *testing.T) {
	exec, builder := scriptedExec(func(cmd string) *deploy.MockRunner {
		return &deploy.MockRunner{Output: []byte("1.5G\t/var/lib/precision\n1.2M\t/var/lib/precision/precision.db\n")}
	})

	m := &Monitor{Station: deploy.DefaultStation(), Exec: exec}

	out, err := m.ScanDiskUsage()
	if err != nil {
		t.Fatalf("ScanDiskUsage() error: %v", err)
	}
	if !strings.Contains(out, "precision.db") {
		t.Errorf("unexpected scan output: %q", out)
	}
	if len(commandsContaining(builder, "du -x -d 2")) == 0 {
		t.Error("expected a depth-limited du invocation")
	}
}

func TestSpinner_Next(t *testing.T) {
	s := NewSpinner("working")

	first := s.Next()
	if !strings.HasPrefix(first, "\r") {
		t.Errorf("Next() should start with a carriage return, got %q", first)
	}
	if !strings.Contains(first, "working") {
		t.Errorf("Next() should include the label, got %q", first)
	}
	if second := s.Next(); second == first {
		t.Error("Next() should advance to a new frame")
	}

	s2 := NewSpinner("x")
	start := s2.Next()
	for i := 0; i < len(spinnerFrames)-1; i++ {
		s2.Next()
	}
	if wrapped := s2.Next(); wrapped != start {
		t.Errorf("frames should wrap: got %q, want %q", wrapped, start)
	}
}
