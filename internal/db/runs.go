package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/banshee-data/precision.report/internal/arrival"
	"github.com/google/uuid"
)

// CaptureRun is the persisted record of one capture session: configuration,
// lifetime counters, and summary statistics over the measured differences.
// The statistics columns are NULL for runs that produced no differences.
type CaptureRun struct {
	RunID              string   `json:"run_id"`
	Interface          string   `json:"interface"`
	BurstSize          int      `json:"burst_size"`
	StoreCapacity      int      `json:"store_capacity"`
	StartedAtNs        int64    `json:"started_at_ns"`
	EndedAtNs          int64    `json:"ended_at_ns"`
	PacketsReceived    int64    `json:"packets_received"`
	PacketsTimestamped int64    `json:"packets_timestamped"`
	PacketsEvaluated   int64    `json:"packets_evaluated"`
	DiffsRecorded      int64    `json:"diffs_recorded"`
	DiffsDropped       int64    `json:"diffs_dropped"`
	OutputFile         string   `json:"output_file,omitempty"`
	RunError           string   `json:"run_error,omitempty"`
	MinNs              *int64   `json:"min_ns,omitempty"`
	MaxNs              *int64   `json:"max_ns,omitempty"`
	MeanNs             *float64 `json:"mean_ns,omitempty"`
	StdDevNs           *float64 `json:"stddev_ns,omitempty"`
	P50Ns              *int64   `json:"p50_ns,omitempty"`
	P90Ns              *int64   `json:"p90_ns,omitempty"`
	P95Ns              *int64   `json:"p95_ns,omitempty"`
	P99Ns              *int64   `json:"p99_ns,omitempty"`
}

func (r *CaptureRun) String() string {
	return fmt.Sprintf("run %s: %d received, %d timestamped, %d diffs stored (%d dropped)",
		r.RunID, r.PacketsReceived, r.PacketsTimestamped, r.DiffsRecorded, r.DiffsDropped)
}

// SetSummary fills the statistics columns from a computed diff summary.
// A zero-count summary leaves them NULL.
func (r *CaptureRun) SetSummary(s arrival.DiffSummary) {
	if s.Count == 0 {
		return
	}
	r.MinNs = int64Ptr(int64(s.MinNs))
	r.MaxNs = int64Ptr(int64(s.MaxNs))
	r.MeanNs = float64Ptr(s.MeanNs)
	r.StdDevNs = float64Ptr(s.StdDevNs)
	r.P50Ns = int64Ptr(int64(s.P50Ns))
	r.P90Ns = int64Ptr(int64(s.P90Ns))
	r.P95Ns = int64Ptr(int64(s.P95Ns))
	r.P99Ns = int64Ptr(int64(s.P99Ns))
}

func int64Ptr(v int64) *int64 {
	return &v
}

func float64Ptr(v float64) *float64 {
	return &v
}

const captureRunColumns = `run_id, interface, burst_size, store_capacity, started_at_ns, ended_at_ns,
	packets_received, packets_timestamped, packets_evaluated, diffs_recorded, diffs_dropped,
	output_file, run_error, min_ns, max_ns, mean_ns, stddev_ns, p50_ns, p90_ns, p95_ns, p99_ns`

func scanCaptureRun(row interface{ Scan(dest ...interface{}) error }) (*CaptureRun, error) {
	var r CaptureRun
	err := row.Scan(
		&r.RunID, &r.Interface, &r.BurstSize, &r.StoreCapacity, &r.StartedAtNs, &r.EndedAtNs,
		&r.PacketsReceived, &r.PacketsTimestamped, &r.PacketsEvaluated, &r.DiffsRecorded, &r.DiffsDropped,
		&r.OutputFile, &r.RunError, &r.MinNs, &r.MaxNs, &r.MeanNs, &r.StdDevNs,
		&r.P50Ns, &r.P90Ns, &r.P95Ns, &r.P99Ns,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// RecordCaptureRun persists one capture run. A missing RunID is assigned a
// fresh UUID before insert.
func (db *DB) RecordCaptureRun(run *CaptureRun) error {
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}

	_, err := db.Exec(`
		INSERT INTO capture_runs (`+captureRunColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Interface, run.BurstSize, run.StoreCapacity, run.StartedAtNs, run.EndedAtNs,
		run.PacketsReceived, run.PacketsTimestamped, run.PacketsEvaluated, run.DiffsRecorded, run.DiffsDropped,
		run.OutputFile, run.RunError, run.MinNs, run.MaxNs, run.MeanNs, run.StdDevNs,
		run.P50Ns, run.P90Ns, run.P95Ns, run.P99Ns,
	)
	if err != nil {
		return fmt.Errorf("failed to record capture run: %w", err)
	}
	return nil
}

// ListCaptureRuns returns up to limit capture runs, most recently started first.
func (db *DB) ListCaptureRuns(limit int) ([]*CaptureRun, error) {
	rows, err := db.Query(`
		SELECT `+captureRunColumns+`
		FROM capture_runs
		ORDER BY started_at_ns DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture runs: %w", err)
	}
	defer rows.Close()

	var runs []*CaptureRun
	for rows.Next() {
		run, err := scanCaptureRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan capture run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetCaptureRun returns the run with the given ID.
func (db *DB) GetCaptureRun(runID string) (*CaptureRun, error) {
	run, err := scanCaptureRun(db.QueryRow(`
		SELECT `+captureRunColumns+`
		FROM capture_runs
		WHERE run_id = ?`, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to get capture run %s: %w", runID, err)
	}
	return run, nil
}

// LatestCaptureRun returns the most recently started run, or nil if no runs
// have been recorded yet.
func (db *DB) LatestCaptureRun() (*CaptureRun, error) {
	run, err := scanCaptureRun(db.QueryRow(`
		SELECT ` + captureRunColumns + `
		FROM capture_runs
		ORDER BY started_at_ns DESC
		LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest capture run: %w", err)
	}
	return run, nil
}
