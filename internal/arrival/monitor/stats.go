package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/banshee-data/precision.report/internal/arrival"
)

// StatsSnapshot represents a snapshot of current statistics
type StatsSnapshot struct {
	ReceivedPerSec    float64   `json:"received_per_sec"`
	TimestampedPerSec float64   `json:"timestamped_per_sec"`
	DiffsPerSec       float64   `json:"diffs_per_sec"`
	DroppedRecent     int64     `json:"dropped_recent"`
	Timestamp         time.Time `json:"timestamp"`
}

// CaptureStats tracks capture pipeline counters with thread-safe operations.
// It is the StatsSink handed to the capture session, and the web interface
// reads it from other goroutines.
type CaptureStats struct {
	mu          sync.Mutex
	received    int64
	timestamped int64
	evaluated   int64
	diffs       int64
	dropped     int64

	totalReceived    int64
	totalTimestamped int64
	totalEvaluated   int64
	totalDiffs       int64
	totalDropped     int64

	lastReset      time.Time
	startTime      time.Time
	latestSnapshot *StatsSnapshot
}

var _ arrival.StatsSink = (*CaptureStats)(nil)

// NewCaptureStats creates a new CaptureStats instance
func NewCaptureStats() *CaptureStats {
	now := time.Now()
	return &CaptureStats{
		lastReset: now,
		startTime: now,
	}
}

// AddReceived counts packets pulled from the source
func (cs *CaptureStats) AddReceived(n int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.received += int64(n)
	cs.totalReceived += int64(n)
}

// AddTimestamped counts packets carrying the timestamp marker
func (cs *CaptureStats) AddTimestamped(n int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.timestamped += int64(n)
	cs.totalTimestamped += int64(n)
}

// AddEvaluated counts packets whose burst was fully differenced
func (cs *CaptureStats) AddEvaluated(n int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.evaluated += int64(n)
	cs.totalEvaluated += int64(n)
}

// AddDiffs counts difference values appended to the store
func (cs *CaptureStats) AddDiffs(n int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.diffs += int64(n)
	cs.totalDiffs += int64(n)
}

// AddDiffsDropped counts difference values rejected by the full store
func (cs *CaptureStats) AddDiffsDropped(n int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.dropped += int64(n)
	cs.totalDropped += int64(n)
}

// GetAndReset returns the interval counters and resets them
func (cs *CaptureStats) GetAndReset() (received, timestamped, evaluated, diffs, dropped int64, duration time.Duration) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	now := time.Now()
	duration = now.Sub(cs.lastReset)
	received = cs.received
	timestamped = cs.timestamped
	evaluated = cs.evaluated
	diffs = cs.diffs
	dropped = cs.dropped

	cs.received = 0
	cs.timestamped = 0
	cs.evaluated = 0
	cs.diffs = 0
	cs.dropped = 0
	cs.lastReset = now

	return
}

// Totals returns the lifetime counters.
func (cs *CaptureStats) Totals() (received, timestamped, evaluated, diffs, dropped int64) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.totalReceived, cs.totalTimestamped, cs.totalEvaluated, cs.totalDiffs, cs.totalDropped
}

// LogStats logs formatted rates and stores a snapshot for the web interface
func (cs *CaptureStats) LogStats() {
	received, timestamped, _, diffs, dropped, duration := cs.GetAndReset()
	if received > 0 || dropped > 0 {
		receivedPerSec := float64(received) / duration.Seconds()
		timestampedPerSec := float64(timestamped) / duration.Seconds()
		diffsPerSec := float64(diffs) / duration.Seconds()

		// Store snapshot for web interface
		cs.mu.Lock()
		cs.latestSnapshot = &StatsSnapshot{
			ReceivedPerSec:    receivedPerSec,
			TimestampedPerSec: timestampedPerSec,
			DiffsPerSec:       diffsPerSec,
			DroppedRecent:     dropped,
			Timestamp:         time.Now(),
		}
		cs.mu.Unlock()

		logMsg := fmt.Sprintf("Capture stats (/sec): %s packets, %s timestamped, %s diffs",
			FormatWithCommas(int64(receivedPerSec)),
			FormatWithCommas(int64(timestampedPerSec)),
			FormatWithCommas(int64(diffsPerSec)))
		if dropped > 0 {
			logMsg += fmt.Sprintf(", %d dropped on full store", dropped)
		}

		log.Print(logMsg)
	}
}

// StartStatsLogging periodically logs rates until ctx is cancelled.
// An initial report fires shortly after startup to avoid a long silence
// on first run. A non-positive interval disables logging.
func (cs *CaptureStats) StartStatsLogging(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		cs.LogStats()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs.LogStats()
		}
	}
}

// GetUptime returns the time since the stats were created
func (cs *CaptureStats) GetUptime() time.Duration {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return time.Since(cs.startTime)
}

// GetLatestSnapshot returns the most recent stats snapshot for the web interface
func (cs *CaptureStats) GetLatestSnapshot() *StatsSnapshot {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.latestSnapshot == nil {
		return nil
	}
	// Return a copy to avoid race conditions
	snapshot := *cs.latestSnapshot
	return &snapshot
}

// FormatWithCommas formats a number with thousands separators
func FormatWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
