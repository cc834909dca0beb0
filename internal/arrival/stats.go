package arrival

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DiffSummary aggregates a set of measured arrival differences. All values
// are in nanoseconds; percentiles use floor-based indexing on the sorted
// set, so for small sets neighbouring percentiles may coincide.
type DiffSummary struct {
	Count    int     `json:"count"`
	MinNs    uint64  `json:"min_ns"`
	MaxNs    uint64  `json:"max_ns"`
	MeanNs   float64 `json:"mean_ns"`
	StdDevNs float64 `json:"stddev_ns"`
	P50Ns    uint64  `json:"p50_ns"`
	P90Ns    uint64  `json:"p90_ns"`
	P95Ns    uint64  `json:"p95_ns"`
	P99Ns    uint64  `json:"p99_ns"`
}

// Summarize computes summary statistics over measured differences. The
// input slice is not modified. An empty input yields a zero summary.
func Summarize(diffs []uint64) DiffSummary {
	if len(diffs) == 0 {
		return DiffSummary{}
	}

	sorted := make([]uint64, len(diffs))
	copy(sorted, diffs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	vals := make([]float64, len(sorted))
	for i, d := range sorted {
		vals[i] = float64(d)
	}
	mean, stddev := stat.MeanStdDev(vals, nil)
	// MeanStdDev returns NaN stddev for a single sample.
	if math.IsNaN(stddev) {
		stddev = 0
	}

	return DiffSummary{
		Count:    len(sorted),
		MinNs:    sorted[0],
		MaxNs:    sorted[len(sorted)-1],
		MeanNs:   mean,
		StdDevNs: stddev,
		P50Ns:    percentile(sorted, 0.50),
		P90Ns:    percentile(sorted, 0.90),
		P95Ns:    percentile(sorted, 0.95),
		P99Ns:    percentile(sorted, 0.99),
	}
}

// percentile picks from a sorted slice using floor-based indexing,
// clamped to the last element.
func percentile(sorted []uint64, p float64) uint64 {
	idx := int(math.Floor(float64(len(sorted)) * p))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
