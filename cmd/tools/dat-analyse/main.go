package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/precision.report/internal/arrival"
	"github.com/banshee-data/precision.report/internal/db"
	"github.com/banshee-data/precision.report/internal/fsutil"
	"github.com/banshee-data/precision.report/internal/units"
)

// Config holds analysis configuration from command line flags
type Config struct {
	DatFile    string
	Units      string
	JSONOutput string
	CSVOutput  string
	Histogram  string
	Bins       int
	DBFile     string
	Quiet      bool
}

func parseFlags() Config {
	var config Config

	flag.StringVar(&config.DatFile, "dat", "", "Measurement file to analyse (one nanosecond value per line)")
	flag.StringVar(&config.Units, "units", units.NS, "Display units for the summary: "+units.GetValidUnitsString())
	flag.StringVar(&config.JSONOutput, "json", "", "Write the summary as JSON to this file ('-' for stdout)")
	flag.StringVar(&config.CSVOutput, "csv", "", "Write the values as CSV to this file")
	flag.StringVar(&config.Histogram, "histogram", "", "Write a histogram PNG to this file")
	flag.IntVar(&config.Bins, "bins", 50, "Histogram bin count")
	flag.StringVar(&config.DBFile, "db", "", "Record the summary as a run row in this SQLite database")
	flag.BoolVar(&config.Quiet, "quiet", false, "Suppress the banner summary")
	flag.BoolVar(&config.Quiet, "q", false, "Suppress the banner summary (alias for -quiet)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -dat <file> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Analysis tool for timestamp difference files produced by the precision daemon.\n\n")
		fmt.Fprintf(os.Stderr, "Computes count, min, max, mean, standard deviation and percentiles over\n")
		fmt.Fprintf(os.Stderr, "the recorded arrival differences, and optionally exports the results.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -dat timestamp_diffs_measured.dat\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -dat run42.dat -units us -json run42_summary.json\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -dat run42.dat -histogram run42_hist.png -bins 100\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -dat run42.dat -db precision.db\n", os.Args[0])
	}

	flag.Parse()

	// Accept 'dat-analyse <file>' as shorthand for -dat.
	if config.DatFile == "" && flag.NArg() == 1 {
		config.DatFile = flag.Arg(0)
	}

	return config
}

// summaryExport is the JSON shape written by -json.
type summaryExport struct {
	File        string              `json:"file"`
	GeneratedAt string              `json:"generated_at"`
	Summary     arrival.DiffSummary `json:"summary"`
}

// formatNs renders a nanosecond quantity in the configured display units.
func formatNs(ns float64, unit string) string {
	v := units.ConvertNanos(ns, unit)
	if unit == units.NS {
		return fmt.Sprintf("%.0f %s", v, unit)
	}
	return fmt.Sprintf("%.3f %s", v, unit)
}

func printSummary(config Config, summary arrival.DiffSummary) {
	fmt.Println("\n===== Timestamp Difference Summary =====")
	fmt.Printf("File: %s\n", config.DatFile)
	fmt.Printf("Samples: %d\n", summary.Count)
	fmt.Println()
	fmt.Printf("Min:    %s\n", formatNs(float64(summary.MinNs), config.Units))
	fmt.Printf("Max:    %s\n", formatNs(float64(summary.MaxNs), config.Units))
	fmt.Printf("Mean:   %s\n", formatNs(summary.MeanNs, config.Units))
	fmt.Printf("StdDev: %s\n", formatNs(summary.StdDevNs, config.Units))
	fmt.Println()
	fmt.Printf("P50: %s\n", formatNs(float64(summary.P50Ns), config.Units))
	fmt.Printf("P90: %s\n", formatNs(float64(summary.P90Ns), config.Units))
	fmt.Printf("P95: %s\n", formatNs(float64(summary.P95Ns), config.Units))
	fmt.Printf("P99: %s\n", formatNs(float64(summary.P99Ns), config.Units))
	fmt.Println("========================================")
}

func exportJSON(config Config, summary arrival.DiffSummary) error {
	export := summaryExport{
		File:        config.DatFile,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Summary:     summary,
	}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("JSON marshal: %w", err)
	}

	if config.JSONOutput == "-" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(config.JSONOutput, data, 0644); err != nil {
		return fmt.Errorf("write JSON: %w", err)
	}
	fmt.Printf("JSON summary: %s\n", config.JSONOutput)
	return nil
}

func exportCSV(path string, diffs []uint64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"index", "diff_ns"}); err != nil {
		return err
	}
	for i, d := range diffs {
		row := []string{
			strconv.Itoa(i),
			strconv.FormatUint(d, 10),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func writeHistogram(path string, diffs []uint64, bins int) error {
	vals := make(plotter.Values, len(diffs))
	for i, d := range diffs {
		vals[i] = float64(d)
	}

	p := plot.New()
	p.Title.Text = "Timestamp Difference Distribution"
	p.X.Label.Text = "Difference (ns)"
	p.Y.Label.Text = "Count"

	h, err := plotter.NewHist(vals, bins)
	if err != nil {
		return fmt.Errorf("build histogram: %w", err)
	}
	h.FillColor = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	p.Add(h)

	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save histogram: %w", err)
	}
	return nil
}

// recordAnalysis persists the summary as a run row so analyses of externally
// captured files show up next to live runs in the web UI.
func recordAnalysis(config Config, summary arrival.DiffSummary) error {
	database, err := db.NewDB(config.DBFile)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	now := time.Now().UnixNano()
	run := &db.CaptureRun{
		Interface:     "dat-analyse",
		StartedAtNs:   now,
		EndedAtNs:     now,
		DiffsRecorded: int64(summary.Count),
		OutputFile:    config.DatFile,
	}
	run.SetSummary(summary)
	if err := database.RecordCaptureRun(run); err != nil {
		return err
	}
	fmt.Printf("Recorded run %s in %s\n", run.RunID, config.DBFile)
	return nil
}

func main() {
	config := parseFlags()

	if config.DatFile == "" {
		fmt.Fprintln(os.Stderr, "Error: measurement file is required")
		flag.Usage()
		os.Exit(1)
	}
	if !units.IsValid(config.Units) {
		fmt.Fprintf(os.Stderr, "Error: invalid units %q (valid: %s)\n", config.Units, units.GetValidUnitsString())
		os.Exit(1)
	}
	if config.Bins < 1 {
		fmt.Fprintf(os.Stderr, "Error: -bins must be at least 1, got %d\n", config.Bins)
		os.Exit(1)
	}

	diffs, err := arrival.ReadDiffFile(fsutil.OSFileSystem{}, config.DatFile)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", config.DatFile, err)
	}
	if len(diffs) == 0 {
		log.Fatalf("No values in %s", config.DatFile)
	}

	summary := arrival.Summarize(diffs)

	if !config.Quiet {
		printSummary(config, summary)
	}

	if config.JSONOutput != "" {
		if err := exportJSON(config, summary); err != nil {
			log.Fatalf("JSON export failed: %v", err)
		}
	}
	if config.CSVOutput != "" {
		if err := exportCSV(config.CSVOutput, diffs); err != nil {
			log.Fatalf("CSV export failed: %v", err)
		}
		fmt.Printf("CSV values: %s\n", config.CSVOutput)
	}
	if config.Histogram != "" {
		if err := writeHistogram(config.Histogram, diffs, config.Bins); err != nil {
			log.Fatalf("Histogram failed: %v", err)
		}
		fmt.Printf("Histogram: %s\n", config.Histogram)
	}
	if config.DBFile != "" {
		if err := recordAnalysis(config, summary); err != nil {
			log.Fatalf("Failed to record analysis: %v", err)
		}
	}
}
