package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/precision.report/internal/arrival"
	"github.com/banshee-data/precision.report/internal/fsutil"
	"github.com/banshee-data/precision.report/internal/httputil"
	"github.com/banshee-data/precision.report/internal/security"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleDiffsChart renders a histogram (HTML) of a measurement file using
// go-echarts. This is a debugging-only endpoint to eyeball the diff
// distribution without pulling the file off the station.
// Query params:
//   - file (optional; defaults to the standard measurement file)
//   - bins (optional; default 50, range 5..500)
func (ws *WebServer) handleDiffsChart(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("file")
	if name == "" {
		name = arrival.DefaultOutputFile
	}
	path := filepath.Join(ws.outputDir, name)
	if err := security.ValidatePathWithinDirectory(path, ws.outputDir); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid 'file' parameter: %v", err))
		return
	}

	bins := 50
	if b := r.URL.Query().Get("bins"); b != "" {
		if v, err := strconv.Atoi(b); err == nil && v >= 5 && v <= 500 {
			bins = v
		}
	}

	diffs, err := arrival.ReadDiffFile(fsutil.OSFileSystem{}, path)
	if err != nil {
		httputil.NotFound(w, fmt.Sprintf("read measurement file: %v", err))
		return
	}
	if len(diffs) == 0 {
		httputil.NotFound(w, "measurement file holds no differences")
		return
	}

	labels, counts := histogram(diffs, bins)
	data := make([]opts.BarData, len(counts))
	for i, c := range counts {
		data[i] = opts.BarData{Value: c}
	}

	summary := arrival.Summarize(diffs)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Arrival Differences", Theme: "dark", Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title: "Arrival difference histogram",
			Subtitle: fmt.Sprintf("%s: n=%d min=%dns p50=%dns p99=%dns max=%dns",
				name, summary.Count, summary.MinNs, summary.P50Ns, summary.P99Ns, summary.MaxNs),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "diff (ns)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "count"}),
	)
	bar.SetXAxis(labels).AddSeries("diffs", data)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// histogram buckets diffs into equal-width bins spanning min..max. Bin labels
// carry the lower bound of each bucket.
func histogram(diffs []uint64, bins int) (labels []string, counts []int64) {
	lo, hi := diffs[0], diffs[0]
	for _, d := range diffs {
		if d < lo {
			lo = d
		}
		if d > hi {
			hi = d
		}
	}
	if hi == lo {
		return []string{fmt.Sprintf("%d", lo)}, []int64{int64(len(diffs))}
	}

	width := float64(hi-lo) / float64(bins)
	counts = make([]int64, bins)
	for _, d := range diffs {
		idx := int(float64(d-lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}

	labels = make([]string, bins)
	for i := range labels {
		labels[i] = fmt.Sprintf("%d", lo+uint64(float64(i)*width))
	}
	return labels, counts
}
