package render

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/naturethrive/birdmonitor/internal/dashboard"
	"github.com/naturethrive/birdmonitor/internal/dataset"
	"github.com/naturethrive/birdmonitor/internal/errors"
	"github.com/naturethrive/birdmonitor/internal/logger"
	"github.com/naturethrive/birdmonitor/internal/viewstate"
)

const (
	componentName = "render"

	chartWidth  = 1024
	chartHeight = 400

	// Charts with fewer points than this are skipped; a single point has no range.
	minChartPoints   = 2
	maxAbundanceBars = 20

	dateLayout = time.DateOnly
	chartPerms = 0o644
)

// Chart file names.
const (
	SpeciesChartFile   = "species.png"
	DiversityChartFile = "diversity.png"
	AbundanceChartFile = "abundance.png"
	HourlyChartFile    = "hourly.png"
)

var (
	areaStroke = drawing.ColorFromHex("2e7d32")
	areaFill   = drawing.ColorFromHex("2e7d32").WithAlpha(64)
	barFill    = drawing.ColorFromHex("1565c0")
)

// Charts exports PNG charts for a frame.
type Charts struct {
	dir string
	log logger.Logger
}

// NewCharts creates an exporter writing into dir, which is created on demand.
func NewCharts(dir string, log logger.Logger) *Charts {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Charts{dir: dir, log: log.Module(componentName)}
}

// Export writes the charts of the frame's view and returns the written paths.
// Summary exports the selected species area chart and the locally computed
// diversity; Analytics exports diversity, abundance and hourly activity.
func (c *Charts) Export(f dashboard.Frame) ([]string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("dir", c.dir).
			Build()
	}

	type job struct {
		file   string
		render func() (renderer, bool)
	}
	var jobs []job
	switch f.Mode {
	case viewstate.Analytics:
		jobs = []job{
			{DiversityChartFile, func() (renderer, bool) { return diversityChart(f.Analytics.Daily) }},
			{AbundanceChartFile, func() (renderer, bool) { return abundanceChart(f.Analytics.Abundance) }},
			{HourlyChartFile, func() (renderer, bool) { return hourlyChart(f.Analytics.Hourly) }},
		}
	default:
		jobs = []job{
			{SpeciesChartFile, func() (renderer, bool) { return speciesChart(f.Selection.Species, f.Selection.Records) }},
			{DiversityChartFile, func() (renderer, bool) { return diversityChart(f.Daily) }},
		}
	}

	var written []string
	for _, j := range jobs {
		r, ok := j.render()
		if !ok {
			c.log.Debug("chart skipped, not enough points", logger.String("file", j.file))
			continue
		}
		path := filepath.Join(c.dir, j.file)
		if err := writePNG(path, r); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	c.log.Info("charts exported", logger.Int("count", len(written)), logger.String("dir", c.dir))
	return written, nil
}

// renderer is satisfied by chart.Chart and chart.BarChart.
type renderer interface {
	Render(rp chart.RendererProvider, w io.Writer) error
}

func writePNG(path string, r renderer) error {
	var buf bytes.Buffer
	if err := r.Render(chart.PNG, &buf); err != nil {
		return errors.New(fmt.Errorf("render %s: %w", filepath.Base(path), err)).
			Component(componentName).
			Category(errors.CategoryRender).
			Build()
	}
	if err := os.WriteFile(path, buf.Bytes(), chartPerms); err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return nil
}

// speciesChart plots the selected species' counts per day as an area chart.
// Records sharing a date are summed.
func speciesChart(species string, records []dataset.DetectionRecord) (renderer, bool) {
	var dates []string
	perDate := make(map[string]float64)
	for _, r := range records {
		if _, seen := perDate[r.Date]; !seen {
			dates = append(dates, r.Date)
		}
		perDate[r.Date] += float64(r.Count)
	}
	if len(dates) < minChartPoints {
		return nil, false
	}

	ys := make([]float64, len(dates))
	for i, d := range dates {
		ys[i] = perDate[d]
	}
	return dateAreaChart(fmt.Sprintf("%s detections", species), "Detections", dates, ys)
}

func diversityChart(entries []dataset.DailyDiversityEntry) (renderer, bool) {
	if len(entries) < minChartPoints {
		return nil, false
	}
	dates := make([]string, len(entries))
	ys := make([]float64, len(entries))
	for i, e := range entries {
		dates[i] = e.Date
		ys[i] = e.ShannonIndex
	}
	return dateAreaChart("Daily Shannon diversity", "Shannon index", dates, ys)
}

// dateAreaChart uses a time axis when every date parses, otherwise the
// points are spaced evenly in input order.
func dateAreaChart(title, yName string, dates []string, ys []float64) (renderer, bool) {
	style := chart.Style{StrokeColor: areaStroke, StrokeWidth: 2, FillColor: areaFill}

	var series chart.Series
	xAxis := chart.XAxis{Name: "Date"}
	if times, ok := parseDates(dates); ok && distinctTimes(times) {
		series = chart.TimeSeries{Name: title, XValues: times, YValues: ys, Style: style}
		xAxis.ValueFormatter = chart.TimeDateValueFormatter
	} else {
		xs := make([]float64, len(ys))
		ticks := make([]chart.Tick, len(ys))
		for i := range ys {
			xs[i] = float64(i)
			ticks[i] = chart.Tick{Value: float64(i), Label: dates[i]}
		}
		series = chart.ContinuousSeries{Name: title, XValues: xs, YValues: ys, Style: style}
		xAxis.Ticks = ticks
	}

	return chart.Chart{
		Title:      title,
		Width:      chartWidth,
		Height:     chartHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      xAxis,
		YAxis:      chart.YAxis{Name: yName, Range: &chart.ContinuousRange{Min: 0, Max: rangeMax(ys)}},
		Series:     []chart.Series{series},
	}, true
}

func abundanceChart(entries []dataset.SpeciesAbundanceEntry) (renderer, bool) {
	if len(entries) < minChartPoints {
		return nil, false
	}
	entries = entries[:min(len(entries), maxAbundanceBars)]
	bars := make([]chart.Value, len(entries))
	ys := make([]float64, len(entries))
	for i, e := range entries {
		ys[i] = float64(e.TotalCount)
		bars[i] = chart.Value{Label: e.Label, Value: ys[i], Style: chart.Style{FillColor: barFill, StrokeColor: barFill}}
	}
	return barChart("Species abundance", bars, rangeMax(ys)), true
}

func hourlyChart(entries []dataset.HourlyActivityEntry) (renderer, bool) {
	if len(entries) < minChartPoints {
		return nil, false
	}
	bars := make([]chart.Value, len(entries))
	ys := make([]float64, len(entries))
	for i, e := range entries {
		ys[i] = float64(e.Count)
		bars[i] = chart.Value{Label: fmt.Sprintf("%02d", e.Hour), Value: ys[i], Style: chart.Style{FillColor: barFill, StrokeColor: barFill}}
	}
	return barChart("Hourly activity", bars, rangeMax(ys)), true
}

func barChart(title string, bars []chart.Value, yMax float64) chart.BarChart {
	const barWidth, barSpacing = 24, 12
	width := max(chartWidth/2, len(bars)*(barWidth+barSpacing)+160)
	return chart.BarChart{
		Title:      title,
		Width:      width,
		Height:     chartHeight,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		YAxis:      chart.YAxis{Range: &chart.ContinuousRange{Min: 0, Max: yMax}},
		Bars:       bars,
	}
}

// rangeMax pads the largest value so bars and areas never touch the top and
// an all-zero series still has a non-empty range.
func rangeMax(ys []float64) float64 {
	m := 0.0
	for _, y := range ys {
		m = max(m, y)
	}
	if m <= 0 {
		return 1
	}
	return m * 1.1
}

func parseDates(dates []string) ([]time.Time, bool) {
	out := make([]time.Time, len(dates))
	for i, d := range dates {
		t, err := time.Parse(dateLayout, d)
		if err != nil {
			return nil, false
		}
		out[i] = t
	}
	return out, true
}

func distinctTimes(times []time.Time) bool {
	seen := make(map[time.Time]struct{}, len(times))
	for _, t := range times {
		if _, dup := seen[t]; dup {
			return false
		}
		seen[t] = struct{}{}
	}
	return true
}
