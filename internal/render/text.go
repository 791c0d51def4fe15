// Package render draws dashboard frames as terminal tables and PNG charts.
package render

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/naturethrive/birdmonitor/internal/aggregate"
	"github.com/naturethrive/birdmonitor/internal/dashboard"
	"github.com/naturethrive/birdmonitor/internal/dataset"
	"github.com/naturethrive/birdmonitor/internal/orchestrator"
	"github.com/naturethrive/birdmonitor/internal/viewstate"
)

const (
	serverTimeLayout   = time.DateTime
	loadingPlaceholder = "Loading..."
)

// Option is one entry of the species picker.
type Option struct {
	Species string
	Label   string
}

// SpeciesOptions labels each ranked species with its total, e.g. "Robin (7 total)".
func SpeciesOptions(ranking []aggregate.SpeciesTotal) []Option {
	out := make([]Option, len(ranking))
	for i, st := range ranking {
		out[i] = Option{Species: st.Species, Label: fmt.Sprintf("%s (%d total)", st.Species, st.Total)}
	}
	return out
}

// ServerTime formats the heartbeat clock, or the loading placeholder when
// no heartbeat has arrived.
func ServerTime(clock *dataset.ServerClock, tz *time.Location) string {
	if clock == nil {
		return loadingPlaceholder
	}
	if tz == nil {
		tz = time.Local
	}
	return clock.ServerTime().In(tz).Format(serverTimeLayout)
}

// ResolveColors reports whether colored output should be used. NO_COLOR and
// TERM=dumb always disable it.
func ResolveColors(want bool) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return want
}

// Text renders frames as plain or colored terminal output.
type Text struct {
	out       io.Writer
	useColors bool
	tz        *time.Location
}

// NewText creates a text renderer writing to w. tz controls how the server
// clock is shown; nil means local time.
func NewText(w io.Writer, useColors bool, tz *time.Location) *Text {
	if tz == nil {
		tz = time.Local
	}
	return &Text{out: w, useColors: useColors, tz: tz}
}

// Render writes the status bar followed by the tables of the frame's view.
func (t *Text) Render(f dashboard.Frame) error {
	t.statusBar(f)

	switch f.State {
	case orchestrator.Failed:
		cause := "unknown error"
		if f.Cause != nil {
			cause = f.Cause.Error()
		}
		t.line(color.FgRed, "Error: %s", cause)
		return nil
	case orchestrator.Idle, orchestrator.Loading:
		t.line(color.FgYellow, "%s", loadingPlaceholder)
		return nil
	}

	switch f.Mode {
	case viewstate.Analytics:
		return t.analytics(f)
	default:
		return t.summary(f)
	}
}

func (t *Text) statusBar(f dashboard.Frame) {
	state := strings.ToUpper(f.State.String())
	if t.useColors {
		state = stateColor(f.State).Sprint(state)
	}
	fmt.Fprintf(t.out, "Server Time: %s | View: %s | %s\n", ServerTime(f.Clock, t.tz), f.Mode, state)
}

func (t *Text) summary(f dashboard.Frame) error {
	t.header("Species")
	rows := make([][]string, 0, len(f.Ranking))
	for i, opt := range SpeciesOptions(f.Ranking) {
		marker := ""
		if opt.Species == f.Selection.Species {
			marker = "*"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), opt.Label, marker})
	}
	if err := t.table([]string{"Rank", "Species", "Selected"}, rows); err != nil {
		return err
	}

	if f.Selection.Empty() {
		t.line(color.FgYellow, "No detections")
		return nil
	}

	t.header(fmt.Sprintf("Detections: %s", f.Selection.Species))
	rows = rows[:0]
	for _, r := range f.Selection.Records {
		rows = append(rows, []string{r.Date, strconv.Itoa(r.Count)})
	}
	if err := t.table([]string{"Date", "Count"}, rows); err != nil {
		return err
	}

	t.header("Daily Diversity")
	return t.table(diversityHeader, diversityRows(f.Daily))
}

func (t *Text) analytics(f dashboard.Frame) error {
	t.header("Daily Diversity")
	if err := t.table(diversityHeader, diversityRows(f.Analytics.Daily)); err != nil {
		return err
	}

	t.header("Species Abundance")
	rows := make([][]string, 0, len(f.Analytics.Abundance))
	for _, e := range f.Analytics.Abundance {
		rows = append(rows, []string{e.Label, strconv.Itoa(e.TotalCount)})
	}
	if err := t.table([]string{"Species", "Total"}, rows); err != nil {
		return err
	}

	t.header("Hourly Activity")
	rows = make([][]string, 0, len(f.Analytics.Hourly))
	for _, e := range f.Analytics.Hourly {
		rows = append(rows, []string{fmt.Sprintf("%02d:00", e.Hour), strconv.Itoa(e.Count)})
	}
	return t.table([]string{"Hour", "Detections"}, rows)
}

var diversityHeader = []string{"Date", "Detections", "Richness", "Shannon"}

func diversityRows(entries []dataset.DailyDiversityEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Date,
			optionalInt(e.TotalDetections),
			optionalInt(e.SpeciesRichness),
			strconv.FormatFloat(e.ShannonIndex, 'f', 2, 64),
		})
	}
	return rows
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func (t *Text) table(header []string, rows [][]string) error {
	table := tablewriter.NewTable(t.out,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)
	table.Header(header)
	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	return nil
}

func (t *Text) header(title string) {
	if t.useColors {
		color.New(color.FgWhite, color.Bold).Fprintf(t.out, "\n%s\n", title)
		return
	}
	fmt.Fprintf(t.out, "\n%s\n%s\n", title, strings.Repeat("-", len(title)))
}

func (t *Text) line(attr color.Attribute, format string, args ...any) {
	if t.useColors {
		color.New(attr).Fprintf(t.out, format+"\n", args...)
		return
	}
	fmt.Fprintf(t.out, format+"\n", args...)
}

func stateColor(s orchestrator.State) *color.Color {
	switch s {
	case orchestrator.Ready:
		return color.New(color.FgGreen)
	case orchestrator.Failed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}
