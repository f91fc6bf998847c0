package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/linuxmatters/vocalrange/internal/practice"
)

// ReportData is everything needed to write a session report
type ReportData struct {
	Path      string
	SessionID string
	StartTime time.Time
	EndTime   time.Time
	MainsHz   float64
	Summary   practice.Summary
	Config    practice.Config
}

// writeSection writes a title with a dashed underline of the same length
func writeSection(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("-", len(title)))
}

// GenerateReport writes the session report to data.Path
//
// Report structure:
// 1. Header - mode and timestamps
// 2. Setup - noise floor, headphone check, calibration
// 3. Settings - scoring thresholds
// 4. Cycles - one row per evaluated cycle
// 5. Range - highest and lowest notes
// 6. Tips - prioritised advice
func GenerateReport(data ReportData) error {
	f, err := os.Create(data.Path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	writeReportHeader(f, data)
	writeSetup(f, data)
	writeSettings(f, data.Config)
	writeCycles(f, data.Summary.Cycles, data.Config)
	writeRange(f, data.Summary)
	writeTips(f, GeneratePracticeTips(data.Summary, data.Config))
	return nil
}

func writeReportHeader(w io.Writer, data ReportData) {
	fmt.Fprintln(w, "Vocal Range Practice Report")
	fmt.Fprintln(w, "===========================")
	fmt.Fprintf(w, "Exercise: %s\n", data.Summary.Mode)
	if data.SessionID != "" {
		fmt.Fprintf(w, "Session:  %s\n", data.SessionID)
	}
	fmt.Fprintf(w, "Started:  %s\n", data.StartTime.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Duration: %s\n", formatDuration(data.EndTime.Sub(data.StartTime)))
	fmt.Fprintln(w, "")
}

func writeSetup(w io.Writer, data ReportData) {
	writeSection(w, "Setup")
	s := data.Summary

	table := NewMetricTable("Value")
	table.AddRow("Room noise", []string{formatLevelDB(s.BaselineRMS, 1)}, "dBFS", "")

	headphone := "not run"
	if s.HeadphoneChecked {
		headphone = "passed"
		if !s.HeadphonePassed {
			headphone = "tone leaked"
		}
	}
	leak := MissingValue
	if s.HeadphoneChecked {
		leak = formatMetricSigned(s.HeadphoneLeakDB, 1)
	}
	table.AddRow("Headphone probe", []string{leak}, "dB", headphone)
	table.AddRow("Calibration", []string{formatNote(s.CalibrationHz)}, "", "")

	mains := MissingValue
	if data.MainsHz > 0 {
		mains = formatMetric(data.MainsHz, 0)
	}
	table.AddRow("Mains hum filter", []string{mains}, "Hz", "")

	fmt.Fprint(w, table.String())
	fmt.Fprintln(w, "")
}

func writeSettings(w io.Writer, cfg practice.Config) {
	writeSection(w, "Settings")

	table := NewMetricTable("Value")
	table.AddRow("Tolerance", []string{formatMetric(cfg.ToleranceCents, 0)}, "cents", "")
	table.AddRow("Energy gate", []string{formatMetric(cfg.DeltaDB, 1)}, "dB", "above room noise")
	table.AddRow("Clarity gate", []string{formatMetric(cfg.ThetaClarity, 2)}, "", "")
	table.AddRow("Stable window", []string{fmt.Sprint(cfg.StableWindow.Milliseconds())}, "ms", "")
	table.AddRow("Beat", []string{fmt.Sprint(cfg.BeatDuration.Milliseconds())}, "ms", "")

	fmt.Fprint(w, table.String())
	fmt.Fprintln(w, "")
}

// cycleLabel names a cycle row, e.g. "3 asc" or "1 demo"
func cycleLabel(i int, c practice.Outcome) string {
	switch {
	case c.Demo:
		return fmt.Sprintf("%d demo", i+1)
	case c.Direction == practice.Descending:
		return fmt.Sprintf("%d desc", i+1)
	default:
		return fmt.Sprintf("%d asc", i+1)
	}
}

// cycleResult summarises a cycle for the interpretation column
func cycleResult(c practice.Outcome) string {
	switch {
	case c.EarlyEntry:
		return "entered early"
	case c.Success:
		return "pass"
	case c.Failed != nil:
		return fmt.Sprintf("note %d %s", c.Failed.Index+1, c.Failed.Type)
	default:
		return "target too short"
	}
}

func writeCycles(w io.Writer, cycles []practice.Outcome, cfg practice.Config) {
	writeSection(w, "Cycles")
	if len(cycles) == 0 {
		fmt.Fprintln(w, "No cycles run.")
		fmt.Fprintln(w, "")
		return
	}

	table := NewMetricTable("Base", "Target", "Stable ms", "Extreme")
	for i, c := range cycles {
		table.AddRow(cycleLabel(i, c), []string{
			formatNote(c.BaseHz),
			formatNote(c.TargetHz),
			fmt.Sprintf("%d/%d", c.Stable.Milliseconds(), cfg.StableWindow.Milliseconds()),
			formatNote(c.ExtremeHz),
		}, "", cycleResult(c))
	}
	fmt.Fprint(w, table.String())
	fmt.Fprintln(w, "")
}

func writeRange(w io.Writer, s practice.Summary) {
	writeSection(w, "Range")
	fmt.Fprintf(w, "Highest: %s\n", formatNote(s.HighestHz))
	fmt.Fprintf(w, "Lowest:  %s\n", formatNote(s.LowestHz))
	if span := rangeSemitones(s); span > 0 {
		fmt.Fprintf(w, "Span:    %.1f semitones\n", span)
	}
	fmt.Fprintln(w, "")
}

func writeTips(w io.Writer, tips []PracticeTip) {
	if len(tips) == 0 {
		return
	}
	writeSection(w, "Tips")
	for i, tip := range tips {
		fmt.Fprintf(w, "%d. %s\n", i+1, wrapText(tip.Message, 72, "   "))
	}
}

// formatDuration formats as "1m 32s" or "12.3s"
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	d = d.Round(time.Second)
	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)
	if minutes >= 60 {
		return fmt.Sprintf("%dh %dm %ds", minutes/60, minutes%60, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
