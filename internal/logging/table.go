// Package logging writes practice session reports, console summaries and
// saved range records.
// This file contains the aligned table formatting shared by the report and
// the console summary.

package logging

import (
	"fmt"
	"math"
	"strings"

	"github.com/linuxmatters/vocalrange/internal/pitch"
)

// MetricRow is a single row in a table.
// Values are pre-formatted so columns can mix notes, durations and numbers.
type MetricRow struct {
	Label          string   // Row label, e.g. "Cycle 3"
	Values         []string // One value per header
	Unit           string   // Unit suffix, "" for none
	Interpretation string   // Optional, column only shown if any row has one
}

// MetricTable formats aligned columns
type MetricTable struct {
	Headers []string
	Rows    []MetricRow
}

// NewMetricTable creates an empty table with the given column headers
func NewMetricTable(headers ...string) *MetricTable {
	return &MetricTable{
		Headers: headers,
		Rows:    make([]MetricRow, 0),
	}
}

// AddRow adds a row with pre-formatted values
func (t *MetricTable) AddRow(label string, values []string, unit string, interpretation string) {
	t.Rows = append(t.Rows, MetricRow{
		Label:          label,
		Values:         values,
		Unit:           unit,
		Interpretation: interpretation,
	})
}

// String renders the table.
// Labels are left-aligned, values right-aligned within their column, units
// follow the last value column.
func (t *MetricTable) String() string {
	if len(t.Rows) == 0 {
		return ""
	}

	hasInterpretation := false
	labelWidth := 0
	unitWidth := 0
	for _, row := range t.Rows {
		if row.Interpretation != "" {
			hasInterpretation = true
		}
		labelWidth = max(labelWidth, len(row.Label))
		unitWidth = max(unitWidth, len(row.Unit))
	}

	valueWidths := make([]int, len(t.Headers))
	for i, header := range t.Headers {
		valueWidths[i] = len(header)
	}
	for _, row := range t.Rows {
		for i, val := range row.Values {
			if i < len(valueWidths) && len(val) > valueWidths[i] {
				valueWidths[i] = len(val)
			}
		}
	}

	var sb strings.Builder

	sb.WriteString(strings.Repeat(" ", labelWidth+2))
	for i, header := range t.Headers {
		fmt.Fprintf(&sb, "%*s  ", valueWidths[i], header)
	}
	if unitWidth > 0 {
		sb.WriteString(strings.Repeat(" ", unitWidth+1))
	}
	if hasInterpretation {
		sb.WriteString("Interpretation")
	}
	sb.WriteString("\n")

	for _, row := range t.Rows {
		fmt.Fprintf(&sb, "%-*s  ", labelWidth, row.Label)
		for i := range t.Headers {
			val := MissingValue
			if i < len(row.Values) && row.Values[i] != "" {
				val = row.Values[i]
			}
			fmt.Fprintf(&sb, "%*s  ", valueWidths[i], val)
		}
		if unitWidth > 0 {
			fmt.Fprintf(&sb, "%-*s ", unitWidth, row.Unit)
		}
		if hasInterpretation {
			sb.WriteString(row.Interpretation)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// MissingValue is the placeholder for unavailable measurements
const MissingValue = "-"

// SilenceFloor is the dBFS level treated as silence
const SilenceFloor = -120.0

// formatMetric formats a value to the given decimals.
// Very small non-zero values use scientific notation; NaN and Inf are missing.
func formatMetric(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return MissingValue
	}
	if value != 0 && math.Abs(value) < 0.0001 {
		return fmt.Sprintf("%.2e", value)
	}
	return fmt.Sprintf("%.*f", decimals, value)
}

// formatMetricSigned formats a value with an explicit sign, e.g. "+12.5"
func formatMetricSigned(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return MissingValue
	}
	return fmt.Sprintf("%+.*f", decimals, value)
}

// formatLevelDB converts a linear RMS level to dBFS, showing "< -120" for silence
func formatLevelDB(rms float64, decimals int) string {
	if math.IsNaN(rms) {
		return MissingValue
	}
	if rms <= 0 {
		return "< -120"
	}
	db := 20 * math.Log10(rms)
	if db <= SilenceFloor {
		return "< -120"
	}
	return fmt.Sprintf("%.*f", decimals, db)
}

// formatNote formats a frequency as "D4 (293.7 Hz)", or missing for no pitch
func formatNote(hz float64) string {
	if hz <= 0 || math.IsNaN(hz) {
		return MissingValue
	}
	return fmt.Sprintf("%s (%.1f Hz)", pitch.FrequencyToNoteName(hz), hz)
}

// wrapText wraps text at word boundaries to fit within maxWidth columns.
// Continuation lines are prefixed with indent.
func wrapText(text string, maxWidth int, indent string) string {
	words := strings.Fields(text)
	var lines []string
	current := ""

	for _, word := range words {
		switch {
		case current == "":
			current = word
		case len(current)+1+len(word) <= maxWidth:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}

	return strings.Join(lines, "\n"+indent)
}
