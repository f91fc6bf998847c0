package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/linuxmatters/vocalrange/internal/history"
	"github.com/linuxmatters/vocalrange/internal/pitch"
	"github.com/linuxmatters/vocalrange/internal/practice"
)

// DisplaySummary prints the measured range and top tips to the console
// after the TUI exits
func DisplaySummary(w io.Writer, s practice.Summary, cfg practice.Config) {
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "RANGE: %s\n", s.Mode)
	fmt.Fprintln(w, strings.Repeat("=", 50))

	fmt.Fprintf(w, "Highest: %s\n", formatNote(s.HighestHz))
	fmt.Fprintf(w, "Lowest:  %s\n", formatNote(s.LowestHz))
	if span := rangeSemitones(s); span > 0 {
		fmt.Fprintf(w, "Span:    %.1f semitones\n", span)
	}

	passed := 0
	total := 0
	for _, c := range s.Cycles {
		if c.Demo {
			continue
		}
		total++
		if c.Success {
			passed++
		}
	}
	fmt.Fprintf(w, "Cycles:  %d of %d passed\n", passed, total)

	tips := GeneratePracticeTips(s, cfg)
	if len(tips) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "TIPS")
		for _, tip := range tips {
			fmt.Fprintf(w, "  - %s\n", wrapText(tip.Message, 66, "    "))
		}
	}
}

// DisplayBest prints the personal best for the session's mode and flags a new record
func DisplayBest(w io.Writer, s practice.Summary, best history.Best) {
	if best.Sessions == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "PERSONAL BEST (%d sessions)\n", best.Sessions)
	fmt.Fprintf(w, "Highest: %s%s\n", formatNote(best.HighestHz), recordMark(s.HighestHz > 0 && s.HighestHz >= best.HighestHz))
	fmt.Fprintf(w, "Lowest:  %s%s\n", formatNote(best.LowestHz), recordMark(s.LowestHz > 0 && s.LowestHz <= best.LowestHz))
}

func recordMark(isRecord bool) string {
	if isRecord {
		return "  new best!"
	}
	return ""
}

// DisplayHistory prints recent sessions, newest first
func DisplayHistory(w io.Writer, sessions []history.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No practice sessions recorded yet.")
		return
	}
	table := NewMetricTable("Exercise", "Highest", "Lowest", "Passed")
	for _, sess := range sessions {
		table.AddRow(sess.RecordedAt.Local().Format("2006-01-02 15:04"), []string{
			sess.Mode,
			noteOrMissing(sess.HighestHz),
			noteOrMissing(sess.LowestHz),
			fmt.Sprintf("%d/%d", sess.Passed, sess.Cycles),
		}, "", "")
	}
	fmt.Fprint(w, table.String())
}

func noteOrMissing(hz float64) string {
	if hz <= 0 {
		return MissingValue
	}
	return pitch.FrequencyToNoteName(hz)
}
