package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/linuxmatters/vocalrange/internal/pitch"
	"github.com/linuxmatters/vocalrange/internal/practice"
)

const (
	boxWidth       = 60
	indicatorWidth = 50
)

var (
	accent    = lipgloss.Color("#A40000")
	muted     = lipgloss.Color("#888888")
	good      = lipgloss.Color("#00AA00")
	attention = lipgloss.Color("#FFA500")
)

// stepTitles names each wizard step
var stepTitles = map[practice.Step]string{
	practice.StepPermission:    "Microphone",
	practice.StepHeadphone:     "Headphone check",
	practice.StepHeadphoneFail: "Headphone check",
	practice.StepCalibration:   "Calibration",
	practice.StepCalibrating:   "Calibrating",
	practice.StepSetup:         "Ready",
	practice.StepDemoLoop:      "Timing demo",
	practice.StepDemoEnd:       "Timing demo",
	practice.StepAscending:     "Ascending",
	practice.StepAscendFail:    "Ascending",
	practice.StepDescending:    "Descending",
	practice.StepDescendFail:   "Descending",
	practice.StepResult:        "Result",
}

// renderPracticeView renders the main wizard view
func renderPracticeView(m Model) string {
	var b strings.Builder

	b.WriteString(renderHeader(m))
	b.WriteString("\n\n")
	b.WriteString(renderStep(m))
	b.WriteString("\n")

	if showsIndicator(m.State) {
		b.WriteString(renderIndicatorBox(m.State))
		b.WriteString("\n")
	}

	if m.State.HighestHz > 0 || m.State.LowestHz > 0 {
		b.WriteString(renderRange(m.State))
		b.WriteString("\n")
	}

	if m.Err != nil {
		b.WriteString(lipgloss.NewStyle().Foreground(accent).Render("✗ " + m.Err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(renderKeys(m.State))
	return b.String()
}

// renderHeader renders the application header
func renderHeader(m Model) string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(accent).
		Render("Vocalrange 🎤 - Scale Practice")

	sub := m.State.Mode
	if !m.StartTime.IsZero() {
		sub = fmt.Sprintf("%s [%s]", sub, formatElapsed(time.Since(m.StartTime)))
	}
	subtitle := lipgloss.NewStyle().
		Foreground(muted).
		Italic(true).
		Render(sub)

	return title + "\n" + subtitle
}

// renderStep renders the step title with its status icon and the engine message
func renderStep(m Model) string {
	s := m.State
	var icon string
	switch {
	case s.Busy:
		icon = lipgloss.NewStyle().Foreground(accent).Render(spinnerFrames[m.spinnerIndex])
	case s.Step == practice.StepHeadphoneFail || s.Step == practice.StepAscendFail || s.Step == practice.StepDescendFail:
		icon = lipgloss.NewStyle().Foreground(accent).Render("✗")
	case s.Step == practice.StepResult:
		icon = lipgloss.NewStyle().Foreground(good).Render("✓")
	default:
		icon = lipgloss.NewStyle().Foreground(muted).Render("○")
	}

	title := lipgloss.NewStyle().Bold(true).Render(stepTitles[s.Step])
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(muted).
		Padding(0, 1).
		Width(boxWidth)

	return fmt.Sprintf(" %s %s\n%s", icon, title, box.Render(s.Message))
}

func showsIndicator(s practice.State) bool {
	return s.IndicatorRange.Max > s.IndicatorRange.Min && s.IndicatorRange.Min > 0
}

// renderIndicatorBox renders the beat label, the pitch indicator and the current note
func renderIndicatorBox(s practice.State) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Width(boxWidth)

	var content strings.Builder
	if s.Beat >= 0 {
		content.WriteString(renderBeat(s))
		content.WriteString("\n")
	}
	content.WriteString(indicatorLine(s, indicatorWidth))
	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("%-*s%s",
		indicatorWidth-len(noteLabel(s.IndicatorRange.Max)),
		noteLabel(s.IndicatorRange.Min), noteLabel(s.IndicatorRange.Max)))
	content.WriteString("\n\n")
	if s.CurrentF0 > 0 {
		content.WriteString(fmt.Sprintf("🎵 %s (%.1f Hz)", pitch.FrequencyToNoteName(s.CurrentF0), s.CurrentF0))
	} else {
		content.WriteString(lipgloss.NewStyle().Foreground(muted).Render("🎵 --"))
	}
	return box.Render(content.String())
}

func renderBeat(s practice.State) string {
	color := muted
	switch s.BeatType {
	case practice.BeatExample:
		color = attention
	case practice.BeatNote:
		color = good
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true).
		Render(fmt.Sprintf("Beat %d: %s", s.Beat+1, s.BeatLabel))
}

// indicatorLine draws the pitch rail: ladder notes as ticks, the beat's
// expected pitch as a diamond and the sung pitch as a dot
func indicatorLine(s practice.State, width int) string {
	cells := []rune(strings.Repeat("─", width))
	place := func(hz float64, r rune) {
		if i := cell(s.IndicatorRange.Position(hz), width); i >= 0 {
			cells[i] = r
		}
	}
	for _, hz := range s.LadderNotes {
		place(hz, '┼')
	}
	if s.BeatFreq > 0 {
		place(s.BeatFreq, '◆')
	}
	if i := cell(s.DotX, width); i >= 0 {
		cells[i] = '●'
	}
	return string(cells)
}

// cell maps a 0..1 position onto a rail of width cells, -1 when hidden
func cell(pos float64, width int) int {
	if pos < 0 || pos > 1 || width <= 0 {
		return -1
	}
	i := int(pos * float64(width-1))
	return min(max(i, 0), width-1)
}

func noteLabel(hz float64) string {
	if hz <= 0 {
		return ""
	}
	return pitch.FrequencyToNoteName(hz)
}

// renderRange renders the range found so far
func renderRange(s practice.State) string {
	var parts []string
	if s.HighestHz > 0 {
		parts = append(parts, fmt.Sprintf("Highest: %s (%.1f Hz)", pitch.FrequencyToNoteName(s.HighestHz), s.HighestHz))
	}
	if s.LowestHz > 0 {
		parts = append(parts, fmt.Sprintf("Lowest: %s (%.1f Hz)", pitch.FrequencyToNoteName(s.LowestHz), s.LowestHz))
	}
	return " " + strings.Join(parts, " | ")
}

// keyHelp lists the keys available in each step
func keyHelp(s practice.State) string {
	if s.Busy {
		if canFinish(s.Step) {
			return "f finish • q quit"
		}
		return "q quit"
	}
	switch s.Step {
	case practice.StepPermission:
		return "enter allow microphone • q quit"
	case practice.StepHeadphone:
		return "enter check headphones • q quit"
	case practice.StepHeadphoneFail:
		return "r check again • c continue anyway • q quit"
	case practice.StepCalibration:
		return "enter sing a comfortable note • q quit"
	case practice.StepSetup:
		return "enter practice • l timing demo • c recalibrate • f finish • q quit"
	case practice.StepDemoEnd:
		return "enter practice • l demo again • f finish • q quit"
	case practice.StepAscending:
		return "enter next cycle • d descend • f finish • q quit"
	case practice.StepAscendFail:
		return "r retry • d descend • f finish • q quit"
	case practice.StepDescending:
		return "enter next cycle • f finish • q quit"
	case practice.StepDescendFail:
		return "r retry • f finish • q quit"
	case practice.StepResult:
		return "enter quit"
	}
	return "q quit"
}

func renderKeys(s practice.State) string {
	return lipgloss.NewStyle().Foreground(muted).Render(keyHelp(s))
}

// formatElapsed formats elapsed time as MM:SS or HH:MM:SS
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
