package ui

import (
	"strings"
	"testing"

	"github.com/linuxmatters/vocalrange/internal/practice"
)

func TestCell(t *testing.T) {
	tests := []struct {
		pos   float64
		width int
		want  int
	}{
		{-1, 10, -1},
		{0, 10, 0},
		{1, 10, 9},
		{0.5, 11, 5},
		{1.5, 10, -1},
		{0.5, 0, -1},
	}
	for _, tt := range tests {
		if got := cell(tt.pos, tt.width); got != tt.want {
			t.Errorf("cell(%v, %d) = %d, want %d", tt.pos, tt.width, got, tt.want)
		}
	}
}

func TestIndicatorLine(t *testing.T) {
	s := practice.State{
		IndicatorRange: practice.IndicatorRange{Min: 100, Max: 400},
		LadderNotes:    []float64{100, 400},
		DotX:           0.3,
		BeatFreq:       400,
	}

	got := []rune(indicatorLine(s, 11))
	if len(got) != 11 {
		t.Fatalf("rail length = %d, want 11", len(got))
	}
	if got[0] != '┼' {
		t.Errorf("bottom ladder tick = %q, want ┼", got[0])
	}
	if got[10] != '◆' {
		t.Errorf("expected pitch should cover the ladder tick, got %q", got[10])
	}
	if got[3] != '●' {
		t.Errorf("dot = %q at 3, want ●", got[3])
	}

	s.DotX = -1
	s.BeatFreq = 0
	got = []rune(indicatorLine(s, 11))
	if strings.ContainsRune(string(got), '●') || strings.ContainsRune(string(got), '◆') {
		t.Errorf("hidden dot and rest beat should not be drawn: %s", string(got))
	}
	if got[10] != '┼' {
		t.Errorf("top ladder tick = %q, want ┼", got[10])
	}
}

func TestKeyHelp(t *testing.T) {
	tests := []struct {
		state practice.State
		want  string
	}{
		{practice.State{Step: practice.StepPermission}, "enter allow microphone"},
		{practice.State{Step: practice.StepHeadphoneFail}, "c continue anyway"},
		{practice.State{Step: practice.StepAscending, Busy: true}, "f finish • q quit"},
		{practice.State{Step: practice.StepCalibrating, Busy: true}, "q quit"},
		{practice.State{Step: practice.StepResult}, "enter quit"},
	}
	for _, tt := range tests {
		t.Run(string(tt.state.Step), func(t *testing.T) {
			if got := keyHelp(tt.state); !strings.Contains(got, tt.want) {
				t.Errorf("keyHelp = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestViewShowsRangeAndBeat(t *testing.T) {
	m, _ := newTestModel(practice.StepAscending, true)
	m.State.IndicatorRange = practice.IndicatorRange{Min: 200, Max: 400}
	m.State.Beat = 2
	m.State.BeatLabel = "Sing C4"
	m.State.BeatType = practice.BeatNote
	m.State.HighestHz = 392
	m.State.CurrentF0 = 261.63

	view := m.View()
	for _, want := range []string{"Vocalrange", "Ascending", "Beat 3: Sing C4", "Highest: G4", "C4 (261.6 Hz)"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(view, "Lowest") {
		t.Error("lowest should be hidden until a descending success")
	}
}

func TestFormatElapsed(t *testing.T) {
	if got := formatElapsed(95_000_000_000); got != "01:35" {
		t.Errorf("formatElapsed = %q, want 01:35", got)
	}
	if got := formatElapsed(7_507_000_000_000); got != "02:05:07" {
		t.Errorf("formatElapsed = %q, want 02:05:07", got)
	}
}
