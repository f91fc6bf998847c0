package practice

import (
	"context"
	"fmt"
	"math"

	"github.com/linuxmatters/vocalrange/internal/pitch"
)

// runCycle plays one cycle's beats in order, collecting frames for each beat,
// then scores them. Beats never overlap: collection for a beat stops before
// the next one is published.
func (m *Machine) runCycle(ctx context.Context, gen uint64, dir Direction, demo bool, index int) (Outcome, error) {
	cfg := m.cfg
	base := cfg.ReferenceHz * math.Pow(cfg.SemitoneRatio, float64(index))

	meta, err := DeriveModePitchMeta(cfg.Mode, base, cfg.SemitoneRatio, dir, cfg.PaddingCents)
	if err != nil {
		return Outcome{}, err
	}
	beats, err := BuildBeatTimeline(cfg.Mode)
	if err != nil {
		return Outcome{}, err
	}

	step := StepAscending
	switch {
	case demo:
		step = StepDemoLoop
	case dir == Descending:
		step = StepDescending
	}

	ok := m.apply(gen, func() {
		m.state.Step = step
		m.state.Message = fmt.Sprintf("%s from %s: listen, rest, then sing each note.",
			cycleTitle(dir, demo), pitch.FrequencyToNoteName(base))
		m.state.IndicatorRange = meta.IndicatorRange
		m.state.LadderNotes = meta.LadderNotes
		m.state.DotX = meta.IndicatorRange.Position(m.state.CurrentF0)
	})
	if !ok {
		return Outcome{}, ErrClosed
	}

	gate := m.gate()
	frameDuration := cfg.FrameDuration
	if frameDuration <= 0 {
		frameDuration = m.session.FrameDuration()
	}

	noteFrames := make([][]pitch.Frame, len(cfg.Mode.PatternOffsets))
	var lead []pitch.Frame
	sawNote := false

	for _, b := range beats {
		var freq, gain float64
		switch b.Type {
		case BeatExample:
			freq = base * math.Pow(cfg.SemitoneRatio, float64(b.Offset))
			gain = cfg.ToneGain
		case BeatNote:
			freq = base * math.Pow(cfg.SemitoneRatio, float64(b.Offset))
			gain = cfg.GuideGain
		}

		if !m.apply(gen, func() {
			m.state.Beat = b.Index
			m.state.BeatType = b.Type
			m.state.BeatFreq = freq
			m.state.BeatLabel = beatLabel(b.Type, freq)
		}) {
			return Outcome{}, ErrClosed
		}

		tone := freq
		if gain <= 0 {
			tone = 0
		}
		m.session.StartCollecting()
		err := m.session.PlayTone(ctx, tone, cfg.BeatDuration, cfg.UseSampledInstrument, gain)
		frames := m.session.StopCollecting()
		if err != nil {
			return Outcome{}, err
		}

		switch {
		case b.NoteIndex >= 0:
			noteFrames[b.NoteIndex] = frames
			sawNote = true
		case !sawNote && b.Type != BeatNote:
			lead = append(lead, frames...)
		}
	}

	m.apply(gen, m.clearBeatLocked)

	out := cfg.EvaluateCycle(CycleInput{
		Mode:          cfg.Mode,
		Direction:     dir,
		Demo:          demo,
		BaseHz:        base,
		Meta:          meta,
		NoteFrames:    noteFrames,
		LeadFrames:    lead,
		Gate:          gate,
		FrameDuration: frameDuration,
	})
	out.RootIndex = index
	out.At = m.session.Clock().Now()
	return out, nil
}

func cycleTitle(dir Direction, demo bool) string {
	switch {
	case demo:
		return "Demo"
	case dir == Descending:
		return "Descending"
	default:
		return "Ascending"
	}
}

func beatLabel(t BeatType, freq float64) string {
	switch t {
	case BeatExample:
		return "Listen " + pitch.FrequencyToNoteName(freq)
	case BeatNote:
		return "Sing " + pitch.FrequencyToNoteName(freq)
	default:
		return "Rest"
	}
}
