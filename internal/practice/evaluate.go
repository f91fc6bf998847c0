package practice

import (
	"fmt"
	"math"
	"time"

	"github.com/linuxmatters/vocalrange/internal/mains"
	"github.com/linuxmatters/vocalrange/internal/pitch"
)

// FailureType says how a note missed
type FailureType string

const (
	FailMissing FailureType = "missing" // no usable frames
	FailLow     FailureType = "low"
	FailHigh    FailureType = "high"
)

// FailedNote identifies the first pattern note that missed
type FailedNote struct {
	Index      int // position in PatternOffsets
	Type       FailureType
	ExpectedHz float64
	MedianHz   float64 // 0 when missing
	Cents      float64 // median deviation from expected, 0 when missing
}

// Message returns the user-facing advice for the note
func (f FailedNote) Message() string {
	note := pitch.FrequencyToNoteName(f.ExpectedHz)
	switch f.Type {
	case FailMissing:
		return fmt.Sprintf("Note %d (%s) was not detected. Sing a little louder and hold it steady.", f.Index+1, note)
	case FailLow:
		return fmt.Sprintf("Note %d (%s) was not high enough, %.0f cents flat. Aim a little higher.", f.Index+1, note, -f.Cents)
	default:
		return fmt.Sprintf("Note %d (%s) was not low enough, %.0f cents sharp. Aim a little lower.", f.Index+1, note, f.Cents)
	}
}

// FindFailedNote checks each note's median usable pitch in pattern order and
// returns the first that was never detected or sits outside toleranceCents.
// Returns nil when every note landed.
func FindFailedNote(noteFrames [][]pitch.Frame, offsets []int, baseHz, semitoneRatio, toleranceCents float64, gate Gate) *FailedNote {
	for i, offset := range offsets {
		expected := baseHz * math.Pow(semitoneRatio, float64(offset))

		var frames []pitch.Frame
		if i < len(noteFrames) {
			frames = noteFrames[i]
		}
		usable := gate.UsablePitches(frames)
		if len(usable) == 0 {
			return &FailedNote{Index: i, Type: FailMissing, ExpectedHz: expected}
		}

		med := median(usable)
		cents := pitch.Cents(med, expected)
		switch {
		case cents < -toleranceCents:
			return &FailedNote{Index: i, Type: FailLow, ExpectedHz: expected, MedianHz: med, Cents: cents}
		case cents > toleranceCents:
			return &FailedNote{Index: i, Type: FailHigh, ExpectedHz: expected, MedianHz: med, Cents: cents}
		}
	}
	return nil
}

// Outcome is the result of one cycle
type Outcome struct {
	Direction  Direction
	Demo       bool
	RootIndex  int
	BaseHz     float64
	TargetHz   float64
	Stable     time.Duration // on-target time at TargetHz
	Success    bool
	ExtremeHz  float64 // highest (ascending) or lowest (descending) usable pitch, 0 if none
	Failed     *FailedNote
	EarlyEntry bool
	Message    string
	At         time.Time
}

// CycleInput is everything collected during one cycle
type CycleInput struct {
	Mode          ScaleMode
	Direction     Direction
	Demo          bool
	BaseHz        float64
	Meta          PitchMeta
	NoteFrames    [][]pitch.Frame // one slice per pattern note
	LeadFrames    []pitch.Frame   // frames from the beats before the first note
	Gate          Gate
	FrameDuration time.Duration
}

// EvaluateCycle scores a cycle. It passes when the target pitch was held for at
// least StableWindow. A failed cycle names the first note that missed.
func (c Config) EvaluateCycle(in CycleInput) Outcome {
	out := Outcome{
		Direction: in.Direction,
		Demo:      in.Demo,
		BaseHz:    in.BaseHz,
		TargetHz:  in.Meta.TargetFreq,
	}

	var sung []pitch.Frame
	for _, frames := range in.NoteFrames {
		sung = append(sung, frames...)
	}

	out.Stable = AccumulateStableWindow(sung, in.Meta.TargetFreq, c.ToleranceCents, in.Gate, in.FrameDuration)
	out.Success = out.Stable >= c.StableWindow
	if !out.Success {
		out.Failed = FindFailedNote(in.NoteFrames, in.Mode.PatternOffsets, in.BaseHz, c.SemitoneRatio, c.ToleranceCents, in.Gate)
	}

	for _, hz := range in.Gate.UsablePitches(sung) {
		switch {
		case out.ExtremeHz == 0:
			out.ExtremeHz = hz
		case in.Direction == Ascending && hz > out.ExtremeHz:
			out.ExtremeHz = hz
		case in.Direction == Descending && hz < out.ExtremeHz:
			out.ExtremeHz = hz
		}
	}

	early := len(in.Gate.UsablePitches(in.LeadFrames))
	out.EarlyEntry = c.EarlyEntryFrames > 0 && early >= c.EarlyEntryFrames

	out.Message = c.outcomeMessage(out)
	return out
}

func (c Config) outcomeMessage(o Outcome) string {
	target := pitch.FrequencyToNoteName(o.TargetHz)
	switch {
	case o.Demo && o.EarlyEntry:
		return "You came in too early. Stay silent through the example and rest beats, then sing."
	case o.Failed != nil:
		return o.Failed.Message()
	case !o.Success:
		return fmt.Sprintf("Hold %s a little longer: %dms of %dms.", target, o.Stable.Milliseconds(), c.StableWindow.Milliseconds())
	case o.Demo:
		return "Nice timing. Start practice when you are ready."
	default:
		return fmt.Sprintf("Nice! %s held for %dms.", target, o.Stable.Milliseconds())
	}
}

// CalibrationPitch returns the median usable pitch of free singing, ignoring
// frames that sit on mains hum. Returns 0 if nothing usable was heard.
func CalibrationPitch(frames []pitch.Frame, gate Gate, mainsHz, humCents float64) float64 {
	var voiced []float64
	for _, hz := range gate.UsablePitches(frames) {
		if mains.IsHum(hz, mainsHz, humCents) {
			continue
		}
		voiced = append(voiced, hz)
	}
	return median(voiced)
}
