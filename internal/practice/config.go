// Package practice implements the scale practice engine: beat timelines, frame gating,
// stability scoring and the practice wizard state machine.
package practice

import (
	"time"

	"github.com/linuxmatters/vocalrange/internal/pitch"
)

// Direction of a practice cycle
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "descending"
	}
	return "ascending"
}

// Config holds every threshold and timing the engine uses
type Config struct {
	// Exercise
	Mode          ScaleMode
	ReferenceHz   float64 // pitch at rootIndex 0 (middle C)
	SemitoneRatio float64

	// Scoring
	ToleranceCents float64       // allowed deviation from a note
	DeltaDB        float64       // energy above baseline required for a usable frame
	ThetaClarity   float64       // detector clarity required for a usable frame
	StableWindow   time.Duration // on-target time required to pass a cycle
	FrameDuration  time.Duration // time credited per frame, 0 = from the audio session
	MinPitchHz     float64       // valid detection band (exclusive)
	MaxPitchHz     float64
	PaddingCents   float64 // indicator headroom above and below the sung range

	// Beats and tones
	BeatDuration         time.Duration
	ToneGain             float64 // example and cue tones
	GuideGain            float64 // tone under sung notes, 0 = silent
	UseSampledInstrument bool

	// Headphone check
	BaselineDuration       time.Duration // ambient noise sampling (at least 800ms)
	HeadphoneQuietDuration time.Duration
	HeadphoneToneHz        float64 // probe tone, above the detection band
	HeadphoneToneDuration  time.Duration
	HeadphoneLeakDB        float64

	// Calibration
	CalibrationCue      time.Duration
	CalibrationDuration time.Duration
	CalibrationRange    int     // clamp, semitones either side of ReferenceHz
	MainsHz             float64 // local mains frequency for hum rejection, 0 disables
	HumCents            float64

	// Cycle flow
	CycleDelay        time.Duration // pause before an automatic next cycle
	AutoAdvance       bool
	DescendSeedOffset int // semitones below the highest ascending success
	EarlyEntryFrames  int // gated frames before the first note that count as singing early
}

// DefaultConfig returns the standard practice configuration
func DefaultConfig() Config {
	return Config{
		Mode:          DefaultModes()[0],
		ReferenceHz:   pitch.MiddleCHz,
		SemitoneRatio: pitch.SemitoneRatio,

		ToleranceCents: 50,
		DeltaDB:        12,
		ThetaClarity:   0.6,
		StableWindow:   300 * time.Millisecond,
		MinPitchHz:     50,
		MaxPitchHz:     1200,
		PaddingCents:   DefaultPaddingCents,

		BeatDuration: 700 * time.Millisecond,
		ToneGain:     0.8,
		GuideGain:    0.4,

		BaselineDuration:       800 * time.Millisecond,
		HeadphoneQuietDuration: 500 * time.Millisecond,
		HeadphoneToneHz:        1500,
		HeadphoneToneDuration:  time.Second,
		HeadphoneLeakDB:        3,

		CalibrationCue:      500 * time.Millisecond,
		CalibrationDuration: 3 * time.Second,
		CalibrationRange:    12,
		HumCents:            15,

		CycleDelay:        600 * time.Millisecond,
		AutoAdvance:       true,
		DescendSeedOffset: 4,
		EarlyEntryFrames:  3,
	}
}

// gate builds the frame gate for a measured baseline
func (c Config) gate(baselineRms float64) Gate {
	return Gate{
		BaselineRMS:  baselineRms,
		DeltaDB:      c.DeltaDB,
		ThetaClarity: c.ThetaClarity,
		MinHz:        c.MinPitchHz,
		MaxHz:        c.MaxPitchHz,
	}
}
