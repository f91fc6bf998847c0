package logging

import (
	"fmt"
	"math"
	"sort"

	"github.com/linuxmatters/vocalrange/internal/practice"
)

// PracticeTip is one piece of actionable advice derived from a session
type PracticeTip struct {
	Priority int    // Higher = more important (1-10)
	Message  string // 1-2 sentences
	RuleID   string // e.g. "noisy_room"
}

// MaxPracticeTips caps the tips returned
const MaxPracticeTips = 5

// Room noise above this RMS (-40 dBFS) makes the energy gate hard to pass
const noisyBaselineRMS = 0.01

type tipRule func(s practice.Summary, cfg practice.Config) *PracticeTip

// GeneratePracticeTips returns prioritised advice for the session
func GeneratePracticeTips(s practice.Summary, cfg practice.Config) []PracticeTip {
	rules := []tipRule{
		tipNoCycles,
		tipHeadphoneLeak,
		tipNoisyRoom,
		tipDropouts,
		tipFlat,
		tipSharp,
		tipEarlyEntry,
		tipNarrowRange,
		tipWideRange,
	}

	var tips []PracticeTip
	fired := make(map[string]bool)
	for _, rule := range rules {
		if tip := rule(s, cfg); tip != nil {
			tips = append(tips, *tip)
			fired[tip.RuleID] = true
		}
	}

	tips = applyExclusions(tips, fired)

	sort.SliceStable(tips, func(i, j int) bool {
		return tips[i].Priority > tips[j].Priority
	})
	if len(tips) > MaxPracticeTips {
		tips = tips[:MaxPracticeTips]
	}
	return tips
}

// applyExclusions drops tips made redundant by a more specific one
func applyExclusions(tips []PracticeTip, fired map[string]bool) []PracticeTip {
	var out []PracticeTip
	for _, tip := range tips {
		switch tip.RuleID {
		case "dropouts":
			// a noisy room already explains missed notes
			if fired["noisy_room"] {
				continue
			}
		case "narrow_range", "wide_range":
			if fired["no_cycles"] {
				continue
			}
		}
		out = append(out, tip)
	}
	return out
}

// scored returns the non-demo cycles
func scored(s practice.Summary) []practice.Outcome {
	var out []practice.Outcome
	for _, c := range s.Cycles {
		if !c.Demo {
			out = append(out, c)
		}
	}
	return out
}

func failureCounts(s practice.Summary) map[practice.FailureType]int {
	counts := make(map[practice.FailureType]int)
	for _, c := range scored(s) {
		if c.Failed != nil {
			counts[c.Failed.Type]++
		}
	}
	return counts
}

func tipNoCycles(s practice.Summary, _ practice.Config) *PracticeTip {
	for _, c := range scored(s) {
		if c.Success {
			return nil
		}
	}
	return &PracticeTip{
		Priority: 10,
		RuleID:   "no_cycles",
		Message:  "No practice cycle was completed, so no range was recorded. Try the demo first to get used to the timing.",
	}
}

func tipHeadphoneLeak(s practice.Summary, _ practice.Config) *PracticeTip {
	if !s.HeadphoneChecked || s.HeadphonePassed {
		return nil
	}
	return &PracticeTip{
		Priority: 9,
		RuleID:   "headphone_leak",
		Message:  fmt.Sprintf("The microphone picked up the test tone (%.0f dB). Guide tones can be mistaken for your voice, so use headphones.", s.HeadphoneLeakDB),
	}
}

func tipNoisyRoom(s practice.Summary, cfg practice.Config) *PracticeTip {
	if s.BaselineRMS <= noisyBaselineRMS {
		return nil
	}
	return &PracticeTip{
		Priority: 8,
		RuleID:   "noisy_room",
		Message: fmt.Sprintf("Your room is noisy (%s dBFS). Notes must be %.0f dB louder than the room to count, so find a quieter space.",
			formatLevelDB(s.BaselineRMS, 0), cfg.DeltaDB),
	}
}

func tipDropouts(s practice.Summary, _ practice.Config) *PracticeTip {
	if failureCounts(s)[practice.FailMissing] < 2 {
		return nil
	}
	return &PracticeTip{
		Priority: 7,
		RuleID:   "dropouts",
		Message:  "Several notes were not detected. Sing a little louder, move closer to the microphone and hold each note for the whole beat.",
	}
}

func tipFlat(s practice.Summary, _ practice.Config) *PracticeTip {
	counts := failureCounts(s)
	if counts[practice.FailLow] < 2 || counts[practice.FailLow] <= counts[practice.FailHigh] {
		return nil
	}
	return &PracticeTip{
		Priority: 6,
		RuleID:   "tends_flat",
		Message:  "You tend to land under the note. Listen to the example tone and aim for the top of the pitch.",
	}
}

func tipSharp(s practice.Summary, _ practice.Config) *PracticeTip {
	counts := failureCounts(s)
	if counts[practice.FailHigh] < 2 || counts[practice.FailHigh] <= counts[practice.FailLow] {
		return nil
	}
	return &PracticeTip{
		Priority: 6,
		RuleID:   "tends_sharp",
		Message:  "You tend to overshoot the note. Relax and let the pitch settle rather than pushing.",
	}
}

func tipEarlyEntry(s practice.Summary, _ practice.Config) *PracticeTip {
	for _, c := range s.Cycles {
		if c.EarlyEntry {
			return &PracticeTip{
				Priority: 5,
				RuleID:   "early_entry",
				Message:  "You started singing during the example or rest beats. Wait for the first note beat before you come in.",
			}
		}
	}
	return nil
}

// rangeSemitones returns the span between lowest and highest, or 0 if either is missing
func rangeSemitones(s practice.Summary) float64 {
	if s.LowestHz <= 0 || s.HighestHz <= 0 {
		return 0
	}
	return 12 * math.Log2(s.HighestHz/s.LowestHz)
}

func tipNarrowRange(s practice.Summary, _ practice.Config) *PracticeTip {
	span := rangeSemitones(s)
	if span == 0 || span >= 12 {
		return nil
	}
	return &PracticeTip{
		Priority: 3,
		RuleID:   "narrow_range",
		Message:  fmt.Sprintf("Your measured range spans %.0f semitones. Warm up gently and it will usually open up across sessions.", span),
	}
}

func tipWideRange(s practice.Summary, _ practice.Config) *PracticeTip {
	span := rangeSemitones(s)
	if span < 24 {
		return nil
	}
	return &PracticeTip{
		Priority: 2,
		RuleID:   "wide_range",
		Message:  fmt.Sprintf("Your measured range spans %.0f semitones, two octaves or more. Keep the extremes relaxed.", span),
	}
}
