package practice

import (
	"math"
	"sort"
)

// DefaultPaddingCents is the indicator headroom either side of the sung range
const DefaultPaddingCents = 120.0

// IndicatorRange is the display span of the pitch indicator
type IndicatorRange struct {
	Min float64
	Max float64
}

// Position maps hz onto the indicator on a log scale: 0 at Min, 1 at Max.
// Returns -1 if hz or the range is not positive.
func (r IndicatorRange) Position(hz float64) float64 {
	if hz <= 0 || r.Min <= 0 || r.Max <= r.Min {
		return -1
	}
	x := math.Log(hz/r.Min) / math.Log(r.Max/r.Min)
	return math.Max(0, math.Min(1, x))
}

// PitchMeta holds the per-cycle display and scoring targets
type PitchMeta struct {
	IndicatorRange IndicatorRange
	LadderNotes    []float64 // reference lines, ascending
	TargetFreq     float64
	MinOffset      int
	MaxOffset      int
	TargetOffset   int
}

// DeriveModePitchMeta computes indicator range, ladder and target for a cycle.
// paddingCents <= 0 uses DefaultPaddingCents.
func DeriveModePitchMeta(mode ScaleMode, baseHz, semitoneRatio float64, dir Direction, paddingCents float64) (PitchMeta, error) {
	if len(mode.PatternOffsets) == 0 {
		return PitchMeta{}, ErrInvalidMode
	}
	if paddingCents <= 0 {
		paddingCents = DefaultPaddingCents
	}

	minOffset, maxOffset := 0, 0
	unique := map[int]bool{0: true}
	for _, o := range mode.PatternOffsets {
		minOffset = min(minOffset, o)
		maxOffset = max(maxOffset, o)
		unique[o] = true
	}

	offsets := make([]int, 0, len(unique))
	for o := range unique {
		offsets = append(offsets, o)
	}
	sort.Ints(offsets)

	freqAt := func(offset int) float64 {
		return baseHz * math.Pow(semitoneRatio, float64(offset))
	}

	ladder := make([]float64, len(offsets))
	for i, o := range offsets {
		ladder[i] = freqAt(o)
	}

	padRatio := math.Pow(2, paddingCents/1200)

	target := maxOffset
	if dir == Descending {
		target = minOffset
	}
	if idx := mode.TargetNoteIndex; idx != nil && *idx >= 0 && *idx < len(mode.PatternOffsets) {
		target = mode.PatternOffsets[*idx]
	}

	return PitchMeta{
		IndicatorRange: IndicatorRange{
			Min: freqAt(minOffset) / padRatio,
			Max: freqAt(maxOffset) * padRatio,
		},
		LadderNotes:  ladder,
		TargetFreq:   freqAt(target),
		MinOffset:    minOffset,
		MaxOffset:    maxOffset,
		TargetOffset: target,
	}, nil
}
