package practice

import (
	"math"
	"sort"
	"time"

	"github.com/linuxmatters/vocalrange/internal/pitch"
)

// AccumulateStableWindow returns the total time usable frames spent within
// toleranceCents of targetHz. Frames that miss do not reset the total, so
// on-target time counts wherever it falls in the window.
func AccumulateStableWindow(frames []pitch.Frame, targetHz, toleranceCents float64, gate Gate, frameDuration time.Duration) time.Duration {
	if targetHz <= 0 {
		return 0
	}
	var total time.Duration
	for _, f := range frames {
		if !gate.Usable(f) {
			continue
		}
		if math.Abs(pitch.Cents(f.Pitch, targetHz)) <= toleranceCents {
			total += frameDuration
		}
	}
	return total
}

// median returns the median of values, or 0 for an empty slice
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
