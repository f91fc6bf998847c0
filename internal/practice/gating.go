package practice

import (
	"math"

	"github.com/linuxmatters/vocalrange/internal/pitch"
)

// Floor applied to a zero or negative baseline (-100 dBFS)
const minBaselineRMS = 1e-5

// GateByEnergy reports whether rms is at least deltaDB above the ambient baseline
func GateByEnergy(rms, baselineRms, deltaDB float64) bool {
	if rms <= 0 {
		return false
	}
	base := math.Max(baselineRms, minBaselineRMS)
	return 20*math.Log10(rms/base) >= deltaDB
}

// GateByStability reports whether the detector was confident enough
func GateByStability(clarity, thetaClarity float64) bool {
	return clarity >= thetaClarity
}

// InBand reports whether hz lies strictly inside the detection band
func InBand(hz, minHz, maxHz float64) bool {
	return hz > minHz && hz < maxHz
}

// Gate holds the thresholds deciding whether a frame counts toward scoring
type Gate struct {
	BaselineRMS  float64
	DeltaDB      float64
	ThetaClarity float64
	MinHz        float64
	MaxHz        float64
}

// Usable reports whether a frame is in band, loud enough and stable enough.
// Checks run cheapest first.
func (g Gate) Usable(f pitch.Frame) bool {
	return InBand(f.Pitch, g.MinHz, g.MaxHz) &&
		GateByEnergy(f.RMS, g.BaselineRMS, g.DeltaDB) &&
		GateByStability(f.Clarity, g.ThetaClarity)
}

// UsablePitches returns the pitch of every usable frame, in order
func (g Gate) UsablePitches(frames []pitch.Frame) []float64 {
	var out []float64
	for _, f := range frames {
		if g.Usable(f) {
			out = append(out, f.Pitch)
		}
	}
	return out
}
