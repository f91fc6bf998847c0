package pitch

import "math"

// Smoother defaults
const (
	DefaultSmoothThresholdCents = 80.0 // jumps larger than this re-lock quickly
	DefaultKFast                = 0.6
	DefaultKSlow                = 0.25
)

// Smoother applies adaptive exponential smoothing to displayed pitch.
// Small movements are damped to hide detector jitter; large jumps (a new note)
// are followed quickly. Works in cents so behaviour is uniform across the range.
type Smoother struct {
	value          float64
	thresholdCents float64
	kFast          float64
	kSlow          float64
}

// NewSmoother creates a smoother with default parameters
func NewSmoother() *Smoother {
	return &Smoother{
		thresholdCents: DefaultSmoothThresholdCents,
		kFast:          DefaultKFast,
		kSlow:          DefaultKSlow,
	}
}

// Update feeds a new pitch and returns the smoothed value
func (s *Smoother) Update(f float64) float64 {
	if f <= 0 {
		return s.value
	}
	if s.value == 0 {
		s.value = f
		return f
	}

	diff := Cents(f, s.value)
	k := s.kSlow
	if math.Abs(diff) > s.thresholdCents {
		k = s.kFast
	}

	// Move in the log domain
	s.value *= math.Pow(2, (diff*k)/1200)
	return s.value
}

// Value returns the current smoothed pitch (0 when reset)
func (s *Smoother) Value() float64 {
	return s.value
}

// Reset clears the smoother so the next value is taken as-is
func (s *Smoother) Reset() {
	s.value = 0
}
