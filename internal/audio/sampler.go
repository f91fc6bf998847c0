package audio

import (
	"sync"

	"github.com/linuxmatters/vocalrange/internal/pitch"
)

// Display thresholds for the smoothed current pitch
const (
	DisplayClarity = 0.95
	MinPitchHz     = 50.0
	MaxPitchHz     = 1200.0
)

// FrameFunc receives each published frame and the smoothed display pitch (0 = no pitch)
type FrameFunc func(frame pitch.Frame, currentF0 float64)

// tapFunc observes each frame together with the raw samples it was computed from
type tapFunc func(frame pitch.Frame, samples []float32)

// Sampler turns analyser buffers into pitch frames, one per tick
type Sampler struct {
	analyser *Analyser
	detector Detector

	mu         sync.Mutex
	smoother   *pitch.Smoother
	latest     pitch.Frame
	currentF0  float64
	collecting bool
	frames     []pitch.Frame
	taps       map[int]tapFunc
	nextTap    int
	onFrame    FrameFunc
	stopped    bool
}

// NewSampler creates a sampler reading from analyser and estimating pitch with detector
func NewSampler(analyser *Analyser, detector Detector) *Sampler {
	return &Sampler{
		analyser: analyser,
		detector: detector,
		smoother: pitch.NewSmoother(),
		taps:     make(map[int]tapFunc),
	}
}

// OnFrame sets the frame listener
func (s *Sampler) OnFrame(fn FrameFunc) {
	s.mu.Lock()
	s.onFrame = fn
	s.mu.Unlock()
}

// Tick runs one sampling iteration
func (s *Sampler) Tick() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	samples := s.analyser.TimeDomain()
	freq, clarity := s.detector.FindPitch(samples, s.analyser.SampleRate())
	frame := pitch.Frame{
		Pitch:   freq,
		Clarity: clarity,
		RMS:     RMS(samples),
	}

	s.mu.Lock()
	s.latest = frame
	if clarity > DisplayClarity && freq > MinPitchHz && freq < MaxPitchHz {
		s.currentF0 = s.smoother.Update(freq)
	} else {
		s.smoother.Reset()
		s.currentF0 = 0
	}

	// Collection keeps every frame; gating happens at evaluation time
	if s.collecting {
		s.frames = append(s.frames, frame)
	}

	taps := make([]tapFunc, 0, len(s.taps))
	for _, tap := range s.taps {
		taps = append(taps, tap)
	}
	onFrame := s.onFrame
	current := s.currentF0
	s.mu.Unlock()

	for _, tap := range taps {
		tap(frame, samples)
	}
	if onFrame != nil {
		onFrame(frame, current)
	}
}

// StartCollecting begins buffering frames for a beat, discarding any previous buffer
func (s *Sampler) StartCollecting() {
	s.mu.Lock()
	s.collecting = true
	s.frames = nil
	s.mu.Unlock()
}

// StopCollecting ends collection and returns the buffered frames
func (s *Sampler) StopCollecting() []pitch.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collecting = false
	frames := s.frames
	s.frames = nil
	return frames
}

// Collecting reports whether a beat is currently being collected
func (s *Sampler) Collecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collecting
}

// CurrentPitch returns the smoothed display pitch (0 = no pitch)
func (s *Sampler) CurrentPitch() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentF0
}

// Latest returns the most recent frame
func (s *Sampler) Latest() pitch.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// addTap registers a frame observer and returns its removal function
func (s *Sampler) addTap(fn tapFunc) func() {
	s.mu.Lock()
	id := s.nextTap
	s.nextTap++
	s.taps[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.taps, id)
		s.mu.Unlock()
	}
}

// stop makes further ticks no-ops
func (s *Sampler) stop() {
	s.mu.Lock()
	s.stopped = true
	s.collecting = false
	s.frames = nil
	s.currentF0 = 0
	s.mu.Unlock()
}
