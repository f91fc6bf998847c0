package practice

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/linuxmatters/vocalrange/internal/audio"
	"github.com/linuxmatters/vocalrange/internal/pitch"
	"github.com/sirupsen/logrus"
)

// Ambient noise is always sampled for at least this long
const minBaselineDuration = 800 * time.Millisecond

// AudioSession is the part of audio.Session the machine drives
type AudioSession interface {
	Open(ctx context.Context) error
	Close() error
	OnFrame(fn audio.FrameFunc)
	Play(freq float64, dur time.Duration, sampled bool, gain float64) (*audio.Playback, error)
	PlayTone(ctx context.Context, freq float64, dur time.Duration, sampled bool, gain float64) error
	MeasureRMS(ctx context.Context, d time.Duration) (float64, error)
	MeasureFreqDB(ctx context.Context, freq float64, d time.Duration) (float64, error)
	StartCollecting()
	StopCollecting() []pitch.Frame
	FrameDuration() time.Duration
	Clock() audio.Clock
}

// Summary is what a finished (or abandoned) session measured
type Summary struct {
	Mode             string
	BaselineRMS      float64
	HeadphoneChecked bool
	HeadphonePassed  bool
	HeadphoneLeakDB  float64 // probe level above the quiet level at the same bin
	CalibrationHz    float64
	StartIndex       int
	HighestHz        float64
	LowestHz         float64
	Cycles           []Outcome
}

// Machine is the practice wizard. It exclusively owns the audio session.
//
// Actions run in the caller's goroutine and return once their work is done.
// Only one action runs at a time; HandleFinishPractice and Close may interrupt
// a running cycle. Every user action bumps a generation number so that work
// started by an earlier action, including a scheduled next cycle, cannot
// publish state afterwards.
type Machine struct {
	session AudioSession
	cfg     Config
	log     logrus.FieldLogger

	mu       sync.Mutex
	state    State
	listener Listener
	busy     bool
	closed   bool
	gen      uint64
	timer    audio.Timer

	rootIndex       int
	descendingIndex int
	lastAscendRoot  int
	ascended        bool
	highestHz       float64
	lowestHz        float64

	baselineRMS      float64
	headphoneChecked bool
	headphonePassed  bool
	leakDB           float64
	calibrationHz    float64
	startIndex       int
	history          []Outcome
}

// NewMachine creates a machine at the permission step
func NewMachine(session AudioSession, cfg Config, log logrus.FieldLogger) (*Machine, error) {
	if err := cfg.Mode.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReferenceHz <= 0 {
		cfg.ReferenceHz = pitch.MiddleCHz
	}
	if cfg.SemitoneRatio <= 1 {
		cfg.SemitoneRatio = pitch.SemitoneRatio
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}

	m := &Machine{
		session: session,
		cfg:     cfg,
		log:     log.WithField("component", "practice"),
		state:   initialState(cfg.Mode),
	}
	session.OnFrame(m.onFrame)
	return m, nil
}

// SetListener sets the state listener
func (m *Machine) SetListener(l Listener) {
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
}

// State returns the current snapshot
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// History returns every evaluated cycle, oldest first
func (m *Machine) History() []Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.history)
}

// Summary returns the session measurements so far
func (m *Machine) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Summary{
		Mode:             m.cfg.Mode.Name,
		BaselineRMS:      m.baselineRMS,
		HeadphoneChecked: m.headphoneChecked,
		HeadphonePassed:  m.headphonePassed,
		HeadphoneLeakDB:  m.leakDB,
		CalibrationHz:    m.calibrationHz,
		StartIndex:       m.startIndex,
		HighestHz:        m.highestHz,
		LowestHz:         m.lowestHz,
		Cycles:           slices.Clone(m.history),
	}
}

// begin claims the machine for an action allowed in the given steps.
// Pending scheduled cycles are cancelled.
func (m *Machine) begin(allowed ...Step) (uint64, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}
	if m.busy {
		m.mu.Unlock()
		return 0, ErrBusy
	}
	if !slices.Contains(allowed, m.state.Step) {
		step := m.state.Step
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrInvalidTransition, step)
	}

	m.stopTimerLocked()
	m.gen++
	m.busy = true
	m.state.Busy = true
	gen := m.gen
	s, l := m.state, m.listener
	m.mu.Unlock()

	notify(l, s)
	return gen, nil
}

// end releases the machine if gen is still current
func (m *Machine) end(gen uint64) {
	m.apply(gen, func() {
		m.busy = false
		m.state.Busy = false
	})
}

// apply runs fn under the lock and publishes the result, unless gen is stale
func (m *Machine) apply(gen uint64, fn func()) bool {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return false
	}
	fn()
	s, l := m.state, m.listener
	m.mu.Unlock()

	notify(l, s)
	return true
}

func notify(l Listener, s State) {
	if l != nil {
		l(s)
	}
}

func (m *Machine) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// onFrame moves the indicator dot
func (m *Machine) onFrame(_ pitch.Frame, f0 float64) {
	m.mu.Lock()
	if m.closed || f0 == m.state.CurrentF0 {
		m.mu.Unlock()
		return
	}
	m.state.CurrentF0 = f0
	m.state.DotX = m.state.IndicatorRange.Position(f0)
	s, l := m.state, m.listener
	m.mu.Unlock()

	notify(l, s)
}

func (m *Machine) gate() Gate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.gate(m.baselineRMS)
}

// abort reports an audio failure and returns to a step the user can act from
func (m *Machine) abort(gen uint64, err error) error {
	if errors.Is(err, audio.ErrSessionClosed) || errors.Is(err, ErrClosed) {
		return err
	}
	m.log.WithError(err).Warn("practice action failed")
	m.apply(gen, func() {
		switch m.state.Step {
		case StepCalibrating:
			m.state.Step = StepCalibration
		case StepDemoLoop:
			m.state.Step = StepSetup
		}
		m.state.Message = "Audio error: " + err.Error()
		m.clearBeatLocked()
	})
	return err
}

func (m *Machine) clearBeatLocked() {
	m.state.Beat = -1
	m.state.BeatLabel = ""
	m.state.BeatType = ""
	m.state.BeatFreq = 0
}

func permissionMessage(err error) string {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return "Microphone access was denied. Allow access and try again."
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return "No microphone found. Connect one and try again."
	default:
		return "Could not open the microphone: " + err.Error()
	}
}

// RequestPermission opens the audio session
func (m *Machine) RequestPermission(ctx context.Context) error {
	gen, err := m.begin(StepPermission)
	if err != nil {
		return err
	}
	defer m.end(gen)

	if err := m.session.Open(ctx); err != nil {
		m.log.WithError(err).Warn("microphone unavailable")
		m.apply(gen, func() {
			m.state.Message = permissionMessage(err)
		})
		return err
	}

	m.apply(gen, func() {
		m.state.Step = StepHeadphone
		m.state.Message = "Put on headphones, then run the headphone check. Stay quiet while it runs."
	})
	return nil
}

// HandleHeadphoneCheck measures the room's noise floor, then plays an
// out-of-band probe tone and checks whether the microphone picks it up.
// A leak is advisory: the user may retry or continue.
func (m *Machine) HandleHeadphoneCheck(ctx context.Context) error {
	gen, err := m.begin(StepHeadphone, StepHeadphoneFail)
	if err != nil {
		return err
	}
	defer m.end(gen)

	cfg := m.cfg
	m.apply(gen, func() {
		m.state.Step = StepHeadphone
		m.state.Message = "Measuring background noise. Stay quiet."
	})

	baseline, err := m.session.MeasureRMS(ctx, max(cfg.BaselineDuration, minBaselineDuration))
	if err != nil {
		return m.abort(gen, err)
	}
	quiet, err := m.session.MeasureFreqDB(ctx, cfg.HeadphoneToneHz, cfg.HeadphoneQuietDuration)
	if err != nil {
		return m.abort(gen, err)
	}

	m.apply(gen, func() {
		m.state.Message = "Playing a test tone. Stay quiet."
	})
	pb, err := m.session.Play(cfg.HeadphoneToneHz, cfg.HeadphoneToneDuration, false, cfg.ToneGain)
	if err != nil {
		return m.abort(gen, err)
	}
	leak, err := m.session.MeasureFreqDB(ctx, cfg.HeadphoneToneHz, cfg.HeadphoneToneDuration)
	if err != nil {
		pb.Cancel()
		return m.abort(gen, err)
	}
	if err := pb.Wait(ctx); err != nil {
		return m.abort(gen, err)
	}

	leaked := leak > quiet+cfg.HeadphoneLeakDB
	m.log.WithFields(logrus.Fields{
		"baseline_rms": baseline,
		"quiet_db":     quiet,
		"probe_db":     leak,
		"leaked":       leaked,
	}).Info("headphone check")

	m.apply(gen, func() {
		m.baselineRMS = baseline
		m.headphoneChecked = true
		m.headphonePassed = !leaked
		m.leakDB = leak - quiet
		if leaked {
			m.state.Step = StepHeadphoneFail
			m.state.Message = fmt.Sprintf("The microphone heard the test tone (%.1f dB above quiet). Use headphones, then retry or continue anyway.", leak-quiet)
			return
		}
		m.state.Step = StepCalibration
		m.state.Message = "Headphones OK. Start calibration and sing a comfortable note after the cue."
	})
	return nil
}

// HandleHeadphoneContinue proceeds to calibration despite a failed headphone check
func (m *Machine) HandleHeadphoneContinue() error {
	gen, err := m.begin(StepHeadphoneFail)
	if err != nil {
		return err
	}
	defer m.end(gen)

	m.log.Warn("continuing after failed headphone check")
	m.apply(gen, func() {
		m.state.Step = StepCalibration
		m.state.Message = "Continuing without headphones. Tones may be picked up by the microphone."
	})
	return nil
}

// HandleCalibrationStart plays a cue, listens to free singing and seeds the
// practice starting pitch from its median
func (m *Machine) HandleCalibrationStart(ctx context.Context) error {
	gen, err := m.begin(StepCalibration, StepSetup)
	if err != nil {
		return err
	}
	defer m.end(gen)

	cfg := m.cfg
	ref := cfg.ReferenceHz
	span := math.Pow(cfg.SemitoneRatio, float64(cfg.CalibrationRange))
	m.apply(gen, func() {
		m.state.Step = StepCalibrating
		m.state.Message = "Listen for the cue, then sing a comfortable note and hold it."
		m.state.IndicatorRange = IndicatorRange{Min: ref / span, Max: ref * span}
		m.state.LadderNotes = []float64{ref}
	})

	if err := m.session.PlayTone(ctx, ref, cfg.CalibrationCue, cfg.UseSampledInstrument, cfg.ToneGain); err != nil {
		return m.abort(gen, err)
	}

	m.session.StartCollecting()
	err = m.session.Clock().Sleep(ctx, cfg.CalibrationDuration)
	frames := m.session.StopCollecting()
	if err != nil {
		return m.abort(gen, err)
	}

	hz := CalibrationPitch(frames, m.gate(), cfg.MainsHz, cfg.HumCents)
	if hz <= 0 {
		m.apply(gen, func() {
			m.state.Step = StepCalibration
			m.state.Message = "No steady voice detected. Try again a little louder."
		})
		return nil
	}

	semis := int(math.Round(math.Log(hz/ref) / math.Log(cfg.SemitoneRatio)))
	semis = max(-cfg.CalibrationRange, min(cfg.CalibrationRange, semis))
	start := ref * math.Pow(cfg.SemitoneRatio, float64(semis))

	m.log.WithFields(logrus.Fields{
		"median_hz":  hz,
		"frames":     len(frames),
		"root_index": semis,
	}).Info("calibrated")

	m.apply(gen, func() {
		m.calibrationHz = hz
		m.startIndex = semis
		m.rootIndex = semis
		m.descendingIndex = semis
		m.state.RootIndex = semis
		m.state.DescendingIndex = semis
		m.state.Step = StepSetup
		m.state.Message = fmt.Sprintf("You sang %s. Practice starts on %s.",
			pitch.FrequencyToNoteName(hz), pitch.FrequencyToNoteName(start))
	})
	return nil
}

// HandleDemoStart runs an unscored rehearsal cycle
func (m *Machine) HandleDemoStart(ctx context.Context) error {
	gen, err := m.begin(StepSetup, StepDemoEnd)
	if err != nil {
		return err
	}
	defer m.end(gen)

	m.mu.Lock()
	index := m.rootIndex
	m.mu.Unlock()

	out, err := m.runCycle(ctx, gen, Ascending, true, index)
	if err != nil {
		return m.abort(gen, err)
	}

	m.apply(gen, func() {
		m.history = append(m.history, out)
		m.state.Step = StepDemoEnd
		m.state.Message = out.Message
	})
	return nil
}

// HandlePracticeStart runs an ascending cycle at the current root
func (m *Machine) HandlePracticeStart(ctx context.Context) error {
	return m.practice(ctx, Ascending, StepSetup, StepDemoEnd, StepAscending)
}

// HandleRetryAscend repeats the failed ascending cycle
func (m *Machine) HandleRetryAscend(ctx context.Context) error {
	return m.practice(ctx, Ascending, StepAscendFail)
}

// HandleStartDescending switches to descending practice, seeded below the
// highest ascending success
func (m *Machine) HandleStartDescending(ctx context.Context) error {
	gen, err := m.begin(StepAscendFail, StepAscending)
	if err != nil {
		return err
	}
	defer m.end(gen)

	m.apply(gen, func() {
		seed := m.rootIndex
		if m.ascended {
			seed = m.lastAscendRoot
		}
		m.descendingIndex = seed - m.cfg.DescendSeedOffset
		m.state.DescendingIndex = m.descendingIndex
	})
	return m.cycle(ctx, gen, Descending)
}

// HandleRetryDescend repeats (or continues) descending practice
func (m *Machine) HandleRetryDescend(ctx context.Context) error {
	return m.practice(ctx, Descending, StepDescendFail, StepDescending)
}

func (m *Machine) practice(ctx context.Context, dir Direction, allowed ...Step) error {
	gen, err := m.begin(allowed...)
	if err != nil {
		return err
	}
	defer m.end(gen)
	return m.cycle(ctx, gen, dir)
}

// cycle runs and scores one practice cycle, then moves the root on success
func (m *Machine) cycle(ctx context.Context, gen uint64, dir Direction) error {
	m.mu.Lock()
	index := m.rootIndex
	if dir == Descending {
		index = m.descendingIndex
	}
	m.mu.Unlock()

	out, err := m.runCycle(ctx, gen, dir, false, index)
	if err != nil {
		return m.abort(gen, err)
	}

	m.log.WithFields(logrus.Fields{
		"direction":  dir.String(),
		"root_index": index,
		"target_hz":  out.TargetHz,
		"stable_ms":  out.Stable.Milliseconds(),
		"success":    out.Success,
	}).Info("cycle evaluated")

	m.apply(gen, func() {
		m.history = append(m.history, out)
		m.recordLocked(out, index)
	})
	return nil
}

// recordLocked applies a scored outcome to the session and schedules the next cycle
func (m *Machine) recordLocked(out Outcome, index int) {
	step := m.cfg.Mode.Step()
	if !out.Success {
		if out.Direction == Ascending {
			m.state.Step = StepAscendFail
		} else {
			m.state.Step = StepDescendFail
		}
		m.state.Message = out.Message
		return
	}

	var next int
	if out.Direction == Ascending {
		if out.ExtremeHz > m.highestHz {
			m.highestHz = out.ExtremeHz
		}
		if !m.ascended || index > m.lastAscendRoot {
			m.lastAscendRoot = index
		}
		m.ascended = true
		m.rootIndex = index + step
		next = m.rootIndex
		m.state.Step = StepAscending
	} else {
		if out.ExtremeHz > 0 && (m.lowestHz == 0 || out.ExtremeHz < m.lowestHz) {
			m.lowestHz = out.ExtremeHz
		}
		m.descendingIndex = index - step
		next = m.descendingIndex
		m.state.Step = StepDescending
	}
	m.state.HighestHz = m.highestHz
	m.state.LowestHz = m.lowestHz
	m.state.RootIndex = m.rootIndex
	m.state.DescendingIndex = m.descendingIndex

	nextBase := m.cfg.ReferenceHz * math.Pow(m.cfg.SemitoneRatio, float64(next))
	if !m.withinBand(out.Direction, nextBase) {
		m.state.Message = out.Message + " That is the edge of the detection range."
		return
	}
	m.state.Message = fmt.Sprintf("%s Next cycle starts on %s.", out.Message, pitch.FrequencyToNoteName(nextBase))
	if m.cfg.AutoAdvance {
		m.scheduleLocked(m.gen, out.Direction)
	}
}

// withinBand reports whether a cycle on baseHz stays inside the detection band
func (m *Machine) withinBand(dir Direction, baseHz float64) bool {
	lo, hi := 0, 0
	for _, o := range m.cfg.Mode.PatternOffsets {
		lo = min(lo, o)
		hi = max(hi, o)
	}
	if dir == Ascending {
		return baseHz*math.Pow(m.cfg.SemitoneRatio, float64(hi)) < m.cfg.MaxPitchHz
	}
	return baseHz*math.Pow(m.cfg.SemitoneRatio, float64(lo)) > m.cfg.MinPitchHz
}

// scheduleLocked arms the next automatic cycle
func (m *Machine) scheduleLocked(gen uint64, dir Direction) {
	m.stopTimerLocked()
	m.timer = m.session.Clock().AfterFunc(m.cfg.CycleDelay, func() {
		m.runScheduled(gen, dir)
	})
}

// runScheduled starts an automatic cycle. A stale timer is a no-op.
func (m *Machine) runScheduled(gen uint64, dir Direction) {
	want := StepAscending
	if dir == Descending {
		want = StepDescending
	}

	m.mu.Lock()
	if m.closed || gen != m.gen || m.busy || m.state.Step != want {
		m.mu.Unlock()
		m.log.Debug("stale scheduled cycle ignored")
		return
	}
	m.timer = nil
	m.busy = true
	m.state.Busy = true
	s, l := m.state, m.listener
	m.mu.Unlock()
	notify(l, s)

	defer m.end(gen)
	if err := m.cycle(context.Background(), gen, dir); err != nil {
		m.log.WithError(err).Debug("scheduled cycle ended")
	}
}

// HandleFinishPractice closes the audio session and shows the result.
// Interrupts a running cycle.
func (m *Machine) HandleFinishPractice() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	switch m.state.Step {
	case StepSetup, StepDemoLoop, StepDemoEnd, StepAscending, StepAscendFail, StepDescending, StepDescendFail:
	default:
		step := m.state.Step
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInvalidTransition, step)
	}

	m.stopTimerLocked()
	m.gen++
	m.busy = false
	m.clearBeatLocked()
	m.state.Busy = false
	m.state.Step = StepResult
	m.state.CurrentF0 = 0
	m.state.DotX = -1
	m.state.HighestHz = m.highestHz
	m.state.LowestHz = m.lowestHz
	m.state.Message = rangeMessage(m.lowestHz, m.highestHz)
	s, l := m.state, m.listener
	m.mu.Unlock()

	err := m.session.Close()
	m.log.WithFields(logrus.Fields{
		"highest_hz": s.HighestHz,
		"lowest_hz":  s.LowestHz,
	}).Info("practice finished")
	notify(l, s)
	if err != nil {
		return fmt.Errorf("failed to close audio session: %w", err)
	}
	return nil
}

func rangeMessage(lowHz, highHz float64) string {
	switch {
	case lowHz > 0 && highHz > 0:
		return fmt.Sprintf("Your range: %s (%.0f Hz) to %s (%.0f Hz).",
			pitch.FrequencyToNoteName(lowHz), lowHz, pitch.FrequencyToNoteName(highHz), highHz)
	case highHz > 0:
		return fmt.Sprintf("Highest note: %s (%.0f Hz).", pitch.FrequencyToNoteName(highHz), highHz)
	case lowHz > 0:
		return fmt.Sprintf("Lowest note: %s (%.0f Hz).", pitch.FrequencyToNoteName(lowHz), lowHz)
	default:
		return "No range recorded. Complete at least one cycle next time."
	}
}

// Close tears the machine down: pending cycles are cancelled and the audio
// session is released. Idempotent.
func (m *Machine) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.gen++
	m.busy = false
	m.stopTimerLocked()
	m.mu.Unlock()

	return m.session.Close()
}
