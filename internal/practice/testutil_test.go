package practice

import (
	"context"
	"sync"
	"testing"

	"github.com/linuxmatters/vocalrange/internal/audio"
	"github.com/linuxmatters/vocalrange/internal/audio/audiotest"
	"github.com/linuxmatters/vocalrange/internal/pitch"
)

// Voices used across the simulated sessions
var (
	roomNoise = audiotest.Voice{RMS: 0.01}
)

// frames returns n identical frames
func frames(n int, hz, clarity, rms float64) []pitch.Frame {
	out := make([]pitch.Frame, n)
	for i := range out {
		out[i] = pitch.Frame{Pitch: hz, Clarity: clarity, RMS: rms}
	}
	return out
}

// testGate is the gate from the end-to-end scenario: baseline 0.01, 12 dB, clarity 0.6
func testGate() Gate {
	return Gate{BaselineRMS: 0.01, DeltaDB: 12, ThetaClarity: 0.6, MinHz: 50, MaxHz: 1200}
}

// rig is a practice machine on a simulated audio session driven by virtual time
type rig struct {
	mic     *audiotest.Mic
	player  *audiotest.Player
	ticks   *audiotest.Ticks
	clock   *audiotest.Clock
	session *audio.Session
	machine *Machine

	mu     sync.Mutex
	states []State
	voice  func(State) audiotest.Voice // while set, drives the mic from each state
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()

	r := &rig{
		mic:    audiotest.NewMic(),
		player: &audiotest.Player{},
		ticks:  audiotest.NewTicks(),
	}
	r.clock = audiotest.NewClock(r.ticks)
	r.session = audio.NewSession(audio.SessionOptions{
		Microphone: r.mic,
		Player:     r.player,
		Detector:   audiotest.Detector{Mic: r.mic},
		Ticks:      r.ticks,
		Clock:      r.clock,
	})

	m, err := NewMachine(r.session, cfg, nil)
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	m.SetListener(r.onState)
	r.machine = m
	t.Cleanup(func() { _ = m.Close() })
	return r
}

func (r *rig) onState(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	voice := r.voice
	r.mu.Unlock()
	if voice != nil {
		r.mic.SetVoice(voice(s))
	}
}

// script drives the microphone from published state; nil stops scripting
func (r *rig) script(fn func(State) audiotest.Voice) {
	r.mu.Lock()
	r.voice = fn
	r.mu.Unlock()
}

// seen returns every published state
func (r *rig) seen() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

// toSetup opens the session, passes the headphone check in a quiet room and
// calibrates on calibrationHz
func (r *rig) toSetup(t *testing.T, calibrationHz float64) {
	t.Helper()
	ctx := context.Background()

	if err := r.machine.RequestPermission(ctx); err != nil {
		t.Fatalf("RequestPermission: %v", err)
	}
	r.mic.SetVoice(roomNoise)
	if err := r.machine.HandleHeadphoneCheck(ctx); err != nil {
		t.Fatalf("HandleHeadphoneCheck: %v", err)
	}
	if got := r.machine.State().Step; got != StepCalibration {
		t.Fatalf("after headphone check step = %s, want %s", got, StepCalibration)
	}

	r.mic.SetVoice(audiotest.Voice{Pitch: calibrationHz, Clarity: 0.9, RMS: 0.05})
	if err := r.machine.HandleCalibrationStart(ctx); err != nil {
		t.Fatalf("HandleCalibrationStart: %v", err)
	}
	if got := r.machine.State().Step; got != StepSetup {
		t.Fatalf("after calibration step = %s, want %s", got, StepSetup)
	}
	r.mic.SetVoice(roomNoise)
}

// singer hits every note beat's expected pitch and stays silent otherwise.
// adjust may change the sung pitch per pattern note.
func singer(adjust func(noteIndex int, hz float64) float64) func(State) audiotest.Voice {
	return func(s State) audiotest.Voice {
		if s.Beat < 0 || s.BeatType != BeatNote {
			return roomNoise
		}
		hz := s.BeatFreq
		if adjust != nil {
			// default beat structure: example, rest, then the notes
			hz = adjust(s.Beat-2, hz)
		}
		return audiotest.Voice{Pitch: hz, Clarity: 0.8, RMS: 0.05}
	}
}

// testConfig is DefaultConfig without mains rejection, so tests do not depend on the host timezone
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MainsHz = 0
	return cfg
}

// approx reports whether a and b are within tol
func approx(a, b, tol float64) bool {
	d := a - b
	return d <= tol && d >= -tol
}
