package practice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/linuxmatters/vocalrange/internal/audio"
	"github.com/linuxmatters/vocalrange/internal/audio/audiotest"
	"github.com/linuxmatters/vocalrange/internal/pitch"
)

// Calibrating here seeds rootIndex -2, so the five-note cycle tops out on D4
var aSharp3 = pitch.Transpose(pitch.MiddleCHz, -2)

func TestMachinePermissionErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"denied", fmt.Errorf("device refused: %w", audio.ErrPermissionDenied), "denied"},
		{"no device", audio.ErrDeviceUnavailable, "No microphone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, testConfig())
			r.mic.Err = tt.err

			err := r.machine.RequestPermission(context.Background())
			if !errors.Is(err, tt.err) {
				t.Fatalf("RequestPermission err = %v, want %v", err, tt.err)
			}
			s := r.machine.State()
			if s.Step != StepPermission {
				t.Errorf("step = %s, want %s", s.Step, StepPermission)
			}
			if !strings.Contains(s.Message, tt.message) {
				t.Errorf("message %q does not mention %q", s.Message, tt.message)
			}
			if s.Busy {
				t.Error("machine still busy after failed action")
			}

			// explicit retry succeeds once the device is available
			r.mic.Err = nil
			if err := r.machine.RequestPermission(context.Background()); err != nil {
				t.Fatalf("retry: %v", err)
			}
			if got := r.machine.State().Step; got != StepHeadphone {
				t.Errorf("step after retry = %s, want %s", got, StepHeadphone)
			}
		})
	}
}

func TestMachineInvalidTransitions(t *testing.T) {
	r := newRig(t, testConfig())
	ctx := context.Background()

	actions := map[string]func() error{
		"headphone check": func() error { return r.machine.HandleHeadphoneCheck(ctx) },
		"continue":        r.machine.HandleHeadphoneContinue,
		"calibrate":       func() error { return r.machine.HandleCalibrationStart(ctx) },
		"demo":            func() error { return r.machine.HandleDemoStart(ctx) },
		"practice":        func() error { return r.machine.HandlePracticeStart(ctx) },
		"retry ascend":    func() error { return r.machine.HandleRetryAscend(ctx) },
		"descend":         func() error { return r.machine.HandleStartDescending(ctx) },
		"retry descend":   func() error { return r.machine.HandleRetryDescend(ctx) },
		"finish":          r.machine.HandleFinishPractice,
	}
	for name, action := range actions {
		if err := action(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s at permission step: err = %v, want ErrInvalidTransition", name, err)
		}
	}

	if err := r.machine.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.machine.RequestPermission(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("after Close err = %v, want ErrClosed", err)
	}
}

func TestMachineHeadphoneLeak(t *testing.T) {
	cfg := testConfig()
	r := newRig(t, cfg)
	ctx := context.Background()

	// the probe tone bleeds into the microphone
	r.player.OnPlay = func(n audiotest.Note) {
		if n.Freq == cfg.HeadphoneToneHz {
			r.mic.SetVoice(audiotest.Voice{Pitch: n.Freq, RMS: 0.05})
		}
	}

	if err := r.machine.RequestPermission(ctx); err != nil {
		t.Fatal(err)
	}
	r.mic.SetVoice(roomNoise)
	if err := r.machine.HandleHeadphoneCheck(ctx); err != nil {
		t.Fatalf("HandleHeadphoneCheck: %v", err)
	}

	s := r.machine.State()
	if s.Step != StepHeadphoneFail {
		t.Fatalf("step = %s, want %s", s.Step, StepHeadphoneFail)
	}
	sum := r.machine.Summary()
	if sum.HeadphonePassed || sum.HeadphoneLeakDB <= cfg.HeadphoneLeakDB {
		t.Errorf("summary = %+v, want a failed check with leak", sum)
	}
	if !approx(sum.BaselineRMS, 0.01, 1e-4) {
		t.Errorf("baseline = %v, want 0.01", sum.BaselineRMS)
	}

	// advisory: the user may carry on
	if err := r.machine.HandleHeadphoneContinue(); err != nil {
		t.Fatalf("HandleHeadphoneContinue: %v", err)
	}
	if got := r.machine.State().Step; got != StepCalibration {
		t.Errorf("step = %s, want %s", got, StepCalibration)
	}
}

func TestMachineCalibration(t *testing.T) {
	tests := []struct {
		name string
		hz   float64
		want int
	}{
		{"two below middle C", aSharp3, -2},
		{"slightly sharp rounds", pitch.Transpose(pitch.MiddleCHz, 3.3), 3},
		{"clamped high", 1100, 12},
		{"clamped low", 70, -12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, testConfig())
			r.toSetup(t, tt.hz)

			s := r.machine.State()
			if s.RootIndex != tt.want || s.DescendingIndex != tt.want {
				t.Errorf("root/descending = %d/%d, want %d", s.RootIndex, s.DescendingIndex, tt.want)
			}
			if got := r.machine.Summary().CalibrationHz; !approx(got, tt.hz, 0.01) {
				t.Errorf("CalibrationHz = %v, want %v", got, tt.hz)
			}
		})
	}
}

func TestMachineCalibrationIgnoresHum(t *testing.T) {
	cfg := testConfig()
	cfg.MainsHz = 50
	r := newRig(t, cfg)
	ctx := context.Background()

	if err := r.machine.RequestPermission(ctx); err != nil {
		t.Fatal(err)
	}
	r.mic.SetVoice(roomNoise)
	if err := r.machine.HandleHeadphoneCheck(ctx); err != nil {
		t.Fatal(err)
	}

	r.mic.SetVoice(audiotest.Voice{Pitch: 100, Clarity: 0.95, RMS: 0.05})
	if err := r.machine.HandleCalibrationStart(ctx); err != nil {
		t.Fatal(err)
	}
	s := r.machine.State()
	if s.Step != StepCalibration {
		t.Errorf("step = %s, want %s", s.Step, StepCalibration)
	}
	if !strings.Contains(s.Message, "No steady voice") {
		t.Errorf("message = %q", s.Message)
	}
}

func TestMachineAscendingSuccess(t *testing.T) {
	r := newRig(t, testConfig())
	r.toSetup(t, aSharp3)

	// every note on pitch, the top note at 294 Hz against D4
	r.script(singer(func(i int, hz float64) float64 {
		if i == 2 {
			return 294
		}
		return hz
	}))

	if err := r.machine.HandlePracticeStart(context.Background()); err != nil {
		t.Fatalf("HandlePracticeStart: %v", err)
	}

	s := r.machine.State()
	if s.Step != StepAscending {
		t.Fatalf("step = %s (%s), want %s", s.Step, s.Message, StepAscending)
	}
	if s.RootIndex != -1 {
		t.Errorf("RootIndex = %d, want -1", s.RootIndex)
	}
	if s.HighestHz != 294 {
		t.Errorf("HighestHz = %v, want 294", s.HighestHz)
	}
	if s.Beat != -1 || s.Busy {
		t.Errorf("idle state has beat %d busy %v", s.Beat, s.Busy)
	}

	hist := r.machine.History()
	if len(hist) != 1 {
		t.Fatalf("history has %d cycles, want 1", len(hist))
	}
	out := hist[0]
	if !out.Success || out.Stable < testConfig().StableWindow {
		t.Errorf("outcome = %+v", out)
	}
	if got := pitch.FrequencyToNoteName(out.TargetHz); got != "D4" {
		t.Errorf("target = %s, want D4", got)
	}

	// each beat published in order, one tone per sounding beat
	var beats []int
	for _, st := range r.seen() {
		if st.Beat >= 0 && (len(beats) == 0 || beats[len(beats)-1] != st.Beat) {
			beats = append(beats, st.Beat)
		}
	}
	if fmt.Sprint(beats) != "[0 1 2 3 4 5 6 7]" {
		t.Errorf("beats published = %v", beats)
	}

	if r.clock.PendingTimers() != 1 {
		t.Errorf("pending timers = %d, want the next cycle scheduled", r.clock.PendingTimers())
	}
}

func TestMachineAscendingTargetOnly(t *testing.T) {
	r := newRig(t, testConfig())
	r.toSetup(t, aSharp3)

	// silent except for the top note, held at 294 Hz
	r.script(func(s State) audiotest.Voice {
		if s.BeatType == BeatNote && s.Beat-2 == 2 {
			return audiotest.Voice{Pitch: 294, Clarity: 0.8, RMS: 0.05}
		}
		return roomNoise
	})

	if err := r.machine.HandlePracticeStart(context.Background()); err != nil {
		t.Fatalf("HandlePracticeStart: %v", err)
	}

	s := r.machine.State()
	if s.Step != StepAscending {
		t.Fatalf("step = %s (%s), want %s", s.Step, s.Message, StepAscending)
	}
	if s.RootIndex != -1 {
		t.Errorf("RootIndex = %d, want -1", s.RootIndex)
	}
	out := r.machine.History()[0]
	if !out.Success || out.Failed != nil || out.Stable < testConfig().StableWindow {
		t.Errorf("outcome = %+v", out)
	}
}

func TestMachineAutoAdvance(t *testing.T) {
	r := newRig(t, testConfig())
	r.toSetup(t, aSharp3)
	r.script(singer(nil))

	if err := r.machine.HandlePracticeStart(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ran := r.clock.RunTimers(); ran != 1 {
		t.Fatalf("RunTimers ran %d, want 1", ran)
	}

	s := r.machine.State()
	if s.RootIndex != 0 || len(r.machine.History()) != 2 {
		t.Errorf("after scheduled cycle root = %d, cycles = %d", s.RootIndex, len(r.machine.History()))
	}

	// closing cancels the next scheduled cycle
	notes := len(r.player.Notes())
	if err := r.machine.Close(); err != nil {
		t.Fatal(err)
	}
	if ran := r.clock.RunTimers(); ran != 0 {
		t.Errorf("RunTimers after Close ran %d", ran)
	}
	if len(r.player.Notes()) != notes {
		t.Error("tones played after Close")
	}
	if r.mic.LiveStreams() != 0 {
		t.Errorf("live streams after Close = %d", r.mic.LiveStreams())
	}
}

func TestMachineStaleScheduledCycle(t *testing.T) {
	r := newRig(t, testConfig())
	r.toSetup(t, aSharp3)
	r.script(singer(nil))

	if err := r.machine.HandlePracticeStart(context.Background()); err != nil {
		t.Fatal(err)
	}
	r.machine.mu.Lock()
	gen := r.machine.gen
	r.machine.mu.Unlock()

	if err := r.machine.Close(); err != nil {
		t.Fatal(err)
	}

	// a timer that already fired when Close ran must do nothing
	notes := len(r.player.Notes())
	r.machine.runScheduled(gen, Ascending)
	if len(r.player.Notes()) != notes || len(r.machine.History()) != 1 {
		t.Error("stale scheduled cycle ran")
	}
}

func TestMachineNoAutoAdvance(t *testing.T) {
	cfg := testConfig()
	cfg.AutoAdvance = false
	r := newRig(t, cfg)
	r.toSetup(t, aSharp3)
	r.script(singer(nil))

	if err := r.machine.HandlePracticeStart(context.Background()); err != nil {
		t.Fatal(err)
	}
	if r.clock.PendingTimers() != 0 {
		t.Errorf("pending timers = %d, want 0", r.clock.PendingTimers())
	}

	// the user continues by hand
	if err := r.machine.HandlePracticeStart(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := r.machine.State().RootIndex; got != 0 {
		t.Errorf("RootIndex = %d, want 0", got)
	}
}

func TestMachineAscendingFailure(t *testing.T) {
	r := newRig(t, testConfig())
	r.toSetup(t, aSharp3)

	// top note an octave flat, so D4 is never held
	r.script(singer(func(i int, hz float64) float64 {
		if i == 2 {
			return hz / 2
		}
		return hz
	}))

	if err := r.machine.HandlePracticeStart(context.Background()); err != nil {
		t.Fatal(err)
	}

	s := r.machine.State()
	if s.Step != StepAscendFail {
		t.Fatalf("step = %s, want %s", s.Step, StepAscendFail)
	}
	if s.RootIndex != -2 {
		t.Errorf("RootIndex = %d, want -2 (unchanged)", s.RootIndex)
	}
	failed := r.machine.History()[0].Failed
	if failed == nil || failed.Index != 2 || failed.Type != FailLow {
		t.Fatalf("failed note = %+v, want {2, low}", failed)
	}
	if !strings.Contains(s.Message, "Note 3 (D4)") {
		t.Errorf("message %q does not name the note", s.Message)
	}
	if r.clock.PendingTimers() != 0 {
		t.Error("failure scheduled a retry")
	}

	// retry the same cycle, sung correctly
	r.script(singer(nil))
	if err := r.machine.HandleRetryAscend(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := r.machine.State(); got.Step != StepAscending || got.RootIndex != -1 {
		t.Errorf("after retry step = %s root = %d", got.Step, got.RootIndex)
	}
}

func TestMachineDescendingAndFinish(t *testing.T) {
	r := newRig(t, testConfig())
	r.toSetup(t, aSharp3)
	r.script(singer(nil))
	ctx := context.Background()

	if err := r.machine.HandlePracticeStart(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.machine.HandleStartDescending(ctx); err != nil {
		t.Fatal(err)
	}

	// seeded four semitones under the highest ascending success (-2)
	wantBase := pitch.Transpose(pitch.MiddleCHz, -6)
	hist := r.machine.History()
	last := hist[len(hist)-1]
	if last.Direction != Descending || !approx(last.BaseHz, wantBase, 1e-6) {
		t.Errorf("descending cycle = %+v, want base %.2f", last, wantBase)
	}

	s := r.machine.State()
	if s.Step != StepDescending || s.DescendingIndex != -7 {
		t.Errorf("step = %s descending index = %d", s.Step, s.DescendingIndex)
	}
	if !approx(s.LowestHz, wantBase, 1e-6) {
		t.Errorf("LowestHz = %v, want %v", s.LowestHz, wantBase)
	}

	if err := r.machine.HandleFinishPractice(); err != nil {
		t.Fatalf("HandleFinishPractice: %v", err)
	}
	s = r.machine.State()
	if s.Step != StepResult {
		t.Errorf("step = %s, want %s", s.Step, StepResult)
	}
	if s.HighestHz <= s.LowestHz || !strings.Contains(s.Message, "Your range") {
		t.Errorf("result = %v..%v %q", s.LowestHz, s.HighestHz, s.Message)
	}
	if r.mic.LiveStreams() != 0 {
		t.Error("microphone still open after finish")
	}
	if r.clock.PendingTimers() != 0 {
		t.Error("timer pending after finish")
	}
}

func TestMachineDescendingSeedWithoutSuccess(t *testing.T) {
	r := newRig(t, testConfig())
	r.toSetup(t, aSharp3)
	ctx := context.Background()

	// nothing sung: ascending fails
	if err := r.machine.HandlePracticeStart(ctx); err != nil {
		t.Fatal(err)
	}
	if got := r.machine.State().Step; got != StepAscendFail {
		t.Fatalf("step = %s", got)
	}
	if failed := r.machine.History()[0].Failed; failed == nil || failed.Type != FailMissing || failed.Index != 0 {
		t.Errorf("failed = %+v, want first note missing", failed)
	}

	if err := r.machine.HandleStartDescending(ctx); err != nil {
		t.Fatal(err)
	}
	s := r.machine.State()
	if s.Step != StepDescendFail {
		t.Errorf("step = %s, want %s", s.Step, StepDescendFail)
	}
	if s.DescendingIndex != -6 {
		t.Errorf("DescendingIndex = %d, want -6", s.DescendingIndex)
	}
}

func TestMachineDemo(t *testing.T) {
	tests := []struct {
		name  string
		voice func(State) audiotest.Voice
		early bool
		msg   string
	}{
		{
			name:  "on time",
			voice: singer(nil),
			msg:   "Nice timing",
		},
		{
			name: "sings through the example",
			voice: func(s State) audiotest.Voice {
				if s.Beat < 0 {
					return roomNoise
				}
				return audiotest.Voice{Pitch: aSharp3, Clarity: 0.8, RMS: 0.05}
			},
			early: true,
			msg:   "too early",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, testConfig())
			r.toSetup(t, aSharp3)
			r.script(tt.voice)

			if err := r.machine.HandleDemoStart(context.Background()); err != nil {
				t.Fatal(err)
			}
			s := r.machine.State()
			if s.Step != StepDemoEnd {
				t.Fatalf("step = %s, want %s", s.Step, StepDemoEnd)
			}
			if !strings.Contains(s.Message, tt.msg) {
				t.Errorf("message %q does not contain %q", s.Message, tt.msg)
			}
			out := r.machine.History()[0]
			if !out.Demo || out.EarlyEntry != tt.early {
				t.Errorf("outcome demo=%v early=%v", out.Demo, out.EarlyEntry)
			}
			if s.RootIndex != -2 {
				t.Errorf("demo moved the root to %d", s.RootIndex)
			}
			if r.clock.PendingTimers() != 0 {
				t.Error("demo scheduled a cycle")
			}
		})
	}
}

func TestMachineTones(t *testing.T) {
	cfg := testConfig()
	r := newRig(t, cfg)
	r.toSetup(t, aSharp3)
	before := len(r.player.Notes())
	r.script(singer(nil))

	if err := r.machine.HandlePracticeStart(context.Background()); err != nil {
		t.Fatal(err)
	}

	notes := r.player.Notes()[before:]
	// example tone plus five guide tones; rests are silent
	if len(notes) != 6 {
		t.Fatalf("played %d tones, want 6", len(notes))
	}
	if notes[0].Opts.Gain != cfg.ToneGain || notes[1].Opts.Gain != cfg.GuideGain {
		t.Errorf("gains = %v, %v", notes[0].Opts.Gain, notes[1].Opts.Gain)
	}
	for _, n := range notes {
		if n.Opts.Duration != cfg.BeatDuration {
			t.Errorf("tone duration = %v, want %v", n.Opts.Duration, cfg.BeatDuration)
		}
	}
	if !approx(notes[3].Freq, pitch.Transpose(aSharp3, 4), 1e-6) {
		t.Errorf("top guide tone = %.2f Hz", notes[3].Freq)
	}
}
