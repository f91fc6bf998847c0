package audio_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/linuxmatters/vocalrange/internal/audio"
	"github.com/linuxmatters/vocalrange/internal/audio/audiotest"
	"github.com/linuxmatters/vocalrange/internal/pitch"
)

type rig struct {
	mic     *audiotest.Mic
	player  *audiotest.Player
	ticks   *audiotest.Ticks
	clock   *audiotest.Clock
	session *audio.Session
}

func newRig() *rig {
	mic := audiotest.NewMic()
	ticks := audiotest.NewTicks()
	r := &rig{
		mic:    mic,
		player: &audiotest.Player{},
		ticks:  ticks,
		clock:  audiotest.NewClock(ticks),
	}
	r.session = audio.NewSession(audio.SessionOptions{
		Microphone: mic,
		Player:     r.player,
		Detector:   audiotest.Detector{Mic: mic},
		Ticks:      ticks,
		Clock:      r.clock,
	})
	return r
}

func TestSessionOpenErrors(t *testing.T) {
	for _, want := range []error{audio.ErrPermissionDenied, audio.ErrDeviceUnavailable} {
		t.Run(want.Error(), func(t *testing.T) {
			r := newRig()
			r.mic.Err = want
			err := r.session.Open(context.Background())
			if !errors.Is(err, want) {
				t.Fatalf("Open error = %v, want %v", err, want)
			}
			if r.session.IsOpen() {
				t.Error("session open after failed Open")
			}
			if r.ticks.Subscribers() != 0 {
				t.Error("sampling loop registered after failed Open")
			}
		})
	}
}

func TestSessionReopenDoesNotLeak(t *testing.T) {
	r := newRig()
	ctx := context.Background()
	if err := r.session.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.session.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if got := r.mic.LiveStreams(); got != 1 {
		t.Errorf("live streams = %d, want 1", got)
	}
	if got := r.ticks.Subscribers(); got != 1 {
		t.Errorf("live sampling loops = %d, want 1", got)
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	r := newRig()
	if err := r.session.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := r.session.Close(); err != nil {
			t.Fatalf("Close #%d: %v", i+1, err)
		}
	}
	if r.mic.LiveStreams() != 0 {
		t.Error("stream still live after Close")
	}
	if r.ticks.Subscribers() != 0 {
		t.Error("sampling loop still registered after Close")
	}
	if r.player.Stops() != 1 {
		t.Errorf("player stopped %d times, want 1", r.player.Stops())
	}
}

func TestSessionPlayToneWaitsDuration(t *testing.T) {
	r := newRig()
	if err := r.session.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	start := r.clock.Now()
	if err := r.session.PlayTone(context.Background(), 440, 500*time.Millisecond, false, 0.8); err != nil {
		t.Fatalf("PlayTone: %v", err)
	}
	if got := r.clock.Now().Sub(start); got != 500*time.Millisecond {
		t.Errorf("PlayTone resolved after %v, want 500ms", got)
	}

	notes := r.player.Notes()
	if len(notes) != 1 || notes[0].Freq != 440 || notes[0].Opts.Gain != 0.8 {
		t.Errorf("notes = %+v, want one 440 Hz note at gain 0.8", notes)
	}
}

func TestSessionPlaySilenceSkipsPlayer(t *testing.T) {
	r := newRig()
	if err := r.session.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.session.PlayTone(context.Background(), 0, 200*time.Millisecond, false, 1); err != nil {
		t.Fatal(err)
	}
	if n := len(r.player.Notes()); n != 0 {
		t.Errorf("player got %d notes for a rest, want 0", n)
	}
}

func TestSessionPlayErrors(t *testing.T) {
	r := newRig()
	if _, err := r.session.Play(440, time.Second, false, 1); !errors.Is(err, audio.ErrSessionClosed) {
		t.Errorf("Play on closed session: %v, want ErrSessionClosed", err)
	}

	if err := r.session.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("output device gone")
	r.player.Err = boom
	if _, err := r.session.Play(440, time.Second, false, 1); !errors.Is(err, boom) {
		t.Errorf("Play error = %v, want wrapped %v", err, boom)
	}
}

func TestSessionCloseCancelsPlayback(t *testing.T) {
	r := newRig()
	if err := r.session.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	pb, err := r.session.Play(440, time.Second, false, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.session.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-pb.Done():
	default:
		t.Fatal("playback not cancelled by Close")
	}
	if err := pb.Wait(context.Background()); !errors.Is(err, audio.ErrSessionClosed) {
		t.Errorf("Wait after Close = %v, want ErrSessionClosed", err)
	}
}

func TestSessionCollectionAndFrames(t *testing.T) {
	r := newRig()
	var frames int
	r.session.OnFrame(func(pitch.Frame, float64) { frames++ })
	if err := r.session.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	r.mic.SetVoice(audiotest.Voice{Pitch: 294, Clarity: 0.99, RMS: 0.05})
	r.session.StartCollecting()
	if err := r.clock.Sleep(context.Background(), 10*audiotest.FrameDuration); err != nil {
		t.Fatal(err)
	}
	got := r.session.StopCollecting()

	if len(got) != 10 {
		t.Fatalf("collected %d frames, want 10", len(got))
	}
	if frames != 10 {
		t.Errorf("listener saw %d frames, want 10", frames)
	}
	if math.Abs(got[0].RMS-0.05) > 0.001 {
		t.Errorf("frame RMS = %.4f, want 0.05", got[0].RMS)
	}
	if cur := r.session.CurrentPitch(); math.Abs(cur-294) > 0.01 {
		t.Errorf("CurrentPitch = %.2f, want 294", cur)
	}
}

func TestSessionMeasureRMS(t *testing.T) {
	r := newRig()
	if err := r.session.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	r.mic.SetVoice(audiotest.Voice{RMS: 0.01})

	got, err := r.session.MeasureRMS(context.Background(), 800*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-0.01) > 1e-4 {
		t.Errorf("MeasureRMS = %.5f, want 0.01", got)
	}
}

func TestSessionMeasureFreqDB(t *testing.T) {
	r := newRig()
	if err := r.session.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	r.mic.SetVoice(audiotest.Voice{RMS: 0.01})
	quiet, err := r.session.MeasureFreqDB(context.Background(), 1000, 500*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	r.mic.SetVoice(audiotest.Voice{Pitch: 1000, Clarity: 0.99, RMS: 0.05})
	loud, err := r.session.MeasureFreqDB(context.Background(), 1000, 500*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	if loud-quiet < 20 {
		t.Errorf("tone measured %.1f dB vs quiet %.1f dB, want >= 20 dB difference", loud, quiet)
	}
}

func TestSessionMeasureClosed(t *testing.T) {
	r := newRig()
	if _, err := r.session.MeasureRMS(context.Background(), time.Second); !errors.Is(err, audio.ErrSessionClosed) {
		t.Errorf("MeasureRMS on closed session: %v, want ErrSessionClosed", err)
	}
}

func TestFramePeriod(t *testing.T) {
	// 2048 samples at 44.1kHz
	want := 46439909 * time.Nanosecond
	if got := audio.NewFrameTicker().Interval; got != want {
		t.Errorf("ticker interval = %v, want %v", got, want)
	}
	if audiotest.FrameDuration != want {
		t.Errorf("virtual frame = %v, want %v", audiotest.FrameDuration, want)
	}
}
