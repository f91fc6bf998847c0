package audio

import (
	"fmt"
	"os"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/generators"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
	"github.com/linuxmatters/vocalrange/internal/pitch"
)

// Playback engine settings
const (
	playerRate       = beep.SampleRate(SampleRate)
	playerBufferTime = 30 * time.Millisecond
	fadeTime         = 10 * time.Millisecond
	resampleQuality  = 4
)

// BeepPlayer plays guide tones through the default output device.
// Tones come from a sine oscillator, or from a sampled instrument repitched
// from its recorded root note when one is loaded.
type BeepPlayer struct {
	instrument *beep.Buffer
	rootHz     float64
}

// NewBeepPlayer initialises the speaker
func NewBeepPlayer() (*BeepPlayer, error) {
	if err := speaker.Init(playerRate, playerRate.N(playerBufferTime)); err != nil {
		return nil, fmt.Errorf("failed to initialise speaker: %w", err)
	}
	return &BeepPlayer{}, nil
}

// LoadInstrument decodes a WAV sample recorded at rootNote (e.g. "C4")
func (p *BeepPlayer) LoadInstrument(path, rootNote string) error {
	rootHz, err := pitch.NoteNameToFrequency(rootNote)
	if err != nil {
		return fmt.Errorf("invalid instrument root note: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open instrument sample: %w", err)
	}
	streamer, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to decode instrument sample: %w", err)
	}
	defer streamer.Close()

	// Store at the playback rate so repitching is the only resample at play time
	var src beep.Streamer = streamer
	if format.SampleRate != playerRate {
		src = beep.Resample(resampleQuality, format.SampleRate, playerRate, streamer)
	}
	buf := beep.NewBuffer(beep.Format{SampleRate: playerRate, NumChannels: 2, Precision: 2})
	buf.Append(src)

	p.instrument = buf
	p.rootHz = rootHz
	return nil
}

// PlayNote schedules a tone at freq starting after when
func (p *BeepPlayer) PlayNote(freq float64, when time.Duration, opts NoteOptions) error {
	if freq <= 0 {
		return fmt.Errorf("invalid frequency %.2f Hz", freq)
	}

	var src beep.Streamer
	if opts.Sampled && p.instrument != nil {
		sample := p.instrument.Streamer(0, p.instrument.Len())
		src = beep.ResampleRatio(resampleQuality, freq/p.rootHz, sample)
	} else {
		sine, err := generators.SineTone(playerRate, freq)
		if err != nil {
			return fmt.Errorf("failed to create oscillator: %w", err)
		}
		src = sine
	}

	length := playerRate.N(opts.Duration)
	tone := &envelope{
		Streamer: beep.Take(length, src),
		length:   length,
		fade:     playerRate.N(fadeTime),
	}

	gain := opts.Gain
	if gain <= 0 {
		gain = 1
	}
	var out beep.Streamer = &effects.Gain{Streamer: tone, Gain: gain - 1}

	if when > 0 {
		out = beep.Seq(beep.Silence(playerRate.N(when)), out)
	}
	speaker.Play(out)
	return nil
}

// Stop silences all scheduled tones
func (p *BeepPlayer) Stop() {
	speaker.Clear()
}

// Close releases the output device
func (p *BeepPlayer) Close() error {
	speaker.Clear()
	speaker.Close()
	return nil
}

// envelope applies a linear fade in and out to avoid clicks at tone edges
type envelope struct {
	beep.Streamer
	length int
	fade   int
	pos    int
}

func (e *envelope) Stream(samples [][2]float64) (int, bool) {
	n, ok := e.Streamer.Stream(samples)
	for i := 0; i < n; i++ {
		g := 1.0
		if e.fade > 0 {
			if e.pos < e.fade {
				g = float64(e.pos) / float64(e.fade)
			} else if remaining := e.length - e.pos; remaining < e.fade {
				g = float64(remaining) / float64(e.fade)
			}
		}
		samples[i][0] *= g
		samples[i][1] *= g
		e.pos++
	}
	return n, ok
}
