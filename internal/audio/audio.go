// Package audio owns microphone capture, tone playback and the per-frame pitch sampling loop
package audio

import (
	"context"
	"errors"
	"time"
)

// Capture format used throughout the engine
const (
	SampleRate = 44100
	BufferSize = 2048 // samples analysed per frame (~46ms at 44.1kHz)
)

// Acquisition and lifecycle errors
var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("no audio input device available")
	ErrSessionClosed     = errors.New("audio session closed")
)

// Microphone acquires an input stream
type Microphone interface {
	// Open requests microphone access. Errors wrap ErrPermissionDenied or ErrDeviceUnavailable.
	Open(ctx context.Context) (Stream, error)
}

// Stream is a live microphone stream
type Stream interface {
	// Read copies the most recent len(dst) samples into dst and returns the count copied
	Read(dst []float32) int
	// SampleRate returns the capture rate in Hz
	SampleRate() float64
	// Close stops the stream and releases the device
	Close() error
}

// Detector estimates the fundamental frequency of a buffer
type Detector interface {
	FindPitch(samples []float32, sampleRate float64) (freq float64, clarity float64)
}

// NoteOptions controls a single tone
type NoteOptions struct {
	Duration time.Duration
	Gain     float64 // linear, 1.0 = unity
	Sampled  bool    // use the sampled instrument instead of the oscillator
}

// TonePlayer schedules tones. Playback is fire-and-forget with best-effort timing.
type TonePlayer interface {
	PlayNote(freq float64, when time.Duration, opts NoteOptions) error
	// Stop silences anything still sounding
	Stop()
	Close() error
}

// TickSource delivers the per-frame redraw signal
type TickSource interface {
	// OnTick registers fn to run once per frame until cancel is called
	OnTick(fn func()) (cancel func())
}

// Timer is a pending AfterFunc call
type Timer interface {
	Stop() bool
}

// Clock abstracts wall-clock waits so the engine can run on virtual time in tests
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done
	Sleep(ctx context.Context, d time.Duration) error
	AfterFunc(d time.Duration, fn func()) Timer
}
