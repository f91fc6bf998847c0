package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linuxmatters/vocalrange/internal/pitch"
	"github.com/sirupsen/logrus"
)

// SessionOptions wires a Session to its collaborators
type SessionOptions struct {
	Microphone Microphone
	Player     TonePlayer
	Detector   Detector
	Ticks      TickSource
	Clock      Clock
	Logger     logrus.FieldLogger
	BufferSize int // samples per analysed frame (default BufferSize)
}

// Session owns one microphone stream, the analyser graph and the sampling loop.
// At most one stream and one loop are live at a time.
type Session struct {
	mic        Microphone
	player     TonePlayer
	detector   Detector
	ticks      TickSource
	clock      Clock
	log        logrus.FieldLogger
	bufferSize int

	mu         sync.Mutex
	stream     Stream
	sampler    *Sampler
	cancelTick func()
	ctx        context.Context
	cancel     context.CancelFunc
	onFrame    FrameFunc
	playbacks  map[*Playback]struct{}
}

// NewSession creates a closed session
func NewSession(opts SessionOptions) *Session {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		opts.Logger = l
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = BufferSize
	}
	return &Session{
		mic:        opts.Microphone,
		player:     opts.Player,
		detector:   opts.Detector,
		ticks:      opts.Ticks,
		clock:      opts.Clock,
		log:        opts.Logger.WithField("component", "audio"),
		bufferSize: opts.BufferSize,
		playbacks:  make(map[*Playback]struct{}),
	}
}

// OnFrame sets the listener receiving every sampled frame. Survives reopening.
func (s *Session) OnFrame(fn FrameFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrame = fn
	if s.sampler != nil {
		s.sampler.OnFrame(fn)
	}
}

// Open acquires the microphone, builds the analyser and starts the sampling loop.
// An already open session is closed first so streams never leak.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		s.log.Debug("reopening session, releasing previous stream")
		if err := s.closeLocked(); err != nil {
			s.log.WithError(err).Warn("closing previous stream failed")
		}
	}

	stream, err := s.mic.Open(ctx)
	if err != nil {
		s.log.WithError(err).Warn("microphone open failed")
		return fmt.Errorf("failed to open microphone: %w", err)
	}

	analyser := NewAnalyser(stream, s.bufferSize)
	sampler := NewSampler(analyser, s.detector)
	sampler.OnFrame(s.onFrame)

	s.stream = stream
	s.sampler = sampler
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cancelTick = s.ticks.OnTick(sampler.Tick)

	s.log.WithFields(logrus.Fields{
		"sample_rate": stream.SampleRate(),
		"buffer_size": s.bufferSize,
	}).Info("audio session opened")
	return nil
}

// IsOpen reports whether a stream is live
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// Close stops the sampling loop, cancels pending playbacks and releases the stream.
// Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.stream == nil {
		return nil
	}

	if s.cancelTick != nil {
		s.cancelTick()
		s.cancelTick = nil
	}
	s.sampler.stop()
	s.cancel()
	for pb := range s.playbacks {
		pb.cancel()
	}
	s.playbacks = make(map[*Playback]struct{})
	if s.player != nil {
		s.player.Stop()
	}

	err := s.stream.Close()
	s.stream = nil
	s.sampler = nil
	s.log.Info("audio session closed")
	if err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	return nil
}

// FrameDuration returns the audio time covered by one frame
func (s *Session) FrameDuration() time.Duration {
	rate := float64(SampleRate)
	s.mu.Lock()
	if s.stream != nil {
		rate = s.stream.SampleRate()
	}
	s.mu.Unlock()
	return time.Duration(float64(time.Second) * float64(s.bufferSize) / rate)
}

// Clock returns the session clock
func (s *Session) Clock() Clock {
	return s.clock
}

// Playback is a scheduled tone's completion future
type Playback struct {
	clock   Clock
	until   time.Time
	session context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	release func()
}

// Wait blocks until the tone's duration has elapsed. Returns ErrSessionClosed if the
// session closes first, nil if the playback itself was cancelled.
func (p *Playback) Wait(ctx context.Context) error {
	defer p.release()

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	err := p.clock.Sleep(waitCtx, p.until.Sub(p.clock.Now()))
	switch {
	case p.session.Err() != nil:
		return ErrSessionClosed
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil && p.ctx.Err() == nil:
		return err
	}
	return nil
}

// Cancel ends the wait early
func (p *Playback) Cancel() {
	p.cancel()
}

// Done is closed when the playback is cancelled or its session closes
func (p *Playback) Done() <-chan struct{} {
	return p.ctx.Done()
}

// Play schedules a tone and returns immediately. A non-positive freq schedules silence.
func (s *Session) Play(freq float64, dur time.Duration, sampled bool, gain float64) (*Playback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return nil, ErrSessionClosed
	}

	if freq > 0 && s.player != nil {
		err := s.player.PlayNote(freq, 0, NoteOptions{
			Duration: dur,
			Gain:     gain,
			Sampled:  sampled,
		})
		if err != nil {
			s.log.WithError(err).WithField("freq", freq).Warn("tone playback failed")
			return nil, fmt.Errorf("failed to play %.1f Hz: %w", freq, err)
		}
	}

	ctx, cancel := context.WithCancel(s.ctx)
	pb := &Playback{
		clock:   s.clock,
		until:   s.clock.Now().Add(dur),
		session: s.ctx,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.playbacks[pb] = struct{}{}
	pb.release = func() {
		cancel()
		s.mu.Lock()
		delete(s.playbacks, pb)
		s.mu.Unlock()
	}
	return pb, nil
}

// PlayTone plays a tone and resolves after dur
func (s *Session) PlayTone(ctx context.Context, freq float64, dur time.Duration, sampled bool, gain float64) error {
	pb, err := s.Play(freq, dur, sampled, gain)
	if err != nil {
		return err
	}
	return pb.Wait(ctx)
}

// MeasureRMS averages frame RMS over d. Not cancelled by Close; always resolves at the deadline.
func (s *Session) MeasureRMS(ctx context.Context, d time.Duration) (float64, error) {
	var (
		mu  sync.Mutex
		sum float64
		n   int
	)
	err := s.measure(ctx, d, func(f pitch.Frame, _ []float32) {
		mu.Lock()
		sum += f.RMS
		n++
		mu.Unlock()
	})
	if err != nil {
		return 0, err
	}

	mu.Lock()
	defer mu.Unlock()
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}

// MeasureFreqDB averages the level (dBFS) of the spectrum bin at freq over d
func (s *Session) MeasureFreqDB(ctx context.Context, freq float64, d time.Duration) (float64, error) {
	s.mu.Lock()
	sampler := s.sampler
	s.mu.Unlock()
	if sampler == nil {
		return minDB, ErrSessionClosed
	}

	var (
		mu  sync.Mutex
		sum float64
		n   int
	)
	err := s.measure(ctx, d, func(_ pitch.Frame, samples []float32) {
		db := sampler.analyser.BinDB(samples, freq)
		mu.Lock()
		sum += db
		n++
		mu.Unlock()
	})
	if err != nil {
		return minDB, err
	}

	mu.Lock()
	defer mu.Unlock()
	if n == 0 {
		return minDB, nil
	}
	return sum / float64(n), nil
}

// measure taps the sampler for d
func (s *Session) measure(ctx context.Context, d time.Duration, tap tapFunc) error {
	s.mu.Lock()
	sampler := s.sampler
	s.mu.Unlock()
	if sampler == nil {
		return ErrSessionClosed
	}

	remove := sampler.addTap(tap)
	defer remove()

	if err := s.clock.Sleep(ctx, d); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// StartCollecting begins buffering frames for the current beat
func (s *Session) StartCollecting() {
	s.mu.Lock()
	sampler := s.sampler
	s.mu.Unlock()
	if sampler != nil {
		sampler.StartCollecting()
	}
}

// StopCollecting ends the current beat and returns its frames
func (s *Session) StopCollecting() []pitch.Frame {
	s.mu.Lock()
	sampler := s.sampler
	s.mu.Unlock()
	if sampler == nil {
		return nil
	}
	return sampler.StopCollecting()
}

// CurrentPitch returns the smoothed display pitch (0 = no pitch)
func (s *Session) CurrentPitch() float64 {
	s.mu.Lock()
	sampler := s.sampler
	s.mu.Unlock()
	if sampler == nil {
		return 0
	}
	return sampler.CurrentPitch()
}
