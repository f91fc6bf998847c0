// Package audiotest provides scripted audio collaborators and a virtual clock
// for exercising audio sessions without hardware or wall-clock waits.
package audiotest

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/linuxmatters/vocalrange/internal/audio"
)

// FrameDuration is the virtual time covered by one tick
var FrameDuration = time.Second * audio.BufferSize / audio.SampleRate

// Voice is what the fake microphone currently hears
type Voice struct {
	Pitch   float64 // Hz, 0 = unpitched
	Clarity float64
	RMS     float64
}

// Mic is a scripted microphone. Streams render the current Voice.
type Mic struct {
	Err  error // returned by Open when set
	Rate float64

	mu      sync.Mutex
	voice   Voice
	opens   int
	streams []*Stream
}

// NewMic creates a microphone at the engine sample rate
func NewMic() *Mic {
	return &Mic{Rate: audio.SampleRate}
}

// SetVoice changes what the microphone hears from the next frame on
func (m *Mic) SetVoice(v Voice) {
	m.mu.Lock()
	m.voice = v
	m.mu.Unlock()
}

// Voice returns the current voice
func (m *Mic) Voice() Voice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.voice
}

// Open returns a new stream, or Err
func (m *Mic) Open(ctx context.Context) (audio.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.opens++
	s := &Stream{mic: m}
	m.streams = append(m.streams, s)
	return s, nil
}

// Opens returns how many streams were opened
func (m *Mic) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// LiveStreams returns how many opened streams are not yet closed
func (m *Mic) LiveStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	live := 0
	for _, s := range m.streams {
		if !s.Closed() {
			live++
		}
	}
	return live
}

// Stream renders the mic's voice: a sine of matching RMS when pitched, DC otherwise
type Stream struct {
	mic    *Mic
	mu     sync.Mutex
	closed bool
	closes int
}

func (s *Stream) Read(dst []float32) int {
	v := s.mic.Voice()
	if v.Pitch <= 0 {
		for i := range dst {
			dst[i] = float32(v.RMS)
		}
		return len(dst)
	}
	amp := v.RMS * math.Sqrt2
	for i := range dst {
		t := float64(i) / s.mic.Rate
		dst[i] = float32(amp * math.Sin(2*math.Pi*v.Pitch*t))
	}
	return len(dst)
}

func (s *Stream) SampleRate() float64 {
	return s.mic.Rate
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closes++
	return nil
}

// Closed reports whether Close was called
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Detector reports the mic's voice pitch and clarity verbatim
type Detector struct {
	Mic *Mic
}

func (d Detector) FindPitch(_ []float32, _ float64) (float64, float64) {
	v := d.Mic.Voice()
	return v.Pitch, v.Clarity
}

// Note is a recorded PlayNote call
type Note struct {
	Freq float64
	When time.Duration
	Opts audio.NoteOptions
}

// Player records tones. OnPlay runs synchronously inside PlayNote.
type Player struct {
	Err    error
	OnPlay func(n Note)

	mu    sync.Mutex
	notes []Note
	stops int
}

func (p *Player) PlayNote(freq float64, when time.Duration, opts audio.NoteOptions) error {
	if p.Err != nil {
		return p.Err
	}
	n := Note{Freq: freq, When: when, Opts: opts}
	p.mu.Lock()
	p.notes = append(p.notes, n)
	onPlay := p.OnPlay
	p.mu.Unlock()
	if onPlay != nil {
		onPlay(n)
	}
	return nil
}

func (p *Player) Stop() {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
}

func (p *Player) Close() error { return nil }

// Notes returns every tone played so far
func (p *Player) Notes() []Note {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Note(nil), p.notes...)
}

// Stops returns how many times Stop was called
func (p *Player) Stops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

// Ticks is a TickSource fired by hand (or by Clock)
type Ticks struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func()
	fired  int
}

// NewTicks creates an idle tick source
func NewTicks() *Ticks {
	return &Ticks{subs: make(map[int]func())}
}

func (t *Ticks) OnTick(fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// Fire runs every subscriber once, in registration order
func (t *Ticks) Fire() {
	t.mu.Lock()
	ids := make([]int, 0, len(t.subs))
	for id := range t.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, t.subs[id])
	}
	t.fired++
	t.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Subscribers returns the number of live subscriptions
func (t *Ticks) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Fired returns how many ticks were fired
func (t *Ticks) Fired() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Clock is a virtual clock. Sleep advances time one frame at a time,
// firing a tick per frame; AfterFunc timers only run via RunTimers.
type Clock struct {
	Ticks *Ticks
	Frame time.Duration

	mu     sync.Mutex
	now    time.Time
	carry  time.Duration
	timers []*timer
	slept  time.Duration
}

// NewClock creates a virtual clock driving ticks
func NewClock(ticks *Ticks) *Clock {
	return &Clock{
		Ticks: ticks,
		Frame: FrameDuration,
		now:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Slept returns the total virtual time spent in Sleep
func (c *Clock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept
}

// Sleep advances virtual time by d, firing one tick per elapsed frame
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	c.mu.Lock()
	total := c.carry + d
	frames := int(total / c.Frame)
	c.carry = total % c.Frame
	start := c.now
	c.mu.Unlock()

	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.mu.Lock()
		c.now = c.now.Add(c.Frame)
		c.mu.Unlock()
		if c.Ticks != nil {
			c.Ticks.Fire()
		}
	}

	c.mu.Lock()
	c.now = start.Add(d)
	c.slept += d
	c.mu.Unlock()
	return ctx.Err()
}

type timer struct {
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *timer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *Clock) AfterFunc(d time.Duration, fn func()) audio.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &timer{at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// PendingTimers returns timers neither fired nor stopped
func (c *Clock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// RunTimers jumps time to each pending timer's deadline and runs it synchronously.
// Returns how many ran.
func (c *Clock) RunTimers() int {
	c.mu.Lock()
	pending := make([]*timer, 0, len(c.timers))
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			pending = append(pending, t)
		}
	}
	c.timers = nil
	c.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i].at.Before(pending[j].at) })
	ran := 0
	for _, t := range pending {
		if t.stopped {
			continue
		}
		c.mu.Lock()
		if t.at.After(c.now) {
			c.now = t.at
		}
		c.mu.Unlock()
		t.fired = true
		t.fn()
		ran++
	}
	return ran
}
