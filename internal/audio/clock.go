package audio

import (
	"context"
	"sync"
	"time"
)

// SystemClock is the real-time Clock
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep waits for d or until ctx is cancelled
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// AfterFunc runs fn on its own goroutine after d
func (SystemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// FrameTicker is a TickSource firing at a fixed interval on a dedicated goroutine.
// Each registered callback runs sequentially, one iteration per tick; a slow
// callback delays the next tick rather than overlapping it.
type FrameTicker struct {
	Interval time.Duration

	mu     sync.Mutex
	nextID int
	subs   map[int]func()
	stop   chan struct{}
}

// NewFrameTicker creates a ticker at the capture buffer period
func NewFrameTicker() *FrameTicker {
	return &FrameTicker{
		Interval: time.Second * BufferSize / SampleRate,
		subs:     make(map[int]func()),
	}
}

// OnTick registers fn. The ticker goroutine starts with the first subscriber
// and exits when the last one cancels.
func (t *FrameTicker) OnTick(fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	t.subs[id] = fn

	if t.stop == nil {
		t.stop = make(chan struct{})
		go t.run(t.stop)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subs, id)
			if len(t.subs) == 0 && t.stop != nil {
				close(t.stop)
				t.stop = nil
			}
		})
	}
}

func (t *FrameTicker) run(stop chan struct{}) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			fns := make([]func(), 0, len(t.subs))
			for _, fn := range t.subs {
				fns = append(fns, fn)
			}
			t.mu.Unlock()
			for _, fn := range fns {
				fn()
			}
		}
	}
}
