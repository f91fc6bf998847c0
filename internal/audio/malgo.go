package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

// Ring buffer length: several frames so Read never races a partially written frame
const ringSeconds = 2

// MalgoMicrophone captures mono float32 audio from the default input device via miniaudio
type MalgoMicrophone struct {
	SampleRate uint32
	Logger     logrus.FieldLogger
}

// NewMalgoMicrophone creates a capture source at the engine sample rate
func NewMalgoMicrophone(log logrus.FieldLogger) *MalgoMicrophone {
	return &MalgoMicrophone{
		SampleRate: SampleRate,
		Logger:     log,
	}
}

// Open initialises a miniaudio context and starts a capture device
func (m *MalgoMicrophone) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := m.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.WithField("component", "malgo").Debug(message)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init audio context: %v", ErrDeviceUnavailable, err)
	}

	devices, err := mctx.Devices(malgo.Capture)
	if err != nil || len(devices) == 0 {
		_ = mctx.Uninit()
		mctx.Free()
		if err != nil {
			return nil, fmt.Errorf("%w: enumerate capture devices: %v", ErrDeviceUnavailable, err)
		}
		return nil, ErrDeviceUnavailable
	}

	stream := &malgoStream{
		ctx:  mctx,
		rate: float64(m.SampleRate),
		ring: make([]float32, int(m.SampleRate)*ringSeconds),
	}

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.Capture.Format = malgo.FormatF32
	config.Capture.Channels = 1
	config.SampleRate = m.SampleRate
	config.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, config, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			stream.write(input)
		},
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("%w: init capture device: %v", ErrPermissionDenied, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("%w: start capture device: %v", ErrPermissionDenied, err)
	}

	stream.device = device
	log.WithFields(logrus.Fields{
		"device":      devices[0].Name(),
		"sample_rate": m.SampleRate,
	}).Info("capture started")
	return stream, nil
}

// malgoStream is a running capture device feeding a ring buffer
type malgoStream struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	rate   float64

	mu     sync.Mutex
	ring   []float32
	pos    int
	filled int
	closed bool
}

// write appends little-endian float32 samples from the device callback
func (s *malgoStream) write(input []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for i := 0; i+4 <= len(input); i += 4 {
		s.ring[s.pos] = math.Float32frombits(binary.LittleEndian.Uint32(input[i:]))
		s.pos = (s.pos + 1) % len(s.ring)
		if s.filled < len(s.ring) {
			s.filled++
		}
	}
}

// Read copies the latest len(dst) samples in chronological order
func (s *malgoStream) Read(dst []float32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(dst)
	if n > s.filled {
		n = s.filled
	}
	start := (s.pos - n + len(s.ring)) % len(s.ring)
	for i := 0; i < n; i++ {
		dst[i] = s.ring[(start+i)%len(s.ring)]
	}
	return n
}

func (s *malgoStream) SampleRate() float64 {
	return s.rate
}

// Close stops the device and frees the miniaudio context. Idempotent.
func (s *malgoStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var firstErr error
	if s.device != nil {
		if err := s.device.Stop(); err != nil {
			firstErr = err
		}
		s.device.Uninit()
	}
	if err := s.ctx.Uninit(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.ctx.Free()
	return firstErr
}
