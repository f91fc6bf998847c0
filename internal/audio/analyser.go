package audio

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Floor for dB conversions of silent bins
const minDB = -160.0

// Analyser exposes time-domain and frequency-domain views of the latest stream buffer
type Analyser struct {
	stream Stream
	size   int
	win    []float64
	buf    []float32
}

// NewAnalyser wraps a stream, analysing size samples per frame
func NewAnalyser(stream Stream, size int) *Analyser {
	return &Analyser{
		stream: stream,
		size:   size,
		win:    window.Blackman(size),
		buf:    make([]float32, size),
	}
}

// SampleRate returns the stream's sample rate
func (a *Analyser) SampleRate() float64 {
	return a.stream.SampleRate()
}

// Size returns the frame size in samples
func (a *Analyser) Size() int {
	return a.size
}

// TimeDomain reads the latest frame. The returned slice is reused by the next call.
func (a *Analyser) TimeDomain() []float32 {
	n := a.stream.Read(a.buf)
	for i := n; i < len(a.buf); i++ {
		a.buf[i] = 0
	}
	return a.buf
}

// FrequencyDB returns the Blackman-windowed magnitude spectrum of samples in dBFS,
// one value per bin from DC to Nyquist.
func (a *Analyser) FrequencyDB(samples []float32) []float64 {
	n := len(samples)
	if n == 0 {
		return nil
	}
	win := a.win
	if len(win) != n {
		win = window.Blackman(n)
	}

	windowed := make([]float64, n)
	for i, s := range samples {
		windowed[i] = float64(s) * win[i]
	}
	spectrum := fft.FFTReal(windowed)

	out := make([]float64, n/2+1)
	for i := range out {
		mag := cmplx.Abs(spectrum[i]) / float64(n)
		out[i] = amplitudeToDB(mag)
	}
	return out
}

// BinDB returns the strongest level (dBFS) within one bin either side of freq
func (a *Analyser) BinDB(samples []float32, freq float64) float64 {
	spectrum := a.FrequencyDB(samples)
	if len(spectrum) == 0 {
		return minDB
	}
	binHz := a.SampleRate() / float64(len(samples))
	center := int(math.Round(freq / binHz))
	best := minDB
	for i := center - 1; i <= center+1; i++ {
		if i >= 0 && i < len(spectrum) && spectrum[i] > best {
			best = spectrum[i]
		}
	}
	return best
}

// RMS returns the root-mean-square amplitude of samples
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// amplitudeToDB converts a linear amplitude to dBFS, floored at minDB
func amplitudeToDB(amp float64) float64 {
	if amp <= 0 {
		return minDB
	}
	db := 20 * math.Log10(amp)
	if db < minDB {
		return minDB
	}
	return db
}
