package pitch

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// MPM defaults
const (
	DefaultCutoff  = 0.93 // key maximum acceptance relative to the highest peak
	DefaultMinFreq = 40.0
	DefaultMaxFreq = 1500.0
)

// MPM is a McLeod Pitch Method detector.
// It computes the normalised square difference function (NSDF) of a buffer via an
// FFT autocorrelation and picks the first key maximum above Cutoff × highest peak.
// The interpolated NSDF value at that peak is reported as clarity.
type MPM struct {
	Cutoff  float64
	MinFreq float64
	MaxFreq float64

	mu   sync.Mutex
	size int
	fft  *fourier.FFT
	pad  []float64
	coef []complex128
	acf  []float64
	nsdf []float64
}

// NewMPM creates a detector with default parameters
func NewMPM() *MPM {
	return &MPM{
		Cutoff:  DefaultCutoff,
		MinFreq: DefaultMinFreq,
		MaxFreq: DefaultMaxFreq,
	}
}

// FindPitch returns the fundamental frequency in Hz and the clarity of the estimate.
// Returns (0, 0) for silent or aperiodic input.
func (d *MPM) FindPitch(samples []float32, sampleRate float64) (float64, float64) {
	n := len(samples)
	if n < 4 || sampleRate <= 0 {
		return 0, 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.prepare(n)

	nsdf := d.computeNSDF(samples)
	if nsdf == nil {
		return 0, 0
	}

	// Restrict lag search to the configured frequency band
	maxLag := n - 1
	if d.MinFreq > 0 {
		if l := int(math.Ceil(sampleRate / d.MinFreq)); l < maxLag {
			maxLag = l
		}
	}
	minLag := 1
	if d.MaxFreq > 0 {
		if l := int(math.Floor(sampleRate / d.MaxFreq)); l > minLag {
			minLag = l
		}
	}

	peaks := keyMaxima(nsdf, maxLag)
	if len(peaks) == 0 {
		return 0, 0
	}

	highest := 0.0
	for _, p := range peaks {
		if nsdf[p] > highest {
			highest = nsdf[p]
		}
	}
	threshold := d.Cutoff * highest

	for _, p := range peaks {
		if p < minLag || nsdf[p] < threshold {
			continue
		}
		lag, value := parabolicPeak(nsdf, p)
		if lag <= 0 {
			continue
		}
		if value > 1 {
			value = 1
		}
		return sampleRate / lag, value
	}
	return 0, 0
}

// prepare (re)allocates FFT plan and scratch buffers for buffers of length n
func (d *MPM) prepare(n int) {
	if d.size == n && d.fft != nil {
		return
	}
	padded := 2 * n
	d.size = n
	d.fft = fourier.NewFFT(padded)
	d.pad = make([]float64, padded)
	d.coef = make([]complex128, padded/2+1)
	d.acf = make([]float64, padded)
	d.nsdf = make([]float64, n)
}

// computeNSDF fills d.nsdf from samples. Returns nil for silence.
func (d *MPM) computeNSDF(samples []float32) []float64 {
	n := len(samples)
	energy := 0.0
	for i, s := range samples {
		v := float64(s)
		d.pad[i] = v
		energy += v * v
	}
	for i := n; i < len(d.pad); i++ {
		d.pad[i] = 0
	}
	if energy == 0 {
		return nil
	}

	// Autocorrelation via power spectrum (Wiener-Khinchin), zero padded to avoid wrap
	d.coef = d.fft.Coefficients(d.coef, d.pad)
	for i, c := range d.coef {
		re, im := real(c), imag(c)
		d.coef[i] = complex(re*re+im*im, 0)
	}
	d.acf = d.fft.Sequence(d.acf, d.coef)
	scale := 1.0 / float64(len(d.pad))

	// m(τ) = Σ x[j]² + x[j+τ]², updated incrementally
	m := 2 * energy
	for tau := 0; tau < n; tau++ {
		if tau > 0 {
			a := float64(samples[tau-1])
			b := float64(samples[n-tau])
			m -= a*a + b*b
		}
		if m <= 0 {
			d.nsdf[tau] = 0
			continue
		}
		d.nsdf[tau] = 2 * d.acf[tau] * scale / m
	}
	return d.nsdf
}

// keyMaxima returns the index of the highest point in each positive lobe of nsdf,
// skipping the initial lobe around lag zero.
func keyMaxima(nsdf []float64, maxLag int) []int {
	if maxLag >= len(nsdf) {
		maxLag = len(nsdf) - 1
	}

	pos := 0
	for pos < maxLag && nsdf[pos] > 0 {
		pos++
	}

	var peaks []int
	for pos < maxLag {
		for pos < maxLag && nsdf[pos] <= 0 {
			pos++
		}
		best := -1
		for pos < maxLag && nsdf[pos] > 0 {
			if best < 0 || nsdf[pos] > nsdf[best] {
				best = pos
			}
			pos++
		}
		if best > 0 {
			peaks = append(peaks, best)
		}
	}
	return peaks
}

// parabolicPeak refines a peak position and height using its two neighbours
func parabolicPeak(y []float64, i int) (float64, float64) {
	if i <= 0 || i >= len(y)-1 {
		return float64(i), y[i]
	}
	a, b, c := y[i-1], y[i], y[i+1]
	denom := a - 2*b + c
	if denom == 0 {
		return float64(i), b
	}
	shift := 0.5 * (a - c) / denom
	return float64(i) + shift, b - 0.25*(a-c)*shift
}
