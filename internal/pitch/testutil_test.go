package pitch

import "math"

// sineBuffer generates n samples of a sine wave at freq with the given peak amplitude
func sineBuffer(freq, sampleRate, amplitude float64, n int) []float32 {
	buf := make([]float32, n)
	for i := range buf {
		t := float64(i) / sampleRate
		buf[i] = float32(amplitude * math.Sin(2*math.Pi*freq*t))
	}
	return buf
}

// voicedBuffer generates a harmonic-rich tone resembling a sung vowel:
// fundamental plus decaying harmonics.
func voicedBuffer(freq, sampleRate float64, n int) []float32 {
	buf := make([]float32, n)
	for i := range buf {
		t := float64(i) / sampleRate
		v := 0.0
		for h := 1; h <= 5; h++ {
			v += (0.5 / float64(h)) * math.Sin(2*math.Pi*freq*float64(h)*t)
		}
		buf[i] = float32(v)
	}
	return buf
}
