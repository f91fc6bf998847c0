// Package pitch provides pitch frames, note naming and fundamental frequency detection
package pitch

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Reference tuning
const (
	A4Hz      = 440.0
	A4Midi    = 69
	MiddleCHz = 261.6255653005986 // C4
)

// SemitoneRatio is the frequency multiplier between adjacent piano keys
var SemitoneRatio = math.Pow(2, 1.0/12.0)

// Frame is one analysed audio buffer
type Frame struct {
	Pitch   float64 // Detected F0 in Hz, 0 if undetected
	Clarity float64 // Detector confidence, 0.0 to 1.0
	RMS     float64 // Root-mean-square amplitude of the buffer
}

// Chromatic note names, sharps only
var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Semitone index within an octave for each natural note
var naturalIndex = map[byte]int{
	'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
}

// Cents returns the pitch difference between f and ref in cents.
// Returns NaN if either frequency is not positive.
func Cents(f, ref float64) float64 {
	if f <= 0 || ref <= 0 {
		return math.NaN()
	}
	return 1200 * math.Log2(f/ref)
}

// Transpose shifts a frequency by a number of semitones
func Transpose(f float64, semitones float64) float64 {
	return f * math.Pow(2, semitones/12.0)
}

// FrequencyToMidi returns the fractional MIDI note number for a frequency
func FrequencyToMidi(f float64) float64 {
	return float64(A4Midi) + 12*math.Log2(f/A4Hz)
}

// MidiToFrequency returns the frequency of a (possibly fractional) MIDI note number
func MidiToFrequency(midi float64) float64 {
	return A4Hz * math.Pow(2, (midi-float64(A4Midi))/12.0)
}

// FrequencyToNoteName returns the nearest equal-tempered note name, e.g. "A4" or "C#5".
// Returns "--" for non-positive frequencies.
func FrequencyToNoteName(f float64) string {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return "--"
	}
	midi := int(math.Round(FrequencyToMidi(f)))
	octave := midi/12 - 1
	idx := midi % 12
	if idx < 0 {
		idx += 12
		octave--
	}
	return noteNames[idx] + strconv.Itoa(octave)
}

// NoteNameToFrequency parses a note name such as "C4", "F#3" or "Bb2"
// and returns its equal-tempered frequency.
func NoteNameToFrequency(name string) (float64, error) {
	s := strings.TrimSpace(name)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid note name %q", name)
	}

	base, ok := naturalIndex[strings.ToUpper(s[:1])[0]]
	if !ok {
		return 0, fmt.Errorf("invalid note letter in %q", name)
	}
	rest := s[1:]

	// Accidentals: any run of '#' or 'b'
	for len(rest) > 0 && (rest[0] == '#' || rest[0] == 'b') {
		if rest[0] == '#' {
			base++
		} else {
			base--
		}
		rest = rest[1:]
	}

	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("invalid octave in %q: %w", name, err)
	}

	midi := (octave+1)*12 + base
	return MidiToFrequency(float64(midi)), nil
}
