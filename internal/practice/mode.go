package practice

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// BeatType classifies a beat in the exercise timeline
type BeatType string

const (
	BeatExample BeatType = "example" // demonstration tone, user listens
	BeatRest    BeatType = "rest"    // silent breath
	BeatNote    BeatType = "note"    // user sings
)

// BeatStructure sets the leading and trailing beats around the pattern
type BeatStructure struct {
	ExampleBeats int `json:"exampleBeats"`
	InitialRests int `json:"initialRests"`
	FinalRests   int `json:"finalRests"`
}

// PrologueStep replaces the example/rest lead-in with explicit beats
type PrologueStep struct {
	Type   BeatType `json:"type"`
	Offset int      `json:"offset"`
	Count  int      `json:"count"`
}

// ScaleMode describes one exercise
type ScaleMode struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	PatternOffsets  []int          `json:"patternOffsets"` // semitones from the cycle base
	BeatStructure   *BeatStructure `json:"beatStructure,omitempty"`
	Prologue        []PrologueStep `json:"prologue,omitempty"`
	TransposeStep   int            `json:"transposeStep"`
	TargetNoteIndex *int           `json:"targetNoteIndex,omitempty"`
}

// Step returns the semitones a successful cycle moves the base by (at least 1)
func (m ScaleMode) Step() int {
	if m.TransposeStep > 0 {
		return m.TransposeStep
	}
	return 1
}

func intPtr(i int) *int { return &i }

// DefaultModes returns the built-in exercises
func DefaultModes() []ScaleMode {
	return []ScaleMode{
		{
			ID:             "five-note",
			Name:           "Five-note scale",
			PatternOffsets: []int{0, 2, 4, 2, 0},
			TransposeStep:  1,
		},
		{
			ID:             "triad",
			Name:           "Major triad",
			PatternOffsets: []int{0, 4, 7, 4, 0},
			TransposeStep:  1,
		},
		{
			ID:             "fifth-siren",
			Name:           "Fifth siren",
			PatternOffsets: []int{0, 7, 0},
			BeatStructure:  &BeatStructure{ExampleBeats: 1, InitialRests: 2, FinalRests: 1},
			TransposeStep:  1,
		},
		{
			ID:             "call-response",
			Name:           "Call and response",
			PatternOffsets: []int{0, 2, 4},
			Prologue: []PrologueStep{
				{Type: BeatExample, Offset: 0, Count: 1},
				{Type: BeatExample, Offset: 2, Count: 1},
				{Type: BeatExample, Offset: 4, Count: 1},
				{Type: BeatRest, Count: 1},
			},
			TransposeStep:   1,
			TargetNoteIndex: intPtr(2),
		},
	}
}

// FindMode returns the mode with the given ID
func FindMode(modes []ScaleMode, id string) (ScaleMode, error) {
	for _, m := range modes {
		if m.ID == id {
			return m, nil
		}
	}
	return ScaleMode{}, fmt.Errorf("unknown mode %q", id)
}

// DecodeModes parses a JSON array of modes and validates each one
func DecodeModes(r io.Reader) ([]ScaleMode, error) {
	var modes []ScaleMode
	if err := json.NewDecoder(r).Decode(&modes); err != nil {
		return nil, fmt.Errorf("failed to decode modes: %w", err)
	}
	for _, m := range modes {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	return modes, nil
}

// LoadModes reads custom modes from a JSON file
func LoadModes(path string) ([]ScaleMode, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open modes file: %w", err)
	}
	defer f.Close()
	return DecodeModes(f)
}

// Validate checks the mode invariants
func (m ScaleMode) Validate() error {
	if len(m.PatternOffsets) == 0 {
		return fmt.Errorf("%w: mode %q has no pattern offsets", ErrInvalidMode, m.ID)
	}
	for _, p := range m.Prologue {
		switch p.Type {
		case BeatExample, BeatRest, BeatNote:
		default:
			return fmt.Errorf("%w: mode %q has prologue beat type %q", ErrInvalidMode, m.ID, p.Type)
		}
	}
	return nil
}
