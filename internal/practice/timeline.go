package practice

import "errors"

// Engine errors
var (
	ErrInvalidMode       = errors.New("invalid scale mode")
	ErrInvalidTransition = errors.New("action not allowed in current step")
	ErrBusy              = errors.New("another action is in progress")
	ErrClosed            = errors.New("practice session closed")
)

// BeatStep is one slot of a cycle's timeline
type BeatStep struct {
	Index     int
	Type      BeatType
	Offset    int // semitones from the cycle base, 0 for rests
	NoteIndex int // position in PatternOffsets for pattern notes, -1 otherwise
}

// normalizeBeatStructure applies defaults (1 example, 1 initial rest, 1 final rest)
// and clamps negative counts to zero
func normalizeBeatStructure(bs *BeatStructure) BeatStructure {
	if bs == nil {
		return BeatStructure{ExampleBeats: 1, InitialRests: 1, FinalRests: 1}
	}
	return BeatStructure{
		ExampleBeats: max(0, bs.ExampleBeats),
		InitialRests: max(0, bs.InitialRests),
		FinalRests:   max(0, bs.FinalRests),
	}
}

// BuildBeatTimeline expands a mode into its ordered beats:
// lead-in (prologue, or example beats then initial rests), one note per pattern
// offset, then the final rests.
func BuildBeatTimeline(mode ScaleMode) ([]BeatStep, error) {
	if len(mode.PatternOffsets) == 0 {
		return nil, ErrInvalidMode
	}

	bs := normalizeBeatStructure(mode.BeatStructure)
	var beats []BeatStep
	add := func(t BeatType, offset, noteIndex int) {
		if t == BeatRest {
			offset = 0
		}
		beats = append(beats, BeatStep{
			Index:     len(beats),
			Type:      t,
			Offset:    offset,
			NoteIndex: noteIndex,
		})
	}

	if len(mode.Prologue) > 0 {
		for _, step := range mode.Prologue {
			for i := 0; i < max(1, step.Count); i++ {
				add(step.Type, step.Offset, -1)
			}
		}
	} else {
		for i := 0; i < bs.ExampleBeats; i++ {
			add(BeatExample, 0, -1)
		}
		for i := 0; i < bs.InitialRests; i++ {
			add(BeatRest, 0, -1)
		}
	}

	for i, offset := range mode.PatternOffsets {
		add(BeatNote, offset, i)
	}

	for i := 0; i < bs.FinalRests; i++ {
		add(BeatRest, 0, -1)
	}

	return beats, nil
}
