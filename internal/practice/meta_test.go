package practice

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/linuxmatters/vocalrange/internal/pitch"
)

func TestDeriveModePitchMetaContainment(t *testing.T) {
	bases := []float64{82.41, 130.81, 233.08, 440, 659.26}
	for _, mode := range append(DefaultModes(), ScaleMode{ID: "below", PatternOffsets: []int{-5, -3, 0}}) {
		for _, base := range bases {
			for _, dir := range []Direction{Ascending, Descending} {
				meta, err := DeriveModePitchMeta(mode, base, pitch.SemitoneRatio, dir, 0)
				if err != nil {
					t.Fatalf("%s: %v", mode.ID, err)
				}
				lo := base * math.Pow(pitch.SemitoneRatio, float64(meta.MinOffset))
				hi := base * math.Pow(pitch.SemitoneRatio, float64(meta.MaxOffset))
				r := meta.IndicatorRange
				if !(r.Min < lo && lo <= hi && hi < r.Max) {
					t.Errorf("%s base %.2f %s: range %+v does not contain [%.2f, %.2f]", mode.ID, base, dir, r, lo, hi)
				}
			}
		}
	}
}

func TestDeriveModePitchMetaFiveNote(t *testing.T) {
	mode := ScaleMode{PatternOffsets: []int{0, 2, 4, 2, 0}}
	base := pitch.MiddleCHz

	asc, err := DeriveModePitchMeta(mode, base, pitch.SemitoneRatio, Ascending, 120)
	if err != nil {
		t.Fatal(err)
	}
	if asc.MinOffset != 0 || asc.MaxOffset != 4 || asc.TargetOffset != 4 {
		t.Errorf("offsets = %d/%d/%d, want 0/4/4", asc.MinOffset, asc.MaxOffset, asc.TargetOffset)
	}
	if got := pitch.FrequencyToNoteName(asc.TargetFreq); got != "E4" {
		t.Errorf("ascending target = %s, want E4", got)
	}
	if len(asc.LadderNotes) != 3 {
		t.Errorf("ladder has %d notes, want 3 unique offsets", len(asc.LadderNotes))
	}
	if !approx(asc.IndicatorRange.Min, base/math.Pow(2, 0.1), 1e-9) {
		t.Errorf("range min = %.4f", asc.IndicatorRange.Min)
	}

	desc, err := DeriveModePitchMeta(mode, base, pitch.SemitoneRatio, Descending, 120)
	if err != nil {
		t.Fatal(err)
	}
	if desc.TargetOffset != 0 || !approx(desc.TargetFreq, base, 1e-9) {
		t.Errorf("descending target = %d (%.2f Hz), want 0", desc.TargetOffset, desc.TargetFreq)
	}
}

func TestDeriveModePitchMetaLadderIncludesBase(t *testing.T) {
	mode := ScaleMode{PatternOffsets: []int{4, 7, -2}}
	meta, err := DeriveModePitchMeta(mode, 200, 2, Ascending, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{50, 200, 3200, 25600}
	if !reflect.DeepEqual(meta.LadderNotes, want) {
		t.Errorf("ladder = %v, want %v", meta.LadderNotes, want)
	}
	if meta.MinOffset != -2 || meta.MaxOffset != 7 {
		t.Errorf("offsets = %d/%d, want -2/7", meta.MinOffset, meta.MaxOffset)
	}
}

func TestDeriveModePitchMetaTargetIndex(t *testing.T) {
	tests := []struct {
		name  string
		index *int
		dir   Direction
		want  int
	}{
		{"configured", intPtr(1), Descending, 2},
		{"out of range falls back", intPtr(9), Ascending, 4},
		{"negative falls back", intPtr(-1), Descending, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode := ScaleMode{PatternOffsets: []int{0, 2, 4}, TargetNoteIndex: tt.index}
			meta, err := DeriveModePitchMeta(mode, 220, pitch.SemitoneRatio, tt.dir, 0)
			if err != nil {
				t.Fatal(err)
			}
			if meta.TargetOffset != tt.want {
				t.Errorf("TargetOffset = %d, want %d", meta.TargetOffset, tt.want)
			}
		})
	}
}

func TestDeriveModePitchMetaInvalidMode(t *testing.T) {
	if _, err := DeriveModePitchMeta(ScaleMode{}, 220, pitch.SemitoneRatio, Ascending, 0); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("err = %v, want ErrInvalidMode", err)
	}
}

func TestIndicatorRangePosition(t *testing.T) {
	r := IndicatorRange{Min: 100, Max: 400}
	tests := []struct {
		hz   float64
		want float64
	}{
		{100, 0},
		{200, 0.5},
		{400, 1},
		{50, 0},
		{800, 1},
		{0, -1},
	}
	for _, tt := range tests {
		if got := r.Position(tt.hz); !approx(got, tt.want, 1e-9) {
			t.Errorf("Position(%v) = %v, want %v", tt.hz, got, tt.want)
		}
	}
	if got := (IndicatorRange{}).Position(200); got != -1 {
		t.Errorf("empty range Position = %v, want -1", got)
	}
}
