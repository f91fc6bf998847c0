package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/linuxmatters/vocalrange/internal/pitch"
	"github.com/linuxmatters/vocalrange/internal/practice"
)

// EventType tags saved range records
const EventType = "vocal_range"

// EventRecord is one saved practice result, appended as a JSON line
type EventRecord struct {
	Type        string    `json:"type"`
	SessionID   string    `json:"session_id,omitempty"`
	Mode        string    `json:"mode,omitempty"`
	HighestHz   float64   `json:"highest_hz"`
	LowestHz    float64   `json:"lowest_hz"`
	HighestNote string    `json:"highest_note,omitempty"`
	LowestNote  string    `json:"lowest_note,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// NewEventRecord builds a record from a session summary
func NewEventRecord(sessionID string, s practice.Summary, at time.Time) EventRecord {
	rec := EventRecord{
		Type:       EventType,
		SessionID:  sessionID,
		Mode:       s.Mode,
		HighestHz:  s.HighestHz,
		LowestHz:   s.LowestHz,
		RecordedAt: at.UTC(),
	}
	if s.HighestHz > 0 {
		rec.HighestNote = pitch.FrequencyToNoteName(s.HighestHz)
	}
	if s.LowestHz > 0 {
		rec.LowestNote = pitch.FrequencyToNoteName(s.LowestHz)
	}
	return rec
}

// AppendEventRecord appends rec to path as one JSON line, creating the file if needed
func AppendEventRecord(path string, rec EventRecord) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open record file: %w", err)
	}

	if err := json.NewEncoder(f).Encode(rec); err != nil {
		f.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close record file: %w", err)
	}
	return nil
}
