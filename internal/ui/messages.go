package ui

import (
	"time"

	"github.com/linuxmatters/vocalrange/internal/practice"
)

// StateMsg carries a practice state snapshot from the engine
type StateMsg struct {
	State practice.State
}

// actionDoneMsg reports that a wizard action returned
type actionDoneMsg struct {
	action string
	err    error
}

// tickMsg is sent for spinner/timer animation
type tickMsg time.Time
