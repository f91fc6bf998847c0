// Package ui renders the practice wizard in the terminal
package ui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/linuxmatters/vocalrange/internal/audio"
	"github.com/linuxmatters/vocalrange/internal/practice"
)

// Engine is the part of the practice machine the wizard drives
type Engine interface {
	State() practice.State
	RequestPermission(ctx context.Context) error
	HandleHeadphoneCheck(ctx context.Context) error
	HandleHeadphoneContinue() error
	HandleCalibrationStart(ctx context.Context) error
	HandleDemoStart(ctx context.Context) error
	HandlePracticeStart(ctx context.Context) error
	HandleRetryAscend(ctx context.Context) error
	HandleStartDescending(ctx context.Context) error
	HandleRetryDescend(ctx context.Context) error
	HandleFinishPractice() error
}

// Model represents the UI state
type Model struct {
	ctx    context.Context
	engine Engine

	State     practice.State
	StartTime time.Time
	Err       error // last action failure worth showing
	Finished  bool

	// Terminal size
	Width  int
	Height int

	spinnerIndex int
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewModel creates a wizard bound to engine. ctx bounds every action it starts.
func NewModel(ctx context.Context, engine Engine) Model {
	return Model{
		ctx:       ctx,
		engine:    engine,
		State:     engine.State(),
		StartTime: time.Now(),
	}
}

// Listener forwards engine state changes into a running program
func Listener(p *tea.Program) practice.Listener {
	return func(s practice.State) {
		p.Send(StateMsg{State: s})
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// tickCmd returns a command that sends a tick message every 100ms
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case tickMsg:
		if m.State.Busy {
			m.spinnerIndex = (m.spinnerIndex + 1) % len(spinnerFrames)
		}
		return m, tickCmd()

	case StateMsg:
		m.State = msg.State
		if m.State.Step == practice.StepResult {
			m.Finished = true
		}

	case actionDoneMsg:
		if quietError(msg.err) {
			return m, nil
		}
		m.Err = msg.err
	}

	return m, nil
}

// quietError reports errors the wizard does not surface: the engine already
// explains them in its message, or they only mean the session moved on
func quietError(err error) bool {
	return err == nil ||
		errors.Is(err, practice.ErrBusy) ||
		errors.Is(err, practice.ErrClosed) ||
		errors.Is(err, audio.ErrSessionClosed) ||
		errors.Is(err, context.Canceled)
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit
	}

	if m.State.Step == practice.StepResult {
		if key == "enter" {
			return m, tea.Quit
		}
		return m, nil
	}

	if key == "f" && canFinish(m.State.Step) {
		return m, m.run("finish", func(context.Context) error {
			return m.engine.HandleFinishPractice()
		})
	}

	if m.State.Busy {
		return m, nil
	}

	action, fn := m.actionFor(m.State.Step, key)
	if fn == nil {
		return m, nil
	}
	m.Err = nil
	return m, m.run(action, fn)
}

// actionFor maps a key in a step to an engine action, or nil
func (m Model) actionFor(step practice.Step, key string) (string, func(context.Context) error) {
	e := m.engine
	switch step {
	case practice.StepPermission:
		if key == "enter" {
			return "permission", e.RequestPermission
		}
	case practice.StepHeadphone:
		if key == "enter" {
			return "headphone", e.HandleHeadphoneCheck
		}
	case practice.StepHeadphoneFail:
		switch key {
		case "enter", "r":
			return "headphone", e.HandleHeadphoneCheck
		case "c":
			return "continue", func(context.Context) error { return e.HandleHeadphoneContinue() }
		}
	case practice.StepCalibration:
		if key == "enter" {
			return "calibrate", e.HandleCalibrationStart
		}
	case practice.StepSetup, practice.StepDemoEnd:
		switch key {
		case "enter":
			return "practice", e.HandlePracticeStart
		case "l":
			return "demo", e.HandleDemoStart
		case "c":
			if step == practice.StepSetup {
				return "calibrate", e.HandleCalibrationStart
			}
		}
	case practice.StepAscending:
		switch key {
		case "enter":
			return "practice", e.HandlePracticeStart
		case "d":
			return "descend", e.HandleStartDescending
		}
	case practice.StepAscendFail:
		switch key {
		case "enter", "r":
			return "retry", e.HandleRetryAscend
		case "d":
			return "descend", e.HandleStartDescending
		}
	case practice.StepDescending, practice.StepDescendFail:
		if key == "enter" || key == "r" {
			return "retry", e.HandleRetryDescend
		}
	}
	return "", nil
}

func canFinish(step practice.Step) bool {
	switch step {
	case practice.StepSetup, practice.StepDemoLoop, practice.StepDemoEnd,
		practice.StepAscending, practice.StepAscendFail,
		practice.StepDescending, practice.StepDescendFail:
		return true
	}
	return false
}

// run wraps an engine action as a command. Actions block for whole cycles,
// so they never run on the update loop.
func (m Model) run(action string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{action: action, err: fn(ctx)}
	}
}

// View renders the UI
func (m Model) View() string {
	return renderPracticeView(m)
}
