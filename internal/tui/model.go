// Package tui is the interactive terminal front end: a URL form, a progress
// view while the workflow runs, and the summary with its raw payload and the
// call log underneath.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kalambet/sitesum/internal/calllog"
	"github.com/kalambet/sitesum/internal/workflow"
)

// Model is the main TUI model.
type Model struct {
	machine *workflow.Machine
	updates <-chan struct{}

	input   textinput.Model
	spinner spinner.Model
	help    help.Model

	run       workflow.Run
	artifacts int
	calls     []calllog.Record

	showRaw   bool
	showLog   bool
	cleaning  bool
	statusMsg string

	width  int
	height int
}

// stateChangedMsg is sent whenever the machine reports a change.
type stateChangedMsg struct{}

// cleanupDoneMsg carries the result of a cleanup pass.
type cleanupDoneMsg struct {
	report workflow.CleanupReport
}

// NewModel creates a model bound to m. updates should come from
// m.Subscribe.
func NewModel(m *workflow.Machine, updates <-chan struct{}) Model {
	ti := textinput.New()
	ti.Placeholder = "https://example.com"
	ti.CharLimit = 2048
	ti.Prompt = ""
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusOkStyle

	model := Model{
		machine: m,
		updates: updates,
		input:   ti,
		spinner: sp,
		help:    help.New(),
	}
	model.refresh()
	return model
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		<-ch
		return stateChangedMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForChange(m.updates))
}

func (m *Model) refresh() {
	m.run = m.machine.Snapshot()
	m.artifacts = len(m.machine.Artifacts())
	m.calls = m.machine.Calls()
	if m.run.Step == workflow.StepAwaitingInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width - 4
		m.input.Width = max(20, msg.Width-12)
		return m, nil

	case stateChangedMsg:
		m.refresh()
		return m, waitForChange(m.updates)

	case cleanupDoneMsg:
		m.cleaning = false
		m.refresh()
		r := msg.report
		if len(r.Failed) > 0 {
			m.statusMsg = fmt.Sprintf("Deleted %d of %d objects; %d failed", len(r.Deleted), r.Attempted, len(r.Failed))
		} else {
			m.statusMsg = fmt.Sprintf("Deleted %d objects", len(r.Deleted))
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.run.Step == workflow.StepAwaitingInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Plain characters belong to the URL input while it has focus.
	typing := m.run.Step == workflow.StepAwaitingInput && msg.Type == tea.KeyRunes

	switch {
	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit
	case !typing && key.Matches(msg, keys.Log):
		m.showLog = !m.showLog
		return m, nil
	case !typing && key.Matches(msg, keys.Cleanup):
		return m.startCleanup()
	}

	switch m.run.Step {
	case workflow.StepAwaitingInput:
		switch {
		case key.Matches(msg, keys.Submit):
			m.statusMsg = ""
			m.showRaw = false
			// Validation failures land in the run's error field.
			m.machine.Start(context.Background(), m.input.Value())
			m.refresh()
			return m, m.spinner.Tick
		case key.Matches(msg, keys.Cancel):
			m.input.SetValue("")
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case workflow.StepProcessing:
		switch {
		case key.Matches(msg, keys.Cancel):
			m.machine.Reset()
			m.statusMsg = "Cancelled"
			m.refresh()
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		}
		return m, nil

	case workflow.StepCompleted:
		switch {
		case key.Matches(msg, keys.New):
			m.machine.Reset()
			m.input.SetValue("")
			m.showRaw = false
			m.statusMsg = ""
			m.refresh()
		case key.Matches(msg, keys.Raw):
			m.showRaw = !m.showRaw
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		}
		return m, nil
	}
	return m, nil
}

func (m Model) startCleanup() (tea.Model, tea.Cmd) {
	if m.cleaning || m.artifacts == 0 {
		return m, nil
	}
	m.cleaning = true
	m.statusMsg = ""
	machine := m.machine
	return m, func() tea.Msg {
		return cleanupDoneMsg{report: machine.Cleanup(context.Background())}
	}
}

// Run starts the TUI on m and blocks until the user quits.
func Run(m *workflow.Machine) error {
	updates, unsubscribe := m.Subscribe()
	defer unsubscribe()

	p := tea.NewProgram(NewModel(m, updates), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
