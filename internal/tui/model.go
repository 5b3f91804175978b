package tui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"bmsbridge-launcher/internal/launcher"
	"bmsbridge-launcher/internal/state"
)

// DefaultRefreshInterval is how often the window re-reads launcher state
const DefaultRefreshInterval = 250 * time.Millisecond

// Controller defines the launcher operations the window uses
type Controller interface {
	Snapshot() state.Snapshot
	Lines() []string
	ToggleServer(ctx context.Context) error
	RequestClose() launcher.CloseDecision
	Exit(ctx context.Context) error
}

// Outcome reports why the window went away
type Outcome int

const (
	// OutcomeHidden means the window was closed while the server is up
	OutcomeHidden Outcome = iota
	// OutcomeExited means the launcher should exit
	OutcomeExited
	// OutcomeCancelled means the window was closed from outside (tray exit, signal)
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHidden:
		return "hidden"
	case OutcomeExited:
		return "exited"
	default:
		return "cancelled"
	}
}

// model is the main Bubble Tea model
type model struct {
	ctrl Controller
	ctx  context.Context

	// UI state
	width  int
	height int
	scroll int // lines scrolled up from the tail; 0 follows new output

	// Data
	snap       state.Snapshot
	lines      []string
	lastUpdate time.Time
	err        error

	busy    bool
	exiting bool
	outcome Outcome

	// Refresh
	refreshInterval time.Duration
}

// Messages

type tickMsg time.Time

type toggleDoneMsg struct {
	err error
}

type exitDoneMsg struct {
	err error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func toggleCmd(ctrl Controller, ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		return toggleDoneMsg{err: ctrl.ToggleServer(ctx)}
	}
}

func exitCmd(ctrl Controller, ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		return exitDoneMsg{err: ctrl.Exit(ctx)}
	}
}

// NewModel creates a new window model
func NewModel(ctx context.Context, ctrl Controller, refreshInterval time.Duration) model {
	if refreshInterval <= 0 {
		refreshInterval = DefaultRefreshInterval
	}
	m := model{
		ctrl:            ctrl,
		ctx:             ctx,
		refreshInterval: refreshInterval,
		outcome:         OutcomeCancelled,
	}
	return m.refresh()
}

func (m model) refresh() model {
	m.snap = m.ctrl.Snapshot()
	m.lines = m.ctrl.Lines()
	m.lastUpdate = time.Now()
	return m
}

func (m model) Init() tea.Cmd {
	return tickCmd(m.refreshInterval)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m.refresh(), tickCmd(m.refreshInterval)

	case toggleDoneMsg:
		m.busy = false
		m.err = msg.err
		return m.refresh(), nil

	case exitDoneMsg:
		// The launcher is exiting regardless; the error is only worth logging
		m.err = msg.err
		m.outcome = OutcomeExited
		return m, tea.Quit
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.exiting {
		return m, nil
	}

	switch msg.String() {
	case "s", "enter":
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.err = nil
		return m, toggleCmd(m.ctrl, m.ctx)

	case "q", "esc", "ctrl+c":
		if m.ctrl.RequestClose() == launcher.CloseHide {
			m.outcome = OutcomeHidden
			return m, tea.Quit
		}
		m.exiting = true
		return m, exitCmd(m.ctrl, m.ctx)

	case "x":
		m.exiting = true
		return m, exitCmd(m.ctrl, m.ctx)

	case "up", "k":
		m.scroll = m.clampScroll(m.scroll + 1)
	case "down", "j":
		m.scroll = m.clampScroll(m.scroll - 1)
	case "pgup":
		m.scroll = m.clampScroll(m.scroll + m.logHeight())
	case "pgdown":
		m.scroll = m.clampScroll(m.scroll - m.logHeight())
	case "home", "g":
		m.scroll = m.clampScroll(len(m.lines))
	case "end", "G":
		m.scroll = 0
	}

	return m, nil
}

func (m model) clampScroll(n int) int {
	maxScroll := len(m.lines) - m.logHeight()
	if maxScroll < 0 {
		maxScroll = 0
	}
	if n > maxScroll {
		return maxScroll
	}
	if n < 0 {
		return 0
	}
	return n
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	return renderView(m)
}

// Run shows the window until it is closed and reports how. Cancelling ctx
// closes the window with OutcomeCancelled.
func Run(ctx context.Context, ctrl Controller, refreshInterval time.Duration, opts ...tea.ProgramOption) (Outcome, error) {
	m := NewModel(ctx, ctrl, refreshInterval)

	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(m, opts...)

	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
			return OutcomeCancelled, nil
		}
		return OutcomeCancelled, err
	}

	if fm, ok := final.(model); ok {
		return fm.outcome, nil
	}
	return OutcomeCancelled, nil
}
