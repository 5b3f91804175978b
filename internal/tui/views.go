package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// rows used by everything except the log pane
const chromeHeight = 15

func renderView(m model) string {
	var b strings.Builder

	b.WriteString(RenderTitle(" BMS Bridge Launcher "))
	b.WriteString("\n\n")

	b.WriteString(renderStatus(m))
	b.WriteString("\n")

	b.WriteString(renderAction(m))
	b.WriteString("\n")

	b.WriteString(HeaderStyle.Render("Server Log"))
	b.WriteString("\n")
	b.WriteString(renderLog(m))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(RenderError(m.err))
		b.WriteString("\n")
	}

	b.WriteString(renderStatusBar(m))
	b.WriteString("\n")
	b.WriteString(renderHelp(m))

	return b.String()
}

func renderStatus(m model) string {
	v := m.snap.View

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s\n", toneIndicator(v.ServerTone), toneStyle(v.ServerTone).Render(v.ServerText)))
	b.WriteString(fmt.Sprintf("%s %s\n", toneIndicator(v.BMSTone), toneStyle(v.BMSTone).Render(v.BMSText)))

	if v.Address != "" {
		b.WriteString(fmt.Sprintf("  Address: %s\n", v.Address))
	} else {
		b.WriteString("\n")
	}
	if v.Message != "" {
		b.WriteString(MutedStyle.Render("  " + v.Message))
	}
	b.WriteString("\n")
	return b.String()
}

func renderAction(m model) string {
	label := m.snap.View.ActionLabel
	switch {
	case m.exiting:
		label = "Stopping server..."
	case m.busy:
		label += " ..."
	}
	return ButtonStyle.Render(label)
}

func (m model) logHeight() int {
	h := m.height - chromeHeight
	if h < 3 {
		h = 3
	}
	return h
}

// visibleLines returns the window of output lines shown for the current scroll
func (m model) visibleLines() []string {
	height := m.logHeight()
	end := len(m.lines) - m.scroll
	if end < 0 {
		end = 0
	}
	start := end - height
	if start < 0 {
		start = 0
	}
	return m.lines[start:end]
}

func renderLog(m model) string {
	width := m.width - 4
	if width < 20 {
		width = 20
	}

	visible := m.visibleLines()
	rows := make([]string, 0, m.logHeight())
	for _, line := range visible {
		rows = append(rows, truncate(line, width))
	}
	for len(rows) < m.logHeight() {
		rows = append(rows, "")
	}
	if len(m.lines) == 0 {
		rows[0] = MutedStyle.Render("No server output yet")
	}

	return LogPaneStyle.Width(width + 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func renderStatusBar(m model) string {
	parts := []string{fmt.Sprintf("Status: %s", m.snap.Health.ServerStatus)}
	if m.snap.PID > 0 {
		parts = append(parts, fmt.Sprintf("PID %d", m.snap.PID))
	}
	if m.scroll > 0 {
		parts = append(parts, fmt.Sprintf("scrolled %d", m.scroll))
	}
	if m.snap.LastError != "" {
		parts = append(parts, truncate(m.snap.LastError, 60))
	}
	if !m.lastUpdate.IsZero() {
		parts = append(parts, "updated "+m.lastUpdate.Format("15:04:05"))
	}
	return StatusBarStyle.Render(strings.Join(parts, " · "))
}

func renderHelp(m model) string {
	if m.exiting {
		return RenderHelp("exiting...")
	}
	return RenderHelp("s: start/stop  q: close  x: exit  ↑/↓ pgup/pgdn: scroll  G: follow")
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}
