package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"bmsbridge-launcher/internal/state"
)

// Semantic color palette using AdaptiveColor for light/dark terminal support
var (
	colorHealthy   = lipgloss.AdaptiveColor{Light: "28", Dark: "42"}   // green
	colorDegraded  = lipgloss.AdaptiveColor{Light: "136", Dark: "214"} // yellow
	colorUnhealthy = lipgloss.AdaptiveColor{Light: "160", Dark: "196"} // red
	colorBusy      = lipgloss.AdaptiveColor{Light: "25", Dark: "39"}   // blue
	colorDisabled  = lipgloss.AdaptiveColor{Light: "245", Dark: "243"} // gray
	colorAccent    = lipgloss.AdaptiveColor{Light: "25", Dark: "75"}   // blue
	colorMuted     = lipgloss.AdaptiveColor{Light: "245", Dark: "244"} // light gray
	colorBgDark    = lipgloss.AdaptiveColor{Light: "254", Dark: "236"} // dark bg
)

// Shared reusable styles

var (
	// TitleStyle renders top-level titles with bold accent background
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "255", Dark: "255"}).
			Background(colorAccent).
			Padding(0, 1)

	// HeaderStyle renders section headers
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	// ButtonStyle renders the start/stop action
	ButtonStyle = lipgloss.NewStyle().
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 2)

	// MutedStyle renders secondary/less important text
	MutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	// ErrorStyle renders error messages
	ErrorStyle = lipgloss.NewStyle().
			Foreground(colorUnhealthy).
			Bold(true)

	// LogPaneStyle frames the server output
	LogPaneStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorDisabled).
			Padding(0, 1)

	// StatusBarStyle renders the bottom status bar
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Background(colorBgDark).
			Padding(0, 1)

	// HelpStyle renders keybinding hints
	HelpStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	okStyle      = lipgloss.NewStyle().Foreground(colorHealthy).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(colorDegraded).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorUnhealthy).Bold(true)
	busyStyle    = lipgloss.NewStyle().Foreground(colorBusy).Bold(true)
	neutralStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorDisabled)
)

// RenderTitle wraps text with TitleStyle
func RenderTitle(text string) string {
	return TitleStyle.Render(text)
}

// RenderError formats an error with ErrorStyle
func RenderError(err error) string {
	if err == nil {
		return ""
	}
	return ErrorStyle.Render(fmt.Sprintf("Error: %v", err))
}

// RenderHelp wraps help text with HelpStyle
func RenderHelp(text string) string {
	return HelpStyle.Render(text)
}

func toneStyle(tone state.Tone) lipgloss.Style {
	switch tone {
	case state.ToneOK:
		return okStyle
	case state.ToneWarn:
		return warnStyle
	case state.ToneError:
		return errorStyle
	case state.ToneBusy:
		return busyStyle
	case state.ToneMuted:
		return mutedStyle
	default:
		return neutralStyle
	}
}

func toneIndicator(tone state.Tone) string {
	switch tone {
	case state.ToneOK:
		return okStyle.Render("●")
	case state.ToneWarn:
		return warnStyle.Render("◐")
	case state.ToneError:
		return errorStyle.Render("●")
	case state.ToneBusy:
		return busyStyle.Render("◌")
	default:
		return mutedStyle.Render("○")
	}
}
