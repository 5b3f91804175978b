package tray

import (
	"context"
	"fmt"
	"strings"

	"bmsbridge-launcher/internal/state"
)

const appTitle = "BMS Bridge"

// Controller is the launcher surface the tray drives
type Controller interface {
	Snapshot() state.Snapshot
	Subscribe(fn state.Observer)
	ToggleServer(ctx context.Context) error
	RequestShow()
	Exit(ctx context.Context) error
}

// statusTitle is the disabled first menu entry
func statusTitle(snap state.Snapshot) string {
	return fmt.Sprintf("Status: %s", state.GetInfo(snap.Health.ServerStatus).Label)
}

// toggleTitle mirrors the window's start/stop button
func toggleTitle(snap state.Snapshot) string {
	if snap.View.ActionLabel == state.ActionStop {
		return "Stop Server"
	}
	return "Start Server"
}

func tooltip(snap state.Snapshot) string {
	var b strings.Builder
	b.WriteString(appTitle)
	b.WriteString(" - ")
	b.WriteString(state.GetInfo(snap.Health.ServerStatus).Label)

	if snap.View.Address != "" {
		b.WriteString("\n")
		b.WriteString(snap.View.Address)
	}
	b.WriteString("\n")
	b.WriteString(snap.View.BMSText)
	if snap.View.Message != "" {
		b.WriteString("\n")
		b.WriteString(snap.View.Message)
	}
	return b.String()
}
