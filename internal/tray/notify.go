package tray

import (
	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

// DesktopNotifier shows OS notifications
type DesktopNotifier struct {
	logger *zap.SugaredLogger
	send   func(title, message string) error
}

// NewDesktopNotifier creates a notifier backed by the platform's
// notification service
func NewDesktopNotifier(logger *zap.SugaredLogger) *DesktopNotifier {
	return &DesktopNotifier{
		logger: logger,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

// Notify shows a notification. Failures are logged; a missing
// notification daemon must never affect the launcher.
func (n *DesktopNotifier) Notify(title, message string) {
	n.logger.Infow("Desktop notification", "title", title, "message", message)
	if err := n.send(title, message); err != nil {
		n.logger.Warnw("Failed to show desktop notification", "title", title, "error", err)
	}
}
