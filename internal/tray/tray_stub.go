//go:build nogui || headless

package tray

import (
	"context"

	"go.uber.org/zap"
)

// Available reports whether this build has a system tray
const Available = false

// App is a no-op tray for headless builds
type App struct {
	logger *zap.SugaredLogger
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a stub tray application
func New(_ Controller, logger *zap.SugaredLogger) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{logger: logger, ctx: ctx, cancel: cancel}
}

// Run blocks until ctx is done or Quit is called
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Tray functionality disabled (nogui/headless build)")
	select {
	case <-ctx.Done():
	case <-a.ctx.Done():
	}
	return ctx.Err()
}

// Quit returns from Run
func (a *App) Quit() {
	a.cancel()
}
