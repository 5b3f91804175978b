//go:build !nogui && !headless

package tray

import (
	"context"
	"runtime"

	"fyne.io/systray"
	"go.uber.org/zap"

	"bmsbridge-launcher/internal/state"
)

// Available reports whether this build has a system tray
const Available = true

// App represents the system tray application
type App struct {
	ctrl   Controller
	logger *zap.SugaredLogger

	statusItem *systray.MenuItem
	toggleItem *systray.MenuItem
	showItem   *systray.MenuItem
	exitItem   *systray.MenuItem

	updates  chan state.Snapshot
	lastTone state.Tone

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new tray application
func New(ctrl Controller, logger *zap.SugaredLogger) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		ctrl:    ctrl,
		logger:  logger,
		updates: make(chan state.Snapshot, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Run starts the system tray. It blocks until ctx is done or Quit is called
// and must run on the main goroutine.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting system tray application")

	a.ctrl.Subscribe(func(u state.Update) {
		// Latest snapshot wins
		select {
		case <-a.updates:
		default:
		}
		select {
		case a.updates <- u.Snapshot:
		default:
		}
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-a.ctx.Done():
		}
		a.logger.Debug("Quitting system tray")
		systray.Quit()
	}()

	systray.Run(a.onReady, a.onExit)
	return ctx.Err()
}

// Quit removes the tray icon and returns from Run
func (a *App) Quit() {
	a.cancel()
}

func (a *App) onReady() {
	systray.SetTitle("")
	a.setIcon(state.ToneNeutral)

	snap := a.ctrl.Snapshot()

	a.statusItem = systray.AddMenuItem(statusTitle(snap), "Server status")
	a.statusItem.Disable()

	systray.AddSeparator()

	a.toggleItem = systray.AddMenuItem(toggleTitle(snap), "Start or stop the BMS Bridge server")
	a.showItem = systray.AddMenuItem("Show Window", "Show the launcher window")

	systray.AddSeparator()

	a.exitItem = systray.AddMenuItem("Exit", "Stop the server and exit")

	a.render(snap)

	go a.loop()
}

func (a *App) onExit() {
	a.logger.Info("System tray exited")
	a.cancel()
}

func (a *App) loop() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case snap := <-a.updates:
			a.render(snap)
		case <-a.toggleItem.ClickedCh:
			go func() {
				if err := a.ctrl.ToggleServer(a.ctx); err != nil {
					a.logger.Warnw("Start/stop from tray failed", "error", err)
				}
			}()
		case <-a.showItem.ClickedCh:
			a.ctrl.RequestShow()
		case <-a.exitItem.ClickedCh:
			a.logger.Info("Exit selected from tray menu")
			go func() {
				if err := a.ctrl.Exit(context.Background()); err != nil {
					a.logger.Warnw("Server stop during exit failed", "error", err)
				}
			}()
		}
	}
}

func (a *App) render(snap state.Snapshot) {
	a.statusItem.SetTitle(statusTitle(snap))
	a.toggleItem.SetTitle(toggleTitle(snap))
	systray.SetTooltip(tooltip(snap))
	a.setIcon(snap.View.ServerTone)
}

func (a *App) setIcon(tone state.Tone) {
	if tone == a.lastTone {
		return
	}
	a.lastTone = tone

	icon := statusIcon(tone)
	if len(icon) == 0 {
		a.logger.Warnw("Tray icon could not be rendered", "tone", tone)
		return
	}
	if runtime.GOOS == "darwin" {
		systray.SetTemplateIcon(icon, icon)
		return
	}
	systray.SetIcon(icon)
}
