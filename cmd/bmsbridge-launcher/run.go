package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"bmsbridge-launcher/internal/cli/output"
	"bmsbridge-launcher/internal/config"
	"bmsbridge-launcher/internal/httpapi"
	"bmsbridge-launcher/internal/instance"
	"bmsbridge-launcher/internal/launcher"
	"bmsbridge-launcher/internal/logs"
	"bmsbridge-launcher/internal/monitor"
	"bmsbridge-launcher/internal/observability"
	"bmsbridge-launcher/internal/settings"
	"bmsbridge-launcher/internal/state"
	"bmsbridge-launcher/internal/storage"
	"bmsbridge-launcher/internal/tray"
	"bmsbridge-launcher/internal/tui"
)

const (
	instanceName       = "bmsbridge-launcher"
	showSignalTimeout  = 3 * time.Second
	exitTimeout        = 30 * time.Second
	statusServerGrace  = 5 * time.Second
	hiddenWindowNotice = "BMS Bridge Launcher is still running. Run bmsbridge-launcher again or use the tray menu to show the window."
)

var (
	headless bool
	noTray   bool
)

// addRunFlags registers the flags of the interactive launcher. Flags without
// a Go variable are read through the configuration loader.
func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVar(&headless, "headless", false, "Run without the status window (tray and status endpoint only)")
	f.BoolVar(&noTray, "no-tray", false, "Do not show the system tray icon")
	f.Duration("poll-interval", config.DefaultPollInterval, "Health poll interval")
	f.Duration("request-timeout", config.DefaultRequestTimeout, "Per-request timeout for server API calls")
	f.Duration("stop-grace-period", config.DefaultStopGracePeriod, "How long to wait for the server to exit before force-killing it")
	f.String("status-listen", "", "Serve launcher status and metrics on this address (e.g. 127.0.0.1:9191)")
	f.Bool("auto-start", false, "Start the server when the launcher opens")
	f.Bool("hide-while-starting", true, "Hide instead of exiting when the window is closed while the server is starting")
	f.Bool("notifications", true, "Show desktop notifications for server state changes")
}

func runLauncher(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return output.Wrap(err, output.ErrCodeConfigInvalid).
			WithGuidance("Check the launcher configuration file and BMSB_* environment variables")
	}

	windowMode := !headless && term.IsTerminal(int(os.Stdout.Fd()))
	if windowMode {
		// The window owns the terminal
		cfg.Logging.EnableConsole = false
	}

	zapLogger, err := logs.SetupLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := zapLogger.Sugar()

	logger.Infow("Starting bmsbridge-launcher",
		"version", version,
		"server_dir", cfg.ServerDir,
		"data_dir", cfg.DataDir,
		"window", windowMode)
	if !headless && !windowMode {
		logger.Warn("Standard output is not a terminal, running without the status window")
	}

	// Single instance: a second launch asks the first to show itself
	showRelay := make(chan struct{}, 1)
	endpoint := instance.DefaultEndpoint(cfg.DataDir, instanceName)
	guard, err := instance.Acquire(endpoint, func() {
		select {
		case showRelay <- struct{}{}:
		default:
		}
	}, logger)
	if errors.Is(err, instance.ErrAlreadyRunning) {
		return signalRunningInstance(cmd.Context(), endpoint, logger)
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := guard.Release(); err != nil {
			logger.Warnw("Failed to release instance endpoint", "error", err)
		}
	}()

	store := settings.NewStore(cfg.SettingsFilePath(), cfg.KneeboardDirPath(), logger)
	client := monitor.NewAPIClient(cfg.HealthBaseURL(store.ServerPort()), cfg.RequestTimeout, logger)
	logger.Infow("Server health endpoint", "base_url", client.BaseURL())

	poller := monitor.NewHealthPoller(client, cfg.PollInterval, logger)
	defer poller.Shutdown()

	supervisor := monitor.NewSupervisor(&monitor.ProcessConfig{
		Executable:      cfg.ExecutablePath(),
		WorkingDir:      cfg.ServerDir,
		PIDFile:         cfg.PIDFilePath(),
		LogFile:         cfg.LogFilePath(),
		StopGracePeriod: cfg.StopGracePeriod,
	}, logger)
	defer supervisor.Shutdown()

	machine := state.NewMachine(logger, supervisor.IsRunning)

	metrics := observability.NewMetricsManager(logger)
	machine.Subscribe(metrics.Observe)

	var (
		history httpapi.HistorySource
		session string
	)
	journal, err := storage.OpenJournal(cfg.JournalPath(), storage.Options{Limit: cfg.JournalLimit}, logger)
	if err != nil {
		logger.Warnw("Lifecycle journal disabled", "path", cfg.JournalPath(), "error", err)
	} else {
		defer func() {
			if err := journal.Close(); err != nil {
				logger.Warnw("Failed to close lifecycle journal", "error", err)
			}
		}()
		machine.Subscribe(journal.Observe)
		history = journal
		session = journal.Session()
	}

	var notifier launcher.Notifier
	if cfg.Notifications {
		notifier = tray.NewDesktopNotifier(logger)
	}

	l := launcher.New(supervisor, poller, machine, notifier, launcher.Options{
		HideWhileStarting: cfg.HideWhileStarting,
		AutoStart:         cfg.AutoStart,
		Notifications:     cfg.Notifications,
	}, logger)
	defer l.Shutdown()

	if cfg.StatusListen != "" {
		srv := httpapi.NewServer(l, history, metrics, session, logger)
		if err := srv.Start(cfg.StatusListen); err != nil {
			logger.Errorw("Status endpoint disabled", "listen", cfg.StatusListen, "error", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), statusServerGrace)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					logger.Warnw("Status endpoint shutdown failed", "error", err)
				}
			}()
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Infow("Received shutdown signal", "signal", sig.String())
			cancel()
		case <-l.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() {
		for {
			select {
			case <-showRelay:
				l.RequestShow()
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := l.Init(ctx); err != nil {
		logger.Errorw("Auto start failed", "error", err)
	}

	runFrontends(ctx, cancel, l, windowMode, logger)

	// Signals and failed frontends end up here without having stopped the server
	select {
	case <-l.Done():
	default:
		exitCtx, exitCancel := context.WithTimeout(context.Background(), exitTimeout)
		defer exitCancel()
		if err := l.Exit(exitCtx); err != nil {
			logger.Errorw("Failed to stop server on exit", "error", err)
		}
	}

	logger.Info("bmsbridge-launcher stopped")
	return nil
}

// runFrontends blocks until ctx is cancelled. The tray, when available, owns
// the main goroutine; the window loop runs beside it.
func runFrontends(ctx context.Context, cancel context.CancelFunc, l *launcher.Launcher, windowMode bool, logger *zap.SugaredLogger) {
	useTray := tray.Available && !noTray

	if windowMode && !useTray {
		windowLoop(ctx, cancel, l, logger)
		return
	}

	if windowMode {
		go windowLoop(ctx, cancel, l, logger)
	}

	if useTray {
		trayApp := tray.New(l, logger)
		if err := trayApp.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorw("Tray application error", "error", err)
		}
	}

	<-ctx.Done()
}

// windowLoop shows the status window, waits while it is hidden and shows it
// again on request, until the user exits or ctx is cancelled
func windowLoop(ctx context.Context, cancel context.CancelFunc, l *launcher.Launcher, logger *zap.SugaredLogger) {
	for {
		outcome, err := tui.Run(ctx, l, tui.DefaultRefreshInterval)
		if err != nil {
			logger.Errorw("Status window failed", "error", err)
			cancel()
			return
		}
		logger.Debugw("Status window closed", "outcome", outcome.String())

		if outcome != tui.OutcomeHidden {
			return
		}

		fmt.Fprintln(os.Stdout, hiddenWindowNotice)
		select {
		case <-ctx.Done():
			return
		case <-l.ShowRequests():
		}
	}
}

// signalRunningInstance asks the primary launcher to show its window
func signalRunningInstance(ctx context.Context, endpoint string, logger *zap.SugaredLogger) error {
	ctx, cancel := context.WithTimeout(ctx, showSignalTimeout)
	defer cancel()

	if err := instance.Signal(ctx, endpoint, instance.CommandShow); err != nil {
		return fmt.Errorf("%w and did not answer: %v", instance.ErrAlreadyRunning, err)
	}
	logger.Infow("Asked running launcher to show its window", "endpoint", endpoint)
	fmt.Fprintln(os.Stderr, "BMS Bridge Launcher is already running; its window has been brought back.")
	return nil
}
