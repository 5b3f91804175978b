package launcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"bmsbridge-launcher/internal/monitor"
	"bmsbridge-launcher/internal/state"
)

// Supervisor is the process lifecycle the launcher drives
type Supervisor interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Adopt(ctx context.Context) (bool, error)
	IsRunning() bool
	PID() int
	EventChannel() <-chan monitor.ProcessEvent
}

// Poller is the health source the launcher drives
type Poller interface {
	StartMonitoring()
	StopMonitoring()
	IsMonitoring() bool
	ManuallySetState(s state.ServerHealthState)
	LastKnownState() state.ServerHealthState
	ResultsChannel() <-chan monitor.HealthResult
}

// Notifier raises desktop notifications
type Notifier interface {
	Notify(title, message string)
}

// CloseDecision is the outcome of a window-close request
type CloseDecision int

const (
	// CloseHide keeps everything running and hides the window
	CloseHide CloseDecision = iota
	// CloseExit lets the application stop the server and quit
	CloseExit
)

func (d CloseDecision) String() string {
	if d == CloseHide {
		return "hide"
	}
	return "exit"
}

// Options tune launcher behavior
type Options struct {
	// HideWhileStarting makes a close during STARTING hide instead of exit
	HideWhileStarting bool
	AutoStart         bool
	Notifications     bool
}

// Launcher reconciles supervisor and poller observations into the state
// machine and owns the user-facing lifecycle commands
type Launcher struct {
	supervisor Supervisor
	poller     Poller
	machine    *state.Machine
	notifier   Notifier
	opts       Options
	logger     *zap.SugaredLogger

	// Serializes Start/Stop/Toggle/exit handling
	opMu sync.Mutex

	// Set between the first failed poll of a run and the next update;
	// only touched by pump
	waitingForAPI bool

	showCh   chan struct{}
	exitCh   chan struct{}
	exitOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a launcher. notifier may be nil.
func New(supervisor Supervisor, poller Poller, machine *state.Machine, notifier Notifier, opts Options, logger *zap.SugaredLogger) *Launcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Launcher{
		supervisor: supervisor,
		poller:     poller,
		machine:    machine,
		notifier:   notifier,
		opts:       opts,
		logger:     logger,
		showCh:     make(chan struct{}, 1),
		exitCh:     make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Init starts event delivery, reattaches to a server left running by an
// earlier session and honors auto start
func (l *Launcher) Init(ctx context.Context) error {
	l.machine.Start()

	l.wg.Add(1)
	go l.pump()

	adopted, err := l.supervisor.Adopt(ctx)
	if err != nil {
		l.logger.Warnw("Failed to inspect previous server session", "error", err)
	}
	if adopted {
		l.logger.Infow("Monitoring server from a previous session", "pid", l.supervisor.PID())
		l.poller.ManuallySetState(state.Starting())
		l.poller.StartMonitoring()
		return nil
	}

	if l.opts.AutoStart {
		return l.StartServer(ctx)
	}
	return nil
}

// ToggleServer stops a running server or starts a stopped one
func (l *Launcher) ToggleServer(ctx context.Context) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	return l.toggleLocked(ctx)
}

func (l *Launcher) toggleLocked(ctx context.Context) error {
	if l.supervisor.IsRunning() {
		return l.stopLocked(ctx)
	}
	return l.startLocked(ctx)
}

// StartServer launches the server and begins health monitoring. Starting an
// already running server is a no-op.
func (l *Launcher) StartServer(ctx context.Context) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	return l.startLocked(ctx)
}

func (l *Launcher) startLocked(ctx context.Context) error {
	if l.supervisor.IsRunning() {
		l.logger.Debug("Start requested while server is running")
		return nil
	}

	l.poller.ManuallySetState(state.Starting())

	err := l.supervisor.Start(ctx)
	if errors.Is(err, monitor.ErrAlreadyRunning) {
		return nil
	}
	if err != nil {
		l.logger.Errorw("Failed to start server", "error", err)
		l.machine.Post(state.Event{
			Type:  state.EventOutput,
			Line:  fmt.Sprintf("Failed to start server: %v", err),
			Error: err,
		})
		l.poller.ManuallySetState(state.Stopped())
		return err
	}

	l.poller.StartMonitoring()
	return nil
}

// StopServer stops monitoring, terminates the server tree and publishes
// STOPPED without waiting for a poll
func (l *Launcher) StopServer(ctx context.Context) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	return l.stopLocked(ctx)
}

func (l *Launcher) stopLocked(ctx context.Context) error {
	l.poller.StopMonitoring()

	err := l.supervisor.Stop(ctx)
	if err != nil {
		l.logger.Warnw("Server stop reported an error", "error", err)
	}

	l.poller.ManuallySetState(state.Stopped())
	l.machine.Post(state.Event{Type: state.EventProcessStopped})
	return err
}

// RequestClose decides what a window close means. While the last known
// health says the server is up the window only hides.
func (l *Launcher) RequestClose() CloseDecision {
	last := l.poller.LastKnownState()
	if last.Running(l.opts.HideWhileStarting) {
		l.logger.Infow("Window close while server is up, hiding to tray", "server_status", last.ServerStatus)
		l.machine.Post(state.Event{Type: state.EventWindowHidden})
		return CloseHide
	}
	return CloseExit
}

// RequestShow asks whoever owns the window to show it again
func (l *Launcher) RequestShow() {
	l.machine.Post(state.Event{Type: state.EventWindowShown})
	select {
	case l.showCh <- struct{}{}:
	default:
	}
}

// ShowRequests delivers RequestShow calls; repeated requests coalesce
func (l *Launcher) ShowRequests() <-chan struct{} {
	return l.showCh
}

// Exit stops the server and signals application exit
func (l *Launcher) Exit(ctx context.Context) error {
	l.opMu.Lock()
	err := l.stopLocked(ctx)
	l.opMu.Unlock()

	l.exitOnce.Do(func() {
		l.logger.Info("Launcher exit requested")
		close(l.exitCh)
	})
	return err
}

// Done is closed once Exit has run
func (l *Launcher) Done() <-chan struct{} {
	return l.exitCh
}

// Snapshot returns the current displayed state
func (l *Launcher) Snapshot() state.Snapshot {
	return l.machine.Current()
}

// Lines returns the retained server log lines
func (l *Launcher) Lines() []string {
	return l.machine.Lines()
}

// Subscribe registers an observer for every applied update
func (l *Launcher) Subscribe(fn state.Observer) {
	l.machine.Subscribe(fn)
}

// Shutdown stops event delivery. The server is left as is.
func (l *Launcher) Shutdown() {
	l.cancel()
	l.wg.Wait()
	l.machine.Shutdown()
}

// pump forwards every async observation onto the machine in arrival order
func (l *Launcher) pump() {
	defer l.wg.Done()

	processEvents := l.supervisor.EventChannel()
	healthResults := l.poller.ResultsChannel()

	for {
		select {
		case <-l.ctx.Done():
			return
		case ev := <-processEvents:
			l.handleProcessEvent(ev)
		case res := <-healthResults:
			l.handleHealthResult(res)
		}
	}
}

func (l *Launcher) handleProcessEvent(ev monitor.ProcessEvent) {
	switch ev.Type {
	case monitor.ProcessEventStarted:
		l.machine.Post(state.Event{Type: state.EventProcessStarted, PID: ev.PID, Timestamp: ev.Timestamp})
	case monitor.ProcessEventOutput:
		l.machine.Post(state.Event{Type: state.EventOutput, Line: ev.Line, Timestamp: ev.Timestamp})
	case monitor.ProcessEventError:
		l.machine.Post(state.Event{
			Type:      state.EventOutput,
			Line:      fmt.Sprintf("Error: %v", ev.Error),
			Error:     ev.Error,
			Timestamp: ev.Timestamp,
		})
	case monitor.ProcessEventExited:
		l.machine.Post(state.Event{Type: state.EventProcessExited, PID: ev.PID, Error: ev.Error, Timestamp: ev.Timestamp})
		// Reacting touches the poller, whose results this goroutine consumes
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handleUnexpectedExit(ev)
		}()
	}
}

func (l *Launcher) handleHealthResult(res monitor.HealthResult) {
	switch res.Type {
	case monitor.HealthUpdated:
		l.waitingForAPI = false
		l.machine.Post(state.Event{Type: state.EventHealthUpdated, Health: res.State, Timestamp: res.Timestamp})
	case monitor.HealthPollError:
		l.machine.Post(state.Event{Type: state.EventPollError, Error: res.Error, Timestamp: res.Timestamp})
		if !l.waitingForAPI {
			l.waitingForAPI = true
			l.machine.Post(state.Event{Type: state.EventOutput, Line: l.pollFailureLine(res.Error), Timestamp: res.Timestamp})
		}
	}
}

// pollFailureLine describes the start of a run of failed polls
func (l *Launcher) pollFailureLine(err error) string {
	if l.poller.LastKnownState().ServerStatus == state.StatusStarting || err == nil {
		return "Waiting for API response..."
	}
	return fmt.Sprintf("Lost contact with server API: %v", err)
}

func (l *Launcher) handleUnexpectedExit(ev monitor.ProcessEvent) {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	// A server started since this exit was reported is not affected by it
	if l.supervisor.IsRunning() && l.supervisor.PID() != ev.PID {
		l.logger.Infow("Ignoring exit of a replaced server process",
			"pid", ev.PID,
			"current_pid", l.supervisor.PID())
		return
	}

	l.logger.Warnw("Server was stopped or has crashed",
		"pid", ev.PID,
		"exit_code", ev.ExitCode,
		"runtime", ev.Runtime)

	l.poller.StopMonitoring()
	l.machine.Post(state.Event{Type: state.EventOutput, Line: "--- Server process has exited. ---"})
	l.poller.ManuallySetState(state.Stopped())

	if l.opts.Notifications && l.notifier != nil {
		l.notifier.Notify("BMS Bridge server stopped",
			fmt.Sprintf("The server exited unexpectedly (exit code %d).", ev.ExitCode))
	}
}
