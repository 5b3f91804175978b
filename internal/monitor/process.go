package monitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultStopGracePeriod = 5 * time.Second
	adoptedPollInterval    = 500 * time.Millisecond
	exitWaitSlack          = 2 * time.Second
)

// Platform kill primitives; tests replace them to force failures
var (
	signalTree           = signalProcessTree
	terminateByImageName = killByImageName
)

// ProcessEventType identifies a supervisor observation
type ProcessEventType string

const (
	ProcessEventStarted ProcessEventType = "started"
	ProcessEventExited  ProcessEventType = "exited"
	ProcessEventError   ProcessEventType = "error"
	ProcessEventOutput  ProcessEventType = "output"
)

// ProcessEvent represents events from the supervisor
type ProcessEvent struct {
	Type      ProcessEventType
	PID       int
	Line      string
	ExitCode  int
	Runtime   time.Duration
	Adopted   bool
	Error     error
	Timestamp time.Time
}

// ProcessConfig describes the supervised server
type ProcessConfig struct {
	Executable      string
	Args            []string
	Env             []string
	WorkingDir      string
	PIDFile         string
	LogFile         string
	StopGracePeriod time.Duration
}

// Supervisor owns the server process lifecycle: launch, PID file, log tail,
// tree termination and exit notification
type Supervisor struct {
	config ProcessConfig
	logger *zap.SugaredLogger

	// Serializes Start/Stop/Adopt
	lifecycleMu sync.Mutex

	mu        sync.RWMutex
	cmd       *exec.Cmd
	pid       int
	adopted   bool
	done      chan struct{}
	startTime time.Time
	stopping  bool

	tailer  *LogTailer
	eventCh chan ProcessEvent

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSupervisor creates a supervisor. Nothing is launched until Start.
func NewSupervisor(config *ProcessConfig, logger *zap.SugaredLogger) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())

	if config.StopGracePeriod <= 0 {
		config.StopGracePeriod = DefaultStopGracePeriod
	}

	s := &Supervisor{
		config:  *config,
		logger:  logger,
		eventCh: make(chan ProcessEvent, 256),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.tailer = NewLogTailer(config.LogFile, logger, func(line string) {
		s.sendOutput(line)
	})
	return s
}

// Start launches the server detached, records its PID and starts tailing its log
func (s *Supervisor) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.IsRunning() {
		return ErrAlreadyRunning
	}

	if _, err := os.Stat(s.config.Executable); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrExecutableNotFound, s.config.Executable)
		}
		return fmt.Errorf("%w: %w", ErrProcessStart, err)
	}

	s.logger.Infow("Starting server process",
		"executable", s.config.Executable,
		"args", s.config.Args,
		"working_dir", s.config.WorkingDir)
	s.sendOutput("--- Attempting to start server ---")

	// Not tied to ctx: the server outlives the request that started it
	cmd := exec.Command(s.config.Executable, s.config.Args...)
	cmd.Dir = s.config.WorkingDir
	if len(s.config.Env) > 0 {
		cmd.Env = append(os.Environ(), s.config.Env...)
	}
	cmd.SysProcAttr = detachedProcAttr()

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		s.logger.Errorw("Failed to start server process", "error", err)
		s.sendOutput("--- FAILED TO START SERVER ---")
		return fmt.Errorf("%w: %w", ErrProcessStart, err)
	}

	pid := cmd.Process.Pid
	done := make(chan struct{})

	s.mu.Lock()
	s.cmd = cmd
	s.pid = pid
	s.adopted = false
	s.done = done
	s.startTime = startTime
	s.stopping = false
	s.mu.Unlock()

	if err := WritePIDFile(s.config.PIDFile, pid); err != nil {
		s.logger.Warnw("Failed to write PID file", "path", s.config.PIDFile, "error", err)
		s.sendEvent(ProcessEvent{Type: ProcessEventError, PID: pid, Error: err})
	}

	s.tailer.Start()
	go s.wait(cmd, done)

	s.logger.Infow("Server process started", "pid", pid)
	s.sendEvent(ProcessEvent{Type: ProcessEventStarted, PID: pid})

	return nil
}

// Adopt takes ownership of a server left running by a previous launcher
// session, found through the PID file. It returns false when there is
// nothing to adopt; a stale PID file is removed.
func (s *Supervisor) Adopt(ctx context.Context) (bool, error) {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.IsRunning() {
		return false, ErrAlreadyRunning
	}

	pid, err := ReadPIDFile(s.config.PIDFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		s.logger.Warnw("Removing unreadable PID file", "path", s.config.PIDFile, "error", err)
		return false, RemovePIDFile(s.config.PIDFile)
	}

	if !isProcessAlive(pid) {
		s.logger.Infow("Removing stale PID file", "path", s.config.PIDFile, "pid", pid)
		return false, RemovePIDFile(s.config.PIDFile)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.cmd = nil
	s.pid = pid
	s.adopted = true
	s.done = done
	s.startTime = time.Now()
	s.stopping = false
	s.mu.Unlock()

	s.tailer.Start()
	go s.watchAdopted(pid, done)

	s.logger.Infow("Adopted running server process", "pid", pid)
	s.sendOutput(fmt.Sprintf("--- Reattached to running server (PID %d) ---", pid))
	s.sendEvent(ProcessEvent{Type: ProcessEventStarted, PID: pid, Adopted: true})

	return true, nil
}

// Stop terminates the server tree. It is idempotent and never fails because
// nothing was running; kill failures are logged and local state is cleared
// regardless.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	s.stopping = true
	done := s.done
	handlePID := s.pid
	s.mu.Unlock()

	s.tailer.Stop()
	s.sendOutput("--- Stopping server process tree... ---")

	target := 0
	pid, err := ReadPIDFile(s.config.PIDFile)
	switch {
	case err == nil:
		target = pid
	case errors.Is(err, fs.ErrNotExist):
		target = handlePID
	default:
		s.logger.Warnw("Ignoring unreadable PID file", "path", s.config.PIDFile, "error", err)
		target = handlePID
	}

	var stopErr error
	if target > 0 {
		stopErr = s.terminateTree(ctx, target, done)
	} else {
		s.logger.Infow("No PID file, terminating by image name", "executable", s.config.Executable)
		stopErr = terminateByImageName(ctx, s.config.Executable)
	}

	switch {
	case stopErr == nil:
		s.sendOutput("Termination command sent to server process tree.")
	case errors.Is(stopErr, ErrStopTargetNotFound):
		s.logger.Infow("Server process already gone", "pid", target)
	default:
		s.logger.Warnw("Failed to terminate server process tree", "pid", target, "error", stopErr)
		s.sendOutput(fmt.Sprintf("Error while stopping server: %v", stopErr))
	}

	if err := RemovePIDFile(s.config.PIDFile); err != nil {
		s.logger.Warnw("Failed to remove PID file", "path", s.config.PIDFile, "error", err)
	}

	if done != nil {
		select {
		case <-done:
		case <-time.After(s.config.StopGracePeriod + exitWaitSlack):
			s.logger.Warnw("Server process did not report exit, releasing handle", "pid", handlePID)
		case <-ctx.Done():
		}
	}

	s.mu.Lock()
	if s.done == done {
		s.cmd = nil
		s.pid = 0
		s.adopted = false
		s.done = nil
	}
	s.stopping = false
	s.mu.Unlock()

	return nil
}

// terminateTree asks the tree to exit, escalating to a forced kill after the
// grace period
func (s *Supervisor) terminateTree(ctx context.Context, pid int, done <-chan struct{}) error {
	if !isProcessAlive(pid) {
		return ErrStopTargetNotFound
	}

	s.logger.Infow("Stopping server process tree", "pid", pid)
	err := signalTree(ctx, pid, false)
	if errors.Is(err, ErrStopTargetNotFound) {
		return err
	}
	if err != nil {
		s.logger.Debugw("Graceful termination failed, escalating", "pid", pid, "error", err)
	}

	if waitForProcessExit(ctx, pid, done, s.config.StopGracePeriod) {
		return nil
	}

	s.logger.Warnw("Server did not stop gracefully, forcing", "pid", pid)
	if err := signalTree(ctx, pid, true); err != nil && !errors.Is(err, ErrStopTargetNotFound) {
		return err
	}
	if !waitForProcessExit(ctx, pid, done, exitWaitSlack) {
		return fmt.Errorf("%w: pid %d still alive", ErrTerminationFailed, pid)
	}
	return nil
}

// IsRunning is true iff a handle exists and its process has not exited
func (s *Supervisor) IsRunning() bool {
	s.mu.RLock()
	done := s.done
	s.mu.RUnlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// PID returns the supervised PID, or 0
func (s *Supervisor) PID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pid
}

// Adopted reports whether the current handle came from Adopt
func (s *Supervisor) Adopted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adopted
}

// EventChannel returns a channel for receiving process events
func (s *Supervisor) EventChannel() <-chan ProcessEvent {
	return s.eventCh
}

// Shutdown releases supervisor resources without touching the server
func (s *Supervisor) Shutdown() {
	s.logger.Debug("Supervisor shutting down")
	s.tailer.Stop()
	s.cancel()
}

// wait reaps a launched process and reports an unexpected exit
func (s *Supervisor) wait(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()

	code := 0
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	s.handleExit(done, code, err)
}

// watchAdopted polls an adopted PID until it disappears
func (s *Supervisor) watchAdopted(pid int, done chan struct{}) {
	ticker := time.NewTicker(adoptedPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if !isProcessAlive(pid) {
				s.handleExit(done, -1, nil)
				return
			}
		}
	}
}

func (s *Supervisor) handleExit(done chan struct{}, code int, err error) {
	s.mu.Lock()
	current := s.done == done
	expected := s.stopping || !current
	pid := s.pid
	runtime := time.Since(s.startTime)
	if current && !s.stopping {
		s.cmd = nil
		s.pid = 0
		s.adopted = false
		s.done = nil
	}
	close(done)
	s.mu.Unlock()

	if expected {
		s.logger.Infow("Server process exited after stop request", "exit_code", code)
		return
	}

	s.logger.Warnw("Server process exited unexpectedly",
		"pid", pid,
		"exit_code", code,
		"runtime", runtime,
		"error", err)

	// Flush what the server managed to log before dying
	s.tailer.Stop()
	if err := RemovePIDFile(s.config.PIDFile); err != nil {
		s.logger.Warnw("Failed to remove PID file", "path", s.config.PIDFile, "error", err)
	}

	s.sendEvent(ProcessEvent{
		Type:     ProcessEventExited,
		PID:      pid,
		ExitCode: code,
		Runtime:  runtime,
		Error:    err,
	})
}

// waitForProcessExit waits for pid to go away, or for done to close when the
// process is our own child
func waitForProcessExit(ctx context.Context, pid int, done <-chan struct{}, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if done != nil {
			select {
			case <-done:
				return true
			default:
			}
		} else if !isProcessAlive(pid) {
			return true
		}

		select {
		case <-done:
			return true
		case <-ticker.C:
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// sendEvent delivers lifecycle events without dropping them
func (s *Supervisor) sendEvent(event ProcessEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case s.eventCh <- event:
	case <-s.ctx.Done():
	}
}

// sendOutput relays a log line; lines are dropped when nobody keeps up
func (s *Supervisor) sendOutput(line string) {
	select {
	case s.eventCh <- ProcessEvent{Type: ProcessEventOutput, Line: line, Timestamp: time.Now()}:
	default:
		s.logger.Debug("Process event channel full, dropping output line")
	}
}
