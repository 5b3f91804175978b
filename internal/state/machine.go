package state

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType identifies what produced an Event
type EventType string

const (
	// EventHealthUpdated carries a freshly published ServerHealthState
	EventHealthUpdated EventType = "health_updated"

	// EventPollError indicates the health endpoint could not be reached
	EventPollError EventType = "poll_error"

	// EventProcessStarted indicates the supervisor launched (or adopted) the server
	EventProcessStarted EventType = "process_started"

	// EventProcessExited indicates the supervised process went away on its own
	EventProcessExited EventType = "process_exited"

	// EventProcessStopped indicates an explicit stop finished
	EventProcessStopped EventType = "process_stopped"

	// EventOutput carries one line of server output
	EventOutput EventType = "output"

	// EventWindowHidden / EventWindowShown track window visibility
	EventWindowHidden EventType = "window_hidden"
	EventWindowShown  EventType = "window_shown"
)

// Event is one input to the machine. Only the fields relevant to Type are set.
type Event struct {
	Type      EventType
	Health    ServerHealthState
	Line      string
	PID       int
	Error     error
	Timestamp time.Time
}

// Transition records a change of the displayed server status
type Transition struct {
	From      ServerStatus
	To        ServerStatus
	Event     EventType
	Timestamp time.Time
	Message   string
}

// Snapshot is the machine's current state as seen by observers
type Snapshot struct {
	Health         ServerHealthState `json:"health" yaml:"health"`
	ProcessRunning bool              `json:"process_running" yaml:"process_running"`
	PID            int               `json:"pid,omitempty" yaml:"pid,omitempty"`
	View           View              `json:"view" yaml:"view"`
	Hidden         bool              `json:"hidden" yaml:"hidden"`
	LastError      string            `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at" yaml:"updated_at"`
}

// Update is handed to observers after each applied event
type Update struct {
	Snapshot   Snapshot
	Event      Event
	Transition *Transition
}

// Observer is called on the machine goroutine, in the order events were posted
type Observer func(Update)

const defaultLogLines = 500

type queued struct {
	event   Event
	barrier chan struct{}
}

// Machine is the single owner of displayed launcher state. Every async source
// posts into it and events are applied one at a time in arrival order.
type Machine struct {
	mu      sync.RWMutex
	current Snapshot
	logger  *zap.SugaredLogger

	processRunning func() bool

	// Log pane ring buffer
	lines    []string
	maxLines int

	eventCh    chan queued
	shutdownCh chan struct{}
	startOnce  sync.Once

	observers   []Observer
	observersMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewMachine creates a machine. processRunning is consulted on every applied
// event so the projection always reflects the supervisor's handle.
func NewMachine(logger *zap.SugaredLogger, processRunning func() bool) *Machine {
	ctx, cancel := context.WithCancel(context.Background())
	if processRunning == nil {
		processRunning = func() bool { return false }
	}

	m := &Machine{
		logger:         logger,
		processRunning: processRunning,
		maxLines:       defaultLogLines,
		eventCh:        make(chan queued, 256),
		shutdownCh:     make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
	}
	m.current = m.project(Stopped(), false)
	return m
}

// Start starts the machine goroutine
func (m *Machine) Start() {
	m.startOnce.Do(func() {
		m.logger.Debugw("State machine starting", "initial_status", m.current.Health.ServerStatus)
		go m.run()
	})
}

// Post queues an event. It blocks while the queue is full so no update is
// lost or reordered; after Shutdown it drops the event.
func (m *Machine) Post(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case m.eventCh <- queued{event: ev}:
	case <-m.ctx.Done():
		m.logger.Debugw("Event dropped due to shutdown", "event", ev.Type)
	}
}

// Flush waits until every event posted before the call has been applied
func (m *Machine) Flush() {
	barrier := make(chan struct{})
	select {
	case m.eventCh <- queued{barrier: barrier}:
	case <-m.ctx.Done():
		return
	}
	select {
	case <-barrier:
	case <-m.shutdownCh:
	}
}

// Current returns the latest applied snapshot
func (m *Machine) Current() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Lines returns a copy of the buffered output lines, oldest first
func (m *Machine) Lines() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.lines))
	copy(out, m.lines)
	return out
}

// Subscribe registers an observer
func (m *Machine) Subscribe(fn Observer) {
	m.observersMu.Lock()
	defer m.observersMu.Unlock()
	m.observers = append(m.observers, fn)
}

// Shutdown stops the machine goroutine and waits for it
func (m *Machine) Shutdown() {
	m.logger.Debug("State machine shutting down")
	m.cancel()
	// Never started: nothing will close shutdownCh for us
	m.startOnce.Do(func() { close(m.shutdownCh) })
	select {
	case <-m.shutdownCh:
	case <-time.After(5 * time.Second):
		m.logger.Warn("State machine shutdown timeout")
	}
}

func (m *Machine) run() {
	defer close(m.shutdownCh)

	for {
		select {
		case item := <-m.eventCh:
			if item.barrier != nil {
				close(item.barrier)
				continue
			}
			m.apply(item.event)
		case <-m.ctx.Done():
			return
		}
	}
}

// apply folds one event into the snapshot and notifies observers
func (m *Machine) apply(ev Event) {
	m.mu.Lock()
	prev := m.current
	health := prev.Health
	hidden := prev.Hidden
	lastErr := prev.LastError
	pid := prev.PID

	switch ev.Type {
	case EventHealthUpdated:
		health = ev.Health
		lastErr = ""
	case EventPollError:
		if ev.Error != nil {
			lastErr = ev.Error.Error()
		}
	case EventProcessStarted:
		pid = ev.PID
	case EventProcessExited:
		// A late exit of an earlier process leaves the current handle alone
		if ev.PID == 0 || ev.PID == pid {
			pid = 0
		}
		if ev.Error != nil {
			lastErr = ev.Error.Error()
		}
	case EventProcessStopped:
		pid = 0
		if ev.Error != nil {
			lastErr = ev.Error.Error()
		}
	case EventOutput:
		m.appendLineLocked(ev.Line)
	case EventWindowHidden:
		hidden = true
	case EventWindowShown:
		hidden = false
	}

	next := m.project(health, hidden)
	next.PID = pid
	next.LastError = lastErr
	next.UpdatedAt = ev.Timestamp
	m.current = next
	m.mu.Unlock()

	var transition *Transition
	if prev.Health.ServerStatus != next.Health.ServerStatus {
		transition = &Transition{
			From:      prev.Health.ServerStatus,
			To:        next.Health.ServerStatus,
			Event:     ev.Type,
			Timestamp: ev.Timestamp,
			Message:   next.Health.ServerMessage,
		}
		m.logger.Infow("Server status transition",
			"from", transition.From,
			"to", transition.To,
			"event", ev.Type)
	}

	m.notifyObservers(Update{Snapshot: next, Event: ev, Transition: transition})
}

func (m *Machine) project(health ServerHealthState, hidden bool) Snapshot {
	running := m.processRunning()
	return Snapshot{
		Health:         health,
		ProcessRunning: running,
		View:           Project(health, running),
		Hidden:         hidden,
	}
}

func (m *Machine) appendLineLocked(line string) {
	m.lines = append(m.lines, line)
	if over := len(m.lines) - m.maxLines; over > 0 {
		m.lines = append(m.lines[:0], m.lines[over:]...)
	}
}

// notifyObservers runs every observer; a panicking observer is logged and skipped
func (m *Machine) notifyObservers(u Update) {
	m.observersMu.RLock()
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.observersMu.RUnlock()

	for _, fn := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Errorw("Observer panicked", "event", u.Event.Type, "panic", r)
				}
			}()
			fn(u)
		}()
	}
}
