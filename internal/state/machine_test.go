package state

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMachine(t *testing.T, running func() bool) *Machine {
	t.Helper()
	m := NewMachine(zap.NewNop().Sugar(), running)
	m.Start()
	t.Cleanup(m.Shutdown)
	return m
}

func TestMachineInitialSnapshot(t *testing.T) {
	m := newTestMachine(t, nil)

	snap := m.Current()
	assert.Equal(t, StatusStopped, snap.Health.ServerStatus)
	assert.Equal(t, BMSNotAvailable, snap.Health.BMSStatus)
	assert.Equal(t, ActionStart, snap.View.ActionLabel)
	assert.False(t, snap.Hidden)
}

func TestMachineAppliesEventsInOrder(t *testing.T) {
	m := newTestMachine(t, nil)

	var mu sync.Mutex
	var seen []ServerStatus
	m.Subscribe(func(u Update) {
		if u.Event.Type != EventHealthUpdated {
			return
		}
		mu.Lock()
		seen = append(seen, u.Snapshot.Health.ServerStatus)
		mu.Unlock()
	})

	sequence := []ServerStatus{StatusStarting, StatusWarning, StatusRunning, StatusError, StatusStopped}
	for _, s := range sequence {
		m.Post(Event{Type: EventHealthUpdated, Health: ServerHealthState{ServerStatus: s}})
	}
	m.Flush()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, sequence, seen)
	assert.Equal(t, StatusStopped, m.Current().Health.ServerStatus)
}

func TestMachinePollErrorKeepsHealth(t *testing.T) {
	m := newTestMachine(t, nil)

	running := ServerHealthState{ServerStatus: StatusRunning, BMSStatus: BMSConnected}
	m.Post(Event{Type: EventHealthUpdated, Health: running})
	m.Post(Event{Type: EventPollError, Error: errors.New("connection refused")})
	m.Flush()

	snap := m.Current()
	assert.Equal(t, running, snap.Health)
	assert.Equal(t, "connection refused", snap.LastError)

	// next good poll clears the error
	m.Post(Event{Type: EventHealthUpdated, Health: running})
	m.Flush()
	assert.Empty(t, m.Current().LastError)
}

func TestMachineTransitionsOnlyOnStatusChange(t *testing.T) {
	m := newTestMachine(t, nil)

	var transitions []Transition
	m.Subscribe(func(u Update) {
		if u.Transition != nil {
			transitions = append(transitions, *u.Transition)
		}
	})

	m.Post(Event{Type: EventHealthUpdated, Health: Starting()})
	m.Post(Event{Type: EventHealthUpdated, Health: Starting()})
	m.Post(Event{Type: EventOutput, Line: "booting"})
	m.Post(Event{Type: EventHealthUpdated, Health: ServerHealthState{ServerStatus: StatusRunning}})
	m.Flush()

	require.Len(t, transitions, 2)
	assert.Equal(t, StatusStopped, transitions[0].From)
	assert.Equal(t, StatusStarting, transitions[0].To)
	assert.Equal(t, StatusRunning, transitions[1].To)
	assert.Equal(t, EventHealthUpdated, transitions[1].Event)
}

func TestMachineProjectsProcessHandle(t *testing.T) {
	var alive atomic.Bool
	m := newTestMachine(t, alive.Load)

	alive.Store(true)
	m.Post(Event{Type: EventProcessStarted, PID: 4242})
	m.Flush()

	snap := m.Current()
	assert.True(t, snap.ProcessRunning)
	assert.Equal(t, 4242, snap.PID)
	assert.Equal(t, ActionStop, snap.View.ActionLabel)

	alive.Store(false)
	m.Post(Event{Type: EventProcessExited, Error: errors.New("exit status 1")})
	m.Flush()

	snap = m.Current()
	assert.False(t, snap.ProcessRunning)
	assert.Zero(t, snap.PID)
	assert.Equal(t, "exit status 1", snap.LastError)
}

func TestMachineIgnoresExitOfEarlierProcess(t *testing.T) {
	m := newTestMachine(t, func() bool { return true })

	m.Post(Event{Type: EventProcessStarted, PID: 100})
	m.Post(Event{Type: EventProcessStarted, PID: 200})
	m.Post(Event{Type: EventProcessExited, PID: 100})
	m.Flush()

	assert.Equal(t, 200, m.Current().PID)

	m.Post(Event{Type: EventProcessExited, PID: 200})
	m.Flush()
	assert.Zero(t, m.Current().PID)
}

func TestMachineWindowVisibility(t *testing.T) {
	m := newTestMachine(t, nil)

	m.Post(Event{Type: EventWindowHidden})
	m.Flush()
	assert.True(t, m.Current().Hidden)

	m.Post(Event{Type: EventWindowShown})
	m.Flush()
	assert.False(t, m.Current().Hidden)
}

func TestMachineLineBufferIsBounded(t *testing.T) {
	m := newTestMachine(t, nil)

	for i := 0; i < defaultLogLines+25; i++ {
		m.Post(Event{Type: EventOutput, Line: fmt.Sprintf("line %d", i)})
	}
	m.Flush()

	lines := m.Lines()
	require.Len(t, lines, defaultLogLines)
	assert.Equal(t, "line 25", lines[0])
	assert.Equal(t, fmt.Sprintf("line %d", defaultLogLines+24), lines[len(lines)-1])
}

func TestMachineSurvivesPanickingObserver(t *testing.T) {
	m := newTestMachine(t, nil)

	var calls atomic.Int32
	m.Subscribe(func(Update) { panic("boom") })
	m.Subscribe(func(Update) { calls.Add(1) })

	m.Post(Event{Type: EventHealthUpdated, Health: Starting()})
	m.Post(Event{Type: EventHealthUpdated, Health: Stopped()})
	m.Flush()

	assert.EqualValues(t, 2, calls.Load())
}

func TestMachinePostAfterShutdownDoesNotBlock(t *testing.T) {
	m := NewMachine(zap.NewNop().Sugar(), nil)
	m.Start()
	m.Shutdown()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			m.Post(Event{Type: EventOutput, Line: "late"})
		}
		m.Flush()
		close(done)
	}()
	<-done
}
