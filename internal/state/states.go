package state

import "strings"

// ServerStatus is the server's self-reported condition
type ServerStatus string

const (
	// StatusStopped means no server process is owned by the launcher
	StatusStopped ServerStatus = "STOPPED"

	// StatusStarting is a placeholder published between launch and the first successful poll
	StatusStarting ServerStatus = "STARTING"

	// StatusRunning means the server is up and BMS telemetry is flowing
	StatusRunning ServerStatus = "RUNNING"

	// StatusWarning means the server is up but degraded (usually BMS not reachable)
	StatusWarning ServerStatus = "WARNING"

	// StatusError means the health endpoint answered with a failure
	StatusError ServerStatus = "ERROR"
)

// BMSStatus is the connectivity of the simulator behind the server
type BMSStatus string

const (
	BMSConnected    BMSStatus = "CONNECTED"
	BMSNotConnected BMSStatus = "NOT_CONNECTED"
	BMSNotAvailable BMSStatus = "NOT_AVAILABLE"
)

// ServerHealthState is a value snapshot of the payload served by /api/health.
// Snapshots are never mutated in place; holders replace them whole.
type ServerHealthState struct {
	ServerStatus  ServerStatus `json:"server_status" yaml:"server_status"`
	BMSStatus     BMSStatus    `json:"bms_status" yaml:"bms_status"`
	ServerAddress string       `json:"server_address,omitempty" yaml:"server_address,omitempty"`
	ServerMessage string       `json:"server_message,omitempty" yaml:"server_message,omitempty"`
}

// Stopped returns the state published when nothing is running
func Stopped() ServerHealthState {
	return ServerHealthState{ServerStatus: StatusStopped, BMSStatus: BMSNotAvailable}
}

// Starting returns the placeholder published right after a launch
func Starting() ServerHealthState {
	return ServerHealthState{ServerStatus: StatusStarting, BMSStatus: BMSNotAvailable}
}

// Errored returns an ERROR state carrying msg
func Errored(msg string) ServerHealthState {
	return ServerHealthState{ServerStatus: StatusError, BMSStatus: BMSNotAvailable, ServerMessage: msg}
}

// Normalize upper-cases the enum fields so lenient payloads compare equal
func (s ServerHealthState) Normalize() ServerHealthState {
	s.ServerStatus = ServerStatus(strings.ToUpper(strings.TrimSpace(string(s.ServerStatus))))
	s.BMSStatus = BMSStatus(strings.ToUpper(strings.TrimSpace(string(s.BMSStatus))))
	return s
}

// IsRunning reports whether the process should be treated as up.
// It is deliberately broader than "healthy": ERROR and STARTING count.
func (s ServerHealthState) IsRunning() bool {
	return s.Running(true)
}

// Running is IsRunning with STARTING inclusion made explicit
func (s ServerHealthState) Running(includeStarting bool) bool {
	switch s.ServerStatus {
	case StatusRunning, StatusWarning, StatusError:
		return true
	case StatusStarting:
		return includeStarting
	default:
		return false
	}
}

// Tone classifies a status line for rendering
type Tone string

const (
	ToneOK      Tone = "ok"
	ToneWarn    Tone = "warn"
	ToneError   Tone = "error"
	ToneBusy    Tone = "busy"
	ToneNeutral Tone = "neutral"
	ToneMuted   Tone = "muted"
)

// Info provides display metadata for a server status
type Info struct {
	Name        ServerStatus
	Label       string
	Description string
	Tone        Tone
	IsError     bool
}

// GetInfo returns metadata for a given status. Unknown values render as stopped.
func GetInfo(status ServerStatus) Info {
	statusInfoMap := map[ServerStatus]Info{
		StatusRunning: {
			Name:        StatusRunning,
			Label:       "Running",
			Description: "Server is up and connected to BMS",
			Tone:        ToneOK,
		},
		StatusWarning: {
			Name:        StatusWarning,
			Label:       "Warning",
			Description: "Server is up but reports a degraded condition",
			Tone:        ToneWarn,
		},
		StatusError: {
			Name:        StatusError,
			Label:       "Error",
			Description: "Health endpoint reported a failure",
			Tone:        ToneError,
			IsError:     true,
		},
		StatusStarting: {
			Name:        StatusStarting,
			Label:       "Starting...",
			Description: "Server launched, waiting for the first health report",
			Tone:        ToneBusy,
		},
		StatusStopped: {
			Name:        StatusStopped,
			Label:       "Stopped",
			Description: "Server is not running",
			Tone:        ToneNeutral,
		},
	}

	if info, ok := statusInfoMap[status]; ok {
		return info
	}
	return statusInfoMap[StatusStopped]
}

// BMSLabel returns the display text and tone for a BMS status
func BMSLabel(status BMSStatus) (string, Tone) {
	switch status {
	case BMSConnected:
		return "Connected", ToneOK
	case BMSNotConnected:
		return "Not Found", ToneNeutral
	default:
		return "-", ToneMuted
	}
}
