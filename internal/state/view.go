package state

import "fmt"

const (
	ActionStart = "▶ Start"
	ActionStop  = "■ Stop"
)

// View is everything a surface (window, tray, status endpoint) renders.
// It holds no state of its own; see Project.
type View struct {
	ServerText     string `json:"server_text" yaml:"server_text"`
	ServerTone     Tone   `json:"server_tone" yaml:"server_tone"`
	BMSText        string `json:"bms_text" yaml:"bms_text"`
	BMSTone        Tone   `json:"bms_tone" yaml:"bms_tone"`
	Address        string `json:"address,omitempty" yaml:"address,omitempty"`
	Message        string `json:"message,omitempty" yaml:"message,omitempty"`
	ActionLabel    string `json:"action_label" yaml:"action_label"`
	Running        bool   `json:"running" yaml:"running"`
	ProcessRunning bool   `json:"process_running" yaml:"process_running"`
}

// Project derives the displayed view from the last known health state and
// whether the supervisor holds a live process handle.
func Project(health ServerHealthState, processRunning bool) View {
	info := GetInfo(health.ServerStatus)
	bmsText, bmsTone := BMSLabel(health.BMSStatus)

	v := View{
		ServerText:     fmt.Sprintf("Server: %s", info.Label),
		ServerTone:     info.Tone,
		BMSText:        fmt.Sprintf("BMS: %s", bmsText),
		BMSTone:        bmsTone,
		Message:        health.ServerMessage,
		Running:        health.IsRunning(),
		ProcessRunning: processRunning,
		ActionLabel:    ActionStart,
	}

	if v.Running {
		v.Address = health.ServerAddress
	}
	if v.Running || processRunning {
		v.ActionLabel = ActionStop
	}

	return v
}
