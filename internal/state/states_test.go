package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRunningPredicate(t *testing.T) {
	tests := []struct {
		status          ServerStatus
		expectInclusive bool
		expectStrict    bool
	}{
		{StatusRunning, true, true},
		{StatusWarning, true, true},
		{StatusError, true, true},
		{StatusStarting, true, false},
		{StatusStopped, false, false},
		{ServerStatus("SOMETHING_NEW"), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			s := ServerHealthState{ServerStatus: tt.status}
			assert.Equal(t, tt.expectInclusive, s.IsRunning())
			assert.Equal(t, tt.expectStrict, s.Running(false))
		})
	}
}

func TestServerHealthStateDecodesHealthPayload(t *testing.T) {
	payload := `{
		"server_status": "WARNING",
		"bms_status": "NOT_CONNECTED",
		"server_address": "http://192.168.1.20:8000",
		"server_message": "BMS Shared Memory not available. Is the simulator in 3D?"
	}`

	var s ServerHealthState
	require.NoError(t, json.Unmarshal([]byte(payload), &s))

	assert.Equal(t, StatusWarning, s.ServerStatus)
	assert.Equal(t, BMSNotConnected, s.BMSStatus)
	assert.Equal(t, "http://192.168.1.20:8000", s.ServerAddress)
	assert.True(t, s.IsRunning())
}

func TestNormalize(t *testing.T) {
	s := ServerHealthState{ServerStatus: " running", BMSStatus: "connected "}.Normalize()
	assert.Equal(t, StatusRunning, s.ServerStatus)
	assert.Equal(t, BMSConnected, s.BMSStatus)
}

func TestGetInfoUnknownFallsBackToStopped(t *testing.T) {
	info := GetInfo(ServerStatus("bogus"))
	assert.Equal(t, StatusStopped, info.Name)
	assert.Equal(t, "Stopped", info.Label)
}

func TestProject(t *testing.T) {
	tests := []struct {
		name           string
		health         ServerHealthState
		processRunning bool
		expect         View
	}{
		{
			name: "running shows address and stop",
			health: ServerHealthState{
				ServerStatus:  StatusRunning,
				BMSStatus:     BMSConnected,
				ServerAddress: "http://10.0.0.2:8000",
				ServerMessage: "OK",
			},
			processRunning: true,
			expect: View{
				ServerText:     "Server: Running",
				ServerTone:     ToneOK,
				BMSText:        "BMS: Connected",
				BMSTone:        ToneOK,
				Address:        "http://10.0.0.2:8000",
				Message:        "OK",
				ActionLabel:    ActionStop,
				Running:        true,
				ProcessRunning: true,
			},
		},
		{
			name: "stopped hides stale address",
			health: ServerHealthState{
				ServerStatus:  StatusStopped,
				BMSStatus:     BMSNotAvailable,
				ServerAddress: "http://10.0.0.2:8000",
			},
			expect: View{
				ServerText:  "Server: Stopped",
				ServerTone:  ToneNeutral,
				BMSText:     "BMS: -",
				BMSTone:     ToneMuted,
				ActionLabel: ActionStart,
			},
		},
		{
			name:           "live handle without a poll yet still offers stop",
			health:         Stopped(),
			processRunning: true,
			expect: View{
				ServerText:     "Server: Stopped",
				ServerTone:     ToneNeutral,
				BMSText:        "BMS: -",
				BMSTone:        ToneMuted,
				ActionLabel:    ActionStop,
				ProcessRunning: true,
			},
		},
		{
			name:   "bms not connected",
			health: ServerHealthState{ServerStatus: StatusWarning, BMSStatus: BMSNotConnected},
			expect: View{
				ServerText:  "Server: Warning",
				ServerTone:  ToneWarn,
				BMSText:     "BMS: Not Found",
				BMSTone:     ToneNeutral,
				ActionLabel: ActionStop,
				Running:     true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Project(tt.health, tt.processRunning))
		})
	}
}
