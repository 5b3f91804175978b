package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bmsbridge-launcher/internal/state"
)

func scrape(t *testing.T, mm *MetricsManager) string {
	t.Helper()
	rec := httptest.NewRecorder()
	mm.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetricsInitialStatus(t *testing.T) {
	mm := NewMetricsManager(zap.NewNop().Sugar())

	body := scrape(t, mm)
	assert.Contains(t, body, "bmsbridge_launcher_uptime_seconds")
	assert.Contains(t, body, `bmsbridge_server_status{status="STOPPED"} 1`)
	assert.Contains(t, body, `bmsbridge_server_status{status="RUNNING"} 0`)
}

func TestMetricsObserve(t *testing.T) {
	mm := NewMetricsManager(zap.NewNop().Sugar())

	mm.Observe(state.Update{
		Event:    state.Event{Type: state.EventProcessStarted, PID: 10},
		Snapshot: state.Snapshot{Health: state.Starting(), ProcessRunning: true},
		Transition: &state.Transition{
			From: state.StatusStopped,
			To:   state.StatusStarting,
		},
	})
	mm.Observe(state.Update{
		Event:    state.Event{Type: state.EventOutput, Line: "Uvicorn running"},
		Snapshot: state.Snapshot{Health: state.Starting(), ProcessRunning: true},
	})
	mm.Observe(state.Update{
		Event:    state.Event{Type: state.EventPollError},
		Snapshot: state.Snapshot{Health: state.Starting(), ProcessRunning: true, Hidden: true},
	})

	body := scrape(t, mm)
	assert.Contains(t, body, `bmsbridge_server_process_events_total{event="process_started"} 1`)
	assert.Contains(t, body, `bmsbridge_server_status_transitions_total{from="STOPPED",to="STARTING"} 1`)
	assert.Contains(t, body, "bmsbridge_server_output_lines_total 1")
	assert.Contains(t, body, "bmsbridge_health_poll_errors_total 1")
	assert.Contains(t, body, "bmsbridge_server_process_running 1")
	assert.Contains(t, body, "bmsbridge_launcher_window_hidden 1")
	assert.Contains(t, body, `bmsbridge_server_status{status="STARTING"} 1`)
	assert.Contains(t, body, `bmsbridge_server_status{status="STOPPED"} 0`)
}

func TestMetricsMiddleware(t *testing.T) {
	mm := NewMetricsManager(zap.NewNop().Sugar())

	wrapped := mm.HTTPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/launcher/status", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	body := scrape(t, mm)
	assert.Contains(t, body, `bmsbridge_launcher_http_requests_total{method="GET",path="/api/launcher/status",status="I'm a teapot"} 1`)
}
