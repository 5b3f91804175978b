package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bmsbridge-launcher/internal/observability"
	"bmsbridge-launcher/internal/state"
	"bmsbridge-launcher/internal/storage"
)

type fakeStatus struct {
	snap  state.Snapshot
	lines []string
}

func (f *fakeStatus) Snapshot() state.Snapshot { return f.snap }
func (f *fakeStatus) Lines() []string          { return f.lines }

type fakeHistory struct {
	records []*storage.Record
	err     error
	asked   int
}

func (f *fakeHistory) List(n int) ([]*storage.Record, error) {
	f.asked = n
	if f.err != nil {
		return nil, f.err
	}
	if n > 0 && len(f.records) > n {
		return f.records[:n], nil
	}
	return f.records, nil
}

func newTestServer(history HistorySource) (*Server, *fakeStatus) {
	health := state.ServerHealthState{
		ServerStatus:  state.StatusRunning,
		BMSStatus:     state.BMSConnected,
		ServerAddress: "192.168.1.20:8000",
	}
	status := &fakeStatus{
		snap: state.Snapshot{
			Health:         health,
			ProcessRunning: true,
			PID:            321,
			View:           state.Project(health, true),
		},
		lines: []string{"one", "two", "three"},
	}
	logger := zap.NewNop().Sugar()
	return NewServer(status, history, observability.NewMetricsManager(logger), "session-1", logger), status
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGetStatus(t *testing.T) {
	s, _ := newTestServer(nil)

	rec := get(t, s, "/api/launcher/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "session-1", body["session"])
	assert.Equal(t, float64(321), body["pid"])

	health := body["health"].(map[string]interface{})
	assert.Equal(t, "RUNNING", health["server_status"])

	view := body["view"].(map[string]interface{})
	assert.Equal(t, "192.168.1.20:8000", view["address"])
	assert.Equal(t, state.ActionStop, view["action_label"])
}

func TestGetLogs(t *testing.T) {
	s, _ := newTestServer(nil)

	rec := get(t, s, "/api/launcher/logs?tail=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Lines []string `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"two", "three"}, body.Lines)

	rec = get(t, s, "/api/launcher/logs?tail=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetHistory(t *testing.T) {
	history := &fakeHistory{}
	for i := 0; i < 5; i++ {
		history.records = append(history.records, &storage.Record{ID: fmt.Sprintf("r%d", i), Kind: storage.KindStart})
	}
	s, _ := newTestServer(history)

	rec := get(t, s, "/api/launcher/history?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, history.asked)

	var body struct {
		Records []*storage.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Records, 2)
	assert.Equal(t, "r0", body.Records[0].ID)

	get(t, s, "/api/launcher/history")
	assert.Equal(t, defaultHistoryLimit, history.asked)
}

func TestGetHistoryErrors(t *testing.T) {
	s, _ := newTestServer(nil)
	rec := get(t, s, "/api/launcher/history")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s, _ = newTestServer(&fakeHistory{err: errors.New("disk gone")})
	rec = get(t, s, "/api/launcher/history")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "failed to read journal", body.Error)
}

func TestMetricsRoute(t *testing.T) {
	s, _ := newTestServer(nil)
	get(t, s, "/api/launcher/status")

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bmsbridge_launcher_http_requests_total")
}

func TestStartAndShutdown(t *testing.T) {
	s, _ := newTestServer(nil)
	require.NoError(t, s.Start("127.0.0.1:0"))
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	resp, err := http.Get("http://" + s.Addr() + "/api/launcher/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "RUNNING")
}
