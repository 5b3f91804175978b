package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bmsbridge-launcher/internal/cli/output"
	"bmsbridge-launcher/internal/config"
	"bmsbridge-launcher/internal/state"
	"bmsbridge-launcher/internal/storage"
)

func seedJournal(t *testing.T, dataDir string, records ...*storage.Record) *storage.Journal {
	t.Helper()
	cfg := &config.Config{DataDir: dataDir}
	j, err := storage.OpenJournal(cfg.JournalPath(), storage.Options{}, zap.NewNop().Sugar())
	require.NoError(t, err)
	for _, r := range records {
		require.NoError(t, j.Append(r))
	}
	return j
}

func TestHistoryWithoutJournal(t *testing.T) {
	l := newTestLayout(t)

	out, err := l.run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No lifecycle records yet.")
}

func TestHistoryReadsJournal(t *testing.T) {
	l := newTestLayout(t)
	base := time.Now().Add(-time.Minute)
	j := seedJournal(t, l.dataDir,
		&storage.Record{Timestamp: base, Kind: storage.KindStart, PID: 100},
		&storage.Record{Timestamp: base.Add(time.Second), Kind: storage.KindStatus, From: state.StatusStarting, To: state.StatusRunning},
		&storage.Record{Timestamp: base.Add(2 * time.Second), Kind: storage.KindStop, PID: 100},
	)
	require.NoError(t, j.Close())

	out, err := l.run(t, "history", "--json", "--limit", "2")
	require.NoError(t, err)

	var records []*storage.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records), out)
	require.Len(t, records, 2)
	assert.Equal(t, storage.KindStop, records[0].Kind)
	assert.Equal(t, storage.KindStatus, records[1].Kind)

	out, err = l.run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "STARTING -> RUNNING")
	assert.Equal(t, 4, strings.Count(strings.TrimSpace(out), "\n")+1, "header plus three rows")
}

func TestHistoryLockedWithoutStatusEndpoint(t *testing.T) {
	l := newTestLayout(t)
	j := seedJournal(t, l.dataDir)
	defer j.Close()

	_, err := l.run(t, "history")
	require.Error(t, err)
	var se output.StructuredError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, output.ErrCodeJournalLocked, se.Code)
}

func TestHistoryLockedFallsBackToStatusEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/launcher/history", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"records": [{"id": "01J0000000000000000000000A", "kind": "exit", "message": "exit status 1"}]}`))
	}))
	defer srv.Close()

	l := newTestLayout(t)
	j := seedJournal(t, l.dataDir)
	defer j.Close()

	t.Setenv("BMSB_STATUS_LISTEN", strings.TrimPrefix(srv.URL, "http://"))

	out, err := l.run(t, "history", "--json", "--limit", "5")
	require.NoError(t, err)

	var records []*storage.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records), out)
	require.Len(t, records, 1)
	assert.Equal(t, storage.KindExit, records[0].Kind)
	assert.Equal(t, "exit status 1", records[0].Message)
}
