package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testLayout is a throwaway server and data directory pair
type testLayout struct {
	serverDir string
	dataDir   string
}

func newTestLayout(t *testing.T) testLayout {
	t.Helper()
	t.Setenv("BMSB_OUTPUT", "")
	t.Setenv("BMSB_STATUS_LISTEN", "")
	t.Setenv("BMSB_SERVER_URL", "")

	l := testLayout{
		serverDir: filepath.Join(t.TempDir(), "Server"),
		dataDir:   t.TempDir(),
	}
	require.NoError(t, os.MkdirAll(filepath.Join(l.serverDir, "config"), 0755))
	return l
}

func (l testLayout) settingsPath() string {
	return filepath.Join(l.serverDir, "config", "settings.json")
}

func (l testLayout) writeSettings(t *testing.T, doc string) {
	t.Helper()
	require.NoError(t, os.WriteFile(l.settingsPath(), []byte(doc), 0644))
}

// run executes the CLI against the layout and returns what it printed on stdout
func (l testLayout) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	base := []string{
		"--server-dir", l.serverDir,
		"--data-dir", l.dataDir,
		"--log-level", "error",
	}
	return executeCLI(t, append(args, base...)...)
}

func executeCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)

	oldStdout := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(&buf, r)
		close(done)
	}()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	runErr := cmd.Execute()

	w.Close()
	<-done
	r.Close()

	return buf.String(), runErr
}
