package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func appendFile(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestLogTailerMissingFile(t *testing.T) {
	tailer := NewLogTailer(filepath.Join(t.TempDir(), "bms_bridge.log"), zap.NewNop().Sugar(), func(string) {})

	lines, err := tailer.ReadNew()
	assert.NoError(t, err)
	assert.Empty(t, lines)
	assert.Zero(t, tailer.Offset())
}

func TestLogTailerReadsOnlyNewLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bms_bridge.log")
	tailer := NewLogTailer(path, zap.NewNop().Sugar(), func(string) {})

	appendFile(t, path, "first\r\n\nsecond\n")
	lines, err := tailer.ReadNew()
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, lines)

	lines, err = tailer.ReadNew()
	require.NoError(t, err)
	assert.Empty(t, lines)

	appendFile(t, path, "third\n")
	lines, err = tailer.ReadNew()
	require.NoError(t, err)
	assert.Equal(t, []string{"third"}, lines)
}

func TestLogTailerHoldsPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bms_bridge.log")
	tailer := NewLogTailer(path, zap.NewNop().Sugar(), func(string) {})

	appendFile(t, path, "complete\npart")
	lines, err := tailer.ReadNew()
	require.NoError(t, err)
	assert.Equal(t, []string{"complete"}, lines)

	appendFile(t, path, "ial\n")
	lines, err = tailer.ReadNew()
	require.NoError(t, err)
	assert.Equal(t, []string{"partial"}, lines)
}

func TestLogTailerRestartsAfterTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bms_bridge.log")
	tailer := NewLogTailer(path, zap.NewNop().Sugar(), func(string) {})

	appendFile(t, path, "old line one\nold line two\n")
	_, err := tailer.ReadNew()
	require.NoError(t, err)
	require.Positive(t, tailer.Offset())

	require.NoError(t, os.WriteFile(path, []byte("new\n"), 0644))
	lines, err := tailer.ReadNew()
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, lines)
	assert.Equal(t, int64(4), tailer.Offset())
}

func TestLogTailerFollow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bms_bridge.log")

	var mu sync.Mutex
	var got []string
	tailer := NewLogTailer(path, zap.NewNop().Sugar(), func(line string) {
		mu.Lock()
		got = append(got, line)
		mu.Unlock()
	})
	tailer.fallback = 50 * time.Millisecond

	tailer.Start()
	tailer.Start() // no-op while running

	appendFile(t, path, "hello\nworld\n")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	tailer.Stop()
	tailer.Stop()

	// Offset survives a stop/start cycle
	appendFile(t, path, "again\n")
	tailer.Start()
	defer tailer.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"hello", "world", "again"}, got)
}

func TestLogTailerCutsLargeBacklog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bms_bridge.log")
	var backlog string
	for i := 1; i <= 250; i++ {
		backlog += fmt.Sprintf("line %d\n", i)
	}
	appendFile(t, path, backlog)

	var got []string
	tailer := NewLogTailer(path, zap.NewNop().Sugar(), func(line string) { got = append(got, line) })
	tailer.drain()

	require.Len(t, got, defaultMaxDrainLines+1)
	assert.Equal(t, "--- 50 earlier log lines skipped ---", got[0])
	assert.Equal(t, "line 51", got[1])
	assert.Equal(t, "line 250", got[len(got)-1])

	// Later appends arrive whole
	got = nil
	appendFile(t, path, "line 251\n")
	tailer.drain()
	assert.Equal(t, []string{"line 251"}, got)
}
