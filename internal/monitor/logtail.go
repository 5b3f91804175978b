package monitor

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	defaultTailFallback = 2 * time.Second

	// A larger burst, such as the backlog of an existing log on first
	// attach, is cut to its tail
	defaultMaxDrainLines = 200
)

// LogTailer follows an append-only log file from a byte offset.
//
// The offset survives Stop/Start so a restarted server's log continues where
// the last session left off. When the file is observed shorter than the
// offset (rotation or truncation) reading restarts at byte 0.
type LogTailer struct {
	path     string
	logger   *zap.SugaredLogger
	onLine   func(string)
	fallback time.Duration
	maxLines int

	// readMu guards offset and pending
	readMu  sync.Mutex
	offset  int64
	pending string

	runMu  sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewLogTailer creates a tailer for path. onLine receives every non-blank line.
func NewLogTailer(path string, logger *zap.SugaredLogger, onLine func(string)) *LogTailer {
	return &LogTailer{
		path:     filepath.Clean(path),
		logger:   logger,
		onLine:   onLine,
		fallback: defaultTailFallback,
		maxLines: defaultMaxDrainLines,
	}
}

// Offset returns the last-read byte offset
func (t *LogTailer) Offset() int64 {
	t.readMu.Lock()
	defer t.readMu.Unlock()
	return t.offset
}

// ReadNew reads everything appended since the last call and returns the
// complete, non-blank lines. A trailing line without a newline is held back
// until it is completed. A missing file yields no lines and no error.
func (t *LogTailer) ReadNew() ([]string, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	f, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	size := info.Size()
	if size < t.offset {
		t.logger.Debugw("Log file shrank, restarting from beginning",
			"path", t.path,
			"size", size,
			"offset", t.offset)
		t.offset = 0
		t.pending = ""
	}
	if size == t.offset {
		return nil, nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek log file: %w", err)
	}

	chunk, err := io.ReadAll(io.LimitReader(f, size-t.offset))
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	t.offset += int64(len(chunk))

	text := t.pending + string(chunk)
	t.pending = ""
	if !strings.HasSuffix(text, "\n") {
		if idx := strings.LastIndexByte(text, '\n'); idx >= 0 {
			t.pending = text[idx+1:]
			text = text[:idx+1]
		} else {
			t.pending = text
			return nil, nil
		}
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Start begins following the file. Calling Start while running is a no-op.
func (t *LogTailer) Start() {
	t.runMu.Lock()
	defer t.runMu.Unlock()

	if t.stopCh != nil {
		return
	}

	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	go t.follow(t.stopCh, t.doneCh)
}

// Stop stops following and waits for the follower to exit
func (t *LogTailer) Stop() {
	t.runMu.Lock()
	stopCh, doneCh := t.stopCh, t.doneCh
	t.stopCh, t.doneCh = nil, nil
	t.runMu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

// follow wakes on fsnotify events for the file's directory and on a slow
// fallback ticker in case notifications are missed
func (t *LogTailer) follow(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	var events <-chan fsnotify.Event
	var watchErrors <-chan error

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.logger.Warnw("File watcher unavailable, polling log file", "error", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(t.path)); err != nil {
			t.logger.Warnw("Cannot watch log directory, polling log file",
				"dir", filepath.Dir(t.path),
				"error", err)
		} else {
			events = watcher.Events
			watchErrors = watcher.Errors
		}
	}

	ticker := time.NewTicker(t.fallback)
	defer ticker.Stop()

	t.drain()

	for {
		select {
		case <-stopCh:
			t.drain()
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != t.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			t.drain()
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			t.logger.Debugw("Log watcher error", "error", err)
		case <-ticker.C:
			t.drain()
		}
	}
}

func (t *LogTailer) drain() {
	lines, err := t.ReadNew()
	if err != nil {
		t.logger.Warnw("Failed to read server log", "path", t.path, "error", err)
		return
	}
	if skipped := len(lines) - t.maxLines; skipped > 0 {
		t.onLine(fmt.Sprintf("--- %d earlier log lines skipped ---", skipped))
		lines = lines[skipped:]
	}
	for _, line := range lines {
		t.onLine(line)
	}
}
