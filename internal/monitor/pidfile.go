package monitor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrInvalidPIDFile means the PID file exists but does not hold a usable PID
var ErrInvalidPIDFile = errors.New("invalid pid file")

// ReadPIDFile parses the decimal PID stored at path. A missing file returns
// an error matching fs.ErrNotExist.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidPIDFile, path, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("%w: %s: pid %d", ErrInvalidPIDFile, path, pid)
	}
	return pid, nil
}

// WritePIDFile records pid at path, creating the parent directory if needed
func WritePIDFile(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create pid file directory: %w", err)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0644)
}

// RemovePIDFile deletes the PID file; a missing file is not an error
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
