//go:build !windows

package instance

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultEndpoint returns the socket path for name inside dataDir
func DefaultEndpoint(dataDir, name string) string {
	return filepath.Join(dataDir, name+".sock")
}

func listen(socketPath string, logger *zap.SugaredLogger) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return nil, fmt.Errorf("cannot create socket directory: %w", err)
	}

	if err := cleanupStaleSocket(socketPath, logger); err != nil {
		return nil, err
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, errEndpointBusy
		}
		return nil, fmt.Errorf("cannot create Unix socket: %w", err)
	}

	// User read/write only
	if err := os.Chmod(socketPath, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("cannot set socket permissions: %w", err)
	}

	return ln, nil
}

// cleanupStaleSocket removes a socket file left by a crashed launcher. A
// socket that still accepts connections belongs to a live instance.
func cleanupStaleSocket(socketPath string, logger *zap.SugaredLogger) error {
	if _, err := os.Lstat(socketPath); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	if err == nil {
		conn.Close()
		return errEndpointBusy
	}

	logger.Infow("Removing stale instance socket", "path", socketPath)
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cannot remove stale socket: %w", err)
	}
	return nil
}

func dial(ctx context.Context, socketPath string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", socketPath)
}
