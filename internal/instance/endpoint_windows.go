//go:build windows

package instance

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"strings"
	"time"

	winio "github.com/Microsoft/go-winio"
	"go.uber.org/zap"
	"golang.org/x/sys/windows"
)

// DefaultEndpoint returns the per-user named pipe for name. dataDir is unused
// on Windows.
func DefaultEndpoint(_ string, name string) string {
	return `\\.\pipe\` + name + "-" + currentUser()
}

func currentUser() string {
	name := os.Getenv("USERNAME")
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	if i := strings.LastIndexAny(name, `\/`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		name = "default"
	}
	return strings.ToLower(name)
}

func listen(pipePath string, logger *zap.SugaredLogger) (net.Listener, error) {
	// A pipe that answers belongs to a live instance
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	conn, err := winio.DialPipeContext(ctx, pipePath)
	cancel()
	if err == nil {
		conn.Close()
		return nil, errEndpointBusy
	}

	// Empty descriptor: current user only
	config := &winio.PipeConfig{
		SecurityDescriptor: "",
		MessageMode:        false,
		InputBufferSize:    4096,
		OutputBufferSize:   4096,
	}

	ln, err := winio.ListenPipe(pipePath, config)
	if err != nil {
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) || errors.Is(err, windows.ERROR_PIPE_BUSY) {
			return nil, errEndpointBusy
		}
		return nil, fmt.Errorf("cannot create named pipe: %w", err)
	}

	logger.Debugw("Named pipe listener created", "pipe", pipePath)
	return ln, nil
}

func dial(ctx context.Context, pipePath string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, pipePath)
}
