package instance

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	CommandShow = "show"

	replyOK       = "ok"
	ioTimeout     = 2 * time.Second
	maxCommandLen = 64
)

// ErrAlreadyRunning means another launcher instance owns the endpoint
var ErrAlreadyRunning = errors.New("another launcher instance is already running")

// errEndpointBusy is returned by the platform listeners when a live owner answers
var errEndpointBusy = errors.New("endpoint in use")

// Guard is held by the primary launcher instance. Secondary launches connect
// to its endpoint and ask it to show its window.
type Guard struct {
	endpoint string
	listener net.Listener
	logger   *zap.SugaredLogger
	onShow   func()

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Acquire makes this process the primary instance for endpoint. onShow runs
// whenever a later launch signals "show". It returns ErrAlreadyRunning when
// another live instance holds the endpoint.
func Acquire(endpoint string, onShow func(), logger *zap.SugaredLogger) (*Guard, error) {
	ln, err := listen(endpoint, logger)
	if err != nil {
		if errors.Is(err, errEndpointBusy) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("failed to acquire instance endpoint %s: %w", endpoint, err)
	}

	if onShow == nil {
		onShow = func() {}
	}

	g := &Guard{
		endpoint: endpoint,
		listener: ln,
		logger:   logger,
		onShow:   onShow,
	}

	g.wg.Add(1)
	go g.serve()

	logger.Infow("Acquired single-instance endpoint", "endpoint", endpoint)
	return g, nil
}

// Endpoint returns the address the guard listens on
func (g *Guard) Endpoint() string {
	return g.endpoint
}

// Release stops serving and frees the endpoint
func (g *Guard) Release() error {
	var err error
	g.closeOnce.Do(func() {
		err = g.listener.Close()
		g.wg.Wait()
		g.logger.Debugw("Released single-instance endpoint", "endpoint", g.endpoint)
	})
	return err
}

func (g *Guard) serve() {
	defer g.wg.Done()

	for {
		conn, err := g.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			g.logger.Debugw("Instance endpoint accept failed", "error", err)
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return
		}
		g.handle(conn)
	}
}

func (g *Guard) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	line, err := bufio.NewReaderSize(conn, maxCommandLen).ReadString('\n')
	if err != nil {
		g.logger.Debugw("Failed to read instance command", "error", err)
		return
	}

	command := strings.TrimSpace(line)
	switch command {
	case CommandShow:
		g.logger.Info("Another launch requested the window")
		g.onShow()
		_, _ = fmt.Fprintln(conn, replyOK)
	default:
		g.logger.Warnw("Unknown instance command", "command", command)
		_, _ = fmt.Fprintf(conn, "error unknown command %q\n", command)
	}
}

// Signal sends command to the primary instance at endpoint and waits for
// its acknowledgement
func Signal(ctx context.Context, endpoint, command string) error {
	ctx, cancel := context.WithTimeout(ctx, ioTimeout)
	defer cancel()

	conn, err := dial(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("failed to reach running instance: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := fmt.Fprintln(conn, command); err != nil {
		return fmt.Errorf("failed to send %q: %w", command, err)
	}

	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("no reply from running instance: %w", err)
	}
	if reply = strings.TrimSpace(reply); reply != replyOK {
		return fmt.Errorf("running instance refused %q: %s", command, reply)
	}
	return nil
}
