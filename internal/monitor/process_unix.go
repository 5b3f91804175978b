//go:build !windows

package monitor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

// detachedProcAttr puts the server in its own process group so the whole
// tree can be signalled and the launcher's terminal signals don't reach it
func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// isProcessAlive returns true if the OS reports the PID as running
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}

	// EPERM means the process exists but we lack permissions
	return !errors.Is(err, unix.ESRCH)
}

// signalProcessTree signals the process group led by pid, falling back to
// the single process when no such group exists
func signalProcessTree(_ context.Context, pid int, force bool) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}

	sig := unix.SIGTERM
	if force {
		sig = unix.SIGKILL
	}

	if err := unix.Kill(-pid, sig); err != nil {
		if !errors.Is(err, unix.ESRCH) && !errors.Is(err, unix.EPERM) {
			return fmt.Errorf("%w: %w", ErrTerminationFailed, err)
		}
		if err := unix.Kill(pid, sig); err != nil {
			if errors.Is(err, unix.ESRCH) {
				return ErrStopTargetNotFound
			}
			return fmt.Errorf("%w: %w", ErrTerminationFailed, err)
		}
	}
	return nil
}

// killByImageName terminates every process whose name matches the server
// executable. pkill exits 1 when nothing matched.
func killByImageName(ctx context.Context, executable string) error {
	name := filepath.Base(executable)
	if len(name) > 15 {
		// procps matches against the 15-char comm field
		name = name[:15]
	}

	cmd := exec.CommandContext(ctx, "pkill", "-TERM", "-x", name)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return ErrStopTargetNotFound
	}
	return fmt.Errorf("%w: pkill %s: %w (%s)", ErrTerminationFailed, name, err, string(out))
}
