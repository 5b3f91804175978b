//go:build windows

package monitor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"
)

// stillActive is the exit code GetExitCodeProcess reports for a live process
const stillActive = 259

// detachedProcAttr launches the server without a console window and in its
// own process group
func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.CREATE_NO_WINDOW,
	}
}

// isProcessAlive returns true if the OS reports the PID as running
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		// Access denied means the process exists
		return errors.Is(err, windows.ERROR_ACCESS_DENIED)
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == stillActive
}

// signalProcessTree terminates pid and its children with taskkill /T.
// Without force taskkill asks the tree to close; with force it kills.
func signalProcessTree(ctx context.Context, pid int, force bool) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}

	args := []string{"/PID", strconv.Itoa(pid), "/T"}
	if force {
		args = append(args, "/F")
	}
	return runTaskkill(ctx, args...)
}

// killByImageName force-kills every process tree running the server executable
func killByImageName(ctx context.Context, executable string) error {
	return runTaskkill(ctx, "/F", "/IM", filepath.Base(executable), "/T")
}

func runTaskkill(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "taskkill", args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true, CreationFlags: windows.CREATE_NO_WINDOW}

	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	msg := strings.ToLower(string(out))
	if strings.Contains(msg, "not found") || strings.Contains(msg, "no running instance") {
		return ErrStopTargetNotFound
	}
	return fmt.Errorf("%w: taskkill %s: %w (%s)", ErrTerminationFailed,
		strings.Join(args, " "), err, strings.TrimSpace(string(out)))
}
