package logs

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appDirName = "bmsbridge"

// GetLogDir returns the standard launcher log directory for the current OS:
// %LOCALAPPDATA%\bmsbridge\logs, ~/Library/Logs/bmsbridge or
// $XDG_STATE_HOME/bmsbridge/logs
func GetLogDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		return windowsLogDir(os.Getenv("LOCALAPPDATA"), os.Getenv("USERPROFILE"))
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fallbackLogDir(), nil
		}
		return filepath.Join(homeDir, "Library", "Logs", appDirName), nil
	default:
		return linuxLogDir(os.Getenv("XDG_STATE_HOME"))
	}
}

func windowsLogDir(localAppData, userProfile string) (string, error) {
	if localAppData == "" {
		if userProfile == "" {
			return fallbackLogDir(), nil
		}
		localAppData = filepath.Join(userProfile, "AppData", "Local")
	}
	return filepath.Join(localAppData, appDirName, "logs"), nil
}

func linuxLogDir(stateHome string) (string, error) {
	if stateHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fallbackLogDir(), nil
		}
		stateHome = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(stateHome, appDirName, "logs"), nil
}

func fallbackLogDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appDirName, "logs")
	}
	return filepath.Join(homeDir, "."+appDirName, "logs")
}

// EnsureLogDir creates the log directory if it doesn't exist
func EnsureLogDir(logDir string) error {
	return os.MkdirAll(logDir, 0755)
}

// GetLogFilePathWithDir returns the full path for filename in logDir, or in
// the standard directory when logDir is empty. The directory is created.
func GetLogFilePathWithDir(logDir, filename string) (string, error) {
	if logDir == "" {
		dir, err := GetLogDir()
		if err != nil {
			return "", err
		}
		logDir = dir
	}

	if strings.HasPrefix(logDir, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		logDir = filepath.Join(homeDir, logDir[2:])
	}

	if err := EnsureLogDir(logDir); err != nil {
		return "", err
	}

	return filepath.Join(logDir, filename), nil
}
