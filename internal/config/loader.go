package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	AppDirName     = "bmsbridge"
	ConfigFileName = "launcher.json"
	EnvPrefix      = "BMSB"
)

// flagKeys maps command-line flags onto configuration keys
var flagKeys = map[string]string{
	"server-dir":          "server_dir",
	"server-url":          "server_url",
	"data-dir":            "data_dir",
	"poll-interval":       "poll_interval",
	"request-timeout":     "request_timeout",
	"stop-grace-period":   "stop_grace_period",
	"status-listen":       "status_listen",
	"auto-start":          "auto_start",
	"hide-while-starting": "hide_while_starting",
	"notifications":       "notifications",
	"log-level":           "logging.level",
	"log-to-file":         "logging.enable_file",
	"log-dir":             "logging.log_dir",
}

// Load builds the configuration from defaults, the config file, BMSB_*
// environment variables and flags, in increasing precedence. An empty
// configPath looks for launcher.json in the data directory; an explicit path
// must exist.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setupViper(v)

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	dataDir := v.GetString("data_dir")
	if dataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return nil, err
		}
		dataDir = dir
		v.Set("data_dir", dataDir)
	}

	explicit := configPath != ""
	if !explicit {
		configPath = filepath.Join(dataDir, ConfigFileName)
	}
	if err := readConfigFile(v, configPath, explicit); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.ServerDir == "" {
		dir, err := DefaultServerDir()
		if err != nil {
			return nil, err
		}
		cfg.ServerDir = dir
	}
	if abs, err := filepath.Abs(cfg.ServerDir); err == nil {
		cfg.ServerDir = abs
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViper configures environment handling and defaults
func setupViper(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	// logging.level -> BMSB_LOGGING_LEVEL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	d := DefaultConfig()
	v.SetDefault("server_dir", d.ServerDir)
	v.SetDefault("executable", d.Executable)
	v.SetDefault("pid_file", d.PIDFile)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("settings_file", d.SettingsFile)
	v.SetDefault("kneeboard_dir", d.KneeboardDir)
	v.SetDefault("server_url", d.ServerURL)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("stop_grace_period", d.StopGracePeriod)
	v.SetDefault("hide_while_starting", d.HideWhileStarting)
	v.SetDefault("auto_start", d.AutoStart)
	v.SetDefault("notifications", d.Notifications)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("status_listen", d.StatusListen)
	v.SetDefault("journal_limit", d.JournalLimit)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.enable_file", d.Logging.EnableFile)
	v.SetDefault("logging.enable_console", d.Logging.EnableConsole)
	v.SetDefault("logging.filename", d.Logging.Filename)
	v.SetDefault("logging.log_dir", d.Logging.LogDir)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.json_format", d.Logging.JSONFormat)
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

func readConfigFile(v *viper.Viper, path string, explicit bool) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	// Empty file (including /dev/null) is treated as no configuration
	if info.Size() == 0 || !info.Mode().IsRegular() {
		return nil
	}

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// DefaultDataDir returns the per-user directory for launcher state
func DefaultDataDir() (string, error) {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, AppDirName), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, "."+AppDirName), nil
}

// DefaultServerDir is the Server directory next to the launcher binary
func DefaultServerDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate launcher executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), DefaultServerDirName), nil
}
