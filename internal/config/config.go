package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"runtime"
	"time"
)

const (
	DefaultServerDirName   = "Server"
	DefaultPIDFile         = "server.pid"
	DefaultLogFile         = "bms_bridge.log"
	DefaultSettingsFile    = "config/settings.json"
	DefaultKneeboardDir    = "user_kneeboards"
	DefaultPollInterval    = 2 * time.Second
	DefaultRequestTimeout  = 1500 * time.Millisecond
	DefaultStopGracePeriod = 5 * time.Second
	DefaultJournalLimit    = 1000
)

// Config represents the launcher configuration
type Config struct {
	// Server layout. Relative file paths are resolved against ServerDir.
	ServerDir    string `json:"server_dir" mapstructure:"server_dir"`
	Executable   string `json:"executable" mapstructure:"executable"`
	PIDFile      string `json:"pid_file" mapstructure:"pid_file"`
	LogFile      string `json:"log_file" mapstructure:"log_file"`
	SettingsFile string `json:"settings_file" mapstructure:"settings_file"`
	KneeboardDir string `json:"kneeboard_dir" mapstructure:"kneeboard_dir"`

	// Empty means http://localhost:<server_port from settings.json>
	ServerURL string `json:"server_url,omitempty" mapstructure:"server_url"`

	PollInterval    time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
	RequestTimeout  time.Duration `json:"request_timeout" mapstructure:"request_timeout"`
	StopGracePeriod time.Duration `json:"stop_grace_period" mapstructure:"stop_grace_period"`

	// Whether closing the window during STARTING hides instead of exiting
	HideWhileStarting bool `json:"hide_while_starting" mapstructure:"hide_while_starting"`
	AutoStart         bool `json:"auto_start" mapstructure:"auto_start"`
	Notifications     bool `json:"notifications" mapstructure:"notifications"`

	DataDir      string `json:"data_dir" mapstructure:"data_dir"`
	StatusListen string `json:"status_listen,omitempty" mapstructure:"status_listen"`
	JournalLimit int    `json:"journal_limit" mapstructure:"journal_limit"`

	Logging *LogConfig `json:"logging,omitempty" mapstructure:"logging"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level         string `json:"level" mapstructure:"level"`
	EnableFile    bool   `json:"enable_file" mapstructure:"enable_file"`
	EnableConsole bool   `json:"enable_console" mapstructure:"enable_console"`
	Filename      string `json:"filename" mapstructure:"filename"`
	LogDir        string `json:"log_dir,omitempty" mapstructure:"log_dir"` // Custom log directory
	MaxSize       int    `json:"max_size" mapstructure:"max_size"`         // MB
	MaxBackups    int    `json:"max_backups" mapstructure:"max_backups"`   // number of backup files
	MaxAge        int    `json:"max_age" mapstructure:"max_age"`           // days
	Compress      bool   `json:"compress" mapstructure:"compress"`
	JSONFormat    bool   `json:"json_format" mapstructure:"json_format"`
}

// DefaultExecutable is the server binary name for this platform
func DefaultExecutable() string {
	if runtime.GOOS == "windows" {
		return "BMS_Bridge_Server.exe"
	}
	return "BMS_Bridge_Server"
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		ServerDir:    "", // Resolved next to the launcher binary by the loader
		Executable:   DefaultExecutable(),
		PIDFile:      DefaultPIDFile,
		LogFile:      DefaultLogFile,
		SettingsFile: DefaultSettingsFile,
		KneeboardDir: DefaultKneeboardDir,

		PollInterval:    DefaultPollInterval,
		RequestTimeout:  DefaultRequestTimeout,
		StopGracePeriod: DefaultStopGracePeriod,

		HideWhileStarting: true,
		AutoStart:         false,
		Notifications:     true,

		DataDir:      "", // Will be set to the OS config dir by loader
		JournalLimit: DefaultJournalLimit,

		Logging: &LogConfig{
			Level:         "info",
			EnableFile:    true,
			EnableConsole: true,
			Filename:      "launcher.log",
			MaxSize:       10, // 10MB
			MaxBackups:    5,  // 5 backup files
			MaxAge:        30, // 30 days
			Compress:      true,
			JSONFormat:    false,
		},
	}
}

// Validate fills zero values with defaults and rejects unusable settings
func (c *Config) Validate() error {
	defaults := DefaultConfig()

	if c.Executable == "" {
		c.Executable = defaults.Executable
	}
	if c.PIDFile == "" {
		c.PIDFile = defaults.PIDFile
	}
	if c.LogFile == "" {
		c.LogFile = defaults.LogFile
	}
	if c.SettingsFile == "" {
		c.SettingsFile = defaults.SettingsFile
	}
	if c.KneeboardDir == "" {
		c.KneeboardDir = defaults.KneeboardDir
	}
	if c.JournalLimit <= 0 {
		c.JournalLimit = defaults.JournalLimit
	}
	if c.Logging == nil {
		c.Logging = defaults.Logging
	}

	var errs []error
	if c.PollInterval < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("poll_interval must be at least 100ms, got %s", c.PollInterval))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.StopGracePeriod < 0 {
		errs = append(errs, fmt.Errorf("stop_grace_period must not be negative, got %s", c.StopGracePeriod))
	}
	if c.ServerURL != "" {
		u, err := url.Parse(c.ServerURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("server_url must be an http(s) URL, got %q", c.ServerURL))
		}
	}
	if c.StatusListen != "" {
		if _, _, err := net.SplitHostPort(c.StatusListen); err != nil {
			errs = append(errs, fmt.Errorf("status_listen must be host:port, got %q", c.StatusListen))
		}
	}

	return errors.Join(errs...)
}

// resolve joins p onto the server directory unless it is absolute
func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ServerDir, filepath.FromSlash(p))
}

// ExecutablePath returns the absolute server executable path
func (c *Config) ExecutablePath() string { return c.resolve(c.Executable) }

// PIDFilePath returns the PID file path
func (c *Config) PIDFilePath() string { return c.resolve(c.PIDFile) }

// LogFilePath returns the server log path
func (c *Config) LogFilePath() string { return c.resolve(c.LogFile) }

// SettingsFilePath returns the server settings.json path
func (c *Config) SettingsFilePath() string { return c.resolve(c.SettingsFile) }

// KneeboardDirPath returns the directory added kneeboard files are copied into
func (c *Config) KneeboardDirPath() string { return c.resolve(c.KneeboardDir) }

// JournalPath returns the lifecycle journal database path
func (c *Config) JournalPath() string { return filepath.Join(c.DataDir, "launcher.db") }

// HealthBaseURL returns the configured server URL, or localhost on port
func (c *Config) HealthBaseURL(port int) string {
	if c.ServerURL != "" {
		return c.ServerURL
	}
	return fmt.Sprintf("http://localhost:%d", port)
}
