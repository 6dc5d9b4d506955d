// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults used when the config file leaves a value unset. Exposed so
// flag definitions in the binaries can share them.
const (
	DefaultDisplayNumber = 99
	DefaultWidth         = 1024
	DefaultHeight        = 768
	DefaultDepth         = 16
	DefaultReadyTimeout  = 10 * time.Second
	DefaultGracePeriod   = 10 * time.Second
	DefaultServerBinary  = "Xvfb"
	DefaultSocketDir     = "/tmp/.X11-unix"
	DefaultVersionEnv    = "CHROME_VERSION"
	DefaultUnbufferedEnv = "PYTHONUNBUFFERED"
	DefaultLogMaxSize    = 1 << 20
	DefaultLogMaxBackups = 5
)

// DefaultBrowserCandidates are the binary names probed, in order, when
// browser.binary is not set. These cover the Debian/Ubuntu Chrome and
// Chromium package layouts.
var DefaultBrowserCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
}

// Config is the master configuration for Soundstage.
type Config struct {
	// Display configures the virtual display server.
	Display DisplayConfig `yaml:"display"`

	// Browser configures browser detection.
	Browser BrowserConfig `yaml:"browser"`

	// App configures the application process launch.
	App AppConfig `yaml:"app"`

	// Logging configures the optional log file.
	Logging LoggingConfig `yaml:"logging"`

	// Session configures bootstrap-level session artifacts.
	Session SessionConfig `yaml:"session"`
}

// DisplayConfig configures the virtual display server.
type DisplayConfig struct {
	// Number is the X display number (99 means DISPLAY=:99).
	Number int `yaml:"number"`

	// Width, Height, and Depth define the screen geometry.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	Depth  int `yaml:"depth"`

	// ReadyTimeout bounds the wait for the display socket to appear
	// after the server process starts. Duration string, e.g. "10s".
	ReadyTimeout string `yaml:"ready_timeout"`

	// ServerBinary is the display server binary. A bare name is
	// resolved through PATH; an absolute path is used as-is.
	ServerBinary string `yaml:"server_binary"`

	// SocketDir is where the X server creates its socket. The
	// readiness probe watches this directory. Changing it from the X11
	// default is only useful in tests.
	SocketDir string `yaml:"socket_dir"`
}

// Name returns the X display name for the configured number: display
// 99 becomes ":99".
func (d DisplayConfig) Name() string {
	return fmt.Sprintf(":%d", d.Number)
}

// BrowserConfig configures browser version detection.
type BrowserConfig struct {
	// Binary is the explicit browser binary path. Empty means probe
	// Candidates through PATH.
	Binary string `yaml:"binary"`

	// Candidates are binary names probed in order when Binary is
	// empty.
	Candidates []string `yaml:"candidates"`

	// Optional downgrades detection failure from fatal to a logged
	// warning. Leave false unless the application genuinely does not
	// pin its automation driver to the browser version.
	Optional bool `yaml:"optional"`

	// VersionEnv is the environment variable name that carries the
	// detected major version to the application.
	VersionEnv string `yaml:"version_env"`
}

// AppConfig configures the application process launch.
type AppConfig struct {
	// WorkingDir is the application's working directory. Empty
	// inherits the bootstrap's.
	WorkingDir string `yaml:"working_dir"`

	// RunAs is the user the bootstrap drops to before starting the
	// display and the application. Empty means the current identity
	// is kept (the container already switched users at build time);
	// the privilege boundary still latches.
	RunAs string `yaml:"run_as"`

	// UnbufferedEnv is the environment variable name set to "1" to
	// disable output buffering in the application runtime.
	UnbufferedEnv string `yaml:"unbuffered_env"`

	// GracePeriod bounds how long the application gets between the
	// forwarded termination signal and SIGKILL. Duration string.
	GracePeriod string `yaml:"grace_period"`
}

// LoggingConfig configures the optional rotating log file.
type LoggingConfig struct {
	// File receives a copy of the JSON log stream. Empty disables
	// file logging.
	File string `yaml:"file"`

	// MaxSize is the rotation threshold in bytes.
	MaxSize int64 `yaml:"max_size"`

	// MaxBackups is how many rotated files are kept.
	MaxBackups int `yaml:"max_backups"`
}

// SessionConfig configures bootstrap-level session artifacts.
type SessionConfig struct {
	// StateFile is where the session state report is written. Empty
	// disables state reporting.
	StateFile string `yaml:"state_file"`

	// Profile is the path to a launch profile (JSONC). Empty means no
	// profile.
	Profile string `yaml:"profile"`
}

// Default returns the default configuration. Defaults are a working
// base for the common container layout; the config file and flags
// refine them.
func Default() *Config {
	return &Config{
		Display: DisplayConfig{
			Number:       DefaultDisplayNumber,
			Width:        DefaultWidth,
			Height:       DefaultHeight,
			Depth:        DefaultDepth,
			ReadyTimeout: DefaultReadyTimeout.String(),
			ServerBinary: DefaultServerBinary,
			SocketDir:    DefaultSocketDir,
		},
		Browser: BrowserConfig{
			Binary:     "",
			Candidates: append([]string(nil), DefaultBrowserCandidates...),
			Optional:   false,
			VersionEnv: DefaultVersionEnv,
		},
		App: AppConfig{
			WorkingDir:    "",
			UnbufferedEnv: DefaultUnbufferedEnv,
			GracePeriod:   DefaultGracePeriod.String(),
		},
		Logging: LoggingConfig{
			File:       "",
			MaxSize:    DefaultLogMaxSize,
			MaxBackups: DefaultLogMaxBackups,
		},
		Session: SessionConfig{
			StateFile: "",
			Profile:   "",
		},
	}
}

// Load loads configuration from the SOUNDSTAGE_CONFIG environment
// variable. There are no fallbacks — if SOUNDSTAGE_CONFIG is not set,
// this fails. Binaries that accept --config call LoadFile directly.
func Load() (*Config, error) {
	configPath := os.Getenv("SOUNDSTAGE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("SOUNDSTAGE_CONFIG environment variable not set; " +
			"set it to the path of your soundstage.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override config values. The only expansion performed is
// ${VAR}/${VAR:-default} in path-valued fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()

	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// path-valued fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Display.SocketDir = expandVars(c.Display.SocketDir, vars)
	c.Display.ServerBinary = expandVars(c.Display.ServerBinary, vars)
	c.Browser.Binary = expandVars(c.Browser.Binary, vars)
	c.App.WorkingDir = expandVars(c.App.WorkingDir, vars)
	c.Logging.File = expandVars(c.Logging.File, vars)
	c.Session.StateFile = expandVars(c.Session.StateFile, vars)
	c.Session.Profile = expandVars(c.Session.Profile, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Display.Number < 0 {
		errs = append(errs, fmt.Errorf("display.number must be non-negative, got %d", c.Display.Number))
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		errs = append(errs, fmt.Errorf("display geometry must be positive, got %dx%d",
			c.Display.Width, c.Display.Height))
	}
	if c.Display.Depth <= 0 {
		errs = append(errs, fmt.Errorf("display.depth must be positive, got %d", c.Display.Depth))
	}
	if c.Display.ServerBinary == "" {
		errs = append(errs, fmt.Errorf("display.server_binary is required"))
	}
	if c.Display.SocketDir == "" {
		errs = append(errs, fmt.Errorf("display.socket_dir is required"))
	}
	if _, err := time.ParseDuration(c.Display.ReadyTimeout); err != nil {
		errs = append(errs, fmt.Errorf("display.ready_timeout: %w", err))
	}

	if c.Browser.Binary == "" && len(c.Browser.Candidates) == 0 {
		errs = append(errs, fmt.Errorf("browser.binary or browser.candidates is required"))
	}
	if c.Browser.VersionEnv == "" {
		errs = append(errs, fmt.Errorf("browser.version_env is required"))
	}

	if c.App.UnbufferedEnv == "" {
		errs = append(errs, fmt.Errorf("app.unbuffered_env is required"))
	}
	if _, err := time.ParseDuration(c.App.GracePeriod); err != nil {
		errs = append(errs, fmt.Errorf("app.grace_period: %w", err))
	}

	if c.Logging.File != "" {
		if c.Logging.MaxSize <= 0 {
			errs = append(errs, fmt.Errorf("logging.max_size must be positive, got %d", c.Logging.MaxSize))
		}
		if c.Logging.MaxBackups < 0 {
			errs = append(errs, fmt.Errorf("logging.max_backups must be non-negative, got %d", c.Logging.MaxBackups))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ReadyTimeout returns the parsed display.ready_timeout. On a config
// that has not passed Validate, an unparseable value falls back to
// the default.
func (c *Config) ReadyTimeout() time.Duration {
	d, err := time.ParseDuration(c.Display.ReadyTimeout)
	if err != nil {
		return DefaultReadyTimeout
	}
	return d
}

// GracePeriod returns the parsed app.grace_period, with the same
// fallback behavior as ReadyTimeout.
func (c *Config) GracePeriod() time.Duration {
	d, err := time.ParseDuration(c.App.GracePeriod)
	if err != nil {
		return DefaultGracePeriod
	}
	return d
}

// ServerBinaryPath resolves the display server binary. A bare name is
// looked up through PATH; a name containing a path separator is
// checked directly for existence and the executable bit.
func (c *Config) ServerBinaryPath() (string, error) {
	return resolveBinary(c.Display.ServerBinary)
}

// BrowserCandidates returns the list of browser binaries to probe: the
// explicit binary alone when set, otherwise the candidate names.
func (c *Config) BrowserCandidates() []string {
	if c.Browser.Binary != "" {
		return []string{c.Browser.Binary}
	}
	return c.Browser.Candidates
}

func resolveBinary(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return path, nil
}
