// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

// Soundstage-run boots one headless browser session: it provisions
// the environment, brings up a virtual display, launches the
// application on it, and tears the display down after the application
// exits. It is the container entry point; the soundstage CLI is the
// operator surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soundstage-sh/soundstage/lib/config"
	"github.com/soundstage-sh/soundstage/lib/logfile"
	"github.com/soundstage-sh/soundstage/lib/version"
	"github.com/soundstage-sh/soundstage/profile"
	"github.com/soundstage-sh/soundstage/session"
)

func main() {
	os.Exit(run())
}

// run drives one session to completion and returns the process exit
// code: the application's own code when it ran, one of the reserved
// bootstrap codes when it did not. Failures before the session starts
// (flags, config, profile) are configuration failures and share the
// session's EX_CONFIG code so orchestrators see one contract.
func run() int {
	var (
		configPath    string
		displayNumber int
		geometry      string
		readyTimeout  time.Duration
		gracePeriod   time.Duration
		logFilePath   string
		stateFilePath string
		profilePath   string
		showVersion   bool
	)

	flag.StringVar(&configPath, "config", "", "path to soundstage.yaml (default: SOUNDSTAGE_CONFIG if set, else built-in defaults)")
	flag.IntVar(&displayNumber, "display", -1, "X display number (overrides display.number)")
	flag.StringVar(&geometry, "geometry", "", "screen geometry as WxHxD, e.g. 1280x1024x24 (overrides display geometry)")
	flag.DurationVar(&readyTimeout, "ready-timeout", 0, "how long to wait for the display socket (overrides display.ready_timeout)")
	flag.DurationVar(&gracePeriod, "grace-period", 0, "application shutdown grace period before SIGKILL (overrides app.grace_period)")
	flag.StringVar(&logFilePath, "log-file", "", "tee the JSON log stream into this rotating file (overrides logging.file)")
	flag.StringVar(&stateFilePath, "state-file", "", "write session state reports to this file (overrides session.state_file)")
	flag.StringVar(&profilePath, "profile", "", "launch profile (JSONC) to apply (overrides session.profile)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("soundstage-run %s\n", version.Info())
		return 0
	}

	// Everything after the last flag is the application command. Flag
	// parsing stops at the first non-flag argument, so the
	// application's own flags pass through untouched ("--" works too).
	appArgv := flag.Args()
	if len(appArgv) == 0 {
		fmt.Fprintf(os.Stderr, "soundstage-run: application command required\n\n"+
			"usage: soundstage-run [flags] <command> [args...]\n")
		return session.ExitConfig
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "soundstage-run: %v\n", err)
		return session.ExitConfig
	}

	// Flags override config; config overrides defaults.
	if displayNumber >= 0 {
		cfg.Display.Number = displayNumber
	}
	if geometry != "" {
		width, height, depth, err := parseGeometry(geometry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "soundstage-run: %v\n", err)
			return session.ExitConfig
		}
		cfg.Display.Width = width
		cfg.Display.Height = height
		cfg.Display.Depth = depth
	}
	if readyTimeout > 0 {
		cfg.Display.ReadyTimeout = readyTimeout.String()
	}
	if gracePeriod > 0 {
		cfg.App.GracePeriod = gracePeriod.String()
	}
	if logFilePath != "" {
		cfg.Logging.File = logFilePath
	}
	if stateFilePath != "" {
		cfg.Session.StateFile = stateFilePath
	}
	if profilePath != "" {
		cfg.Session.Profile = profilePath
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "soundstage-run: invalid configuration: %v\n", err)
		return session.ExitConfig
	}

	logOutput, closeLog, err := openLogOutput(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "soundstage-run: %v\n", err)
		return session.ExitConfig
	}
	defer closeLog()

	logger := slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting soundstage-run",
		"version", version.Info(),
	)
	logger.Info("session configuration",
		"display", cfg.Display.Name(),
		"geometry", fmt.Sprintf("%dx%dx%d", cfg.Display.Width, cfg.Display.Height, cfg.Display.Depth),
		"app", appArgv[0],
	)

	var launchProfile *profile.Profile
	if cfg.Session.Profile != "" {
		launchProfile, err = profile.ReadFile(cfg.Session.Profile)
		if err != nil {
			logger.Error("loading launch profile", "path", cfg.Session.Profile, "error", err)
			return session.ExitConfig
		}
		logger.Info("launch profile loaded",
			"profile", launchProfile.Name,
			"browser_flags", len(launchProfile.BrowserFlags),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootstrap := session.New(cfg, appArgv, launchProfile, session.Options{Logger: logger})
	return bootstrap.Run(ctx)
}

// loadConfig resolves the configuration source: the --config flag
// wins, then SOUNDSTAGE_CONFIG, then built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		return cfg, nil
	}
	if os.Getenv("SOUNDSTAGE_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}

// parseGeometry parses a WxHxD geometry string like "1280x1024x24".
func parseGeometry(s string) (int, int, int, error) {
	var width, height, depth int
	if _, err := fmt.Sscanf(s, "%dx%dx%d", &width, &height, &depth); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid geometry %q (want WxHxD, e.g. 1280x1024x24)", s)
	}
	return width, height, depth, nil
}

// openLogOutput returns the log destination: stderr alone, or stderr
// teed into the configured rotating log file. The returned closer
// releases the file writer; it is a no-op for plain stderr.
func openLogOutput(cfg *config.Config) (io.Writer, func(), error) {
	if cfg.Logging.File == "" {
		return os.Stderr, func() {}, nil
	}
	writer, err := logfile.New(cfg.Logging.File, cfg.Logging.MaxSize, cfg.Logging.MaxBackups)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	closer := func() {
		if err := writer.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "soundstage-run: closing log file: %v\n", err)
		}
	}
	return io.MultiWriter(os.Stderr, writer), closer, nil
}
