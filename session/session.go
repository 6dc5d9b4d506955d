// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

// Package session orchestrates one headless browser session from cold
// start to exit: provision the environment, cross the privilege
// boundary, bring the virtual display up, run the application on it,
// and tear everything down again.
//
// The contract the bootstrap owes the application is strict ordering:
// the application is never launched until the display has proven
// itself ready, and the display outlives the application on every
// path out, including signals and bootstrap-level failures. The
// application's own exit code passes through verbatim; bootstrap
// failures use reserved sysexits codes so orchestrators can tell the
// two apart (the structured log carries the same distinction).
package session

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/soundstage-sh/soundstage/display"
	"github.com/soundstage-sh/soundstage/lib/clock"
	"github.com/soundstage-sh/soundstage/lib/config"
	"github.com/soundstage-sh/soundstage/lib/statefile"
	"github.com/soundstage-sh/soundstage/lib/version"
	"github.com/soundstage-sh/soundstage/privilege"
	"github.com/soundstage-sh/soundstage/profile"
	"github.com/soundstage-sh/soundstage/provision"
)

// Exit codes for bootstrap-level failures, following sysexits
// conventions so they stay clear of common application codes. The
// application's own exit code is returned unchanged, whatever it is.
const (
	// ExitDisplayUnavailable: the display server failed to start or
	// never became ready. The application was not launched.
	ExitDisplayUnavailable = 69 // EX_UNAVAILABLE

	// ExitPermission: the privilege boundary could not be crossed.
	ExitPermission = 77 // EX_NOPERM

	// ExitConfig: provisioning or environment publication failed.
	ExitConfig = 78 // EX_CONFIG

	// ExitLaunchFailure: the application process could not be
	// started at all (binary missing, not executable). Distinct from
	// every code an application that did run can produce through
	// exit status conventions.
	ExitLaunchFailure = 127
)

// Phase is the bootstrap lifecycle phase. Phases advance strictly
// forward; there is exactly one writer (Run's goroutine).
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDisplayStarting
	PhaseDisplayReady
	PhaseAppLaunched
	PhaseTerminated
)

// String returns the snake_case phase name used in logs and session
// reports.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDisplayStarting:
		return "display_starting"
	case PhaseDisplayReady:
		return "display_ready"
	case PhaseAppLaunched:
		return "app_launched"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Options override Bootstrap collaborators. Zero values select the
// production defaults; tests inject fakes.
type Options struct {
	// Clock drives readiness polling, stop escalation, and the
	// signal grace period. Defaults to the real clock.
	Clock clock.Clock

	// Switcher performs the privilege switch. Defaults to the real
	// credential syscalls.
	Switcher privilege.Switcher

	// Logger receives the session's structured log. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Bootstrap drives one session.
type Bootstrap struct {
	configuration *config.Config
	appArgv       []string
	launchProfile *profile.Profile

	provisioner *provision.Provisioner
	boundary    *privilege.Boundary
	clock       clock.Clock
	logger      *slog.Logger

	mu        sync.Mutex
	phase     Phase
	startedAt time.Time
	result    *provision.Result
}

// New assembles a Bootstrap for the given configuration and
// application argv. launchProfile may be nil.
func New(configuration *config.Config, appArgv []string, launchProfile *profile.Profile, options Options) *Bootstrap {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	var boundary *privilege.Boundary
	if options.Switcher != nil {
		boundary = privilege.New(options.Switcher, options.Logger.With("component", "privilege"))
	} else {
		boundary = privilege.NewOS(options.Logger.With("component", "privilege"))
	}

	return &Bootstrap{
		configuration: configuration,
		appArgv:       appArgv,
		launchProfile: launchProfile,
		provisioner:   provision.New(configuration, launchProfile, options.Logger.With("component", "provision")),
		boundary:      boundary,
		clock:         options.Clock,
		logger:        options.Logger,
	}
}

// Phase returns the current lifecycle phase.
func (b *Bootstrap) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

func (b *Bootstrap) setPhase(next Phase) {
	b.mu.Lock()
	b.phase = next
	b.mu.Unlock()
	b.logger.Debug("session phase", "phase", next.String())
}

// Run drives the session to completion and returns the process exit
// code. Cancel ctx to wind the session down: the application gets the
// termination signal first, with a bounded grace period, and the
// display is stopped only once the application is gone.
func (b *Bootstrap) Run(ctx context.Context) int {
	b.mu.Lock()
	b.startedAt = b.clock.Now()
	b.mu.Unlock()
	b.checkpoint(nil)

	code := b.run(ctx)

	b.setPhase(PhaseTerminated)
	b.checkpoint(&code)
	b.logger.Info("session terminated", "exit_code", code)
	return code
}

// run performs the ordered bringup. The deferred display stop fires
// before Run records termination, so the teardown always completes on
// every path out of this function.
func (b *Bootstrap) run(ctx context.Context) int {
	result, err := b.provisioner.Provision(ctx)
	if err != nil {
		b.logger.Error("provisioning failed", "error", err)
		return ExitConfig
	}
	b.mu.Lock()
	b.result = result
	b.mu.Unlock()

	if err := b.dropPrivileges(); err != nil {
		b.logger.Error("privilege drop failed", "error", err)
		return ExitPermission
	}

	// Publish into our own process before anything is spawned, so
	// descendants created outside Merged (automation drivers, shells
	// forked by the application) inherit the session variables too.
	if err := result.Env.Publish(); err != nil {
		b.logger.Error("publishing session environment failed", "error", err)
		return ExitConfig
	}

	b.setPhase(PhaseDisplayStarting)
	b.checkpoint(nil)

	displayConfig := b.configuration.Display
	supervisor := display.New(displayConfig.ServerBinary, displayConfig.SocketDir, b.clock, b.logger.With("component", "display"))
	handle, err := supervisor.Start(displayConfig.Number, display.Geometry{
		Width:  displayConfig.Width,
		Height: displayConfig.Height,
		Depth:  displayConfig.Depth,
	})
	if err != nil {
		b.logger.Error("display unavailable", "error", err)
		return ExitDisplayUnavailable
	}
	defer func() {
		if err := handle.Stop(); err != nil {
			b.logger.Warn("stopping display", "display", handle.Display(), "error", err)
		}
	}()

	if err := handle.WaitReady(ctx, b.configuration.ReadyTimeout()); err != nil {
		b.logger.Error("display unavailable", "error", err)
		return ExitDisplayUnavailable
	}

	b.setPhase(PhaseDisplayReady)
	b.checkpoint(nil)

	return b.runApp(ctx, result.Env)
}

// dropPrivileges crosses the privilege boundary. With app.run_as set,
// the target comes from the user database; otherwise the boundary
// latches at the current identity (the container already switched
// users at build time).
func (b *Bootstrap) dropPrivileges() error {
	var target privilege.Identity
	if name := b.configuration.App.RunAs; name != "" {
		resolved, err := privilege.ResolveUser(name)
		if err != nil {
			return err
		}
		target = resolved
	} else {
		target = privilege.Identity{UID: os.Geteuid(), GID: os.Getegid()}
	}
	return b.boundary.Drop(target)
}

// checkpoint writes the session report when a state file is
// configured. Report failures are logged, never fatal: the report is
// for observers, and the session itself keeps going.
func (b *Bootstrap) checkpoint(exitCode *int) {
	path := b.configuration.Session.StateFile
	if path == "" {
		return
	}

	b.mu.Lock()
	report := statefile.Report{
		State:            b.phase.String(),
		AppCommand:       b.appArgv,
		ExitCode:         exitCode,
		BootstrapVersion: version.Short(),
		StartedAt:        b.startedAt,
		UpdatedAt:        b.clock.Now(),
	}
	if b.result != nil {
		report.SessionID = b.result.SessionID
		report.Display = b.result.Display
		if b.result.Browser != nil {
			report.Browser = b.result.Browser.Path
			report.BrowserVersion = b.result.Browser.Version
			report.BrowserFingerprint = b.result.Browser.Fingerprint.String()
		}
	}
	b.mu.Unlock()

	if err := statefile.Write(path, report); err != nil {
		b.logger.Warn("writing session state", "path", path, "error", err)
	}
}
