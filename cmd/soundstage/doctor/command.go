// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/soundstage-sh/soundstage/cmd/soundstage/cli"
	"github.com/soundstage-sh/soundstage/cmd/soundstage/cli/doctor"
	"github.com/soundstage-sh/soundstage/lib/config"
	"github.com/soundstage-sh/soundstage/preflight"
	"github.com/soundstage-sh/soundstage/privilege"
	"github.com/soundstage-sh/soundstage/profile"
	"github.com/soundstage-sh/soundstage/provision"
)

// commandParams holds the parameters for the doctor command.
type commandParams struct {
	configPath string
	fix        bool
	dryRun     bool
	smoke      bool
	json       bool
}

// Command returns the "soundstage doctor" command for diagnosing the
// session environment.
func Command() *cli.Command {
	var params commandParams

	return &cli.Command{
		Name:    "doctor",
		Summary: "Diagnose the session environment",
		Description: `Check everything a session needs before it runs: the configuration,
the display server binary, the X11 socket directory, the browser
installation, the launch profile, the state file location, and the
run_as user.

Use --fix to repair fixable issues (missing directories). Creating the
X11 socket directory requires root; the doctor groups such fixes and
suggests re-running with sudo.

Use --smoke to additionally drive a real headless browser through a
navigation round-trip. This catches broken installations that still
report a version: missing shared libraries, sandbox misconfiguration.

Use --json for machine-readable output suitable for monitoring or CI.`,
		Usage: "soundstage doctor [flags]",
		Examples: []cli.Example{
			{
				Description: "Check session environment health",
				Command:     "soundstage doctor",
			},
			{
				Description: "Repair missing directories",
				Command:     "sudo soundstage doctor --fix",
			},
			{
				Description: "Preview repairs without executing",
				Command:     "soundstage doctor --fix --dry-run",
			},
			{
				Description: "Full check including a browser launch",
				Command:     "soundstage doctor --smoke",
			},
			{
				Description: "Machine-readable output",
				Command:     "soundstage doctor --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("doctor", pflag.ContinueOnError)
			flagSet.StringVar(&params.configPath, "config", "",
				"configuration file (default: $SOUNDSTAGE_CONFIG, else built-in defaults)")
			flagSet.BoolVar(&params.fix, "fix", false,
				"repair fixable issues")
			flagSet.BoolVar(&params.dryRun, "dry-run", false,
				"with --fix, preview repairs without executing")
			flagSet.BoolVar(&params.smoke, "smoke", false,
				"launch a headless browser and verify a navigation round-trip")
			flagSet.BoolVar(&params.json, "json", false,
				"machine-readable JSON output")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if params.dryRun && !params.fix {
				return fmt.Errorf("--dry-run requires --fix")
			}

			timeout := 30 * time.Second
			if params.smoke {
				// First --smoke run may download the playwright driver.
				timeout = 120 * time.Second
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			logger := cli.NewCommandLogger().With("command", "doctor")
			return runDoctor(ctx, params, logger)
		},
	}
}

func runDoctor(ctx context.Context, params commandParams, logger *slog.Logger) error {
	const maxFixIterations = 3
	repairedNames := make(map[string]bool)
	var aggregateOutcome doctor.Outcome
	var results []doctor.Result

	for iteration := 0; iteration < maxFixIterations; iteration++ {
		results = checkSession(ctx, params, logger)

		if !params.fix {
			break
		}

		for _, result := range results {
			if result.Status == doctor.StatusFail {
				repairedNames[result.Name] = true
			}
		}

		outcome := doctor.ExecuteFixes(ctx, results, params.dryRun)
		if outcome.PermissionDenied {
			aggregateOutcome.PermissionDenied = true
		}
		aggregateOutcome.ElevatedSkipped += outcome.ElevatedSkipped
		if outcome.FixedCount == 0 || params.dryRun {
			break
		}
		// Directory fixes apply synchronously; re-check immediately.
	}

	doctor.MarkRepaired(results, repairedNames)

	if params.json {
		if err := cli.WriteJSON(doctor.BuildJSON(results, params.dryRun, aggregateOutcome)); err != nil {
			return err
		}
		for _, result := range results {
			if result.Status == doctor.StatusFail {
				return &cli.ExitError{Code: 1}
			}
		}
		return nil
	}

	return doctor.PrintChecklist(results, params.fix, params.dryRun, aggregateOutcome)
}

// checkState accumulates discovered state across checks so later checks
// can use results from earlier ones without repeating work.
type checkState struct {
	// configuration is set when the configuration check succeeds. Later
	// checks skip when it is nil.
	configuration *config.Config

	// browserPath is the resolved browser binary, for the smoke test.
	browserPath string

	// browserFlags come from the launch profile, for the smoke test.
	browserFlags []string
}

// checkSession runs all session environment checks and returns results.
func checkSession(ctx context.Context, params commandParams, logger *slog.Logger) []doctor.Result {
	var state checkState
	var results []doctor.Result

	// Section 1: Configuration.
	results = append(results, checkConfiguration(params, &state)...)

	// Section 2: Display server.
	results = append(results, checkDisplayServer(&state)...)
	results = append(results, checkSocketDirectory(&state)...)

	// Section 3: Browser.
	results = append(results, checkBrowser(ctx, &state, logger)...)

	// Section 4: Session artifacts.
	results = append(results, checkLaunchProfile(&state)...)
	results = append(results, checkStateFile(&state)...)
	results = append(results, checkRunAs(&state)...)

	// Section 5: Browser smoke test (opt-in).
	results = append(results, checkSmoke(params, &state)...)

	return results
}

// --- Section 1: Configuration ---

func checkConfiguration(params commandParams, state *checkState) []doctor.Result {
	configPath := params.configPath
	if configPath == "" {
		configPath = os.Getenv("SOUNDSTAGE_CONFIG")
	}
	if configPath == "" {
		// No config file is a supported setup: the defaults describe
		// the common container layout.
		state.configuration = config.Default()
		return []doctor.Result{doctor.Pass("configuration",
			"built-in defaults (no --config and SOUNDSTAGE_CONFIG unset)")}
	}

	configuration, err := config.LoadFile(configPath)
	if err != nil {
		return []doctor.Result{doctor.Fail("configuration",
			fmt.Sprintf("cannot load %s: %v", configPath, err))}
	}
	if err := configuration.Validate(); err != nil {
		return []doctor.Result{doctor.Fail("configuration",
			fmt.Sprintf("%s is invalid: %v", configPath, err))}
	}

	state.configuration = configuration
	return []doctor.Result{doctor.Pass("configuration", configPath)}
}

// --- Section 2: Display server ---

func checkDisplayServer(state *checkState) []doctor.Result {
	if state.configuration == nil {
		return []doctor.Result{doctor.Skip("display server",
			"skipped: configuration not loaded")}
	}

	binaryPath, err := state.configuration.ServerBinaryPath()
	if err != nil {
		return []doctor.Result{doctor.Fail("display server",
			fmt.Sprintf("%s not found — install the X virtual framebuffer (e.g. apt install xvfb)",
				state.configuration.Display.ServerBinary))}
	}

	return []doctor.Result{doctor.Pass("display server", binaryPath)}
}

func checkSocketDirectory(state *checkState) []doctor.Result {
	if state.configuration == nil {
		return []doctor.Result{doctor.Skip("display socket directory",
			"skipped: configuration not loaded")}
	}

	socketDir := state.configuration.Display.SocketDir

	info, err := os.Stat(socketDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []doctor.Result{doctor.FailElevated("display socket directory",
			fmt.Sprintf("%s does not exist", socketDir),
			fmt.Sprintf("create %s with mode 1777", socketDir),
			func(ctx context.Context) error {
				if err := os.MkdirAll(socketDir, 0o755); err != nil {
					return err
				}
				return os.Chmod(socketDir, 0o777|os.ModeSticky)
			})}
	}
	if err != nil {
		return []doctor.Result{doctor.Fail("display socket directory",
			fmt.Sprintf("cannot stat %s: %v", socketDir, err))}
	}
	if !info.IsDir() {
		return []doctor.Result{doctor.Fail("display socket directory",
			fmt.Sprintf("%s exists but is not a directory", socketDir))}
	}

	if err := unix.Access(socketDir, unix.W_OK); err != nil {
		return []doctor.Result{doctor.FailElevated("display socket directory",
			fmt.Sprintf("%s is not writable by uid %d", socketDir, os.Geteuid()),
			fmt.Sprintf("chmod 1777 %s", socketDir),
			func(ctx context.Context) error {
				return os.Chmod(socketDir, 0o777|os.ModeSticky)
			})}
	}

	return []doctor.Result{doctor.Pass("display socket directory",
		fmt.Sprintf("%s exists, writable", socketDir))}
}

// --- Section 3: Browser ---

func checkBrowser(ctx context.Context, state *checkState, logger *slog.Logger) []doctor.Result {
	if state.configuration == nil {
		return []doctor.Result{doctor.Skip("browser",
			"skipped: configuration not loaded")}
	}

	result, err := provision.New(state.configuration, nil, logger).Provision(ctx)
	if err != nil {
		return []doctor.Result{doctor.Fail("browser",
			fmt.Sprintf("%v — install Chrome/Chromium or set browser.binary", err))}
	}
	if result.Browser == nil {
		return []doctor.Result{doctor.Warn("browser",
			"no browser found (browser.optional is set) — sessions will run browserless")}
	}

	state.browserPath = result.Browser.Path
	return []doctor.Result{doctor.Pass("browser",
		fmt.Sprintf("%s (major version %s)", result.Browser.Path, result.Browser.Version))}
}

// --- Section 4: Session artifacts ---

func checkLaunchProfile(state *checkState) []doctor.Result {
	if state.configuration == nil {
		return []doctor.Result{doctor.Skip("launch profile",
			"skipped: configuration not loaded")}
	}

	profilePath := state.configuration.Session.Profile
	if profilePath == "" {
		return []doctor.Result{doctor.Skip("launch profile",
			"skipped: no profile configured")}
	}

	launchProfile, err := profile.ReadFile(profilePath)
	if err != nil {
		return []doctor.Result{doctor.Fail("launch profile", err.Error())}
	}

	state.browserFlags = launchProfile.BrowserFlags
	return []doctor.Result{doctor.Pass("launch profile",
		fmt.Sprintf("%s (%d browser flags, %d env vars)",
			launchProfile.Name, len(launchProfile.BrowserFlags), len(launchProfile.Env)))}
}

func checkStateFile(state *checkState) []doctor.Result {
	if state.configuration == nil {
		return []doctor.Result{doctor.Skip("state file",
			"skipped: configuration not loaded")}
	}

	stateFile := state.configuration.Session.StateFile
	if stateFile == "" {
		return []doctor.Result{doctor.Skip("state file",
			"skipped: state reporting disabled")}
	}

	stateDir := filepath.Dir(stateFile)
	info, err := os.Stat(stateDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []doctor.Result{doctor.FailWithFix("state file",
			fmt.Sprintf("directory %s does not exist", stateDir),
			fmt.Sprintf("create %s", stateDir),
			func(ctx context.Context) error {
				return os.MkdirAll(stateDir, 0o755)
			})}
	}
	if err != nil {
		return []doctor.Result{doctor.Fail("state file",
			fmt.Sprintf("cannot stat %s: %v", stateDir, err))}
	}
	if !info.IsDir() {
		return []doctor.Result{doctor.Fail("state file",
			fmt.Sprintf("%s exists but is not a directory", stateDir))}
	}
	if err := unix.Access(stateDir, unix.W_OK); err != nil {
		return []doctor.Result{doctor.Fail("state file",
			fmt.Sprintf("directory %s is not writable by uid %d", stateDir, os.Geteuid()))}
	}

	return []doctor.Result{doctor.Pass("state file",
		fmt.Sprintf("directory %s writable", stateDir))}
}

func checkRunAs(state *checkState) []doctor.Result {
	if state.configuration == nil {
		return []doctor.Result{doctor.Skip("run_as user",
			"skipped: configuration not loaded")}
	}

	runAs := state.configuration.App.RunAs
	if runAs == "" {
		return []doctor.Result{doctor.Skip("run_as user",
			"skipped: no user switch configured")}
	}

	identity, err := privilege.ResolveUser(runAs)
	if err != nil {
		return []doctor.Result{doctor.Fail("run_as user", err.Error())}
	}

	if os.Geteuid() != 0 && identity.UID != os.Geteuid() {
		return []doctor.Result{doctor.Warn("run_as user",
			fmt.Sprintf("%s resolves to uid=%d gid=%d, but switching users requires starting as root (current uid %d)",
				runAs, identity.UID, identity.GID, os.Geteuid()))}
	}

	return []doctor.Result{doctor.Pass("run_as user",
		fmt.Sprintf("%s (uid=%d gid=%d)", runAs, identity.UID, identity.GID))}
}

// --- Section 5: Browser smoke test ---

func checkSmoke(params commandParams, state *checkState) []doctor.Result {
	if !params.smoke {
		return []doctor.Result{doctor.Skip("browser smoke test",
			"skipped: run with --smoke")}
	}
	if state.configuration == nil {
		return []doctor.Result{doctor.Skip("browser smoke test",
			"skipped: configuration not loaded")}
	}

	result, err := preflight.Smoke(preflight.Options{
		BrowserPath:  state.browserPath,
		BrowserFlags: state.browserFlags,
		Headless:     true,
	})
	if err != nil {
		return []doctor.Result{doctor.Fail("browser smoke test", err.Error())}
	}

	return []doctor.Result{doctor.Pass("browser smoke test",
		fmt.Sprintf("%s — %s", result.BrowserVersion, result.UserAgent))}
}
