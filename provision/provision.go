// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

// Package provision detects the browser runtime and assembles the
// immutable environment a session runs under.
//
// Provisioning happens once, before the virtual display starts: the
// browser binary is resolved from configuration, its major version is
// parsed from --version output, and the binary is fingerprinted so the
// session record names the exact build that ran. The result is a
// sealed Environment whose variables (DISPLAY, the session id, the
// browser version) every process in the session sees the same way.
//
// Provisioning failures are fatal by default: a session must not start
// against a half-built environment. The one escape hatch is
// browser.optional, which downgrades a missing browser to a warning
// for applications that bring their own.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/soundstage-sh/soundstage/lib/config"
	"github.com/soundstage-sh/soundstage/lib/fingerprint"
	"github.com/soundstage-sh/soundstage/profile"
)

// ErrBrowserNotFound indicates that no browser binary could be
// resolved, neither from an explicit configuration nor from the
// candidate list.
var ErrBrowserNotFound = errors.New("no browser binary found")

// Error is a provisioning failure. The bootstrap maps these to the
// configuration-error exit code rather than starting a session.
type Error struct {
	// Op names the provisioning step that failed.
	Op string

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	return "provision: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Browser describes the detected browser runtime.
type Browser struct {
	// Path is the resolved binary path.
	Path string

	// Version is the major version parsed from --version output
	// ("126").
	Version string

	// RawVersion is the full, trimmed --version output.
	RawVersion string

	// Fingerprint is the BLAKE3 digest of the binary.
	Fingerprint fingerprint.Digest
}

// Result is what provisioning produced: the session identity, the
// detected browser, and the sealed environment. Browser is nil when
// the session runs browserless (browser.optional with nothing found).
type Result struct {
	SessionID string
	Display   string
	Browser   *Browser
	Env       *Environment
}

// Provisioner performs browser detection and environment assembly
// exactly once. Repeated Provision calls return the first outcome,
// success or failure, without re-running detection.
type Provisioner struct {
	configuration *config.Config
	launchProfile *profile.Profile
	logger        *slog.Logger

	mu     sync.Mutex
	done   bool
	result *Result
	err    error
}

// New returns a Provisioner for the given configuration. launchProfile
// may be nil.
func New(configuration *config.Config, launchProfile *profile.Profile, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		configuration: configuration,
		launchProfile: launchProfile,
		logger:        logger,
	}
}

// Provision resolves the browser, assembles the session environment,
// and returns the result. The first call does the work; later calls
// return the memoized outcome.
func (p *Provisioner) Provision(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done {
		return p.result, p.err
	}
	p.result, p.err = p.provision(ctx)
	p.done = true
	return p.result, p.err
}

func (p *Provisioner) provision(ctx context.Context) (*Result, error) {
	display := p.configuration.Display.Name()
	sessionID := uuid.New().String()

	browser, err := p.detectBrowser(ctx)
	if err != nil {
		if p.configuration.Browser.Optional && errors.Is(err, ErrBrowserNotFound) {
			p.logger.Warn("no browser found, session runs browserless",
				"candidates", p.configuration.BrowserCandidates())
			browser = nil
		} else {
			return nil, err
		}
	}

	environment := p.buildEnvironment(display, sessionID, browser)

	p.logger.Info("session environment provisioned",
		"session_id", sessionID,
		"display", display,
		"variables", environment.Names(),
	)
	if browser != nil {
		p.logger.Info("browser detected",
			"path", browser.Path,
			"version", browser.Version,
			"fingerprint", browser.Fingerprint.String(),
		)
	}

	return &Result{
		SessionID: sessionID,
		Display:   display,
		Browser:   browser,
		Env:       environment,
	}, nil
}

// detectBrowser resolves the browser binary and interrogates it. A
// binary that resolves but cannot report a parseable version is a
// fatal misconfiguration regardless of browser.optional: the
// installation is broken, not absent.
func (p *Provisioner) detectBrowser(ctx context.Context) (*Browser, error) {
	binaryPath, err := p.resolveBinary()
	if err != nil {
		return nil, err
	}

	rawVersion, err := versionString(ctx, binaryPath)
	if err != nil {
		return nil, &Error{Op: "detect browser version", Err: err}
	}
	major, err := majorVersion(rawVersion)
	if err != nil {
		return nil, &Error{Op: "detect browser version", Err: err}
	}

	digest, err := fingerprint.File(binaryPath)
	if err != nil {
		return nil, &Error{Op: "fingerprint browser binary", Err: err}
	}

	return &Browser{
		Path:        binaryPath,
		Version:     major,
		RawVersion:  rawVersion,
		Fingerprint: digest,
	}, nil
}

// resolveBinary returns the browser binary path: the explicitly
// configured binary when set, otherwise the first candidate found on
// PATH.
func (p *Provisioner) resolveBinary() (string, error) {
	browserConfig := p.configuration.Browser

	if browserConfig.Binary != "" {
		path, err := exec.LookPath(browserConfig.Binary)
		if err != nil {
			return "", &Error{Op: "resolve browser", Err: fmt.Errorf(
				"%w: configured binary %q: %v", ErrBrowserNotFound, browserConfig.Binary, err)}
		}
		return path, nil
	}

	candidates := p.configuration.BrowserCandidates()
	for _, candidate := range candidates {
		path, err := exec.LookPath(candidate)
		if err == nil {
			return path, nil
		}
	}
	return "", &Error{Op: "resolve browser", Err: fmt.Errorf(
		"%w: tried %s", ErrBrowserNotFound, strings.Join(candidates, ", "))}
}

// buildEnvironment assembles the published variable set. Profile
// variables go in first; provisioned variables override on conflict,
// so a profile can never repoint DISPLAY away from the session's
// display.
func (p *Provisioner) buildEnvironment(display, sessionID string, browser *Browser) *Environment {
	variables := make(map[string]string)

	if p.launchProfile != nil {
		for name, value := range p.launchProfile.Env {
			variables[name] = value
		}
		if flags := p.launchProfile.FlagsValue(); flags != "" {
			variables[EnvBrowserFlags] = flags
		}
		variables[EnvProfile] = p.launchProfile.Name
	}

	variables[EnvDisplay] = display
	variables[EnvSession] = sessionID
	if name := p.configuration.App.UnbufferedEnv; name != "" {
		variables[name] = "1"
	}
	if browser != nil && p.configuration.Browser.VersionEnv != "" {
		variables[p.configuration.Browser.VersionEnv] = browser.Version
	}

	return newEnvironment(display, variables)
}

// versionString runs the browser with --version and returns the
// trimmed output.
func versionString(ctx context.Context, binaryPath string) (string, error) {
	command := exec.CommandContext(ctx, binaryPath, "--version")
	output, err := command.Output()
	if err != nil {
		return "", fmt.Errorf("running %s --version: %w", binaryPath, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// majorVersion extracts the leading major version from a browser
// version string. "Google Chrome 126.0.6478.126" and "Chromium
// 126.0.6478.126 snap" both yield "126": the first whitespace
// separated field that starts with a digit, cut at the first dot.
func majorVersion(raw string) (string, error) {
	for _, field := range strings.Fields(raw) {
		if field[0] < '0' || field[0] > '9' {
			continue
		}
		major, _, _ := strings.Cut(field, ".")
		if !digitsOnly(major) {
			continue
		}
		return major, nil
	}
	return "", fmt.Errorf("no version number in %q", raw)
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
