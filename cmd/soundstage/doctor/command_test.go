// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soundstage-sh/soundstage/cmd/soundstage/cli/doctor"
	"github.com/soundstage-sh/soundstage/lib/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeScript writes an executable shell script and returns its path.
func writeScript(t *testing.T, directory, name, body string) string {
	t.Helper()
	path := filepath.Join(directory, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("writing script %s: %v", name, err)
	}
	return path
}

// --- Configuration tests ---

func TestCheckConfiguration_Defaults(t *testing.T) {
	t.Setenv("SOUNDSTAGE_CONFIG", "")

	var state checkState
	results := checkConfiguration(commandParams{}, &state)

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Status != doctor.StatusPass {
		t.Errorf("expected PASS, got %s: %s", results[0].Status, results[0].Message)
	}
	if !strings.Contains(results[0].Message, "built-in defaults") {
		t.Errorf("expected defaults note in message, got %q", results[0].Message)
	}
	if state.configuration == nil {
		t.Fatal("expected configuration to be set")
	}
	if state.configuration.Display.Number != config.DefaultDisplayNumber {
		t.Errorf("expected default display number, got %d", state.configuration.Display.Number)
	}
}

func TestCheckConfiguration_FileNotFound(t *testing.T) {
	params := commandParams{configPath: filepath.Join(t.TempDir(), "nonexistent.yaml")}

	var state checkState
	results := checkConfiguration(params, &state)

	if results[0].Status != doctor.StatusFail {
		t.Errorf("expected FAIL, got %s: %s", results[0].Status, results[0].Message)
	}
	if !strings.Contains(results[0].Message, "cannot load") {
		t.Errorf("expected 'cannot load' in message, got %q", results[0].Message)
	}
	if state.configuration != nil {
		t.Error("expected nil configuration on failure")
	}
}

func TestCheckConfiguration_Invalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "soundstage.yaml")
	if err := os.WriteFile(configPath, []byte("display:\n  width: -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var state checkState
	results := checkConfiguration(commandParams{configPath: configPath}, &state)

	if results[0].Status != doctor.StatusFail {
		t.Errorf("expected FAIL, got %s: %s", results[0].Status, results[0].Message)
	}
	if !strings.Contains(results[0].Message, "invalid") {
		t.Errorf("expected 'invalid' in message, got %q", results[0].Message)
	}
}

func TestCheckConfiguration_Valid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "soundstage.yaml")
	content := "display:\n  number: 42\nbrowser:\n  optional: true\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var state checkState
	results := checkConfiguration(commandParams{configPath: configPath}, &state)

	if results[0].Status != doctor.StatusPass {
		t.Errorf("expected PASS, got %s: %s", results[0].Status, results[0].Message)
	}
	if state.configuration == nil {
		t.Fatal("expected configuration to be set")
	}
	if state.configuration.Display.Number != 42 {
		t.Errorf("expected display number 42, got %d", state.configuration.Display.Number)
	}
}

func TestCheckConfiguration_EnvVar(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "soundstage.yaml")
	if err := os.WriteFile(configPath, []byte("display:\n  number: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SOUNDSTAGE_CONFIG", configPath)

	var state checkState
	results := checkConfiguration(commandParams{}, &state)

	if results[0].Status != doctor.StatusPass {
		t.Errorf("expected PASS, got %s: %s", results[0].Status, results[0].Message)
	}
	if results[0].Message != configPath {
		t.Errorf("expected config path in message, got %q", results[0].Message)
	}
}

// --- Display server tests ---

func TestCheckDisplayServer_ConfigNotLoaded(t *testing.T) {
	var state checkState
	results := checkDisplayServer(&state)

	if results[0].Status != doctor.StatusSkip {
		t.Errorf("expected SKIP without configuration, got %s", results[0].Status)
	}
}

func TestCheckDisplayServer_NotFound(t *testing.T) {
	cfg := config.Default()
	cfg.Display.ServerBinary = "soundstage-missing-xserver"

	state := checkState{configuration: cfg}
	results := checkDisplayServer(&state)

	if results[0].Status != doctor.StatusFail {
		t.Errorf("expected FAIL, got %s: %s", results[0].Status, results[0].Message)
	}
	if !strings.Contains(results[0].Message, "install") {
		t.Errorf("expected install guidance, got %q", results[0].Message)
	}
}

func TestCheckDisplayServer_Found(t *testing.T) {
	binDir := t.TempDir()
	serverPath := writeScript(t, binDir, "Xvfb", "exit 0")
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	state := checkState{configuration: config.Default()}
	results := checkDisplayServer(&state)

	if results[0].Status != doctor.StatusPass {
		t.Errorf("expected PASS, got %s: %s", results[0].Status, results[0].Message)
	}
	if results[0].Message != serverPath {
		t.Errorf("expected resolved path %q, got %q", serverPath, results[0].Message)
	}
}

// --- Socket directory tests ---

func TestCheckSocketDirectory_Missing(t *testing.T) {
	cfg := config.Default()
	cfg.Display.SocketDir = filepath.Join(t.TempDir(), "missing")

	state := checkState{configuration: cfg}
	results := checkSocketDirectory(&state)

	if results[0].Status != doctor.StatusFail {
		t.Errorf("expected FAIL, got %s: %s", results[0].Status, results[0].Message)
	}
	if !results[0].Elevated {
		t.Error("expected elevated fix for socket directory creation")
	}
	if !results[0].HasFix() {
		t.Error("expected a fix action")
	}
}

func TestCheckSocketDirectory_NotADirectory(t *testing.T) {
	cfg := config.Default()
	cfg.Display.SocketDir = filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(cfg.Display.SocketDir, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	state := checkState{configuration: cfg}
	results := checkSocketDirectory(&state)

	if results[0].Status != doctor.StatusFail {
		t.Errorf("expected FAIL, got %s: %s", results[0].Status, results[0].Message)
	}
	if !strings.Contains(results[0].Message, "not a directory") {
		t.Errorf("expected 'not a directory' in message, got %q", results[0].Message)
	}
	if results[0].HasFix() {
		t.Error("a path collision must not be fixed automatically")
	}
}

func TestCheckSocketDirectory_Writable(t *testing.T) {
	cfg := config.Default()
	cfg.Display.SocketDir = t.TempDir()

	state := checkState{configuration: cfg}
	results := checkSocketDirectory(&state)

	if results[0].Status != doctor.StatusPass {
		t.Errorf("expected PASS, got %s: %s", results[0].Status, results[0].Message)
	}
}

// --- Browser tests ---

func TestCheckBrowser_NotFound(t *testing.T) {
	cfg := config.Default()
	cfg.Browser.Candidates = []string{"soundstage-missing-browser"}

	state := checkState{configuration: cfg}
	results := checkBrowser(context.Background(), &state, testLogger())

	if results[0].Status != doctor.StatusFail {
		t.Errorf("expected FAIL, got %s: %s", results[0].Status, results[0].Message)
	}
	if !strings.Contains(results[0].Message, "install Chrome/Chromium") {
		t.Errorf("expected install guidance, got %q", results[0].Message)
	}
}

func TestCheckBrowser_OptionalMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Browser.Candidates = []string{"soundstage-missing-browser"}
	cfg.Browser.Optional = true

	state := checkState{configuration: cfg}
	results := checkBrowser(context.Background(), &state, testLogger())

	if results[0].Status != doctor.StatusWarn {
		t.Errorf("expected WARN with browser.optional, got %s: %s", results[0].Status, results[0].Message)
	}
	if !strings.Contains(results[0].Message, "browserless") {
		t.Errorf("expected 'browserless' in message, got %q", results[0].Message)
	}
}

func TestCheckBrowser_Found(t *testing.T) {
	binDir := t.TempDir()
	browserPath := writeScript(t, binDir, "fake-chromium", `echo "Chromium 126.0.6478.55"`)

	cfg := config.Default()
	cfg.Browser.Binary = browserPath

	state := checkState{configuration: cfg}
	results := checkBrowser(context.Background(), &state, testLogger())

	if results[0].Status != doctor.StatusPass {
		t.Fatalf("expected PASS, got %s: %s", results[0].Status, results[0].Message)
	}
	if !strings.Contains(results[0].Message, "126") {
		t.Errorf("expected major version in message, got %q", results[0].Message)
	}
	if state.browserPath == "" {
		t.Error("expected browser path to be recorded for the smoke test")
	}
}

// --- Launch profile tests ---

func TestCheckLaunchProfile_NotConfigured(t *testing.T) {
	state := checkState{configuration: config.Default()}
	results := checkLaunchProfile(&state)

	if results[0].Status != doctor.StatusSkip {
		t.Errorf("expected SKIP without a profile, got %s", results[0].Status)
	}
}

func TestCheckLaunchProfile_Valid(t *testing.T) {
	profilePath := filepath.Join(t.TempDir(), "kiosk.jsonc")
	content := `{
	// fullscreen kiosk profile
	"browser_flags": ["--kiosk", "--no-sandbox"],
	"env": {"TZ": "UTC"},
}`
	if err := os.WriteFile(profilePath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Session.Profile = profilePath

	state := checkState{configuration: cfg}
	results := checkLaunchProfile(&state)

	if results[0].Status != doctor.StatusPass {
		t.Fatalf("expected PASS, got %s: %s", results[0].Status, results[0].Message)
	}
	if !strings.Contains(results[0].Message, "kiosk") {
		t.Errorf("expected profile name in message, got %q", results[0].Message)
	}
	if len(state.browserFlags) != 2 {
		t.Errorf("expected 2 browser flags recorded, got %v", state.browserFlags)
	}
}

func TestCheckLaunchProfile_Invalid(t *testing.T) {
	profilePath := filepath.Join(t.TempDir(), "broken.jsonc")
	content := `{"browser_flags": ["--flag with spaces"]}`
	if err := os.WriteFile(profilePath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Session.Profile = profilePath

	state := checkState{configuration: cfg}
	results := checkLaunchProfile(&state)

	if results[0].Status != doctor.StatusFail {
		t.Errorf("expected FAIL, got %s: %s", results[0].Status, results[0].Message)
	}
	if !strings.Contains(results[0].Message, "whitespace") {
		t.Errorf("expected validation detail in message, got %q", results[0].Message)
	}
}

// --- State file tests ---

func TestCheckStateFile_Disabled(t *testing.T) {
	state := checkState{configuration: config.Default()}
	results := checkStateFile(&state)

	if results[0].Status != doctor.StatusSkip {
		t.Errorf("expected SKIP when state reporting is disabled, got %s", results[0].Status)
	}
}

func TestCheckStateFile_DirectoryMissing_FixCreates(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), "missing")

	cfg := config.Default()
	cfg.Session.StateFile = filepath.Join(stateDir, "session.cbor")

	state := checkState{configuration: cfg}
	results := checkStateFile(&state)

	if results[0].Status != doctor.StatusFail {
		t.Fatalf("expected FAIL, got %s: %s", results[0].Status, results[0].Message)
	}
	if results[0].Elevated {
		t.Error("state directory creation should not require root")
	}
	if !results[0].HasFix() {
		t.Fatal("expected a fix action")
	}

	outcome := doctor.ExecuteFixes(context.Background(), results, false)
	if outcome.FixedCount != 1 {
		t.Fatalf("expected 1 fix applied, got %d", outcome.FixedCount)
	}
	if results[0].Status != doctor.StatusFixed {
		t.Errorf("expected FIXED after mkdir, got %s", results[0].Status)
	}

	// The re-check must now pass against the created directory.
	recheck := checkStateFile(&state)
	if recheck[0].Status != doctor.StatusPass {
		t.Errorf("expected PASS after fix, got %s: %s", recheck[0].Status, recheck[0].Message)
	}
}

func TestCheckStateFile_DirectoryNotWritable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses directory permissions")
	}

	stateDir := filepath.Join(t.TempDir(), "readonly")
	if err := os.Mkdir(stateDir, 0o500); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Session.StateFile = filepath.Join(stateDir, "session.cbor")

	state := checkState{configuration: cfg}
	results := checkStateFile(&state)

	if results[0].Status != doctor.StatusFail {
		t.Errorf("expected FAIL, got %s: %s", results[0].Status, results[0].Message)
	}
	if !strings.Contains(results[0].Message, "not writable") {
		t.Errorf("expected 'not writable' in message, got %q", results[0].Message)
	}
}

// --- run_as tests ---

func TestCheckRunAs_NotConfigured(t *testing.T) {
	state := checkState{configuration: config.Default()}
	results := checkRunAs(&state)

	if results[0].Status != doctor.StatusSkip {
		t.Errorf("expected SKIP without run_as, got %s", results[0].Status)
	}
}

func TestCheckRunAs_UnknownUser(t *testing.T) {
	cfg := config.Default()
	cfg.App.RunAs = "soundstage-missing-user"

	state := checkState{configuration: cfg}
	results := checkRunAs(&state)

	if results[0].Status != doctor.StatusFail {
		t.Errorf("expected FAIL for unknown user, got %s: %s", results[0].Status, results[0].Message)
	}
}

func TestCheckRunAs_CurrentUser(t *testing.T) {
	current, err := user.Current()
	if err != nil {
		t.Skipf("cannot determine current user: %v", err)
	}

	cfg := config.Default()
	cfg.App.RunAs = current.Username

	state := checkState{configuration: cfg}
	results := checkRunAs(&state)

	// run_as pointing at the current identity is always viable: the
	// boundary latches without a credential switch.
	if results[0].Status != doctor.StatusPass {
		t.Errorf("expected PASS for current user, got %s: %s", results[0].Status, results[0].Message)
	}
}

// --- Smoke test gating ---

func TestCheckSmoke_NotRequested(t *testing.T) {
	state := checkState{configuration: config.Default()}
	results := checkSmoke(commandParams{smoke: false}, &state)

	if results[0].Status != doctor.StatusSkip {
		t.Errorf("expected SKIP without --smoke, got %s", results[0].Status)
	}
	if !strings.Contains(results[0].Message, "--smoke") {
		t.Errorf("expected the flag name in the skip message, got %q", results[0].Message)
	}
}
