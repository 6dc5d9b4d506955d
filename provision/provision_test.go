// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soundstage-sh/soundstage/lib/config"
	"github.com/soundstage-sh/soundstage/profile"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeScript creates an executable shell script that stands in for a
// browser binary.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("writing script %s: %v", name, err)
	}
	return path
}

func TestProvisionDetectsBrowser(t *testing.T) {
	script := writeScript(t, t.TempDir(), "google-chrome",
		`echo "Google Chrome 126.0.6478.126"`)

	cfg := config.Default()
	cfg.Browser.Binary = script

	result, err := New(cfg, nil, testLogger()).Provision(context.Background())
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}

	if result.Browser == nil {
		t.Fatal("Browser = nil, want detected browser")
	}
	if result.Browser.Path != script {
		t.Errorf("Browser.Path = %q, want %q", result.Browser.Path, script)
	}
	if result.Browser.Version != "126" {
		t.Errorf("Browser.Version = %q, want %q", result.Browser.Version, "126")
	}
	if result.Browser.RawVersion != "Google Chrome 126.0.6478.126" {
		t.Errorf("Browser.RawVersion = %q", result.Browser.RawVersion)
	}
	if result.Browser.Fingerprint.String() == strings.Repeat("0", 64) {
		t.Error("Fingerprint is zero, want binary digest")
	}

	if result.Display != ":99" {
		t.Errorf("Display = %q, want %q", result.Display, ":99")
	}
	if len(result.SessionID) != 36 {
		t.Errorf("SessionID = %q, want UUID form", result.SessionID)
	}

	env := result.Env
	for name, want := range map[string]string{
		"DISPLAY":            ":99",
		"CHROME_VERSION":     "126",
		"PYTHONUNBUFFERED":   "1",
		"SOUNDSTAGE_SESSION": result.SessionID,
	} {
		got, ok := env.Lookup(name)
		if !ok {
			t.Errorf("Lookup(%q): variable missing", name)
			continue
		}
		if got != want {
			t.Errorf("Lookup(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestProvisionFirstCandidateWins(t *testing.T) {
	binDirectory := t.TempDir()
	writeScript(t, binDirectory, "google-chrome", `echo "Google Chrome 126.0.1.2"`)
	writeScript(t, binDirectory, "chromium", `echo "Chromium 125.0.3.4"`)
	t.Setenv("PATH", binDirectory)

	cfg := config.Default()
	cfg.Browser.Candidates = []string{"google-chrome", "chromium"}

	result, err := New(cfg, nil, testLogger()).Provision(context.Background())
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if result.Browser.Version != "126" {
		t.Errorf("Browser.Version = %q, want first candidate's %q", result.Browser.Version, "126")
	}
}

func TestProvisionIdempotent(t *testing.T) {
	directory := t.TempDir()
	counter := filepath.Join(directory, "invocations")
	script := writeScript(t, directory, "google-chrome", fmt.Sprintf(
		"echo run >> %s\necho \"Google Chrome 126.0.1.2\"", counter))

	cfg := config.Default()
	cfg.Browser.Binary = script
	provisioner := New(cfg, nil, testLogger())

	first, err := provisioner.Provision(context.Background())
	if err != nil {
		t.Fatalf("Provision first: %v", err)
	}
	second, err := provisioner.Provision(context.Background())
	if err != nil {
		t.Fatalf("Provision second: %v", err)
	}

	if first != second {
		t.Error("second Provision should return the memoized result")
	}
	if first.SessionID != second.SessionID {
		t.Errorf("SessionID changed across calls: %q then %q", first.SessionID, second.SessionID)
	}

	runs, err := os.ReadFile(counter)
	if err != nil {
		t.Fatalf("ReadFile counter: %v", err)
	}
	if got := strings.Count(string(runs), "run"); got != 1 {
		t.Errorf("browser interrogated %d times, want 1", got)
	}
}

func TestProvisionMissingBrowserFatal(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	cfg := config.Default()

	_, err := New(cfg, nil, testLogger()).Provision(context.Background())
	if err == nil {
		t.Fatal("Provision with no browser on PATH should fail")
	}
	if !errors.Is(err, ErrBrowserNotFound) {
		t.Errorf("error should wrap ErrBrowserNotFound, got: %v", err)
	}
	var provisionError *Error
	if !errors.As(err, &provisionError) {
		t.Errorf("error should be a *provision.Error, got %T", err)
	}
}

func TestProvisionMissingBrowserOptional(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	cfg := config.Default()
	cfg.Browser.Optional = true

	result, err := New(cfg, nil, testLogger()).Provision(context.Background())
	if err != nil {
		t.Fatalf("Provision with optional browser: %v", err)
	}
	if result.Browser != nil {
		t.Errorf("Browser = %+v, want nil for browserless session", result.Browser)
	}
	if _, ok := result.Env.Lookup("CHROME_VERSION"); ok {
		t.Error("browserless session should not publish CHROME_VERSION")
	}
	if got, ok := result.Env.Lookup("DISPLAY"); !ok || got != ":99" {
		t.Errorf("DISPLAY = %q (present=%v), want :99", got, ok)
	}
}

func TestProvisionBrokenBrowserFatalDespiteOptional(t *testing.T) {
	script := writeScript(t, t.TempDir(), "google-chrome", "exit 1")

	cfg := config.Default()
	cfg.Browser.Binary = script
	cfg.Browser.Optional = true

	_, err := New(cfg, nil, testLogger()).Provision(context.Background())
	if err == nil {
		t.Fatal("Provision with broken browser binary should fail even with optional=true")
	}
	if errors.Is(err, ErrBrowserNotFound) {
		t.Error("broken binary is not the same failure as a missing binary")
	}
}

func TestProvisionUnparseableVersion(t *testing.T) {
	script := writeScript(t, t.TempDir(), "google-chrome", `echo "no digits here"`)

	cfg := config.Default()
	cfg.Browser.Binary = script

	_, err := New(cfg, nil, testLogger()).Provision(context.Background())
	if err == nil {
		t.Fatal("Provision with unparseable version output should fail")
	}
	if !strings.Contains(err.Error(), "no version number") {
		t.Errorf("error = %q, want mention of unparseable version", err)
	}
}

func TestProvisionMemoizesFailure(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	provisioner := New(config.Default(), nil, testLogger())

	_, firstErr := provisioner.Provision(context.Background())
	if firstErr == nil {
		t.Fatal("first Provision should fail")
	}
	_, secondErr := provisioner.Provision(context.Background())
	if secondErr != firstErr {
		t.Errorf("second Provision returned a fresh error, want the memoized one")
	}
}

func TestProvisionProfileVariables(t *testing.T) {
	script := writeScript(t, t.TempDir(), "google-chrome",
		`echo "Google Chrome 126.0.6478.126"`)

	cfg := config.Default()
	cfg.Browser.Binary = script

	launchProfile := &profile.Profile{
		Name:         "kiosk",
		BrowserFlags: []string{"--kiosk", "--no-first-run"},
		Env: map[string]string{
			"TZ": "UTC",
			// A profile must not be able to repoint the session's
			// display.
			"DISPLAY": ":7",
		},
	}

	result, err := New(cfg, launchProfile, testLogger()).Provision(context.Background())
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}

	env := result.Env
	if got, _ := env.Lookup("DISPLAY"); got != ":99" {
		t.Errorf("DISPLAY = %q, want provisioned :99 over profile's :7", got)
	}
	if got, _ := env.Lookup("TZ"); got != "UTC" {
		t.Errorf("TZ = %q, want UTC from profile", got)
	}
	if got, _ := env.Lookup(EnvBrowserFlags); got != "--kiosk --no-first-run" {
		t.Errorf("%s = %q, want joined profile flags", EnvBrowserFlags, got)
	}
	if got, _ := env.Lookup(EnvProfile); got != "kiosk" {
		t.Errorf("%s = %q, want %q", EnvProfile, got, "kiosk")
	}
}

func TestMajorVersion(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "Google Chrome 126.0.6478.126", want: "126"},
		{raw: "Chromium 125.0.6422.141 snap", want: "125"},
		{raw: "Chromium 120.0.6099.224 built on Debian 12.4", want: "120"},
		{raw: "126.0.6478.126", want: "126"},
		{raw: "Google Chrome for Testing 127.0.6533.88", want: "127"},
		{raw: "no digits here", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "version 2024-snapshot build 126.0.1", want: "126"},
	}

	for _, test := range tests {
		got, err := majorVersion(test.raw)
		if test.wantErr {
			if err == nil {
				t.Errorf("majorVersion(%q) = %q, want error", test.raw, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("majorVersion(%q): %v", test.raw, err)
			continue
		}
		if got != test.want {
			t.Errorf("majorVersion(%q) = %q, want %q", test.raw, got, test.want)
		}
	}
}
