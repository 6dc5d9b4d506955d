// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

// Package statefile provides atomic checkpoint files for bootstrap
// sessions. The bootstrap writes a report at each lifecycle transition;
// external tooling (soundstage state show, orchestrators polling the
// sandbox) reads the report to determine how far a session got and,
// after exit, what the outcome was.
//
// Reports are encoded with the deterministic CBOR profile from
// lib/codec and written atomically (temporary file, fsync, rename), so
// a reader never sees a partial or corrupt report even when the
// bootstrap is killed mid-write.
package statefile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/soundstage-sh/soundstage/lib/codec"
)

// Report records the progress and outcome of a bootstrap session. A
// fresh report is written at every lifecycle transition, overwriting
// the previous one.
type Report struct {
	// SessionID is the unique identifier assigned when the session
	// environment was provisioned.
	SessionID string `cbor:"session_id"`

	// State is the bootstrap lifecycle state at the time of writing
	// (for example "display_ready" or "terminated").
	State string `cbor:"state"`

	// Display is the X display name the session runs on (":99").
	// Empty until the display server has been started.
	Display string `cbor:"display,omitempty"`

	// Browser is the resolved browser binary path. Empty when no
	// browser was found and the session runs browserless.
	Browser string `cbor:"browser,omitempty"`

	// BrowserVersion is the detected browser major version ("126").
	BrowserVersion string `cbor:"browser_version,omitempty"`

	// BrowserFingerprint is the hex BLAKE3 digest of the browser
	// binary, tying the session record to the exact build that ran.
	BrowserFingerprint string `cbor:"browser_fingerprint,omitempty"`

	// AppCommand is the application argv the session launched.
	AppCommand []string `cbor:"app_command,omitempty"`

	// ExitCode is the final exit code of the session. Nil until the
	// session has terminated; zero is a meaningful recorded value.
	ExitCode *int `cbor:"exit_code,omitempty"`

	// BootstrapVersion is the soundstage version that wrote the report.
	BootstrapVersion string `cbor:"bootstrap_version,omitempty"`

	// StartedAt is when the session began. UpdatedAt is when this
	// report was written; it advances with every transition.
	StartedAt time.Time `cbor:"started_at"`
	UpdatedAt time.Time `cbor:"updated_at"`
}

// Write atomically writes a session report. The report is written to a
// temporary file in the same directory, fsynced, and renamed into
// place. The file is created with mode 0600; the parent directory must
// already exist.
func Write(path string, report Report) error {
	data, err := codec.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding session report: %w", err)
	}

	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary state file: %w", err)
	}

	// Write, sync, close, rename. Any failure removes the temporary
	// file and reports the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary state file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary state file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary state file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming state file into place: %w", err)
	}

	// Sync the parent directory so the rename survives power loss
	// between the rename and the OS flushing directory metadata.
	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}

	return nil
}

// Read reads and decodes a session report. When the file does not
// exist, the returned error wraps os.ErrNotExist (testable with
// errors.Is).
func Read(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, err
	}

	var report Report
	if err := codec.Unmarshal(data, &report); err != nil {
		return Report{}, fmt.Errorf("parsing state file %s: %w", path, err)
	}
	return report, nil
}

// Clear removes a session report. Idempotent: returns nil when the
// file does not exist.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}
