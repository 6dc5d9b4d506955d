// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

// Package profile provides parsing and validation for session launch
// profiles. A profile is a reusable launch configuration authored on
// disk as a JSONC file (JSON extended with comments and trailing
// commas): extra browser flags and environment variables that a
// session should carry beyond the provisioned defaults.
//
// Profiles keep per-deployment tuning (kiosk flags, GPU switches,
// proxy settings) out of the bootstrap binary. The selected profile's
// browser flags are exported to the application through the
// SOUNDSTAGE_BROWSER_FLAGS variable so app-side automation launches
// the browser the same way the preflight check does.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/tidwall/jsonc"
)

// Profile is a named launch configuration for sessions.
type Profile struct {
	// Name identifies the profile in logs and session reports. When
	// empty, ReadFile fills it in from the file name.
	Name string `json:"name"`

	// BrowserFlags are appended to the browser command line by the
	// preflight check and exported through SOUNDSTAGE_BROWSER_FLAGS.
	// Flags that take a value use the --flag=value form; whitespace
	// inside a flag is rejected by Validate so the exported list
	// stays space-separable.
	BrowserFlags []string `json:"browser_flags"`

	// Env is merged into the session environment. Provisioned
	// variables (DISPLAY and friends) win on conflict.
	Env map[string]string `json:"env"`
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into a Profile.
func Parse(data []byte) (*Profile, error) {
	stripped := jsonc.ToJSON(data)

	var parsed Profile
	if err := json.Unmarshal(stripped, &parsed); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}

	return &parsed, nil
}

// ReadFile reads a JSONC profile file from disk, parses it, and
// validates it. A profile without an explicit name takes the file name
// (without extension) as its name.
func ReadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	parsed, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if parsed.Name == "" {
		parsed.Name = nameFromPath(path)
	}

	if err := parsed.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return parsed, nil
}

// Validate checks the profile for structural problems. All problems
// are reported at once via errors.Join.
func (p *Profile) Validate() error {
	var problems []error

	if p.Name == "" {
		problems = append(problems, errors.New("profile name must not be empty"))
	}

	for i, flag := range p.BrowserFlags {
		if flag == "" {
			problems = append(problems, fmt.Errorf("browser_flags[%d] is empty", i))
			continue
		}
		if strings.IndexFunc(flag, unicode.IsSpace) >= 0 {
			problems = append(problems, fmt.Errorf(
				"browser_flags[%d] %q contains whitespace (use --flag=value)", i, flag))
		}
	}

	for key := range p.Env {
		if key == "" {
			problems = append(problems, errors.New("env has an empty variable name"))
			continue
		}
		if strings.Contains(key, "=") {
			problems = append(problems, fmt.Errorf("env variable name %q contains %q", key, "="))
		}
	}

	return errors.Join(problems...)
}

// FlagsValue returns the browser flags as a single space-separated
// string, the form exported through SOUNDSTAGE_BROWSER_FLAGS. Returns
// the empty string when the profile has no flags.
func (p *Profile) FlagsValue() string {
	return strings.Join(p.BrowserFlags, " ")
}

// nameFromPath extracts a profile name from a file path by stripping
// the directory prefix and the file extension: "profiles/kiosk.jsonc"
// becomes "kiosk".
func nameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
