// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"os"
	"sort"
	"strings"
)

// Environment variable names the provisioner always publishes. The
// browser version and output-buffering variables are configurable and
// carry no constants here.
const (
	// EnvDisplay points the application and every X client under it
	// at the session's virtual display.
	EnvDisplay = "DISPLAY"

	// EnvSession carries the session identifier assigned at
	// provisioning time.
	EnvSession = "SOUNDSTAGE_SESSION"

	// EnvBrowserFlags carries the launch profile's browser flags,
	// space-separated, so app-side automation launches the browser
	// the same way the preflight check does. Absent without a
	// profile.
	EnvBrowserFlags = "SOUNDSTAGE_BROWSER_FLAGS"

	// EnvProfile carries the launch profile's name. Absent without a
	// profile.
	EnvProfile = "SOUNDSTAGE_PROFILE"
)

// Environment is the immutable set of variables published for a
// session. It is assembled once by the Provisioner and only read after
// that; every accessor returns copies.
type Environment struct {
	display   string
	variables map[string]string
}

// newEnvironment copies variables into a sealed Environment. The
// caller must not retain the map.
func newEnvironment(display string, variables map[string]string) *Environment {
	sealed := make(map[string]string, len(variables))
	for name, value := range variables {
		sealed[name] = value
	}
	return &Environment{display: display, variables: sealed}
}

// Display returns the X display name the environment points at
// (":99").
func (e *Environment) Display() string {
	return e.display
}

// Lookup returns the value of a published variable and whether it is
// present.
func (e *Environment) Lookup(name string) (string, bool) {
	value, ok := e.variables[name]
	return value, ok
}

// Names returns the published variable names, sorted.
func (e *Environment) Names() []string {
	names := make([]string, 0, len(e.variables))
	for name := range e.variables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merged returns base with the published variables applied, in the
// NAME=value form exec.Cmd.Env expects. Entries in base with a
// published name are dropped rather than shadowed: libc getenv returns
// the first duplicate, so appending alone would not override.
func (e *Environment) Merged(base []string) []string {
	merged := make([]string, 0, len(base)+len(e.variables))
	for _, entry := range base {
		name, _, found := strings.Cut(entry, "=")
		if found {
			if _, published := e.variables[name]; published {
				continue
			}
		}
		merged = append(merged, entry)
	}
	for _, name := range e.Names() {
		merged = append(merged, name+"="+e.variables[name])
	}
	return merged
}

// Publish applies the variables to the current process with os.Setenv.
// The bootstrap's own descendants that are not launched through Merged
// (browser driver subprocesses, shells spawned by the application)
// inherit them this way. Safe to call more than once: the values never
// change.
func (e *Environment) Publish() error {
	for _, name := range e.Names() {
		if err := os.Setenv(name, e.variables[name]); err != nil {
			return err
		}
	}
	return nil
}
