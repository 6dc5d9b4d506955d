// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

// Package state implements the "soundstage state" command group for
// reading and clearing session state reports written by soundstage-run.
package state

import (
	"fmt"
	"os"

	"github.com/soundstage-sh/soundstage/cmd/soundstage/cli"
	"github.com/soundstage-sh/soundstage/lib/config"
)

// Command returns the "state" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "state",
		Summary: "Inspect session state reports",
		Description: `Inspect the state report soundstage-run writes at every lifecycle
transition. The report records how far a session got (display starting,
display ready, application launched, terminated) and, once terminated,
the application's exit code.

Orchestrators poll this file to distinguish "still starting" from
"application running" from "exited" without parsing logs. The report
location comes from the configuration's session.state_file; pass
--file to read a specific report directly.`,
		Subcommands: []*cli.Command{
			showCommand(),
			clearCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Show the current session's state",
				Command:     "soundstage state show",
			},
			{
				Description: "Read a specific report file",
				Command:     "soundstage state show --file /var/lib/soundstage/session.cbor",
			},
			{
				Description: "Remove a stale report",
				Command:     "soundstage state clear",
			},
		},
	}
}

// resolveStateFile returns the state file path: the explicit --file
// value when given, otherwise the configured session.state_file.
func resolveStateFile(filePath, configPath string) (string, error) {
	if filePath != "" {
		return filePath, nil
	}

	if configPath == "" {
		configPath = os.Getenv("SOUNDSTAGE_CONFIG")
	}

	configuration := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return "", err
		}
		configuration = loaded
	}

	if configuration.Session.StateFile == "" {
		return "", fmt.Errorf("no state file configured (set session.state_file or pass --file)")
	}
	return configuration.Session.StateFile, nil
}
