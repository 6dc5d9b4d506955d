// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete Soundstage CLI command tree.
// The session launcher (soundstage-run) is a separate binary with its
// own flag surface; this tree carries the operator-facing commands
// for diagnosing, inspecting, and cleaning up session state.
package commands

import (
	"fmt"

	"github.com/soundstage-sh/soundstage/cmd/soundstage/cli"
	doctorcmd "github.com/soundstage-sh/soundstage/cmd/soundstage/doctor"
	profilecmd "github.com/soundstage-sh/soundstage/cmd/soundstage/profile"
	statecmd "github.com/soundstage-sh/soundstage/cmd/soundstage/state"
	"github.com/soundstage-sh/soundstage/lib/version"
)

// Root builds and returns the complete Soundstage CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "soundstage",
		Description: `Soundstage: headless browser session bootstrap.

Provision a virtual X display, locate a browser, and launch an
application under a managed session with clean teardown.`,
		Subcommands: []*cli.Command{
			doctorcmd.Command(),
			profilecmd.Command(),
			statecmd.Command(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ []string) error {
					fmt.Printf("soundstage %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Diagnose the session environment (start here when lost)",
				Command:     "soundstage doctor",
			},
			{
				Description: "Diagnose and repair fixable issues",
				Command:     "soundstage doctor --fix",
			},
			{
				Description: "Run a full browser smoke test",
				Command:     "soundstage doctor --smoke",
			},
			{
				Description: "Validate a launch profile",
				Command:     "soundstage profile validate profiles/kiosk.jsonc",
			},
			{
				Description: "Show the latest session report",
				Command:     "soundstage state show",
			},
		},
	}
}
