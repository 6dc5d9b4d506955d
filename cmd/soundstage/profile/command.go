// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

// Package profile implements the "soundstage profile" command group for
// inspecting and validating launch profiles before a session uses them.
package profile

import (
	"github.com/soundstage-sh/soundstage/cmd/soundstage/cli"
)

// Command returns the "profile" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "profile",
		Summary: "Inspect and validate launch profiles",
		Description: `Inspect and validate session launch profiles.

A launch profile is a JSONC file (JSON with // comments and trailing
commas) carrying extra browser flags and environment variables for a
session: kiosk flags, GPU switches, proxy settings. The session
bootstrap loads the profile named in the configuration's
session.profile and exports its flags through SOUNDSTAGE_BROWSER_FLAGS.

These commands work on local files only — validate a profile here
before pointing a deployment at it.`,
		Subcommands: []*cli.Command{
			showCommand(),
			validateCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Validate a profile file",
				Command:     "soundstage profile validate kiosk.jsonc",
			},
			{
				Description: "Show a profile's effective contents",
				Command:     "soundstage profile show kiosk.jsonc",
			},
		},
	}
}
