// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"fmt"
	"os"

	"github.com/soundstage-sh/soundstage/cmd/soundstage/cli"
	libprofile "github.com/soundstage-sh/soundstage/profile"
)

// validateCommand returns the "validate" subcommand for validating
// profile files.
func validateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Summary: "Validate a local profile JSONC file",
		Description: `Validate a local launch profile file. Checks that the JSONC is
well-formed and that the profile is structurally sound: browser flags
are non-empty and whitespace-free (values use the --flag=value form),
environment variable names are legal.

Profile files use JSONC: JSON extended with // line comments,
/* block comments */, and trailing commas. Comments are stripped
before validation.`,
		Usage: "soundstage profile validate <file>",
		Examples: []cli.Example{
			{
				Description: "Validate a profile file",
				Command:     "soundstage profile validate kiosk.jsonc",
			},
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: soundstage profile validate <file>")
			}

			path := args[0]
			launchProfile, err := libprofile.ReadFile(path)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "%s: valid (profile %q, %d browser flags, %d env vars)\n",
				path, launchProfile.Name, len(launchProfile.BrowserFlags), len(launchProfile.Env))
			return nil
		},
	}
}
