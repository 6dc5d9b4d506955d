// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/pflag"

	"github.com/soundstage-sh/soundstage/cmd/soundstage/cli"
	libprofile "github.com/soundstage-sh/soundstage/profile"
)

// showCommand returns the "show" subcommand for displaying a profile.
func showCommand() *cli.Command {
	var jsonOutput bool

	return &cli.Command{
		Name:    "show",
		Summary: "Show a profile's effective contents",
		Description: `Display a launch profile after parsing: the effective name (taken from
the file name when the profile doesn't set one), the browser flags in
order, and the environment variables. This is what a session launched
with this profile will see.`,
		Usage: "soundstage profile show [flags] <file>",
		Examples: []cli.Example{
			{
				Description: "Show a profile",
				Command:     "soundstage profile show kiosk.jsonc",
			},
			{
				Description: "Machine-readable output",
				Command:     "soundstage profile show --json kiosk.jsonc",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			flagSet.BoolVar(&jsonOutput, "json", false, "machine-readable JSON output")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: soundstage profile show [flags] <file>")
			}

			launchProfile, err := libprofile.ReadFile(args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return cli.WriteJSON(launchProfile)
			}

			printProfile(os.Stdout, launchProfile)
			return nil
		},
	}
}

// printProfile writes the human-readable profile breakdown. Environment
// variables print in sorted order so output is stable across runs.
func printProfile(w io.Writer, launchProfile *libprofile.Profile) {
	fmt.Fprintf(w, "name: %s\n", launchProfile.Name)

	if len(launchProfile.BrowserFlags) > 0 {
		fmt.Fprintln(w, "browser flags:")
		for _, flag := range launchProfile.BrowserFlags {
			fmt.Fprintf(w, "  %s\n", flag)
		}
	}

	if len(launchProfile.Env) > 0 {
		names := make([]string, 0, len(launchProfile.Env))
		for name := range launchProfile.Env {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintln(w, "env:")
		for _, name := range names {
			fmt.Fprintf(w, "  %s=%s\n", name, launchProfile.Env[name])
		}
	}
}
