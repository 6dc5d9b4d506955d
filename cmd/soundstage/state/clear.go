// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/soundstage-sh/soundstage/cmd/soundstage/cli"
	"github.com/soundstage-sh/soundstage/lib/statefile"
)

// clearCommand returns the "clear" subcommand for removing a report.
func clearCommand() *cli.Command {
	var filePath string
	var configPath string

	return &cli.Command{
		Name:    "clear",
		Summary: "Remove the session state report",
		Description: `Remove the session state report. Useful between runs when an
orchestrator treats a leftover "terminated" report as stale state.
Idempotent: clearing an absent report succeeds.`,
		Usage: "soundstage state clear [flags]",
		Examples: []cli.Example{
			{
				Description: "Remove a stale report",
				Command:     "soundstage state clear",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("clear", pflag.ContinueOnError)
			flagSet.StringVar(&filePath, "file", "", "state file path (overrides the configured location)")
			flagSet.StringVar(&configPath, "config", "", "configuration file (default: $SOUNDSTAGE_CONFIG)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			path, err := resolveStateFile(filePath, configPath)
			if err != nil {
				return err
			}

			if err := clearReport(path); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "cleared %s\n", path)
			return nil
		},
	}
}

// clearReport removes the report and its leftover temporary file, if
// any. A crash between creating the temporary file and the rename can
// strand a .tmp alongside the report.
func clearReport(path string) error {
	if err := os.Remove(path + ".tmp"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing temporary state file: %w", err)
	}
	return statefile.Clear(path)
}
