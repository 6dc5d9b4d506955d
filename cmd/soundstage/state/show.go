// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/soundstage-sh/soundstage/cmd/soundstage/cli"
	"github.com/soundstage-sh/soundstage/lib/statefile"
)

// showOutput is the JSON view of a session report.
type showOutput struct {
	SessionID          string    `json:"session_id,omitempty"`
	State              string    `json:"state"`
	Display            string    `json:"display,omitempty"`
	Browser            string    `json:"browser,omitempty"`
	BrowserVersion     string    `json:"browser_version,omitempty"`
	BrowserFingerprint string    `json:"browser_fingerprint,omitempty"`
	AppCommand         []string  `json:"app_command,omitempty"`
	ExitCode           *int      `json:"exit_code,omitempty"`
	BootstrapVersion   string    `json:"bootstrap_version,omitempty"`
	StartedAt          time.Time `json:"started_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// showCommand returns the "show" subcommand for displaying a report.
func showCommand() *cli.Command {
	var filePath string
	var configPath string
	var jsonOutput bool

	return &cli.Command{
		Name:    "show",
		Summary: "Show the session state report",
		Description: `Display the session state report. Exits 0 while a session is running
or after it exited cleanly, and 1 when the recorded session exited
non-zero, so scripts can gate on the outcome directly.`,
		Usage: "soundstage state show [flags]",
		Examples: []cli.Example{
			{
				Description: "Show the current session's state",
				Command:     "soundstage state show",
			},
			{
				Description: "Machine-readable output",
				Command:     "soundstage state show --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			flagSet.StringVar(&filePath, "file", "", "state file path (overrides the configured location)")
			flagSet.StringVar(&configPath, "config", "", "configuration file (default: $SOUNDSTAGE_CONFIG)")
			flagSet.BoolVar(&jsonOutput, "json", false, "machine-readable JSON output")
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

			report, err := statefile.Read(path)
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("no session report at %s (no session has run, or state reporting is disabled)", path)
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := cli.WriteJSON(showOutput(report)); err != nil {
					return err
				}
			} else {
				printReport(os.Stdout, report)
			}

			if report.ExitCode != nil && *report.ExitCode != 0 {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

// printReport writes the human-readable report breakdown.
func printReport(w io.Writer, report statefile.Report) {
	fmt.Fprintf(w, "%-12s %s\n", "state:", report.State)
	if report.SessionID != "" {
		fmt.Fprintf(w, "%-12s %s\n", "session:", report.SessionID)
	}
	if report.Display != "" {
		fmt.Fprintf(w, "%-12s %s\n", "display:", report.Display)
	}
	if report.Browser != "" {
		browser := report.Browser
		if report.BrowserVersion != "" {
			browser += fmt.Sprintf(" (major version %s)", report.BrowserVersion)
		}
		fmt.Fprintf(w, "%-12s %s\n", "browser:", browser)
	}
	if len(report.AppCommand) > 0 {
		fmt.Fprintf(w, "%-12s %s\n", "command:", strings.Join(report.AppCommand, " "))
	}
	if report.ExitCode != nil {
		fmt.Fprintf(w, "%-12s %d\n", "exit code:", *report.ExitCode)
	}
	if report.BootstrapVersion != "" {
		fmt.Fprintf(w, "%-12s %s\n", "soundstage:", report.BootstrapVersion)
	}
	fmt.Fprintf(w, "%-12s %s\n", "started:", report.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "%-12s %s\n", "updated:", report.UpdatedAt.Format(time.RFC3339))
}
