// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/soundstage-sh/soundstage/cmd/soundstage/commands"
	"github.com/soundstage-sh/soundstage/lib/process"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output (like doctor and
		// state show) return an exitError with the desired exit
		// code. Don't print a redundant "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		process.Fatal(err)
	}
}

func run() error {
	return commands.Root().Execute(os.Args[1:])
}
