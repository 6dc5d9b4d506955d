// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"bytes"
	"strings"
	"testing"

	libprofile "github.com/soundstage-sh/soundstage/profile"
)

func TestPrintProfile(t *testing.T) {
	t.Parallel()

	launchProfile := &libprofile.Profile{
		Name:         "kiosk",
		BrowserFlags: []string{"--kiosk", "--no-sandbox"},
		Env: map[string]string{
			"TZ":   "UTC",
			"LANG": "C.UTF-8",
		},
	}

	var buffer bytes.Buffer
	printProfile(&buffer, launchProfile)
	output := buffer.String()

	for _, want := range []string{
		"name: kiosk",
		"--kiosk",
		"--no-sandbox",
		"LANG=C.UTF-8",
		"TZ=UTC",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}

	// Env vars print sorted: LANG before TZ.
	if strings.Index(output, "LANG=") > strings.Index(output, "TZ=") {
		t.Errorf("env vars not sorted:\n%s", output)
	}
}

func TestPrintProfileMinimal(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	printProfile(&buffer, &libprofile.Profile{Name: "bare"})
	output := buffer.String()

	if !strings.Contains(output, "name: bare") {
		t.Errorf("output missing name:\n%s", output)
	}
	if strings.Contains(output, "browser flags:") {
		t.Errorf("empty flag section should be omitted:\n%s", output)
	}
	if strings.Contains(output, "env:") {
		t.Errorf("empty env section should be omitted:\n%s", output)
	}
}

func TestShowNoArgs(t *testing.T) {
	t.Parallel()

	cmd := showCommand()
	err := cmd.Run([]string{})
	if err == nil {
		t.Fatal("expected error for no args")
	}
	if !strings.Contains(err.Error(), "usage") {
		t.Errorf("error %q should contain usage hint", err.Error())
	}
}
