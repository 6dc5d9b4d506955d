// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

// Package doctor implements the "soundstage doctor" command for
// diagnosing the session environment before anything runs. It checks
// the same preconditions soundstage-run would hit at startup — the
// configuration, the display server, the X11 socket directory, the
// browser, the launch profile — and reports them as a checklist
// instead of a failing session.
//
// Most checks are read-only. The two directory checks carry fix
// closures executed in --fix mode; creating the X11 socket directory
// needs root, so that fix is marked elevated and skipped (with
// guidance) when the process is not root.
//
// The optional --smoke check goes one step further than version
// detection: it drives a real headless browser through a navigation
// round-trip, which catches installations that report a version but
// cannot actually start.
package doctor
