// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for Soundstage
// binaries. These centralize the raw stderr I/O that legitimately
// happens before the structured logger exists or after the run loop
// has returned:
//
//   - Fatal error reporting to stderr when the logger may not be
//     initialized (pre-logger).
//   - Process exit after an unrecoverable error in main().
//
// Everything else logs through slog.
package process
