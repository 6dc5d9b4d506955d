// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Soundstage
// packages.
//
// [SocketDir] creates a short-pathed temporary directory in /tmp for
// tests that create X display sockets. X sockets share the Unix
// domain socket 108-byte path limit (sun_path in sockaddr_un), and
// nested test temp directories can exceed it, so t.TempDir() is not
// always safe for socket files. The directory is removed when the
// test completes.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// safety valve so individual tests do not reach for time.After
// directly. These are the only real wall-clock waits in the test
// suite; all timing logic under test runs on a fake clock
// (lib/clock).
//
// Helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
