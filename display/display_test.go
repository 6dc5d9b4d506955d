// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soundstage-sh/soundstage/lib/clock"
	"github.com/soundstage-sh/soundstage/lib/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeServerScript creates an executable script that stands in for
// the display server binary. The script receives and ignores the real
// server arguments (:99 -screen 0 ...).
func writeServerScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-xserver")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("writing server script: %v", err)
	}
	return path
}

func testGeometry() Geometry {
	return Geometry{Width: 1024, Height: 768, Depth: 16}
}

func TestStartAndWaitReady(t *testing.T) {
	socketDir := testutil.SocketDir(t)
	script := writeServerScript(t, "exec sleep 300")
	fake := clock.Fake(time.Now())
	supervisor := New(script, socketDir, fake, testLogger())

	handle, err := supervisor.Start(99, testGeometry())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer handle.Stop()

	if got := handle.State(); got != StateStarting {
		t.Errorf("State after Start = %v, want starting", got)
	}
	if got := handle.Display(); got != ":99" {
		t.Errorf("Display = %q, want %q", got, ":99")
	}
	if got, want := handle.SocketPath(), filepath.Join(socketDir, "X99"); got != want {
		t.Errorf("SocketPath = %q, want %q", got, want)
	}

	result := make(chan error, 1)
	go func() {
		result <- handle.WaitReady(context.Background(), 10*time.Second)
	}()

	// The poll is registered once both waiters (ticker and deadline)
	// exist. Creating the socket after that point proves readiness is
	// discovered by polling, not by the initial probe.
	fake.WaitForTimers(2)
	if err := os.WriteFile(handle.SocketPath(), nil, 0666); err != nil {
		t.Fatalf("creating socket file: %v", err)
	}
	fake.Advance(DefaultPollInterval)

	if err := testutil.RequireReceive(t, result, 5*time.Second, "WaitReady"); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	if got := handle.State(); got != StateReady {
		t.Errorf("State = %v, want ready", got)
	}

	// A second WaitReady on a ready display returns immediately.
	if err := handle.WaitReady(context.Background(), time.Second); err != nil {
		t.Errorf("WaitReady on ready display: %v", err)
	}
}

func TestWaitReadyTimeout(t *testing.T) {
	socketDir := testutil.SocketDir(t)
	script := writeServerScript(t, "exec sleep 300")
	fake := clock.Fake(time.Now())
	supervisor := New(script, socketDir, fake, testLogger())

	handle, err := supervisor.Start(99, testGeometry())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer handle.Stop()

	result := make(chan error, 1)
	go func() {
		result <- handle.WaitReady(context.Background(), 200*time.Millisecond)
	}()

	fake.WaitForTimers(2)
	fake.Advance(200 * time.Millisecond)

	err = testutil.RequireReceive(t, result, 5*time.Second, "WaitReady timeout")
	if err == nil {
		t.Fatal("WaitReady should fail when the socket never appears")
	}
	if !errors.Is(err, ErrDisplayUnavailable) {
		t.Errorf("error should wrap ErrDisplayUnavailable, got: %v", err)
	}
	if got := handle.State(); got != StateFailed {
		t.Errorf("State = %v, want failed", got)
	}

	if err := handle.Stop(); err != nil {
		t.Fatalf("Stop after failure: %v", err)
	}
	if got := handle.State(); got != StateStopped {
		t.Errorf("State after Stop = %v, want stopped", got)
	}
}

func TestWaitReadyServerExit(t *testing.T) {
	socketDir := testutil.SocketDir(t)
	script := writeServerScript(t, `echo "fatal server error: cannot establish listening socket" >&2
exit 3`)
	fake := clock.Fake(time.Now())
	supervisor := New(script, socketDir, fake, testLogger())

	handle, err := supervisor.Start(99, testGeometry())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	testutil.RequireClosed(t, handle.done, 5*time.Second, "server exit")

	err = handle.WaitReady(context.Background(), 10*time.Second)
	if err == nil {
		t.Fatal("WaitReady should fail when the server exited")
	}
	if !errors.Is(err, ErrDisplayUnavailable) {
		t.Errorf("error should wrap ErrDisplayUnavailable, got: %v", err)
	}
	if !strings.Contains(err.Error(), "exit status 3") {
		t.Errorf("error %q should carry the server exit status", err)
	}
	if !strings.Contains(err.Error(), "fatal server error") {
		t.Errorf("error %q should carry the server's stderr tail", err)
	}
	if got := handle.State(); got != StateFailed {
		t.Errorf("State = %v, want failed", got)
	}

	// The server is already gone; Stop is benign cleanup.
	if err := handle.Stop(); err != nil {
		t.Fatalf("Stop after server exit: %v", err)
	}
}

func TestStartMissingBinary(t *testing.T) {
	fake := clock.Fake(time.Now())
	supervisor := New("soundstage-no-such-xserver", t.TempDir(), fake, testLogger())

	_, err := supervisor.Start(99, testGeometry())
	if err == nil {
		t.Fatal("Start with a missing server binary should fail")
	}
	if !errors.Is(err, ErrDisplayUnavailable) {
		t.Errorf("error should wrap ErrDisplayUnavailable, got: %v", err)
	}
}

func TestStopTerminatesServer(t *testing.T) {
	socketDir := testutil.SocketDir(t)
	script := writeServerScript(t, "exec sleep 300")
	fake := clock.Fake(time.Now())
	supervisor := New(script, socketDir, fake, testLogger())

	handle, err := supervisor.Start(99, testGeometry())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := handle.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// Stop returns only after the server process is reaped.
	select {
	case <-handle.done:
	default:
		t.Error("Stop returned before the server process exited")
	}
	if got := handle.State(); got != StateStopped {
		t.Errorf("State = %v, want stopped", got)
	}

	if err := handle.Stop(); err != nil {
		t.Errorf("Stop second (idempotent): %v", err)
	}
}

func TestStopAfterServerGone(t *testing.T) {
	socketDir := testutil.SocketDir(t)
	script := writeServerScript(t, "exit 0")
	fake := clock.Fake(time.Now())
	supervisor := New(script, socketDir, fake, testLogger())

	handle, err := supervisor.Start(99, testGeometry())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	testutil.RequireClosed(t, handle.done, 5*time.Second, "server exit")

	if err := handle.Stop(); err != nil {
		t.Errorf("Stop of already-exited server should be benign, got: %v", err)
	}
	if got := handle.State(); got != StateStopped {
		t.Errorf("State = %v, want stopped", got)
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	socketDir := testutil.SocketDir(t)
	// The stand-in ignores SIGTERM, forcing the SIGKILL path.
	script := writeServerScript(t, `trap '' TERM
while :; do sleep 0.1; done`)
	fake := clock.Fake(time.Now())
	supervisor := New(script, socketDir, fake, testLogger())

	handle, err := supervisor.Start(99, testGeometry())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	result := make(chan error, 1)
	go func() {
		result <- handle.Stop()
	}()

	// The escalation timer is the only pending waiter.
	fake.WaitForTimers(1)
	fake.Advance(DefaultStopGrace)

	if err := testutil.RequireReceive(t, result, 5*time.Second, "Stop with escalation"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := handle.State(); got != StateStopped {
		t.Errorf("State = %v, want stopped", got)
	}
}

func TestSetStateMonotonic(t *testing.T) {
	stopped := &Handle{state: StateStopped}
	stopped.setState(StateReady)
	if stopped.state != StateStopped {
		t.Errorf("stopped handle moved to %v, want stopped to stay terminal", stopped.state)
	}

	ready := &Handle{state: StateReady}
	ready.setState(StateFailed)
	if ready.state != StateReady {
		t.Errorf("ready handle moved to %v on setState(failed), want ready", ready.state)
	}
	ready.setState(StateStopped)
	if ready.state != StateStopped {
		t.Errorf("ready handle = %v after setState(stopped), want stopped", ready.state)
	}

	failed := &Handle{state: StateFailed}
	failed.setState(StateReady)
	if failed.state != StateFailed {
		t.Errorf("failed handle moved to %v, want no recovery to ready", failed.state)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateStarting, "starting"},
		{StateReady, "ready"},
		{StateFailed, "failed"},
		{StateStopped, "stopped"},
		{State(42), "unknown(42)"},
	}
	for _, test := range tests {
		if got := test.state.String(); got != test.want {
			t.Errorf("State(%d).String() = %q, want %q", int(test.state), got, test.want)
		}
	}
}

func TestGeometryString(t *testing.T) {
	if got := testGeometry().String(); got != "1024x768x16" {
		t.Errorf("Geometry.String() = %q, want %q", got, "1024x768x16")
	}
}

func TestStderrTailKeepsTail(t *testing.T) {
	tail := newStderrTail(10)

	if _, err := tail.Write([]byte("0123456789ABCDEF")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := tail.String(); got != "6789ABCDEF" {
		t.Errorf("String = %q, want last 10 bytes %q", got, "6789ABCDEF")
	}

	if _, err := tail.Write([]byte("xyz")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := tail.String(); got != "9ABCDEFxyz" {
		t.Errorf("String = %q, want %q", got, "9ABCDEFxyz")
	}
}

func TestStderrTailTrimsWhitespace(t *testing.T) {
	tail := newStderrTail(64)
	if _, err := tail.Write([]byte("  fatal error\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := tail.String(); got != "fatal error" {
		t.Errorf("String = %q, want %q", got, "fatal error")
	}
}
