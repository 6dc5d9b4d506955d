// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

// Package display starts and supervises virtual X display servers
// (Xvfb). A Supervisor spawns the server process; the returned Handle
// covers the rest of its life: polling for readiness, observing its
// state, and stopping it.
//
// Readiness is observed, never assumed: the X server signals that it
// accepts clients by creating its listening socket (X<n> in the socket
// directory), and WaitReady polls for that socket on the injected
// clock. There is no fixed startup sleep anywhere.
package display

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/soundstage-sh/soundstage/lib/clock"
)

// ErrDisplayUnavailable tags every failure to bring a display up:
// server binary missing, spawn failure, premature server exit, or
// readiness timeout. The bootstrap reserves a distinct exit code for
// this class of failure.
var ErrDisplayUnavailable = errors.New("display unavailable")

// Defaults for supervisor timing. Both are overridden in tests through
// the fake clock rather than by shrinking the durations.
const (
	// DefaultPollInterval is how often WaitReady probes for the
	// server socket.
	DefaultPollInterval = 50 * time.Millisecond

	// DefaultStopGrace is how long Stop waits after SIGTERM before
	// escalating to SIGKILL.
	DefaultStopGrace = 5 * time.Second
)

// Geometry describes the virtual screen.
type Geometry struct {
	Width  int
	Height int
	Depth  int
}

// String renders the geometry in the WxHxD form the X server's
// -screen flag takes.
func (g Geometry) String() string {
	return fmt.Sprintf("%dx%dx%d", g.Width, g.Height, g.Depth)
}

// Supervisor starts display servers. One Supervisor can start any
// number of displays; each Start returns an independent Handle.
type Supervisor struct {
	serverBinary string
	socketDir    string
	clock        clock.Clock
	logger       *slog.Logger

	pollInterval time.Duration
	stopGrace    time.Duration
}

// New returns a Supervisor that launches serverBinary (a bare name is
// resolved through PATH at Start time) and watches for sockets in
// socketDir. The socket directory must already exist; on a standard
// X11 layout it is /tmp/.X11-unix.
func New(serverBinary, socketDir string, clk clock.Clock, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		serverBinary: serverBinary,
		socketDir:    socketDir,
		clock:        clk,
		logger:       logger,
		pollInterval: DefaultPollInterval,
		stopGrace:    DefaultStopGrace,
	}
}

// Start launches the display server for the given display number. The
// returned Handle is in the Starting state; the server is not usable
// until WaitReady succeeds. Start never waits: spawn failures are
// reported here, startup failures by WaitReady.
func (s *Supervisor) Start(number int, geometry Geometry) (*Handle, error) {
	binaryPath, err := exec.LookPath(s.serverBinary)
	if err != nil {
		return nil, fmt.Errorf("%w: server binary %q: %v", ErrDisplayUnavailable, s.serverBinary, err)
	}

	displayName := fmt.Sprintf(":%d", number)
	tail := newStderrTail(stderrTailLimit)

	command := exec.Command(binaryPath, displayName,
		"-screen", "0", geometry.String(),
		"-nolisten", "tcp",
	)
	command.Stderr = tail

	// Own process group, so Stop can signal the server and anything
	// it forked in one kill.
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	s.logger.Info("starting display server",
		"binary", binaryPath,
		"display", displayName,
		"geometry", geometry.String(),
	)

	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("%w: spawning %s: %v", ErrDisplayUnavailable, binaryPath, err)
	}

	handle := &Handle{
		display:    displayName,
		socketPath: filepath.Join(s.socketDir, fmt.Sprintf("X%d", number)),
		supervisor: s,
		command:    command,
		tail:       tail,
		state:      StateStarting,
		done:       make(chan struct{}),
	}

	// Reap the server as soon as it exits, whenever that is. The
	// recorded error and the closed done channel are what WaitReady
	// and Stop observe.
	go func() {
		err := command.Wait()
		handle.mu.Lock()
		handle.waitErr = err
		handle.mu.Unlock()
		close(handle.done)
	}()

	return handle, nil
}
