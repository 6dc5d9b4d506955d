// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// State of a supervised display server.
type State int

const (
	// StateStarting: the server process is running but has not
	// created its listening socket yet.
	StateStarting State = iota

	// StateReady: the listening socket exists; clients can connect.
	StateReady

	// StateFailed: the server exited or timed out during startup.
	StateFailed

	// StateStopped: Stop ran. Terminal.
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Handle supervises one display server process from Start to Stop. A
// Handle is single-use: once Failed or Stopped, a fresh display needs
// a fresh Start.
type Handle struct {
	display    string
	socketPath string
	supervisor *Supervisor
	command    *exec.Cmd
	tail       *stderrTail

	// done is closed by the reaper goroutine when the server process
	// has exited, after waitErr is recorded.
	done chan struct{}

	mu      sync.Mutex
	state   State
	waitErr error
	stopped bool
}

// Display returns the X display name this handle serves (":99").
func (h *Handle) Display() string {
	return h.display
}

// SocketPath returns the listening socket path the readiness probe
// watches.
func (h *Handle) SocketPath() string {
	return h.socketPath
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// setState applies a lifecycle transition. Transitions are monotonic:
// Stopped is terminal, and Ready/Failed only ever replace Starting.
func (h *Handle) setState(next State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.state == next:
	case next == StateStopped:
		h.state = next
	case h.state == StateStarting && (next == StateReady || next == StateFailed):
		h.state = next
	}
}

// WaitReady blocks until the server's listening socket appears, and
// fails when the server exits first, the timeout elapses, or ctx is
// canceled. All failures wrap ErrDisplayUnavailable and move the
// handle to Failed.
//
// Readiness is polled on the supervisor's clock, so tests drive this
// with a fake clock; the probe interval is DefaultPollInterval.
func (h *Handle) WaitReady(ctx context.Context, timeout time.Duration) error {
	switch h.State() {
	case StateReady:
		return nil
	case StateFailed, StateStopped:
		return fmt.Errorf("%w: display %s is %s", ErrDisplayUnavailable, h.display, h.State())
	}

	ticker := h.supervisor.clock.NewTicker(h.supervisor.pollInterval)
	defer ticker.Stop()
	deadline := h.supervisor.clock.After(timeout)

	for {
		// Probe before blocking so an already-ready display costs
		// no tick.
		if h.socketExists() {
			h.setState(StateReady)
			h.supervisor.logger.Info("display ready",
				"display", h.display, "socket", h.socketPath)
			return nil
		}

		select {
		case <-h.done:
			h.setState(StateFailed)
			return fmt.Errorf("%w: server for %s exited during startup: %s",
				ErrDisplayUnavailable, h.display, h.exitDetail())
		case <-deadline:
			h.setState(StateFailed)
			return fmt.Errorf("%w: socket %s did not appear within %s",
				ErrDisplayUnavailable, h.socketPath, timeout)
		case <-ctx.Done():
			h.setState(StateFailed)
			return fmt.Errorf("%w: canceled waiting for %s: %v",
				ErrDisplayUnavailable, h.socketPath, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Stop terminates the display server: SIGTERM to its process group, a
// bounded wait on the supervisor's clock, SIGKILL on overrun.
// Idempotent: the second and later calls return nil immediately. A
// server that already exited on its own is a normal cleanup
// condition, not an error.
func (h *Handle) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	h.mu.Unlock()

	defer h.setState(StateStopped)

	select {
	case <-h.done:
		h.supervisor.logger.Debug("display server already exited",
			"display", h.display)
		return nil
	default:
	}

	processGroup := -h.command.Process.Pid
	if err := syscall.Kill(processGroup, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			// The group vanished between the check and the signal.
			// Already gone is what Stop wanted; wait for the reaper.
			<-h.done
			return nil
		}
		return fmt.Errorf("stopping display %s: %w", h.display, err)
	}

	select {
	case <-h.done:
	case <-h.supervisor.clock.After(h.supervisor.stopGrace):
		h.supervisor.logger.Warn("display server ignored SIGTERM, killing",
			"display", h.display, "grace", h.supervisor.stopGrace)
		// Best-effort: ESRCH here means it exited under us.
		_ = syscall.Kill(processGroup, syscall.SIGKILL)
		<-h.done
	}

	h.supervisor.logger.Info("display stopped", "display", h.display)
	return nil
}

func (h *Handle) socketExists() bool {
	_, err := os.Stat(h.socketPath)
	return err == nil
}

// exitDetail describes how the server process ended, with the stderr
// tail attached when there is one. Xvfb prints its fatal errors
// ("Server is already active for display 99", bad geometry) to stderr
// right before exiting.
func (h *Handle) exitDetail() string {
	h.mu.Lock()
	waitErr := h.waitErr
	h.mu.Unlock()

	detail := "exit status 0"
	if waitErr != nil {
		detail = waitErr.Error()
	}
	if tail := h.tail.String(); tail != "" {
		detail = fmt.Sprintf("%s (stderr: %s)", detail, tail)
	}
	return detail
}

// stderrTailLimit bounds how much server stderr is retained for error
// reports.
const stderrTailLimit = 2048

// stderrTail keeps the last chunk of a process's stderr. The server
// runs for the whole session, so capture must be bounded; only the
// tail matters because X servers print their fatal error last.
type stderrTail struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func newStderrTail(limit int) *stderrTail {
	return &stderrTail{limit: limit}
}

func (t *stderrTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if overflow := len(t.buf) - t.limit; overflow > 0 {
		t.buf = t.buf[overflow:]
	}
	return len(p), nil
}

func (t *stderrTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
