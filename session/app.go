// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/soundstage-sh/soundstage/provision"
)

// runApp starts the application with the session environment merged
// over the bootstrap's own, waits for it to exit, and returns its
// exit code verbatim. The display is already ready when this runs and
// is stopped by the caller after the application is gone.
func (b *Bootstrap) runApp(ctx context.Context, environment *provision.Environment) int {
	cmd := exec.CommandContext(ctx, b.appArgv[0], b.appArgv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Dir = b.configuration.App.WorkingDir
	cmd.Env = environment.Merged(os.Environ())

	// Own process group so cancellation reaches the application and
	// all its children (negative PID = the whole group). Browsers
	// fork aggressively; signaling only the leader leaves renderer
	// processes holding the display.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Graceful cancellation: SIGTERM the group first, escalate to
	// SIGKILL once the grace period runs out. The application always
	// hears about shutdown before the display goes away.
	grace := b.configuration.GracePeriod()
	cmd.Cancel = func() error {
		processGroupID := -cmd.Process.Pid
		err := syscall.Kill(processGroupID, syscall.SIGTERM)
		if err == nil {
			go func() {
				<-b.clock.After(grace)
				// Best-effort: ESRCH from a dead group is harmless.
				_ = syscall.Kill(processGroupID, syscall.SIGKILL)
			}()
			return nil
		}
		if errors.Is(err, syscall.ESRCH) {
			// The group exited on its own just as cancellation
			// arrived. Report it as already done so Wait returns the
			// process's real status instead of an injected error.
			return os.ErrProcessDone
		}
		return syscall.Kill(processGroupID, syscall.SIGKILL)
	}

	if err := cmd.Start(); err != nil {
		b.logger.Error("launching application failed", "command", strings.Join(b.appArgv, " "), "error", err)
		return ExitLaunchFailure
	}

	b.setPhase(PhaseAppLaunched)
	b.checkpoint(nil)
	b.logger.Info("application launched",
		"pid", cmd.Process.Pid,
		"command", strings.Join(b.appArgv, " "),
		"display", environment.Display())

	waitErr := cmd.Wait()
	var exitError *exec.ExitError
	switch {
	case waitErr == nil:
		b.logger.Info("application exited", "exit_code", 0)
		return 0
	case errors.As(waitErr, &exitError):
		code := exitStatus(exitError)
		b.logger.Info("application exited", "exit_code", code)
		return code
	case errors.Is(waitErr, context.Canceled) || errors.Is(waitErr, context.DeadlineExceeded):
		// Wait reports the context error when cancellation interrupted
		// the command and it then exited cleanly. The zero status is
		// the application's own: it handled the signal.
		b.logger.Info("application exited", "exit_code", 0, "interrupted", true)
		return 0
	default:
		b.logger.Error("waiting for application", "error", waitErr)
		return ExitLaunchFailure
	}
}

// exitStatus maps an ExitError onto the code the bootstrap reports.
// Normal exits pass through verbatim. Signal deaths follow the shell
// convention of 128 plus the signal number, so an application killed
// with SIGKILL reports 137 here just as it would under a shell.
func exitStatus(exitError *exec.ExitError) int {
	if code := exitError.ExitCode(); code >= 0 {
		return code
	}
	if status, ok := exitError.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	return ExitLaunchFailure
}
