// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

// Package privilege enforces the one-way transition from the
// bootstrap's starting identity to the unprivileged session identity.
//
// Containers normally switch users at image build time, so the common
// case is verifying that the process already runs as the intended
// identity and latching the boundary. When the bootstrap does start
// as root (layouts where it must own /tmp/.X11-unix setup), Drop
// performs the real switch through a Switcher. The boundary crosses
// at most once per process and there is no API to re-escalate.
package privilege

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrAlreadyDropped indicates a second Drop call. The boundary crosses
// once; a repeated call is a programming error in the orchestrator.
var ErrAlreadyDropped = errors.New("privileges already dropped")

// Identity is a numeric user and group identity.
type Identity struct {
	// Name is the account name when the identity came from a user
	// lookup. Informational; the switch uses the numeric ids.
	Name string

	UID int
	GID int
}

// Switcher abstracts the process credential syscalls so the boundary
// is testable without running as root.
type Switcher interface {
	// Current returns the effective identity of the process.
	Current() Identity

	// Assume switches the process to the given identity.
	Assume(Identity) error
}

// Boundary is the one-way privilege latch. The guard flag, not the
// kernel, is what makes the single-crossing rule observable: after a
// successful Drop every later call fails with ErrAlreadyDropped even
// when the identity switch itself would be a no-op.
type Boundary struct {
	switcher Switcher
	logger   *slog.Logger

	mu      sync.Mutex
	dropped bool
}

// New returns a Boundary using the given Switcher. Production code
// uses NewOS; tests inject a fake.
func New(switcher Switcher, logger *slog.Logger) *Boundary {
	return &Boundary{switcher: switcher, logger: logger}
}

// NewOS returns a Boundary backed by the real credential syscalls.
func NewOS(logger *slog.Logger) *Boundary {
	return New(osSwitcher{}, logger)
}

// Drop switches the process to the target identity and latches the
// boundary. When the process already runs as the target, Drop latches
// without touching process credentials. A failed switch leaves the
// boundary open; the orchestrator treats that as fatal anyway.
//
// The switch is irreversible: real, effective, and saved ids all
// change, so the kernel refuses any later escalation.
func (b *Boundary) Drop(target Identity) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dropped {
		return fmt.Errorf("dropping to uid %d: %w", target.UID, ErrAlreadyDropped)
	}

	current := b.switcher.Current()
	if current.UID == target.UID && current.GID == target.GID {
		b.dropped = true
		b.logger.Info("privilege boundary latched",
			"uid", target.UID, "gid", target.GID)
		return nil
	}

	if err := b.switcher.Assume(target); err != nil {
		return fmt.Errorf("dropping privileges to uid %d gid %d: %w",
			target.UID, target.GID, err)
	}
	b.dropped = true
	b.logger.Info("privileges dropped",
		"previous_uid", current.UID, "uid", target.UID, "gid", target.GID)
	return nil
}

// Dropped reports whether the boundary has been crossed.
func (b *Boundary) Dropped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// ResolveUser looks up a system account by name and returns the
// identity to drop to.
func ResolveUser(name string) (Identity, error) {
	account, err := user.Lookup(name)
	if err != nil {
		return Identity{}, fmt.Errorf("looking up user %q: %w", name, err)
	}
	uid, err := strconv.Atoi(account.Uid)
	if err != nil {
		return Identity{}, fmt.Errorf("user %q has non-numeric uid %q", name, account.Uid)
	}
	gid, err := strconv.Atoi(account.Gid)
	if err != nil {
		return Identity{}, fmt.Errorf("user %q has non-numeric gid %q", name, account.Gid)
	}
	return Identity{Name: account.Username, UID: uid, GID: gid}, nil
}

// osSwitcher performs the real credential switch.
type osSwitcher struct{}

func (osSwitcher) Current() Identity {
	return Identity{UID: os.Geteuid(), GID: os.Getegid()}
}

// Assume drops to the target in the only safe order: supplementary
// groups first (retained memberships would survive the uid switch),
// then the group, then the uid. Setresuid comes last because it is
// the step that gives up the right to switch at all.
func (osSwitcher) Assume(target Identity) error {
	if err := unix.Setgroups([]int{target.GID}); err != nil {
		return fmt.Errorf("setgroups: %w", err)
	}
	if err := unix.Setresgid(target.GID, target.GID, target.GID); err != nil {
		return fmt.Errorf("setresgid: %w", err)
	}
	if err := unix.Setresuid(target.UID, target.UID, target.UID); err != nil {
		return fmt.Errorf("setresuid: %w", err)
	}
	return nil
}
