// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source so that timing
// behavior is testable.
//
// Everything in Soundstage that waits — the display readiness poll,
// the ready timeout, the shutdown grace period — goes through a Clock
// instead of the time package. Production code injects Real(); tests
// inject Fake() and drive time explicitly with Advance.
//
// # Wiring
//
// Structs that wait hold a Clock field:
//
//	type Supervisor struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// Production:
//
//	supervisor := &Supervisor{clock: clock.Real()}
//
// Tests:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	supervisor := &Supervisor{clock: fake}
//	// ... start the goroutine under test ...
//	fake.WaitForTimers(1)          // it has registered its timer
//	fake.Advance(10 * time.Second) // fire it deterministically
//
// WaitForTimers closes the race between a goroutine registering a
// timer and the test advancing past its deadline. Tests that poll or
// sleep around that race are flaky; tests that use WaitForTimers are
// not.
package clock
