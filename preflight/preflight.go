// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

// Package preflight drives the configured browser through a real
// automation round-trip before a session is trusted with one. The
// smoke check installs the Playwright driver (browsers themselves are
// never downloaded), launches the browser binary the provisioner
// resolved, evaluates a script in a fresh page, and tears everything
// down again.
//
// This catches the failure modes version detection cannot: a browser
// that prints a version banner but cannot start a renderer, missing
// shared libraries, and sandbox flags the binary rejects.
package preflight

import (
	"fmt"
	"io"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	DefaultWidth  = 1024
	DefaultHeight = 768

	// DefaultTimeout bounds every page operation in the smoke check.
	DefaultTimeout = 30 * time.Second
)

// Options configure the smoke check.
type Options struct {
	// BrowserPath is the browser binary to launch. Empty falls back
	// to Playwright's own managed browser, which is only present when
	// something else installed it.
	BrowserPath string

	// BrowserFlags are extra command line flags for the browser,
	// typically the launch profile's (--no-sandbox inside
	// containers).
	BrowserFlags []string

	// Headless launches the browser without a display. Leave false to
	// exercise a running virtual display through DISPLAY.
	Headless bool

	// Width and Height set the page viewport. Zero uses the default
	// session geometry.
	Width  int
	Height int

	// Timeout bounds each page operation. Zero uses DefaultTimeout.
	Timeout time.Duration
}

// Result is what the smoke check observed.
type Result struct {
	// BrowserVersion is the version the running browser reports over
	// the automation protocol.
	BrowserVersion string

	// UserAgent is the user agent string evaluated inside a page,
	// proving a renderer actually came up.
	UserAgent string
}

func withDefaults(options Options) Options {
	if options.Width == 0 {
		options.Width = DefaultWidth
	}
	if options.Height == 0 {
		options.Height = DefaultHeight
	}
	if options.Timeout == 0 {
		options.Timeout = DefaultTimeout
	}
	return options
}

// Smoke runs the full check: driver up, browser launched, one page
// evaluated, everything closed. The driver's own output is discarded
// so the check never interferes with the caller's terminal.
func Smoke(options Options) (*Result, error) {
	options = withDefaults(options)

	runOptions := &playwright.RunOptions{
		Verbose:             false,
		Stdout:              io.Discard,
		Stderr:              io.Discard,
		SkipInstallBrowsers: true,
	}
	if err := playwright.Install(runOptions); err != nil {
		return nil, fmt.Errorf("installing playwright driver: %w", err)
	}

	pw, err := playwright.Run(runOptions)
	if err != nil {
		return nil, fmt.Errorf("starting playwright driver: %w", err)
	}
	defer pw.Stop()

	launchOptions := playwright.BrowserTypeLaunchOptions{
		Headless: &options.Headless,
		Args:     options.BrowserFlags,
	}
	if options.BrowserPath != "" {
		launchOptions.ExecutablePath = &options.BrowserPath
	}
	browser, err := pw.Chromium.Launch(launchOptions)
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	defer browser.Close()

	browserContext, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  options.Width,
			Height: options.Height,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating browser context: %w", err)
	}
	defer browserContext.Close()

	page, err := browserContext.NewPage()
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	defer page.Close()
	page.SetDefaultTimeout(float64(options.Timeout.Milliseconds()))

	value, err := page.Evaluate("() => navigator.userAgent")
	if err != nil {
		return nil, fmt.Errorf("evaluating in page: %w", err)
	}
	userAgent, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("evaluating in page: user agent is %T, not a string", value)
	}

	return &Result{
		BrowserVersion: browser.Version(),
		UserAgent:      userAgent,
	}, nil
}
