// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Soundstage
// binaries.
//
// Configuration is loaded from a single YAML file specified by:
//   - the SOUNDSTAGE_CONFIG environment variable, or
//   - the --config flag passed to the command.
//
// There are no fallbacks or automatic discovery. Container images bake
// one config per image; deterministic, auditable configuration with no
// hidden overrides is the point. Command-line flags may override
// individual values after loading — the precedence is defaults, then
// file, then flags.
//
// The only expansion performed on file contents is ${VAR} and
// ${VAR:-default} in path-valued fields, for portability across home
// directories and mount points.
package config
