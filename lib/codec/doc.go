// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Soundstage's standard CBOR encoding
// configuration.
//
// Soundstage uses two serialization formats with a clear boundary:
//
//   - JSON for external surfaces: structured log output, CLI --json
//     output, launch profiles (JSONC).
//   - CBOR for internal on-disk state: the session state report
//     written during bootstrap.
//
// This package holds the shared encoding and decoding modes so every
// writer encodes identically. The encoder uses Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items. Same logical data always
// produces identical bytes, which keeps state files byte-comparable
// across writes.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Types that are only ever CBOR use `cbor` struct tags. Types that
// also serve JSON output use `json` tags only — fxamacker/cbor reads
// them as fallback, so one tag controls naming for both formats.
// Never put both tags on one field.
package codec
