// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

// Package fingerprint computes BLAKE3 digests of binaries.
//
// A session log that records "Chrome 139" is not enough to reproduce a
// failure: distribution packages rebuild, and two binaries reporting
// the same version can differ. The provisioner fingerprints the
// browser binary it detected so a session can be correlated with the
// exact build that served it.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 digest of a file's contents.
type Digest [32]byte

// String returns the hex encoding of the digest. This is the canonical
// format used in logs and state reports.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// File computes the BLAKE3 digest of the file at path. The file is
// streamed through the hash in chunks (via io.Copy) to keep memory
// usage constant regardless of file size.
func File(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for fingerprinting: %w", path, err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return Digest{}, fmt.Errorf("fingerprinting %s: %w", path, err)
	}

	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// Parse parses a 64-character hex string into a Digest.
func Parse(hexString string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing fingerprint: %w", err)
	}
	if len(decoded) != len(digest) {
		return digest, fmt.Errorf("fingerprint is %d bytes, want %d", len(decoded), len(digest))
	}
	copy(digest[:], decoded)
	return digest, nil
}
