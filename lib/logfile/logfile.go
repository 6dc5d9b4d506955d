// Copyright 2026 The Soundstage Authors
// SPDX-License-Identifier: Apache-2.0

// Package logfile provides a size-rotated log writer. The active file
// stays plain text so it can be tailed while a session runs; rotated
// backups are zstd-compressed and numbered newest-first (app.log.1.zst
// through app.log.N.zst). Rotation happens inline, on the Write call
// that would push the active file past the size threshold.
package logfile

import (
	"fmt"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// encoder is reused across rotations to avoid repeated initialization
// overhead. zstd.Encoder is safe for concurrent use.
var encoder *zstd.Encoder

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("logfile: zstd encoder initialization failed: " + err.Error())
	}
}

// Writer appends to a log file and rotates it when a write would push
// the file past the size threshold. Safe for concurrent use; each Write
// call lands whole, so rotation only ever happens at record boundaries.
type Writer struct {
	mu         sync.Mutex
	path       string
	maxSize    int64
	maxBackups int

	file *os.File
	size int64
}

// New opens (or creates) the log file at path in append mode. maxSize
// is the rotation threshold in bytes. maxBackups is how many compressed
// backups to keep; zero means rotation discards the old content
// outright.
func New(path string, maxSize int64, maxBackups int) (*Writer, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("logfile: max size must be positive, got %d", maxSize)
	}
	if maxBackups < 0 {
		return nil, fmt.Errorf("logfile: max backups must be non-negative, got %d", maxBackups)
	}

	writer := &Writer{path: path, maxSize: maxSize, maxBackups: maxBackups}
	if err := writer.open(); err != nil {
		return nil, err
	}
	return writer, nil
}

// open opens the active file in append mode and records its current
// size, so rotation accounting survives process restarts.
func (w *Writer) open() error {
	file, err := os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = file
	w.size = info.Size()
	return nil
}

// Write appends p to the log file, rotating first when the write would
// exceed the size threshold. A single record larger than the threshold
// is written whole to an empty file rather than split.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, fmt.Errorf("logfile: write after Close")
	}

	if w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			// Reopen best-effort so later writes still append to
			// the active file; the rotation error is what the
			// caller sees.
			if w.file == nil {
				w.open()
			}
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// rotate closes the active file, shifts existing backups up one slot,
// compresses the closed file into slot 1, and reopens a fresh active
// file. Called with w.mu held.
func (w *Writer) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing log file for rotation: %w", err)
	}
	w.file = nil

	if w.maxBackups == 0 {
		if err := os.Remove(w.path); err != nil {
			return fmt.Errorf("discarding rotated log file: %w", err)
		}
		return w.open()
	}

	// Shift app.log.1.zst onto app.log.2.zst and so on. The rename
	// onto the highest slot overwrites the oldest backup.
	for slot := w.maxBackups - 1; slot >= 1; slot-- {
		source := w.backupPath(slot)
		if _, err := os.Stat(source); os.IsNotExist(err) {
			continue
		}
		if err := os.Rename(source, w.backupPath(slot+1)); err != nil {
			return fmt.Errorf("shifting log backup %d: %w", slot, err)
		}
	}

	if err := compressFile(w.path, w.backupPath(1)); err != nil {
		return err
	}
	if err := os.Remove(w.path); err != nil {
		return fmt.Errorf("removing rotated log file: %w", err)
	}

	return w.open()
}

// backupPath returns the path of the compressed backup in the given
// slot. Slot 1 holds the most recent rotation.
func (w *Writer) backupPath(slot int) string {
	return fmt.Sprintf("%s.%d.zst", w.path, slot)
}

// compressFile compresses source into destination with zstd. The
// destination is written to a temporary file and renamed into place so
// a crash mid-rotation never leaves a truncated backup.
func compressFile(source, destination string) error {
	data, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("reading log file for compression: %w", err)
	}
	compressed := encoder.EncodeAll(data, nil)

	temporaryPath := destination + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary backup file: %w", err)
	}
	if _, err := file.Write(compressed); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary backup file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary backup file: %w", err)
	}
	if err := os.Rename(temporaryPath, destination); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming backup file into place: %w", err)
	}
	return nil
}

// Close closes the active log file. Idempotent: a second Close returns
// nil.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
