// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile publishes files so that readers see either the
// previous contents or the complete new contents, never a prefix.
//
// The data is written to a temporary file, fsynced, renamed over the
// destination, and the destination directory is fsynced so the rename
// itself survives a crash. The temporary file must live on the same
// filesystem as the destination; callers with a dedicated scratch
// directory pass it as [Options.TempDir].
package atomicfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrExists is returned by Create when the destination already exists.
var ErrExists = errors.New("atomicfile: destination exists")

// Options control where the temporary file is created and the mode of
// the published file.
type Options struct {
	// TempDir holds the temporary file. Empty means the destination's
	// directory.
	TempDir string

	// Mode is the permission of the published file. Zero means 0644.
	Mode os.FileMode
}

// WriteFile atomically replaces path with data.
func WriteFile(path string, data []byte, options Options) error {
	return publish(path, data, options, false)
}

// Create atomically publishes data at path only if path does not exist
// yet. A concurrent writer that loses the race gets ErrExists and
// leaves the winner's file untouched.
func Create(path string, data []byte, options Options) error {
	return publish(path, data, options, true)
}

func publish(path string, data []byte, options Options, exclusive bool) error {
	mode := options.Mode
	if mode == 0 {
		mode = 0o644
	}
	tempDir := options.TempDir
	if tempDir == "" {
		tempDir = filepath.Dir(path)
	}

	file, err := os.CreateTemp(tempDir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temporary file for %s: %w", path, err)
	}
	temporaryPath := file.Name()

	// Write, chmod, sync, close. Any failure removes the temporary file.
	fail := func(step string, err error) error {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("%s temporary file for %s: %w", step, path, err)
	}
	if _, err := file.Write(data); err != nil {
		return fail("writing", err)
	}
	if err := file.Chmod(mode); err != nil {
		return fail("setting mode of", err)
	}
	if err := file.Sync(); err != nil {
		return fail("syncing", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary file for %s: %w", path, err)
	}

	if exclusive {
		// link(2) fails with EEXIST instead of replacing, which gives
		// create-if-absent semantics with the same crash safety.
		err := os.Link(temporaryPath, path)
		os.Remove(temporaryPath)
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
		if err != nil {
			return fmt.Errorf("publishing %s: %w", path, err)
		}
	} else if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("publishing %s: %w", path, err)
	}

	return SyncDir(filepath.Dir(path))
}

// SyncDir fsyncs a directory so that entries created or renamed in it
// are durable.
func SyncDir(directory string) error {
	handle, err := os.Open(directory)
	if err != nil {
		return fmt.Errorf("opening directory %s for sync: %w", directory, err)
	}
	defer handle.Close()
	if err := handle.Sync(); err != nil {
		return fmt.Errorf("syncing directory %s: %w", directory, err)
	}
	return nil
}
