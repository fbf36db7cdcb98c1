// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package atomicfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileReplaces(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "record.cbor")

	if err := WriteFile(path, []byte("first"), Options{}); err != nil {
		t.Fatalf("first WriteFile: %v", err)
	}
	if err := WriteFile(path, []byte("second"), Options{}); err != nil {
		t.Fatalf("second WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("contents = %q, want %q", data, "second")
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the published file", len(entries))
	}
}

func TestWriteFileModeAndTempDir(t *testing.T) {
	root := t.TempDir()
	scratch := filepath.Join(root, "tmp")
	if err := os.Mkdir(scratch, 0o700); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(root, "private.key")

	if err := WriteFile(path, []byte("k"), Options{TempDir: scratch, Mode: 0o600}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
	leftovers, _ := os.ReadDir(scratch)
	if len(leftovers) != 0 {
		t.Errorf("scratch directory has %d leftover files", len(leftovers))
	}
}

func TestCreateRefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipt.cbor")

	if err := Create(path, []byte("winner"), Options{}); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	err := Create(path, []byte("loser"), Options{})
	if !errors.Is(err, ErrExists) {
		t.Fatalf("second Create error = %v, want ErrExists", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "winner" {
		t.Errorf("contents = %q, want the first writer's data", data)
	}
}

func TestWriteFileMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent", "file")
	if err := WriteFile(path, []byte("x"), Options{}); err == nil {
		t.Fatal("WriteFile into a missing directory succeeded")
	}
}
