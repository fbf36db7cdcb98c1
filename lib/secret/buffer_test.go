// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewIsZeroFilled(t *testing.T) {
	buffer, err := New(64)
	if err != nil {
		t.Fatalf("New(64): %v", err)
	}
	defer buffer.Close()

	if buffer.Len() != 64 {
		t.Errorf("Len() = %d, want 64", buffer.Len())
	}
	for index, value := range buffer.Bytes() {
		if value != 0 {
			t.Fatalf("byte %d = %d, want 0", index, value)
		}
	}
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		if _, err := New(size); err == nil {
			t.Errorf("New(%d) succeeded, want error", size)
		}
	}
}

func TestNewFromBytesZeroesSource(t *testing.T) {
	source := []byte("ed25519-seed-material-32-bytes!!")
	want := string(source)

	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if string(buffer.Bytes()) != want {
		t.Errorf("buffer = %q, want %q", buffer.Bytes(), want)
	}
	for index, value := range source {
		if value != 0 {
			t.Fatalf("source byte %d not zeroed", index)
		}
	}
}

func TestNewFromBytesEmpty(t *testing.T) {
	if _, err := NewFromBytes(nil); err == nil {
		t.Fatal("NewFromBytes(nil) succeeded, want error")
	}
}

func TestCloseReleases(t *testing.T) {
	buffer, err := NewFromBytes([]byte("private"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if buffer.data != nil {
		t.Error("data still mapped after Close")
	}
	if buffer.Len() != 0 {
		t.Errorf("Len() after Close = %d, want 0", buffer.Len())
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestBytesPanicsAfterClose(t *testing.T) {
	buffer, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	buffer.Close()

	defer func() {
		if recover() == nil {
			t.Fatal("Bytes() after Close did not panic")
		}
	}()
	buffer.Bytes()
}

func TestFromEnv(t *testing.T) {
	t.Setenv("QUILL_TEST_PASSPHRASE", "correct horse")

	buffer, err := FromEnv("QUILL_TEST_PASSPHRASE")
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	defer buffer.Close()
	if string(buffer.Bytes()) != "correct horse" {
		t.Errorf("FromEnv = %q", buffer.Bytes())
	}

	t.Setenv("QUILL_TEST_EMPTY", "")
	if _, err := FromEnv("QUILL_TEST_EMPTY"); !errors.Is(err, ErrNotSet) {
		t.Errorf("FromEnv(empty) error = %v, want ErrNotSet", err)
	}
}

func TestFromFile(t *testing.T) {
	directory := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{name: "plain", content: "hunter2", want: "hunter2"},
		{name: "trailing newline", content: "hunter2\n", want: "hunter2"},
		{name: "surrounding whitespace", content: "  hunter2 \t\n", want: "hunter2"},
		{name: "empty", content: "", wantErr: true},
		{name: "whitespace only", content: " \n\t", wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(directory, test.name)
			if err := os.WriteFile(path, []byte(test.content), 0o600); err != nil {
				t.Fatalf("writing %s: %v", path, err)
			}
			buffer, err := FromFile(path)
			if test.wantErr {
				if err == nil {
					buffer.Close()
					t.Fatal("FromFile succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("FromFile: %v", err)
			}
			defer buffer.Close()
			if string(buffer.Bytes()) != test.want {
				t.Errorf("FromFile = %q, want %q", buffer.Bytes(), test.want)
			}
		})
	}

	if _, err := FromFile(filepath.Join(directory, "missing")); err == nil {
		t.Error("FromFile(missing) succeeded")
	}
}
