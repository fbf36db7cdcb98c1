// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"errors"
	"fmt"
	"os"
)

// ErrNotSet is returned by FromEnv when the variable is unset or empty.
var ErrNotSet = errors.New("secret: environment variable not set")

// FromEnv copies the value of the named environment variable into a
// Buffer. The process environment itself cannot be scrubbed; callers
// that need stronger guarantees should use FromFile.
func FromEnv(name string) (*Buffer, error) {
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotSet, name)
	}
	return NewFromBytes([]byte(value))
}

// FromFile reads a secret from path with surrounding whitespace
// trimmed. The heap copy of the file contents is zeroed before
// returning.
func FromFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading secret file: %w", err)
	}
	defer Zero(data)

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret file %s is empty", path)
	}
	return NewFromBytes(trimmed)
}
