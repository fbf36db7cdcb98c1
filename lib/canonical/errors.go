// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package canonical

import "fmt"

// Error reports a value that cannot be canonicalized. Path locates the
// offending value using JSONPath-like notation rooted at "$".
type Error struct {
	Path   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("canonicalization failed at %s: %s", e.Path, e.Reason)
}

func errorf(path, format string, args ...any) *Error {
	return &Error{Path: path, Reason: fmt.Sprintf(format, args...)}
}
