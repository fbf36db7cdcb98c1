// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSchemaVersion is returned for a version outside the
// compiled-in set.
var ErrUnknownSchemaVersion = errors.New("unknown schema version")

// Violation is one field-level defect.
type Violation struct {
	// Field is the dotted path of the offending field.
	Field string `json:"field"`

	// Expected describes what the schema requires, e.g. "present",
	// "string", "absent".
	Expected string `json:"expected"`

	// Actual describes what was found, e.g. "missing", "number".
	Actual string `json:"actual"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: expected %s, got %s", v.Field, v.Expected, v.Actual)
}

// ViolationError carries every violation found in one validation.
type ViolationError struct {
	Version    string
	Violations []Violation

	unknownVersion bool
}

func (e *ViolationError) Error() string {
	if e.unknownVersion {
		return fmt.Sprintf("%s %q (supported: %s)", ErrUnknownSchemaVersion, e.Version, strings.Join(Versions(), ", "))
	}
	parts := make([]string, len(e.Violations))
	for index, violation := range e.Violations {
		parts[index] = violation.String()
	}
	return fmt.Sprintf("schema %s: %d violation(s): %s", e.Version, len(e.Violations), strings.Join(parts, "; "))
}

// Unwrap lets errors.Is match ErrUnknownSchemaVersion.
func (e *ViolationError) Unwrap() error {
	if e.unknownVersion {
		return ErrUnknownSchemaVersion
	}
	return nil
}

// Result is the outcome of one validation.
type Result struct {
	Version    string
	Violations []Violation

	unknownVersion bool
}

// Valid reports whether the value conformed.
func (r Result) Valid() bool {
	return !r.unknownVersion && len(r.Violations) == 0
}

// Err returns nil for a valid result and a *ViolationError otherwise.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	return &ViolationError{
		Version:        r.Version,
		Violations:     r.Violations,
		unknownVersion: r.unknownVersion,
	}
}
