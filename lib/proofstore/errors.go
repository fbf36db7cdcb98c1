// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package proofstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the requested run or receipt is not stored.
	ErrNotFound = errors.New("proofstore: not found")

	// ErrRunImmutable means a run with the same id but different
	// content is already stored.
	ErrRunImmutable = errors.New("proofstore: run already captured with different content")

	// ErrTornAuditLog means audit.log ends in a partial line.
	ErrTornAuditLog = errors.New("proofstore: audit log ends in a partial line")

	// ErrNoProject means no .quill directory was found.
	ErrNoProject = errors.New("proofstore: not inside a quill project")
)

// StoreConflict reports that another writer got there first: the lock
// stayed busy through every retry, or the audit chain tail moved
// between reading it and appending. The operation can be retried.
type StoreConflict struct {
	Op       string
	Expected string
	Actual   string
}

func (e *StoreConflict) Error() string {
	return fmt.Sprintf("proofstore: %s: conflict: expected %s, found %s", e.Op, e.Expected, e.Actual)
}

// IsRetryable reports true. Conflicts are transient by definition.
func (e *StoreConflict) IsRetryable() bool { return true }

// IsRetryable reports whether err is or wraps a *StoreConflict.
func IsRetryable(err error) bool {
	var conflict *StoreConflict
	return errors.As(err, &conflict)
}
