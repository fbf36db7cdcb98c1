// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package proofstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"

	"github.com/quillproof/quill/lib/atomicfile"
	"github.com/quillproof/quill/lib/auditchain"
	"github.com/quillproof/quill/lib/canonical"
	"github.com/quillproof/quill/lib/codec"
	"github.com/quillproof/quill/lib/digest"
	"github.com/quillproof/quill/lib/run"
)

// PutRun stores a captured run and records run.captured in the audit
// log. Storing the same run again is a no-op; storing different
// content under an existing id fails with ErrRunImmutable.
func (s *Store) PutRun(ctx context.Context, captured *run.Run) error {
	if err := captured.CheckComplete(); err != nil {
		return fmt.Errorf("proofstore: %w", err)
	}
	normalized := captured.Normalized()
	data, err := codec.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("proofstore: encoding run %s: %w", captured.ID, err)
	}
	document, err := canonical.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("proofstore: canonicalizing run %s: %w", captured.ID, err)
	}
	runDigest := digest.Sum(document)

	return s.withLock(ctx, "put run", func() error {
		entry, appended, err := s.storeRecord(ctx, s.runPath(captured.ID), data,
			func(conn *sqlite.Conn) error { return indexRun(conn, normalized) },
			auditchain.ActionRunCaptured, captured.ID, runDigest)
		if errors.Is(err, atomicfile.ErrExists) {
			return fmt.Errorf("%w: %s", ErrRunImmutable, captured.ID)
		}
		if err != nil {
			return fmt.Errorf("proofstore: storing run %s: %w", captured.ID, err)
		}
		if appended {
			s.logger.Info("captured run", "run_id", captured.ID, "seq", entry.Seq)
		}
		return nil
	})
}

// GetRun reads a stored run.
func (s *Store) GetRun(runID string) (*run.Run, error) {
	if uuid.Validate(runID) != nil {
		return nil, fmt.Errorf("%w: run %q", ErrNotFound, runID)
	}
	data, err := os.ReadFile(s.runPath(runID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("proofstore: reading run %s: %w", runID, err)
	}
	var stored run.Run
	if err := codec.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("proofstore: decoding run %s: %w", runID, err)
	}
	return &stored, nil
}

// runPath is only called with ids that passed uuid validation, so the
// id cannot escape runs/.
func (s *Store) runPath(runID string) string {
	return s.path(runsDir, runID+recordSuffix)
}
