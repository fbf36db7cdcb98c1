// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package proofstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/quillproof/quill/lib/atomicfile"
	"github.com/quillproof/quill/lib/auditchain"
	"github.com/quillproof/quill/lib/digest"
	"github.com/quillproof/quill/lib/receipt"
)

// PutReceipt publishes a promoted receipt: the receipt file, its
// registry row (superseding the run's previous receipt), and a
// receipt.promoted audit entry, all under the store lock. Storing the
// same receipt twice is a no-op.
func (s *Store) PutReceipt(ctx context.Context, promoted *receipt.Receipt) error {
	data, err := promoted.Encode()
	if err != nil {
		return fmt.Errorf("proofstore: %w", err)
	}
	return s.putReceipt(ctx, "put receipt", auditchain.ActionReceiptPromoted, promoted, data)
}

// ImportReceipt stores receipt bytes received from elsewhere exactly
// as given and records receipt.imported. The caller is expected to
// have verified the receipt.
func (s *Store) ImportReceipt(ctx context.Context, data []byte) (*receipt.Receipt, error) {
	imported, err := receipt.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("proofstore: %w", err)
	}
	if err := s.putReceipt(ctx, "import receipt", auditchain.ActionReceiptImported, imported, data); err != nil {
		return nil, err
	}
	return imported, nil
}

func (s *Store) putReceipt(ctx context.Context, op string, action auditchain.Action, stored *receipt.Receipt, data []byte) error {
	if stored.Digest.IsZero() {
		return fmt.Errorf("proofstore: receipt has no digest")
	}
	signed, err := stored.Run()
	if err != nil {
		return fmt.Errorf("proofstore: receipt %s: %w", stored.Digest, err)
	}

	return s.withLock(ctx, op, func() error {
		path := s.receiptPath(stored.Digest)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("proofstore: %w", err)
		}
		entry, appended, err := s.storeRecord(ctx, path, data,
			func(conn *sqlite.Conn) error { return indexReceipt(conn, signed.ID, stored) },
			action, signed.ID, stored.Digest)
		if errors.Is(err, atomicfile.ErrExists) {
			return fmt.Errorf("proofstore: receipt file %s exists with different bytes", path)
		}
		if err != nil {
			return fmt.Errorf("proofstore: storing receipt %s: %w", stored.Digest, err)
		}
		if appended {
			s.logger.Info("stored receipt",
				"run_id", signed.ID,
				"digest", stored.Digest.String(),
				"action", string(action),
				"seq", entry.Seq,
			)
		}
		return nil
	})
}

// ReceiptBytes returns the stored receipt file exactly as written.
func (s *Store) ReceiptBytes(receiptDigest digest.Digest) ([]byte, error) {
	if receiptDigest.IsZero() {
		return nil, fmt.Errorf("%w: empty digest", ErrNotFound)
	}
	data, err := os.ReadFile(s.receiptPath(receiptDigest))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: receipt %s", ErrNotFound, receiptDigest)
	}
	if err != nil {
		return nil, fmt.Errorf("proofstore: reading receipt %s: %w", receiptDigest, err)
	}
	return data, nil
}

// LookupReceipt reads the receipt with the given digest.
func (s *Store) LookupReceipt(receiptDigest digest.Digest) (*receipt.Receipt, error) {
	data, err := s.ReceiptBytes(receiptDigest)
	if err != nil {
		return nil, err
	}
	stored, err := receipt.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("proofstore: receipt %s: %w", receiptDigest, err)
	}
	return stored, nil
}

// CurrentReceipt returns the receipt that no later promotion of runID
// supersedes.
func (s *Store) CurrentReceipt(ctx context.Context, runID string) (*receipt.Receipt, error) {
	var current string
	err := s.index.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT digest FROM receipts WHERE run_id = ? AND superseded_by IS NULL`,
			&sqlitex.ExecOptions{
				Args: []any{runID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					current = stmt.ColumnText(0)
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("proofstore: current receipt of run %s: %w", runID, err)
	}
	if current == "" {
		return nil, fmt.Errorf("%w: no receipt for run %s", ErrNotFound, runID)
	}
	currentDigest, err := digest.Parse(current)
	if err != nil {
		return nil, fmt.Errorf("proofstore: index holds malformed digest %q: %w", current, err)
	}
	return s.LookupReceipt(currentDigest)
}

func (s *Store) receiptPath(receiptDigest digest.Digest) string {
	hex := receiptDigest.Hex()
	return s.path(receiptsDir, hex[:2], hex+recordSuffix)
}
