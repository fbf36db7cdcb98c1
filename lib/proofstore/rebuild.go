// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package proofstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/quillproof/quill/lib/auditchain"
	"github.com/quillproof/quill/lib/codec"
	"github.com/quillproof/quill/lib/receipt"
	"github.com/quillproof/quill/lib/run"
)

// RebuildReport summarizes RebuildIndex.
type RebuildReport struct {
	Runs     int `json:"runs"`
	Receipts int `json:"receipts"`

	// Skipped lists files that could not be indexed, with the reason.
	Skipped []string `json:"skipped"`
}

// RebuildIndex discards the registry index and recreates it from the
// run and receipt files. Receipts of one run are ordered by their
// receipt.promoted and receipt.imported audit entries; receipts the
// audit log does not mention follow, ordered by issue time.
func (s *Store) RebuildIndex(ctx context.Context) (RebuildReport, error) {
	report := RebuildReport{Skipped: []string{}}
	err := s.withLock(ctx, "rebuild index", func() error {
		runs, skipped := s.scanRuns()
		report.Skipped = append(report.Skipped, skipped...)
		receipts, skipped := s.scanReceipts()
		report.Skipped = append(report.Skipped, skipped...)
		s.orderByPromotion(receipts)

		return s.index.With(ctx, func(conn *sqlite.Conn) (err error) {
			endTransaction, err := sqlitex.ImmediateTransaction(conn)
			if err != nil {
				return err
			}
			defer endTransaction(&err)

			if err := sqlitex.ExecuteScript(conn, `DELETE FROM receipts; DELETE FROM runs;`, nil); err != nil {
				return err
			}
			for _, captured := range runs {
				if err := indexRun(conn, captured); err != nil {
					return err
				}
			}
			for _, scanned := range receipts {
				if err := indexReceipt(conn, scanned.runID, scanned.receipt); err != nil {
					return err
				}
			}
			report.Runs = len(runs)
			report.Receipts = len(receipts)
			return nil
		})
	})
	if err != nil {
		return RebuildReport{}, fmt.Errorf("proofstore: rebuilding index: %w", err)
	}
	s.logger.Info("rebuilt index", "runs", report.Runs, "receipts", report.Receipts, "skipped", len(report.Skipped))
	return report, nil
}

type scannedReceipt struct {
	receipt *receipt.Receipt
	runID   string
}

func (s *Store) scanRuns() ([]*run.Run, []string) {
	var runs []*run.Run
	var skipped []string
	paths, _ := filepath.Glob(s.path(runsDir, "*"+recordSuffix))
	sort.Strings(paths)
	for _, path := range paths {
		runID := strings.TrimSuffix(filepath.Base(path), recordSuffix)
		captured, err := s.GetRun(runID)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		if captured.ID != runID {
			skipped = append(skipped, fmt.Sprintf("%s: holds run %s", path, captured.ID))
			continue
		}
		runs = append(runs, captured)
	}
	return runs, skipped
}

func (s *Store) scanReceipts() ([]scannedReceipt, []string) {
	var receipts []scannedReceipt
	var skipped []string
	paths, _ := filepath.Glob(s.path(receiptsDir, "*", "*"+recordSuffix))
	sort.Strings(paths)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		var stored receipt.Receipt
		if err := codec.Unmarshal(data, &stored); err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		if s.receiptPath(stored.Digest) != path {
			skipped = append(skipped, fmt.Sprintf("%s: holds receipt %s", path, stored.Digest))
			continue
		}
		signed, err := stored.Run()
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		receipts = append(receipts, scannedReceipt{receipt: &stored, runID: signed.ID})
	}
	return receipts, skipped
}

func (s *Store) orderByPromotion(receipts []scannedReceipt) {
	entries, err := s.AuditEntries()
	if err != nil && !errors.Is(err, ErrTornAuditLog) {
		s.logger.Warn("ordering receipts without the audit log", "error", err)
	}
	promotedAt := make(map[string]uint64)
	for _, entry := range entries {
		if entry.Action != auditchain.ActionReceiptPromoted && entry.Action != auditchain.ActionReceiptImported {
			continue
		}
		if _, seen := promotedAt[entry.Object.String()]; !seen {
			promotedAt[entry.Object.String()] = entry.Seq
		}
	}
	sort.SliceStable(receipts, func(i, j int) bool {
		left, right := receipts[i].receipt, receipts[j].receipt
		leftSeq, leftLogged := promotedAt[left.Digest.String()]
		rightSeq, rightLogged := promotedAt[right.Digest.String()]
		switch {
		case leftLogged && rightLogged:
			return leftSeq < rightSeq
		case leftLogged != rightLogged:
			return leftLogged
		case !left.IssuedAt.Equal(right.IssuedAt):
			return left.IssuedAt.Before(right.IssuedAt)
		default:
			return left.Digest.String() < right.Digest.String()
		}
	})
}
