// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package proofstore

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/quillproof/quill/lib/receipt"
	"github.com/quillproof/quill/lib/run"
)

// indexMigrations is append-only. See lib/sqlitepool.
var indexMigrations = []string{
	`CREATE TABLE runs (
		id          TEXT PRIMARY KEY,
		project     TEXT NOT NULL,
		started_at  TEXT NOT NULL,
		ended_at    TEXT NOT NULL,
		exit_code   INTEGER
	);
	CREATE TABLE receipts (
		digest          TEXT PRIMARY KEY,
		run_id          TEXT NOT NULL,
		generation      INTEGER NOT NULL,
		issued_at       TEXT NOT NULL,
		key_id          TEXT NOT NULL,
		schema_version  TEXT NOT NULL,
		superseded_by   TEXT,
		UNIQUE (run_id, generation)
	);
	CREATE INDEX receipts_by_run ON receipts (run_id, generation);`,
}

// RunSummary is one row of ListRuns.
type RunSummary struct {
	ID             string    `json:"id"`
	Project        string    `json:"project"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	ExitCode       *int      `json:"exit_code,omitempty"`
	CurrentReceipt string    `json:"current_receipt,omitempty"`
	Receipts       int       `json:"receipts"`
}

// ReceiptRecord is the registry entry of one receipt.
type ReceiptRecord struct {
	Digest        string    `json:"digest"`
	RunID         string    `json:"run_id"`
	Generation    int       `json:"generation"`
	IssuedAt      time.Time `json:"issued_at"`
	KeyID         string    `json:"key_id"`
	SchemaVersion string    `json:"schema_version"`
	SupersededBy  string    `json:"superseded_by,omitempty"`
}

// Current reports whether no later receipt supersedes this one.
func (r ReceiptRecord) Current() bool { return r.SupersededBy == "" }

func indexRun(conn *sqlite.Conn, captured *run.Run) error {
	var exitCode any
	if captured.ExitCode != nil {
		exitCode = *captured.ExitCode
	}
	err := sqlitex.Execute(conn,
		`INSERT OR REPLACE INTO runs (id, project, started_at, ended_at, exit_code) VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			captured.ID,
			captured.Project,
			formatTime(captured.StartedAt),
			formatTime(captured.EndedAt),
			exitCode,
		}})
	if err != nil {
		return fmt.Errorf("indexing run %s: %w", captured.ID, err)
	}
	return nil
}

// indexReceipt records promoted as the newest receipt of runID and
// marks the previous newest as superseded. Already-indexed digests are
// left alone. Writers hold the store lock, so a savepoint is enough.
func indexReceipt(conn *sqlite.Conn, runID string, promoted *receipt.Receipt) (err error) {
	defer sqlitex.Save(conn)(&err)

	digestText := promoted.Digest.String()
	exists := false
	err = sqlitex.Execute(conn, `SELECT 1 FROM receipts WHERE digest = ?`, &sqlitex.ExecOptions{
		Args:       []any{digestText},
		ResultFunc: func(*sqlite.Stmt) error { exists = true; return nil },
	})
	if err != nil || exists {
		return err
	}

	generation := 0
	previous := ""
	err = sqlitex.Execute(conn,
		`SELECT digest, generation FROM receipts WHERE run_id = ? ORDER BY generation DESC LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: []any{runID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				previous = stmt.ColumnText(0)
				generation = stmt.ColumnInt(1) + 1
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("reading receipt history of run %s: %w", runID, err)
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO receipts (digest, run_id, generation, issued_at, key_id, schema_version) VALUES (?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			digestText,
			runID,
			generation,
			formatTime(promoted.IssuedAt),
			promoted.PublicKey.KeyID,
			promoted.SchemaVersion,
		}})
	if err != nil {
		return fmt.Errorf("indexing receipt %s: %w", digestText, err)
	}
	if previous != "" {
		err = sqlitex.Execute(conn, `UPDATE receipts SET superseded_by = ? WHERE digest = ?`,
			&sqlitex.ExecOptions{Args: []any{digestText, previous}})
		if err != nil {
			return fmt.Errorf("superseding receipt %s: %w", previous, err)
		}
	}
	return nil
}

// ListRuns returns every indexed run, most recently started first.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	var summaries []RunSummary
	err := s.index.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT r.id, r.project, r.started_at, r.ended_at, r.exit_code,
				(SELECT digest FROM receipts WHERE run_id = r.id AND superseded_by IS NULL),
				(SELECT count(*) FROM receipts WHERE run_id = r.id)
			FROM runs r
			ORDER BY r.started_at DESC, r.id`,
			&sqlitex.ExecOptions{ResultFunc: func(stmt *sqlite.Stmt) error {
				summary := RunSummary{
					ID:             stmt.ColumnText(0),
					Project:        stmt.ColumnText(1),
					StartedAt:      parseTime(stmt.ColumnText(2)),
					EndedAt:        parseTime(stmt.ColumnText(3)),
					CurrentReceipt: stmt.ColumnText(5),
					Receipts:       stmt.ColumnInt(6),
				}
				if stmt.ColumnType(4) != sqlite.TypeNull {
					exitCode := stmt.ColumnInt(4)
					summary.ExitCode = &exitCode
				}
				summaries = append(summaries, summary)
				return nil
			}})
	})
	if err != nil {
		return nil, fmt.Errorf("proofstore: listing runs: %w", err)
	}
	return summaries, nil
}

// ReceiptHistory returns every receipt of runID, oldest first. The
// last record is the current one.
func (s *Store) ReceiptHistory(ctx context.Context, runID string) ([]ReceiptRecord, error) {
	var records []ReceiptRecord
	err := s.index.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT digest, run_id, generation, issued_at, key_id, schema_version, coalesce(superseded_by, '')
			FROM receipts WHERE run_id = ? ORDER BY generation`,
			&sqlitex.ExecOptions{
				Args: []any{runID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					records = append(records, ReceiptRecord{
						Digest:        stmt.ColumnText(0),
						RunID:         stmt.ColumnText(1),
						Generation:    stmt.ColumnInt(2),
						IssuedAt:      parseTime(stmt.ColumnText(3)),
						KeyID:         stmt.ColumnText(4),
						SchemaVersion: stmt.ColumnText(5),
						SupersededBy:  stmt.ColumnText(6),
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("proofstore: receipt history of run %s: %w", runID, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: receipts of run %s", ErrNotFound, runID)
	}
	return records, nil
}

func formatTime(instant time.Time) string {
	return instant.UTC().Format(time.RFC3339Nano)
}

// parseTime reads a column written by formatTime. RFC 3339 text with
// a fixed UTC offset sorts chronologically only at equal precision, so
// ordering by these columns is approximate below one second.
func parseTime(text string) time.Time {
	instant, _ := time.Parse(time.RFC3339Nano, text)
	return instant
}
