// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/quillproof/quill/lib/sqlitepool"
)

var testMigrations = []string{
	`CREATE TABLE receipts (digest TEXT PRIMARY KEY, run_id TEXT NOT NULL);`,
	`CREATE INDEX receipts_by_run ON receipts (run_id);`,
}

func openTestPool(t *testing.T, path string, migrations []string) *sqlitepool.Pool {
	t.Helper()
	pool, err := sqlitepool.Open(sqlitepool.Config{Path: path, Migrations: migrations})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return pool
}

func TestPragmas(t *testing.T) {
	pool := openTestPool(t, filepath.Join(t.TempDir(), "index.db"), nil)

	err := pool.With(context.Background(), func(conn *sqlite.Conn) error {
		var journalMode string
		err := sqlitex.Execute(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				journalMode = stmt.ColumnText(0)
				return nil
			},
		})
		if err != nil {
			return err
		}
		if journalMode != "wal" {
			t.Errorf("journal_mode = %q, want wal", journalMode)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("With: %v", err)
	}
}

func TestMigrationsApplyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	pool := openTestPool(t, path, testMigrations[:1])

	err := pool.With(context.Background(), func(conn *sqlite.Conn) error {
		version, err := sqlitepool.UserVersion(conn)
		if err != nil {
			return err
		}
		if version != 1 {
			t.Errorf("user_version = %d, want 1", version)
		}
		return sqlitex.Execute(conn, "INSERT INTO receipts (digest, run_id) VALUES (?, ?)", &sqlitex.ExecOptions{
			Args: []any{"blake3:00", "run-1"},
		})
	})
	if err != nil {
		t.Fatalf("first pool: %v", err)
	}

	// A later binary with one more migration upgrades in place and
	// keeps the existing rows.
	upgraded := openTestPool(t, path, testMigrations)
	err = upgraded.With(context.Background(), func(conn *sqlite.Conn) error {
		version, err := sqlitepool.UserVersion(conn)
		if err != nil {
			return err
		}
		if version != 2 {
			t.Errorf("user_version after upgrade = %d, want 2", version)
		}
		count := 0
		err = sqlitex.Execute(conn, "SELECT count(*) FROM receipts", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
		if count != 1 {
			t.Errorf("rows after upgrade = %d, want 1", count)
		}
		return err
	})
	if err != nil {
		t.Fatalf("upgraded pool: %v", err)
	}
}

func TestNewerDatabaseRefused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	newer := openTestPool(t, path, testMigrations)
	if err := newer.With(context.Background(), func(*sqlite.Conn) error { return nil }); err != nil {
		t.Fatalf("preparing newer database: %v", err)
	}

	older := openTestPool(t, path, testMigrations[:1])
	err := older.With(context.Background(), func(*sqlite.Conn) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "newer than this binary") {
		t.Errorf("older binary error = %v, want refusal", err)
	}
}

func TestEmptyPathRejected(t *testing.T) {
	if _, err := sqlitepool.Open(sqlitepool.Config{}); err == nil {
		t.Fatal("Open without Path succeeded")
	}
}

func TestContextCancellation(t *testing.T) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     filepath.Join(t.TempDir(), "cancel.db"),
		PoolSize: 1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Take(ctx); err == nil {
		t.Fatal("Take with a cancelled context succeeded while the pool was exhausted")
	}
	pool.Put(conn)
}
