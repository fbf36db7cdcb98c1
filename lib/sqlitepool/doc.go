// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the SQLite database behind Quill's receipt
// registry.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool with fixed pragmas
// and ordered schema migrations. Callers [Pool.Take] a connection and
// [Pool.Put] it back, or use [Pool.With] for a scoped connection.
// Connections are not safe for concurrent use.
//
// # Pragmas
//
//   - journal_mode=WAL: readers never block the writer. Several quill
//     processes may hold the database open at once.
//   - synchronous=NORMAL: commits survive a process crash. The
//     registry is derived from the receipt files and can be rebuilt,
//     so OS-crash durability is not required.
//   - busy_timeout=5000: wait for another process's write instead of
//     failing with SQLITE_BUSY.
//   - foreign_keys=ON.
//   - temp_store=MEMORY.
//
// # Migrations
//
// [Config.Migrations] is an append-only list of SQL scripts. The
// database's PRAGMA user_version records how many have been applied;
// the remainder run inside one IMMEDIATE transaction the first time a
// connection is prepared. A database whose user_version exceeds the
// number of known migrations was written by a newer quill and is
// refused.
package sqlitepool
