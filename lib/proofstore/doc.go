// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package proofstore is the persistent local state of a Quill project:
// captured runs, promoted receipts, the audit log, and the registry
// index, all under the project's .quill directory.
//
// Layout:
//
//	.quill/
//	  config.yaml
//	  lock                          advisory flock target
//	  audit.log                     one canonical audit entry per line
//	  index.db                      SQLite registry (derived state)
//	  runs/<run-id>.cbor
//	  receipts/<hex[:2]>/<hex>.cbor
//	  keys/                         managed by lib/keyring
//	  tmp/                          scratch space for atomic publication
//
// Run and receipt files are the source of truth. They are published
// with lib/atomicfile and never rewritten: a run id or receipt digest
// that already exists with different content is an error. The index
// is rebuilt from the files and the audit log by [Store.RebuildIndex].
//
// Every mutation takes an exclusive flock on the lock file. The lock
// is non-blocking with a bounded exponential retry; when the retries
// are exhausted the call fails with [*StoreConflict], which callers
// may retry. The lock covers only publication. Canonicalization,
// hashing, and signing happen before it is taken.
//
// Storing a run or receipt publishes the file, updates the index, and
// appends its audit entry as one unit: the index change commits only
// after the audit line is written, and the file is removed again if
// the line could not be written. A failed store leaves nothing
// visible, and retrying it appends the audit entry exactly once.
//
// The audit log is append-only. Each append is a single write(2) of
// one complete line followed by fsync. A trailing partial line left by
// a crash is reported by [Store.VerifyAuditChain] and blocks further
// appends until [Store.RepairAuditLog] truncates it.
//
// A Store is safe for concurrent use by multiple goroutines, and any
// number of processes may open the same directory.
package proofstore
