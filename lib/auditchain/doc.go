// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package auditchain defines the hash-chained entries of a project's
// audit log.
//
// Each entry records an action on an object (identified by digest) and
// links to its predecessor through Prev. The Hash of an entry is the
// audit-domain digest of the entry's canonical JSON with the hash field
// omitted. The first entry links to [digest.Seed].
//
// [Verify] recomputes the chain from the start, feeding each entry's
// recomputed hash (not its stored one) forward as the expected Prev of
// the next. Altering any entry therefore breaks that entry and every
// entry after it, and the report names them all.
//
// On disk the log is one canonical JSON entry per line; see
// [Entry.MarshalLine] and [ParseLine].
package auditchain
