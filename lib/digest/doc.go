// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest computes the content digests that identify receipts,
// artifacts, audit entries, and keys.
//
// Every digest is a BLAKE3 keyed hash under a domain key specific to
// the role of the hashed bytes. The same bytes hashed as a canonical
// document and as an artifact file produce unrelated digests, so a
// value in one role can never be substituted for a value in another.
//
// A [Digest] carries its algorithm identifier. The text form is
// "blake3:" followed by 64 lowercase hex characters, and that is the
// form used in JSON, CBOR, logs, and file names. A future algorithm is
// a new identifier, never a reinterpretation of existing digests.
package digest
