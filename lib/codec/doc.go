// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Quill's standard CBOR encoding configuration
// for on-disk records: run files, receipt files, key metadata, and
// transfer bundles.
//
// Quill uses two serialization formats with a clear boundary:
//
//   - Canonical JSON (lib/canonical) for anything that is hashed or
//     signed. The canonical document inside a receipt is JSON so that
//     any verifier, in any language, can re-derive its digest.
//   - CBOR for the containers that carry those bytes around on disk.
//     A receipt file is a CBOR map whose "document" field is a byte
//     string holding the canonical JSON verbatim.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Re-encoding a decoded record produces the bytes it was read from,
// which is what lets the store detect on-disk tampering by comparing
// a receipt file against its own re-encoding.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// # Struct Tag Rules
//
//   - `cbor` tag: the type is only ever serialized as CBOR (on-disk
//     containers, bundle envelopes).
//   - `json` tag: the type may be serialized as both JSON and CBOR.
//     fxamacker/cbor reads `json` tags as a fallback, so one tag
//     controls field naming for both formats. Types that appear in
//     CLI --json output use json tags.
//
// Never use both `cbor` and `json` tags on the same field.
package codec
