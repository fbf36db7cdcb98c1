// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package receipt turns a completed run into a signed, content-addressed
// proof object and defines that object's on-disk form.
//
// The signed document is the canonical JSON of the envelope
//
//	{"issued_at": "<RFC 3339 UTC>", "run": {...}}
//
// so the issuance time is covered by the signature. The receipt carries
// the document bytes verbatim next to their digest, the signature over
// the digest, the signer's public key, and the schema version it
// conforms to. Receipt files are deterministic CBOR (lib/codec) named
// by the digest.
//
// [Builder.Promote] runs the full pipeline and persists the result;
// [Builder.Build] stops before persistence. Nothing is written unless
// every earlier step succeeded.
package receipt
