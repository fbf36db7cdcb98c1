// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package bundle packages a stored receipt for transfer to another
// machine.
//
// A bundle is a CBOR envelope:
//
//	{format, compression, size, payload}
//
// where payload, after decompression, is the CBOR map
// {receipt, public_key}. The receipt field holds the receipt file
// bytes exactly as the proof store wrote them, so the receiving side
// verifies the same bytes the sender signed. public_key duplicates the
// receipt's embedded key for tools that route bundles by key id
// without decoding the receipt; Import rejects a bundle where the two
// disagree.
//
// Payloads are compressed with zstd or LZ4 block mode. Payloads that
// do not shrink are stored uncompressed and the envelope says so.
package bundle
