// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package verify re-checks a receipt using nothing but the receipt.
//
// Verification runs four steps:
//
//	(a) schema: the receipt conforms to its declared schema version, or
//	    to Options.SchemaVersion when given. Failure stops here.
//	(b) digest: the document bytes hash to the recorded digest.
//	(c) signature: the signature over the digest verifies under the
//	    embedded public key, and the key is trusted when
//	    Options.TrustedKeys restricts the accepted key ids.
//	(d) outputs: only when Options.Outputs is supplied, the freshly
//	    computed output digests equal the ones the run recorded.
//
// Steps (a) to (c) prove the receipt was not altered after signing and
// earn [LevelIntegrity]. Step (d) proves the computation reproduced and
// earns [LevelReproduced]. A result never claims reproduced unless step
// (d) ran and passed.
//
// Findings are [Reason] values, not Go errors: verification of a bad
// receipt succeeds in producing a negative result.
package verify
