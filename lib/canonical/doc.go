// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package canonical produces the deterministic byte form of structured
// values that Quill hashes and signs.
//
// The supported value kinds are exactly the JSON kinds: null, boolean,
// number, string, ordered sequence, and mapping with unique string
// keys. The output is JSON with these rules:
//
//   - Mapping keys are sorted lexicographically over their UTF-8 bytes.
//   - Integral numbers are written as plain decimal integers with no
//     fraction, no exponent, and no negative zero. Integer literals
//     wider than float64 keep every digit.
//   - Other finite numbers use the shortest representation that
//     round-trips through float64, in exponent notation only when the
//     magnitude is below 1e-6.
//   - Strings escape '"', '\\' and the control characters (named
//     escapes for \b \f \n \r \t, \u00xx otherwise). Everything else,
//     including '<', '>' and '&', is written as raw UTF-8.
//   - No whitespace between tokens.
//
// Anything outside that model (NaN, ±Inf, invalid UTF-8, non-string
// map keys, channels, functions, duplicate keys in parsed input) is an
// [*Error]. Nothing is coerced.
//
// Two entry points cover the two shapes of input:
//
//	data, err := canonical.Canonicalize(map[string]any{"b": 1, "a": true})
//	data, err := canonical.Marshal(runRecord) // structs go through encoding/json first
//
// [Parse] reads JSON back into the generic value model, preserving
// number text, so a received document can be re-canonicalized and
// compared byte-for-byte with [IsCanonical].
package canonical
