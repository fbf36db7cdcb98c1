// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package run defines the record of one completed computation: what
// was executed, which artifacts went in and came out (by digest), the
// relevant environment, and when it happened.
//
// A Run is immutable once captured. The proof store keeps it under
// runs/<id>.cbor until it is promoted into a receipt, and keeps it
// afterwards as the source for re-promotion.
package run
