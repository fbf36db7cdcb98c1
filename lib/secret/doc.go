// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds private key material and passphrases in memory
// that the Go runtime never sees.
//
// A [Buffer] is an anonymous mmap region, locked into RAM with mlock
// and excluded from core dumps with MADV_DONTDUMP. Close zeroes the
// region before unmapping it. Access after Close panics, which turns a
// use-after-release of a signing key into a crash instead of a quiet
// read of zeroes.
//
// [FromEnv] and [FromFile] load passphrases directly into a Buffer and
// scrub the intermediate heap copies.
package secret
