// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the quill binary.
//
// Values are injected at build time with -ldflags, for example:
//
//	go build -ldflags "-X github.com/quillproof/quill/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version
