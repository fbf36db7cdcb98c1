// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for the quill binary: the
// last-resort error report and the mapping from a returned error to a
// process exit status.
package process
