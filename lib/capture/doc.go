// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture executes a command and records it as a [run.Run].
//
// Inputs are hashed before the command starts and outputs after it
// exits, both with the artifact domain of lib/digest. The environment
// descriptor holds only the variables named in the allowlist plus any
// explicitly declared tool versions; the rest of the process
// environment is inherited by the command but never recorded. A
// non-zero exit status is recorded in the run, not returned as an
// error. Failing to start the command, or an output that does not
// exist afterwards, is an error.
package capture
