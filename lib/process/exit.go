// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// StatusInterrupted is the exit status after SIGINT, following the
// shell convention of 128 + signal number.
const StatusInterrupted = 130

// Status returns the exit status for err: 0 for nil, the code of the
// first error in the chain with an ExitCode method, StatusInterrupted
// for a cancelled context, and 1 otherwise.
func Status(err error) int {
	if err == nil {
		return 0
	}
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	if errors.Is(err, context.Canceled) {
		return StatusInterrupted
	}
	return 1
}

// Report writes "error: err" to w.
func Report(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
}

// Fatal reports err on stderr and exits with Status(err).
func Fatal(err error) {
	Report(os.Stderr, err)
	os.Exit(Status(err))
}
