// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Command quill captures computational runs and issues, stores, and
// verifies signed receipts for them.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/quillproof/quill/cmd/quill/cli"
	"github.com/quillproof/quill/cmd/quill/commands"
	"github.com/quillproof/quill/lib/process"
)

func main() {
	err := run()
	if err == nil {
		return
	}
	// Commands that print their own outcome return an ExitError with
	// the status to use. Don't print a redundant "error:" line for those.
	var exitError *cli.ExitError
	if errors.As(err, &exitError) {
		os.Exit(exitError.Code)
	}
	process.Fatal(err)
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return commands.Root().Execute(ctx, os.Args[1:])
}
