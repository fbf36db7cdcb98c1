// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the quill command tree.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/quillproof/quill/cmd/quill/cli"
	"github.com/quillproof/quill/lib/clock"
	"github.com/quillproof/quill/lib/secret"
	"github.com/quillproof/quill/lib/version"
)

// environment is everything a command touches outside the project
// directory. Tests substitute buffers, a fake clock, and a canned
// passphrase prompt.
type environment struct {
	stdout io.Writer
	stderr io.Writer
	clock  clock.Clock

	// workingDir is where project discovery starts without --project.
	workingDir func() (string, error)

	lookupEnv func(string) (string, bool)

	newLogger func(verbose bool) *slog.Logger

	// prompt reads a passphrase interactively. It fails when there is
	// no terminal to read from.
	prompt func(label string) (*secret.Buffer, error)
}

func defaultEnvironment() *environment {
	return &environment{
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		clock:      clock.Real(),
		workingDir: os.Getwd,
		lookupEnv:  os.LookupEnv,
		newLogger:  cli.NewCommandLogger,
		prompt:     promptTerminal,
	}
}

// Root builds the complete quill command tree.
func Root() *cli.Command {
	return newRoot(defaultEnvironment())
}

func newRoot(env *environment) *cli.Command {
	return &cli.Command{
		Name: "quill",
		Description: `Quill: signed, reproducible receipts for computational runs.

Capture a command with its input and output digests, promote the run to
a signed receipt, and verify receipts later, here or anywhere the
bundle travels. Every mutation lands in a hash-chained audit log.`,
		HelpOutput: env.stderr,
		Subcommands: []*cli.Command{
			initCommand(env),
			runCommand(env),
			promoteCommand(env),
			verifyCommand(env),
			showCommand(env),
			listCommand(env),
			historyCommand(env),
			auditCommand(env),
			keyCommand(env),
			bundleCommand(env),
			indexCommand(env),
			schemaCommand(env),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(context.Context, []string) error {
					fmt.Fprintf(env.stdout, "quill %s\n", version.Full())
					return nil
				},
			},
		},
	}
}

func promptTerminal(label string) (*secret.Buffer, error) {
	descriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(descriptor) {
		return nil, cli.Validation("a key passphrase is required and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, label)
	passphrase, err := term.ReadPassword(descriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	return secret.NewFromBytes(passphrase)
}
