// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the quill CLI.
//
// The central type is [Command], a named subcommand with optional
// nested [Command.Subcommands], a [pflag.FlagSet] factory, and a Run
// function. The tree is assembled in cmd/quill/commands and dispatched
// via [Command.Execute], which handles flag parsing, subcommand
// routing, and help output with examples.
//
// Parameter structs bind flags from struct tags ([BindFlags]) and
// embed [JSONOutput] for --json support. Unknown subcommands and flags
// get a Levenshtein suggestion (distance <= 3).
//
// Errors returned from Run may carry a category ([ToolError]) or an
// exit code ([ExitError]); cmd/quill/main.go maps both to the process
// exit status.
package cli
