// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/quillproof/quill/cmd/quill/cli"
	"github.com/quillproof/quill/lib/schema"
)

func schemaCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "schema",
		Summary: "List and print the receipt schemas this binary knows",
		Subcommands: []*cli.Command{
			schemaListCommand(env),
			schemaShowCommand(env),
		},
	}
}

func schemaListCommand(env *environment) *cli.Command {
	var params struct {
		cli.JSONOutput
	}
	return &cli.Command{
		Name:    "list",
		Summary: "List supported schema versions",
		Usage:   "quill schema list [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("schema list", &params) },
		Run: func(context.Context, []string) error {
			versions := schema.Versions()
			if done, err := params.EmitJSON(env.stdout, map[string]any{"versions": versions, "current": schema.Current}); done {
				return err
			}
			for _, version := range versions {
				marker := ""
				if version == schema.Current {
					marker = " (current)"
				}
				fmt.Fprintf(env.stdout, "%s%s\n", version, marker)
			}
			return nil
		},
	}
}

func schemaShowCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "show",
		Summary: "Print a schema document",
		Usage:   "quill schema show [version]",
		Run: func(_ context.Context, args []string) error {
			if len(args) > 1 {
				return cli.Validation("usage: quill schema show [version]")
			}
			version := schema.Current
			if len(args) == 1 {
				version = args[0]
			}
			source, err := schema.Source(version)
			if err != nil {
				return cli.NotFound("%w (known: %v)", err, schema.Versions())
			}
			_, err = env.stdout.Write(source)
			return err
		},
	}
}
