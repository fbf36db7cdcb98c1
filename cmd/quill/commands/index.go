// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/quillproof/quill/cmd/quill/cli"
)

func indexCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "index",
		Summary: "Maintain the run and receipt registry",
		Subcommands: []*cli.Command{
			indexRebuildCommand(env),
		},
	}
}

func indexRebuildCommand(env *environment) *cli.Command {
	var params struct {
		projectParams
		cli.JSONOutput
	}
	return &cli.Command{
		Name:    "rebuild",
		Summary: "Rebuild the registry from the run and receipt files",
		Description: `The registry (index.db) is derived from the files under runs/ and
receipts/. Rebuild discards it and re-indexes every file, ordering each
run's receipts as the audit log recorded their promotion.`,
		Usage: "quill index rebuild [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("index rebuild", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, 0, "quill index rebuild [flags]"); err != nil {
				return err
			}
			opened, err := env.openProject(params.projectParams, "index rebuild")
			if err != nil {
				return err
			}
			defer opened.Close()

			report, err := opened.store.RebuildIndex(ctx)
			if err != nil {
				return storeError(err)
			}
			if done, err := params.EmitJSON(env.stdout, report); done {
				return err
			}
			fmt.Fprintf(env.stdout, "indexed %d runs and %d receipts\n", report.Runs, report.Receipts)
			for _, skipped := range report.Skipped {
				fmt.Fprintf(env.stdout, "  skipped %s\n", skipped)
			}
			return nil
		},
	}
}
