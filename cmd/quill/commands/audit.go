// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/quillproof/quill/cmd/quill/cli"
	"github.com/quillproof/quill/lib/auditchain"
	"github.com/quillproof/quill/lib/proofstore"
)

func auditCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "audit",
		Summary: "Inspect and check the audit log",
		Description: `The audit log records every run capture, promotion, import,
verification, key change, and bundle export as a hash-chained entry.
Altering or removing any entry breaks every entry after it.`,
		Subcommands: []*cli.Command{
			auditVerifyCommand(env),
			auditLogCommand(env),
			auditRepairCommand(env),
		},
	}
}

type auditParams struct {
	projectParams
	cli.JSONOutput
}

func auditVerifyCommand(env *environment) *cli.Command {
	var params auditParams
	return &cli.Command{
		Name:    "verify",
		Summary: "Recompute the audit chain and report broken entries",
		Usage:   "quill audit verify [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("audit verify", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, 0, "quill audit verify [flags]"); err != nil {
				return err
			}
			opened, err := env.openProject(params.projectParams, "audit verify")
			if err != nil {
				return err
			}
			defer opened.Close()

			report, err := opened.store.VerifyAuditChain()
			if err != nil {
				return storeError(err)
			}
			if done, err := params.EmitJSON(env.stdout, report); done {
				if err == nil && !report.Intact() {
					return &cli.ExitError{Code: 1}
				}
				return err
			}
			if report.Intact() {
				fmt.Fprintf(env.stdout, "audit chain intact: %d entries\n", report.Entries)
				return nil
			}
			fmt.Fprintf(env.stdout, "audit chain broken: %d of %d entries fail, first at index %d\n",
				len(report.Broken), report.Entries, report.FirstBroken)
			for _, broken := range report.Broken {
				fmt.Fprintf(env.stdout, "  [%d] seq %d: %s\n", broken.Index, broken.Seq, broken.Reason)
			}
			if report.TornBytes > 0 {
				fmt.Fprintf(env.stdout, "  log ends in a %d-byte partial line; run 'quill audit repair'\n", report.TornBytes)
			}
			return &cli.ExitError{Code: 1}
		},
	}
}

func auditLogCommand(env *environment) *cli.Command {
	var params struct {
		auditParams
		Limit int `json:"limit" flag:"limit,n" desc:"show only the last N entries (0 shows all)"`
	}
	return &cli.Command{
		Name:    "log",
		Summary: "Print audit log entries",
		Usage:   "quill audit log [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("audit log", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, 0, "quill audit log [flags]"); err != nil {
				return err
			}
			if params.Limit < 0 {
				return cli.Validation("--limit must not be negative")
			}
			opened, err := env.openProject(params.projectParams, "audit log")
			if err != nil {
				return err
			}
			defer opened.Close()

			entries, err := opened.store.AuditEntries()
			torn := errors.Is(err, proofstore.ErrTornAuditLog)
			if err != nil && !torn {
				return storeError(err)
			}
			if params.Limit > 0 && len(entries) > params.Limit {
				entries = entries[len(entries)-params.Limit:]
			}
			if done, err := params.EmitJSON(env.stdout, entries); done {
				return err
			}
			printAuditEntries(env, entries)
			if torn {
				opened.logger.Warn("audit log ends in a partial line", "hint", "quill audit repair")
			}
			return nil
		},
	}
}

func printAuditEntries(env *environment, entries []auditchain.Entry) {
	tw := tabwriter.NewWriter(env.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tACTION\tSUBJECT\tOBJECT")
	for _, entry := range entries {
		subject := entry.Subject
		if subject == "" {
			subject = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", entry.Seq, formatTime(entry.Timestamp), entry.Action, subject, entry.Object)
	}
	tw.Flush()
}

func auditRepairCommand(env *environment) *cli.Command {
	var params auditParams
	return &cli.Command{
		Name:    "repair",
		Summary: "Drop a partial line left at the end of the audit log",
		Description: `A writer that crashed mid-append can leave a partial last line, which
blocks further appends. Repair truncates the log to its last complete
line. Complete entries are never touched.`,
		Usage: "quill audit repair [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("audit repair", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, 0, "quill audit repair [flags]"); err != nil {
				return err
			}
			opened, err := env.openProject(params.projectParams, "audit repair")
			if err != nil {
				return err
			}
			defer opened.Close()

			dropped, err := opened.store.RepairAuditLog(ctx)
			if err != nil {
				return storeError(err)
			}
			if done, err := params.EmitJSON(env.stdout, map[string]int{"dropped_bytes": dropped}); done {
				return err
			}
			if dropped == 0 {
				fmt.Fprintln(env.stdout, "audit log ends on a line boundary; nothing to repair")
				return nil
			}
			fmt.Fprintf(env.stdout, "dropped a %d-byte partial line\n", dropped)
			return nil
		},
	}
}
