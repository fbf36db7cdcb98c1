// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/quillproof/quill/cmd/quill/cli"
	"github.com/quillproof/quill/lib/codec"
	"github.com/quillproof/quill/lib/proofstore"
	"github.com/quillproof/quill/lib/receipt"
	"github.com/quillproof/quill/lib/run"
)

type showParams struct {
	projectParams
	cli.JSONOutput
	Raw bool `json:"raw" flag:"raw" desc:"print the stored CBOR in diagnostic notation"`
}

func showCommand(env *environment) *cli.Command {
	var params showParams
	return &cli.Command{
		Name:    "show",
		Summary: "Show a receipt or run record",
		Description: `Show a stored receipt by digest, the current receipt of a run by run
id, or a receipt file. A run that was never promoted shows its run
record instead.`,
		Usage: "quill show <digest|run-id|file> [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("show", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, 1, "quill show <digest|run-id|file>"); err != nil {
				return err
			}
			target := args[0]

			var data []byte
			var shown *receipt.Receipt
			var captured *run.Run
			if fileExists(target) {
				var err error
				if data, err = os.ReadFile(target); err != nil {
					return cli.Internal("%w", err)
				}
				if shown, err = readReceiptFile(target); err != nil {
					return err
				}
			} else {
				opened, err := env.openProject(params.projectParams, "show")
				if err != nil {
					return err
				}
				defer opened.Close()
				shown, data, err = opened.resolveReceipt(ctx, target)
				if errors.Is(err, proofstore.ErrNotFound) && uuid.Validate(target) == nil {
					if captured, err = opened.store.GetRun(target); err != nil {
						return storeError(err)
					}
					if data, err = codec.Marshal(captured); err != nil {
						return cli.Internal("%w", err)
					}
				} else if err != nil {
					return err
				}
			}

			if params.Raw {
				diagnostic, err := codec.Diagnose(data)
				if err != nil {
					return cli.Internal("%w", err)
				}
				fmt.Fprintln(env.stdout, diagnostic)
				return nil
			}
			if captured != nil {
				if done, err := params.EmitJSON(env.stdout, captured); done {
					return err
				}
				fmt.Fprintln(env.stdout, "run (not promoted)")
				printRun(env.stdout, captured)
				return nil
			}
			if done, err := params.EmitJSON(env.stdout, shown); done {
				return err
			}
			return printReceipt(env.stdout, shown)
		},
	}
}

func printReceipt(w io.Writer, shown *receipt.Receipt) error {
	signed, err := shown.Run()
	if err != nil {
		return cli.Validation("receipt %s: %w", shown.Digest, err)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "receipt\t%s\n", shown.Digest)
	fmt.Fprintf(tw, "schema\t%s\n", shown.SchemaVersion)
	fmt.Fprintf(tw, "key\t%s (%s)\n", shown.PublicKey.KeyID, shown.PublicKey.Algorithm)
	fmt.Fprintf(tw, "issued\t%s\n", formatTime(shown.IssuedAt))
	tw.Flush()
	printRun(w, signed)
	return nil
}

func printRun(w io.Writer, captured *run.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", captured.ID)
	fmt.Fprintf(tw, "project\t%s\n", captured.Project)
	fmt.Fprintf(tw, "command\t%s\n", strings.Join(captured.Command.Argv, " "))
	if captured.Command.WorkingDir != "" {
		fmt.Fprintf(tw, "workdir\t%s\n", captured.Command.WorkingDir)
	}
	fmt.Fprintf(tw, "exit\t%s\n", formatExitCode(captured.ExitCode))
	fmt.Fprintf(tw, "started\t%s\n", formatTime(captured.StartedAt))
	fmt.Fprintf(tw, "duration\t%s\n", captured.Duration())
	if captured.Initiator != "" {
		fmt.Fprintf(tw, "initiator\t%s\n", captured.Initiator)
	}
	tw.Flush()

	printArtifacts(w, "inputs", captured.Inputs)
	printArtifacts(w, "outputs", captured.Outputs)
	if len(captured.Environment) > 0 {
		fmt.Fprintln(w, "environment")
		keys := make([]string, 0, len(captured.Environment))
		for key := range captured.Environment {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(w, "  %s=%s\n", key, captured.Environment[key])
		}
	}
}

func printArtifacts(w io.Writer, label string, artifacts []run.ArtifactRef) {
	if len(artifacts) == 0 {
		return
	}
	fmt.Fprintln(w, label)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, artifact := range artifacts {
		fmt.Fprintf(tw, "  %s\t%s\t%d bytes\n", artifact.Name, artifact.Digest, artifact.Size)
	}
	tw.Flush()
}

func formatExitCode(code *int) string {
	if code == nil {
		return "-"
	}
	return strconv.Itoa(*code)
}

func formatTime(instant time.Time) string {
	if instant.IsZero() {
		return "-"
	}
	return instant.UTC().Format(time.RFC3339)
}

type listParams struct {
	projectParams
	cli.JSONOutput
}

func listCommand(env *environment) *cli.Command {
	var params listParams
	return &cli.Command{
		Name:    "list",
		Summary: "List captured runs, newest first",
		Usage:   "quill list [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("list", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, 0, "quill list [flags]"); err != nil {
				return err
			}
			opened, err := env.openProject(params.projectParams, "list")
			if err != nil {
				return err
			}
			defer opened.Close()

			runs, err := opened.store.ListRuns(ctx)
			if err != nil {
				return storeError(err)
			}
			if done, err := params.EmitJSON(env.stdout, runs); done {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(env.stdout, "no runs captured")
				return nil
			}
			tw := tabwriter.NewWriter(env.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTARTED\tEXIT\tRECEIPTS\tCURRENT")
			for _, summary := range runs {
				current := summary.CurrentReceipt
				if current == "" {
					current = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					summary.ID, formatTime(summary.StartedAt), formatExitCode(summary.ExitCode), summary.Receipts, current)
			}
			return tw.Flush()
		},
	}
}

type historyParams struct {
	projectParams
	cli.JSONOutput
}

func historyCommand(env *environment) *cli.Command {
	var params historyParams
	return &cli.Command{
		Name:    "history",
		Summary: "List every receipt issued for a run",
		Description: `List every receipt issued for a run in promotion order. The last one
is current; each earlier receipt names the receipt that superseded it.`,
		Usage: "quill history <run-id> [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("history", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, 1, "quill history <run-id>"); err != nil {
				return err
			}
			opened, err := env.openProject(params.projectParams, "history")
			if err != nil {
				return err
			}
			defer opened.Close()

			records, err := opened.store.ReceiptHistory(ctx, args[0])
			if err != nil {
				return storeError(err)
			}
			if done, err := params.EmitJSON(env.stdout, records); done {
				return err
			}
			tw := tabwriter.NewWriter(env.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "GEN\tRECEIPT\tISSUED\tKEY\tSCHEMA\tSUPERSEDED BY")
			for _, record := range records {
				supersededBy := record.SupersededBy
				if record.Current() {
					supersededBy = "(current)"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
					record.Generation, record.Digest, formatTime(record.IssuedAt), record.KeyID, record.SchemaVersion, supersededBy)
			}
			return tw.Flush()
		},
	}
}
