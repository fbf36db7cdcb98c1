// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/quillproof/quill/cmd/quill/cli"
	"github.com/quillproof/quill/lib/atomicfile"
	"github.com/quillproof/quill/lib/auditchain"
	"github.com/quillproof/quill/lib/bundle"
	"github.com/quillproof/quill/lib/digest"
	"github.com/quillproof/quill/lib/verify"
)

// bundleSuffix names exported bundle files.
const bundleSuffix = ".qbundle"

func bundleCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "bundle",
		Summary: "Move receipts between machines",
		Description: `A bundle carries one receipt, byte for byte as stored, with the
public key that signed it. The receiving side verifies it with
"quill verify <file>" or stores it with "quill bundle import".`,
		Subcommands: []*cli.Command{
			bundleExportCommand(env),
			bundleImportCommand(env),
		},
	}
}

type bundleExportParams struct {
	projectParams
	cli.JSONOutput
	Output      string `json:"output"      flag:"output,o"    desc:"bundle file to write (default: <bundle.directory>/<digest>.qbundle)"`
	Compression string `json:"compression" flag:"compression" desc:"zstd, lz4, or none (default: bundle.compression)"`
}

type bundleExportResult struct {
	Receipt     string             `json:"receipt"`
	Path        string             `json:"path"`
	Compression bundle.Compression `json:"compression"`
	Size        int                `json:"size"`
	Digest      string             `json:"digest"`
}

func bundleExportCommand(env *environment) *cli.Command {
	var params bundleExportParams
	return &cli.Command{
		Name:    "export",
		Summary: "Write a receipt to a bundle file",
		Usage:   "quill bundle export <digest|run-id> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("bundle export", &params) },
		Examples: []cli.Example{
			{Description: "Export a run's current receipt", Command: "quill bundle export 8c3f1d2e-5b6a-4c7d-9e8f-0a1b2c3d4e5f -o model-receipt.qbundle"},
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, 1, "quill bundle export <digest|run-id>"); err != nil {
				return err
			}
			opened, err := env.openProject(params.projectParams, "bundle export")
			if err != nil {
				return err
			}
			defer opened.Close()

			exported, data, err := opened.resolveReceipt(ctx, args[0])
			if err != nil {
				return err
			}
			compressionName := params.Compression
			if compressionName == "" {
				compressionName = opened.config.Bundle.Compression
			}
			compression, err := bundle.ParseCompression(compressionName)
			if err != nil {
				return cli.Validation("%w", err)
			}
			packed, err := bundle.Export(data, compression)
			if err != nil {
				return cli.Internal("%w", err)
			}
			// Export may fall back to no compression; report what was written.
			written, err := bundle.Import(packed)
			if err != nil {
				return cli.Internal("exported bundle does not read back: %w", err)
			}

			path := params.Output
			if path == "" {
				path = filepath.Join(opened.config.Bundle.Directory, exported.Digest.Hex()+bundleSuffix)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return cli.Internal("%w", err)
			}
			if err := atomicfile.WriteFile(path, packed, atomicfile.Options{Mode: 0o644}); err != nil {
				return cli.Internal("%w", err)
			}

			bundleDigest := digest.SumBytes(packed)
			if err := opened.audit(ctx, auditchain.ActionBundleExported, exported.Digest.String(), bundleDigest); err != nil {
				return err
			}
			result := bundleExportResult{
				Receipt:     exported.Digest.String(),
				Path:        path,
				Compression: written.Compression,
				Size:        len(packed),
				Digest:      bundleDigest.String(),
			}
			if done, err := params.EmitJSON(env.stdout, result); done {
				return err
			}
			fmt.Fprintf(env.stdout, "wrote %s (%d bytes, %s)\n", result.Path, result.Size, result.Compression)
			return nil
		},
	}
}

type bundleImportParams struct {
	projectParams
	cli.JSONOutput
	TrustedKeys []string `json:"trusted_keys" flag:"trusted-key" desc:"accept only receipts signed by this key id (repeatable)"`
}

type bundleImportResult struct {
	Receipt string        `json:"receipt"`
	RunID   string        `json:"run_id"`
	Verify  verify.Result `json:"verify"`
}

func bundleImportCommand(env *environment) *cli.Command {
	var params bundleImportParams
	return &cli.Command{
		Name:    "import",
		Summary: "Verify a bundle and store its receipt",
		Description: `Read a bundle, verify the receipt it carries, and store the receipt
bytes unchanged. A receipt that does not verify is not stored.`,
		Usage: "quill bundle import <file> [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("bundle import", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, 1, "quill bundle import <file>"); err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return cli.NotFound("%w", err)
			}
			received, err := bundle.Import(data)
			if err != nil {
				return cli.Validation("%w", err)
			}
			decoded, err := received.Decode()
			if err != nil {
				return cli.Validation("%w", err)
			}
			outcome := verify.Verify(decoded, verify.Options{TrustedKeys: params.TrustedKeys})
			if !outcome.Valid {
				return cli.Validation("refusing to import: %s", outcome.Summary())
			}

			opened, err := env.openProject(params.projectParams, "bundle import")
			if err != nil {
				return err
			}
			defer opened.Close()

			stored, err := opened.store.ImportReceipt(ctx, received.Receipt)
			if err != nil {
				return storeError(err)
			}
			signed, err := stored.Run()
			if err != nil {
				return cli.Internal("%w", err)
			}
			result := bundleImportResult{Receipt: stored.Digest.String(), RunID: signed.ID, Verify: outcome}
			if done, err := params.EmitJSON(env.stdout, result); done {
				return err
			}
			fmt.Fprintf(env.stdout, "imported %s for run %s\n  %s\n", result.Receipt, result.RunID, outcome.Summary())
			return nil
		},
	}
}
