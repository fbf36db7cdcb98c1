// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/quillproof/quill/cmd/quill/cli"
	"github.com/quillproof/quill/lib/auditchain"
	"github.com/quillproof/quill/lib/bundle"
	"github.com/quillproof/quill/lib/capture"
	"github.com/quillproof/quill/lib/digest"
	"github.com/quillproof/quill/lib/proofstore"
	"github.com/quillproof/quill/lib/receipt"
	"github.com/quillproof/quill/lib/verify"
)

type verifyParams struct {
	projectParams
	cli.JSONOutput
	SchemaVersion    string   `json:"schema_version"     flag:"schema-version"     desc:"validate against this schema version instead of the declared one"`
	TrustedKeys      []string `json:"trusted_keys"       flag:"trusted-key"        desc:"accept only signatures by this key id (repeatable)"`
	TrustProjectKeys bool     `json:"trust_project_keys" flag:"trust-project-keys" desc:"accept only signatures by keys in this project's keyring"`
	Outputs          []string `json:"outputs"            flag:"output,o"           desc:"reproduced output as name=path to compare against the receipt (repeatable)"`
}

func verifyCommand(env *environment) *cli.Command {
	var params verifyParams
	return &cli.Command{
		Name:    "verify",
		Summary: "Verify a receipt's schema, digest, signature, and outputs",
		Description: `Verify a receipt given as a stored receipt digest, a run id (its
current receipt), or a receipt or bundle file. Verification checks the
schema, recomputes the document digest, checks the signature, and, when
reproduced outputs are supplied, compares their digests.

The level reached is "integrity" without outputs and "reproduced" when
supplied outputs all match. An invalid receipt exits with status 1.
Inside a project, each verification is recorded in the audit log.`,
		Usage: "quill verify <digest|run-id|file> [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("verify", &params) },
		Examples: []cli.Example{
			{Description: "Verify the current receipt of a run", Command: "quill verify 8c3f1d2e-5b6a-4c7d-9e8f-0a1b2c3d4e5f"},
			{Description: "Check a re-executed output", Command: "quill verify blake3:4f2a... --output model=out/model.bin"},
			{Description: "Machine-readable result for a received bundle", Command: "quill verify receipt.qbundle --json"},
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, 1, "quill verify <digest|run-id|file>"); err != nil {
				return err
			}
			result, err := env.verifyTarget(ctx, params, args[0])
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.stdout, result); done {
				if err == nil && !result.Valid {
					return &cli.ExitError{Code: 1}
				}
				return err
			}
			fmt.Fprintln(env.stdout, result.Summary())
			for _, reason := range result.Reasons {
				fmt.Fprintf(env.stdout, "  %s: %s\n", reason.Code, reason.Message)
				for _, violation := range reason.Violations {
					fmt.Fprintf(env.stdout, "    %s\n", violation)
				}
			}
			if !result.Valid {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func (e *environment) verifyTarget(ctx context.Context, params verifyParams, target string) (*verify.Result, error) {
	isFile := fileExists(target)
	opened, err := e.openProject(params.projectParams, "verify")
	if err != nil {
		// A receipt file verifies on its own.
		if !isFile || !errors.Is(err, proofstore.ErrNoProject) {
			return nil, err
		}
		opened = nil
	}
	if opened != nil {
		defer opened.Close()
	}

	var checked *receipt.Receipt
	if isFile {
		checked, err = readReceiptFile(target)
	} else {
		checked, _, err = opened.resolveReceipt(ctx, target)
	}
	if err != nil {
		return nil, err
	}

	options := verify.Options{SchemaVersion: params.SchemaVersion, TrustedKeys: params.TrustedKeys}
	if params.TrustProjectKeys {
		if opened == nil {
			return nil, cli.Validation("--trust-project-keys needs a project")
		}
		keys, err := opened.keys.List()
		if err != nil {
			return nil, cli.Internal("%w", err)
		}
		for _, info := range keys {
			options.TrustedKeys = append(options.TrustedKeys, info.PublicKey.KeyID)
		}
		if len(options.TrustedKeys) == 0 {
			return nil, cli.NotFound("the project keyring holds no keys")
		}
	}
	if options.Outputs, err = e.suppliedOutputs(params.Outputs); err != nil {
		return nil, err
	}

	result := verify.Verify(checked, options)
	if opened != nil && !checked.Digest.IsZero() {
		subject := string(result.Level)
		if !result.Valid {
			subject = "invalid"
		}
		if err := opened.audit(ctx, auditchain.ActionReceiptVerified, subject, checked.Digest); err != nil {
			return nil, err
		}
		opened.logger.Info("verified receipt", "digest", result.Digest, "valid", result.Valid, "level", string(result.Level))
	}
	return &result, nil
}

// readReceiptFile reads a receipt file, or a bundle holding one.
func readReceiptFile(path string) (*receipt.Receipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cli.Internal("%w", err)
	}
	decoded, receiptErr := receipt.Decode(data)
	if receiptErr == nil {
		return decoded, nil
	}
	imported, bundleErr := bundle.Import(data)
	if bundleErr != nil {
		return nil, cli.Validation("%s is neither a receipt (%v) nor a bundle (%v)", path, receiptErr, bundleErr)
	}
	decoded, err = imported.Decode()
	if err != nil {
		return nil, cli.Validation("%s: %w", path, err)
	}
	return decoded, nil
}

// suppliedOutputs hashes the reproduced outputs given as name=path
// with --output. Relative paths resolve against the working directory.
// Nil means no outputs were supplied.
func (e *environment) suppliedOutputs(values []string) (map[string]digest.Digest, error) {
	if len(values) == 0 {
		return nil, nil
	}
	artifacts, err := parseArtifacts(values)
	if err != nil {
		return nil, err
	}
	workingDir, err := e.workingDir()
	if err != nil {
		return nil, cli.Internal("resolving working directory: %w", err)
	}
	outputs := make(map[string]digest.Digest, len(artifacts))
	for _, artifact := range artifacts {
		path := artifact.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(workingDir, path)
		}
		fileDigest, _, err := capture.HashFile(path)
		if err != nil {
			return nil, cli.Validation("output %s: %w", artifact.Name, err)
		}
		outputs[artifact.Name] = fileDigest
	}
	return outputs, nil
}
