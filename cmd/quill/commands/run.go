// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/pflag"

	"github.com/quillproof/quill/cmd/quill/cli"
	"github.com/quillproof/quill/lib/capture"
	"github.com/quillproof/quill/lib/keyring"
	"github.com/quillproof/quill/lib/run"
)

type runParams struct {
	projectParams
	cli.JSONOutput
	Inputs     []string          `json:"inputs"      flag:"input,i"   desc:"input artifact as name=path or path (repeatable)"`
	Outputs    []string          `json:"outputs"     flag:"output,o"  desc:"output artifact as name=path or path (repeatable)"`
	Tools      map[string]string `json:"tools"       flag:"tool"      desc:"tool version to record as name=version (repeatable)"`
	Env        []string          `json:"env"         flag:"env,e"     desc:"environment variable to record in addition to capture.env_allowlist (repeatable)"`
	WorkingDir string            `json:"working_dir" flag:"workdir"   desc:"directory to run in (default: current directory)"`
	Initiator  string            `json:"initiator"   flag:"initiator" desc:"who ran the command (default: user@host)"`
	Grace      time.Duration     `json:"grace"       flag:"grace"     desc:"time between SIGTERM and SIGKILL when interrupted" default:"5s"`
	Promote    bool              `json:"promote"     flag:"promote"   desc:"promote the run to a signed receipt once captured"`
}

type runResult struct {
	RunID    string            `json:"run_id"`
	ExitCode int               `json:"exit_code"`
	Inputs   []run.ArtifactRef `json:"inputs"`
	Outputs  []run.ArtifactRef `json:"outputs"`
	Receipt  *promoteResult    `json:"receipt,omitempty"`
}

func runCommand(env *environment) *cli.Command {
	var params runParams
	return &cli.Command{
		Name:    "run",
		Summary: "Run a command and capture it as a run record",
		Description: `Run a command, hashing its declared inputs before it starts and its
declared outputs after it exits, and store the result as an immutable
run record. The command's exit status becomes quill's exit status.

Only variables named in capture.env_allowlist or by --env are recorded,
together with the configured and --tool tool versions.`,
		Usage: "quill run [flags] -- <command> [args...]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("run", &params) },
		Examples: []cli.Example{
			{
				Description: "Capture a training run and promote it",
				Command:     "quill run -i data.csv -o model.bin --tool trainer=x@1.0 --promote -- ./train data.csv",
			},
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return cli.Validation("usage: quill run [flags] -- <command> [args...]")
			}
			opened, err := env.openProject(params.projectParams, "run")
			if err != nil {
				return err
			}
			defer opened.Close()

			result, err := env.captureRun(ctx, opened, params, args)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.stdout, result); done {
				if err == nil && result.ExitCode != 0 {
					return &cli.ExitError{Code: result.ExitCode}
				}
				return err
			}
			fmt.Fprintf(env.stdout, "captured run %s (exit %d)\n", result.RunID, result.ExitCode)
			if result.Receipt != nil {
				fmt.Fprintf(env.stdout, "promoted %s\n", result.Receipt.Digest)
			}
			if result.ExitCode != 0 {
				return &cli.ExitError{Code: result.ExitCode}
			}
			return nil
		},
	}
}

func (e *environment) captureRun(ctx context.Context, opened *project, params runParams, argv []string) (*runResult, error) {
	spec := capture.Spec{
		Project:     opened.config.Project,
		Argv:        argv,
		WorkingDir:  params.WorkingDir,
		Tools:       maps.Clone(opened.config.Capture.Tools),
		Initiator:   params.Initiator,
		Stdout:      e.stdout,
		Stderr:      e.stderr,
		GracePeriod: params.Grace,
	}
	if params.OutputJSON {
		// Keep stdout for the JSON result.
		spec.Stdout = e.stderr
	}
	if spec.WorkingDir == "" {
		workingDir, err := e.workingDir()
		if err != nil {
			return nil, cli.Internal("resolving working directory: %w", err)
		}
		spec.WorkingDir = workingDir
	}
	var err error
	if spec.Inputs, err = parseArtifacts(params.Inputs); err != nil {
		return nil, err
	}
	if spec.Outputs, err = parseArtifacts(params.Outputs); err != nil {
		return nil, err
	}
	if spec.Tools == nil {
		spec.Tools = make(map[string]string, len(params.Tools))
	}
	maps.Copy(spec.Tools, params.Tools)
	spec.EnvAllowlist = slices.Clone(opened.config.Capture.EnvAllowlist)
	for _, name := range params.Env {
		if !slices.Contains(spec.EnvAllowlist, name) {
			spec.EnvAllowlist = append(spec.EnvAllowlist, name)
		}
	}

	capturer := capture.New(capture.Config{Clock: e.clock, Logger: opened.logger, LookupEnv: e.lookupEnv})
	captured, err := capturer.Capture(ctx, spec)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cli.Transient("%w", err)
		}
		return nil, cli.Validation("%w", err)
	}
	if err := opened.store.PutRun(ctx, captured); err != nil {
		return nil, storeError(err)
	}

	result := &runResult{
		RunID:    captured.ID,
		ExitCode: *captured.ExitCode,
		Inputs:   captured.Inputs,
		Outputs:  captured.Outputs,
	}
	if params.Promote {
		if result.Receipt, err = promote(ctx, opened, captured); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func parseArtifacts(values []string) ([]capture.Artifact, error) {
	artifacts := make([]capture.Artifact, 0, len(values))
	for _, value := range values {
		artifact, err := capture.ParseArtifact(value)
		if err != nil {
			return nil, cli.Validation("%w", err)
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

type promoteParams struct {
	projectParams
	cli.JSONOutput
}

type promoteResult struct {
	RunID         string    `json:"run_id"`
	Digest        string    `json:"digest"`
	KeyID         string    `json:"key_id"`
	SchemaVersion string    `json:"schema_version"`
	IssuedAt      time.Time `json:"issued_at"`
}

func promoteCommand(env *environment) *cli.Command {
	var params promoteParams
	return &cli.Command{
		Name:    "promote",
		Summary: "Sign a captured run as a receipt",
		Description: `Promote a captured run to a signed receipt with the current signing
key. Promoting the same run again issues a new receipt that supersedes
the previous one; both stay on disk and in "quill history".`,
		Usage: "quill promote <run-id> [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("promote", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, 1, "quill promote <run-id>"); err != nil {
				return err
			}
			opened, err := env.openProject(params.projectParams, "promote")
			if err != nil {
				return err
			}
			defer opened.Close()

			captured, err := opened.store.GetRun(args[0])
			if err != nil {
				return storeError(err)
			}
			result, err := promote(ctx, opened, captured)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.stdout, result); done {
				return err
			}
			fmt.Fprintf(env.stdout, "promoted run %s\n  receipt %s\n  signed by %s (schema %s)\n",
				result.RunID, result.Digest, result.KeyID, result.SchemaVersion)
			return nil
		},
	}
}

func promote(ctx context.Context, opened *project, captured *run.Run) (*promoteResult, error) {
	builder, err := opened.builder()
	if err != nil {
		return nil, err
	}
	promoted, err := builder.Promote(ctx, captured)
	if err != nil {
		return nil, promoteError(err)
	}
	return &promoteResult{
		RunID:         captured.ID,
		Digest:        promoted.Digest.String(),
		KeyID:         promoted.PublicKey.KeyID,
		SchemaVersion: promoted.SchemaVersion,
		IssuedAt:      promoted.IssuedAt,
	}, nil
}

func promoteError(err error) error {
	var incomplete *run.IncompleteError
	switch {
	case errors.As(err, &incomplete):
		return cli.Validation("%w", err)
	case errors.Is(err, keyring.ErrNoCurrentKey):
		return cli.NotFound("%w; run 'quill key rotate' to create one", err)
	}
	return storeError(err)
}
