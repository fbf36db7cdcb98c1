// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/quillproof/quill/cmd/quill/cli"
	"github.com/quillproof/quill/lib/auditchain"
	"github.com/quillproof/quill/lib/config"
	"github.com/quillproof/quill/lib/digest"
	"github.com/quillproof/quill/lib/keyring"
	"github.com/quillproof/quill/lib/proofstore"
)

type initParams struct {
	projectParams
	cli.JSONOutput
	Name          string `json:"name"           flag:"name"           desc:"project name recorded in every run (default: directory name)"`
	SchemaVersion string `json:"schema_version" flag:"schema-version" desc:"receipt schema version (default: current)"`
	PassphraseEnv string `json:"passphrase_env" flag:"passphrase-env" desc:"environment variable holding the key passphrase; enables encryption at rest"`
}

type initResult struct {
	Root      string `json:"root"`
	Project   string `json:"project"`
	KeyID     string `json:"key_id"`
	Encrypted bool   `json:"encrypted"`
}

func initCommand(env *environment) *cli.Command {
	var params initParams
	return &cli.Command{
		Name:    "init",
		Summary: "Create a .quill project directory and its first signing key",
		Description: `Create .quill in the project directory (default: the current
directory): the configuration file, the store layout, and an Ed25519
signing key. The key's creation is the first audit log entry.

With --passphrase-env, private keys are encrypted at rest with a
passphrase read from that variable, or prompted for when it is unset.`,
		Usage: "quill init [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("init", &params) },
		Examples: []cli.Example{
			{Description: "Initialize the current directory", Command: "quill init"},
			{Description: "Encrypt keys with a passphrase from $QUILL_PASSPHRASE", Command: "quill init --passphrase-env QUILL_PASSPHRASE"},
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, 0, "quill init [flags]"); err != nil {
				return err
			}
			result, err := env.initProject(ctx, params)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.stdout, result); done {
				return err
			}
			fmt.Fprintf(env.stdout, "initialized %s (project %q, key %s)\n", result.Root, result.Project, result.KeyID)
			return nil
		},
	}
}

func (e *environment) initProject(ctx context.Context, params initParams) (*initResult, error) {
	directory := params.Project
	if directory == "" {
		workingDir, err := e.workingDir()
		if err != nil {
			return nil, cli.Internal("resolving working directory: %w", err)
		}
		directory = workingDir
	}
	directory, err := filepath.Abs(directory)
	if err != nil {
		return nil, cli.Internal("%w", err)
	}
	root := filepath.Join(directory, proofstore.DirName)

	projectConfig, err := e.initConfig(root, directory, params)
	if err != nil {
		return nil, err
	}
	logger := e.newLogger(params.Verbose).With("command", "init")
	opened, err := e.openStore(root, projectConfig, params.projectParams, logger)
	if err != nil {
		return nil, err
	}
	defer opened.Close()

	public, err := opened.keys.Init()
	if errors.Is(err, keyring.ErrAlreadyInitialized) {
		return nil, cli.Conflict("%s is already initialized", root)
	}
	if err != nil {
		return nil, cli.Internal("generating signing key: %w", err)
	}
	if err := opened.audit(ctx, auditchain.ActionKeyGenerated, public.KeyID, digest.SumKey(public.Key)); err != nil {
		return nil, err
	}
	logger.Info("initialized project", "root", root, "key_id", public.KeyID)

	return &initResult{
		Root:      root,
		Project:   projectConfig.Project,
		KeyID:     public.KeyID,
		Encrypted: projectConfig.Keys.PassphraseEnv != "" || params.PassphraseFile != "",
	}, nil
}

// initConfig writes config.yaml unless one exists, in which case the
// existing file wins and conflicting flags are rejected.
func (e *environment) initConfig(root, directory string, params initParams) (*config.Config, error) {
	path := proofstore.ConfigPath(root)
	if _, err := os.Stat(path); err == nil {
		existing, err := config.LoadFile(path, root)
		if err != nil {
			return nil, cli.Validation("%w", err)
		}
		if params.Name != "" && params.Name != existing.Project {
			return nil, cli.Conflict("%s already names project %q", path, existing.Project)
		}
		if err := existing.Validate(); err != nil {
			return nil, cli.Validation("invalid configuration %s:\n%w", path, err)
		}
		return existing, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, cli.Internal("%w", err)
	}

	projectConfig := config.Default()
	projectConfig.Project = filepath.Base(directory)
	if params.Name != "" {
		projectConfig.Project = params.Name
	}
	if params.SchemaVersion != "" {
		projectConfig.SchemaVersion = params.SchemaVersion
	}
	projectConfig.Keys.PassphraseEnv = params.PassphraseEnv
	if err := projectConfig.Validate(); err != nil {
		return nil, cli.Validation("%w", err)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, cli.Internal("creating %s: %w", root, err)
	}
	if err := projectConfig.Write(path); err != nil {
		return nil, cli.Internal("%w", err)
	}
	// Variables such as ${QUILL_PROJECT} are expanded on load.
	loaded, err := config.LoadFile(path, root)
	if err != nil {
		return nil, cli.Internal("%w", err)
	}
	return loaded, nil
}
