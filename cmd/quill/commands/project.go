// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/quillproof/quill/cmd/quill/cli"
	"github.com/quillproof/quill/lib/auditchain"
	"github.com/quillproof/quill/lib/clock"
	"github.com/quillproof/quill/lib/config"
	"github.com/quillproof/quill/lib/digest"
	"github.com/quillproof/quill/lib/keyring"
	"github.com/quillproof/quill/lib/proofstore"
	"github.com/quillproof/quill/lib/receipt"
	"github.com/quillproof/quill/lib/secret"
)

// projectParams are the flags every project-scoped command takes.
type projectParams struct {
	Project        string `json:"project"         flag:"project,C"       desc:"project directory (default: nearest directory containing .quill)"`
	Config         string `json:"config"          flag:"config"          desc:"configuration file (default: $QUILL_CONFIG, then .quill/config.yaml)"`
	PassphraseFile string `json:"passphrase_file" flag:"passphrase-file" desc:"read the signing key passphrase from this file"`
	Verbose        bool   `json:"verbose"         flag:"verbose,v"       desc:"log debug detail to stderr"`
}

// project is an open .quill directory with its configuration, store,
// and keyring.
type project struct {
	root   string
	config *config.Config
	store  *proofstore.Store
	keys   *keyring.Keyring
	clock  clock.Clock
	logger *slog.Logger
}

func (e *environment) openProject(params projectParams, command string) (*project, error) {
	logger := e.newLogger(params.Verbose).With("command", command)

	start := params.Project
	if start == "" {
		workingDir, err := e.workingDir()
		if err != nil {
			return nil, cli.Internal("resolving working directory: %w", err)
		}
		start = workingDir
	}
	root, err := proofstore.Discover(start)
	if errors.Is(err, proofstore.ErrNoProject) {
		return nil, cli.NotFound("%w; run 'quill init' first", err)
	}
	if err != nil {
		return nil, cli.Internal("%w", err)
	}

	projectConfig, err := config.LoadFile(e.configPath(params, root), root)
	if err != nil {
		return nil, cli.Validation("%w", err)
	}
	if err := projectConfig.Validate(); err != nil {
		return nil, cli.Validation("invalid configuration for %s:\n%w", root, err)
	}
	return e.openStore(root, projectConfig, params, logger)
}

// configPath picks the configuration file: --config, then
// QUILL_CONFIG, then the project's own file.
func (e *environment) configPath(params projectParams, root string) string {
	if params.Config != "" {
		return params.Config
	}
	if path, ok := e.lookupEnv(config.EnvironmentVariable); ok && path != "" {
		return path
	}
	return proofstore.ConfigPath(root)
}

func (e *environment) openStore(root string, projectConfig *config.Config, params projectParams, logger *slog.Logger) (*project, error) {
	store, err := proofstore.Open(proofstore.Config{
		Root:         root,
		LockAttempts: projectConfig.Store.LockAttempts,
		LockInterval: projectConfig.Store.LockInterval,
		Clock:        e.clock,
		Logger:       logger,
	})
	if err != nil {
		return nil, cli.Internal("%w", err)
	}
	keys := keyring.New(keyring.Config{
		Directory:        store.KeysDir(),
		Passphrase:       e.passphrase(projectConfig, params),
		ScryptWorkFactor: projectConfig.Keys.ScryptWorkFactor,
		Clock:            e.clock,
		Logger:           logger,
	})
	logger.Debug("opened project", "root", root, "project", projectConfig.Project)
	return &project{root: root, config: projectConfig, store: store, keys: keys, clock: e.clock, logger: logger}, nil
}

func (p *project) Close() error {
	return p.store.Close()
}

// passphrase chooses where private key passphrases come from:
// --passphrase-file, then the variable named by keys.passphrase_env,
// then an interactive prompt. With neither configured, keys are stored
// unencrypted.
func (e *environment) passphrase(projectConfig *config.Config, params projectParams) keyring.PassphraseFunc {
	if params.PassphraseFile != "" {
		path := params.PassphraseFile
		return func() (*secret.Buffer, error) { return secret.FromFile(path) }
	}
	name := projectConfig.Keys.PassphraseEnv
	if name == "" {
		return nil
	}
	return func() (*secret.Buffer, error) {
		buffer, err := secret.FromEnv(name)
		if errors.Is(err, secret.ErrNotSet) {
			return e.prompt(fmt.Sprintf("Passphrase for signing keys (%s is unset): ", name))
		}
		return buffer, err
	}
}

// audit appends one entry and logs it.
func (p *project) audit(ctx context.Context, action auditchain.Action, subject string, object digest.Digest) error {
	entry, err := p.store.AppendAudit(ctx, action, subject, object)
	if err != nil {
		return storeError(err)
	}
	p.logger.Debug("audit entry appended", "seq", entry.Seq, "action", string(action), "subject", subject)
	return nil
}

func (p *project) builder() (*receipt.Builder, error) {
	builder, err := receipt.NewBuilder(receipt.Config{
		Signer:        p.keys,
		Store:         p.store,
		SchemaVersion: p.config.SchemaVersion,
		Clock:         p.clock,
		Logger:        p.logger,
	})
	if err != nil {
		return nil, cli.Validation("%w", err)
	}
	return builder, nil
}

// resolveReceipt finds a stored receipt by digest, or the current
// receipt of a run by run id. The bytes are the stored file unchanged.
func (p *project) resolveReceipt(ctx context.Context, target string) (*receipt.Receipt, []byte, error) {
	var receiptDigest digest.Digest
	switch {
	case isDigest(target):
		receiptDigest = digest.MustParse(target)
	case uuid.Validate(target) == nil:
		current, err := p.store.CurrentReceipt(ctx, target)
		if err != nil {
			return nil, nil, storeError(err)
		}
		receiptDigest = current.Digest
	default:
		return nil, nil, cli.Validation("%q is neither a receipt digest nor a run id", target)
	}

	data, err := p.store.ReceiptBytes(receiptDigest)
	if err != nil {
		return nil, nil, storeError(err)
	}
	stored, err := receipt.Decode(data)
	if err != nil {
		return nil, nil, cli.Internal("stored receipt %s: %w", receiptDigest, err)
	}
	return stored, data, nil
}

func isDigest(text string) bool {
	_, err := digest.Parse(text)
	return err == nil
}

// storeError categorizes proofstore failures.
func storeError(err error) error {
	var toolError *cli.ToolError
	switch {
	case errors.As(err, &toolError):
		return err
	case errors.Is(err, proofstore.ErrNotFound), errors.Is(err, keyring.ErrKeyNotFound), errors.Is(err, keyring.ErrNoCurrentKey):
		return &cli.ToolError{Category: cli.CategoryNotFound, Err: err}
	case proofstore.IsRetryable(err):
		return &cli.ToolError{Category: cli.CategoryTransient, Err: err}
	case errors.Is(err, proofstore.ErrRunImmutable), errors.Is(err, keyring.ErrAlreadyInitialized), errors.Is(err, keyring.ErrPrivateKeyDestroyed):
		return &cli.ToolError{Category: cli.CategoryConflict, Err: err}
	case errors.Is(err, proofstore.ErrTornAuditLog):
		return &cli.ToolError{Category: cli.CategoryConflict, Err: fmt.Errorf("%w; run 'quill audit repair'", err)}
	default:
		return &cli.ToolError{Category: cli.CategoryInternal, Err: err}
	}
}

// requireArgs checks the positional argument count.
func requireArgs(args []string, want int, usage string) error {
	if len(args) != want {
		return cli.Validation("usage: %s", usage)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
