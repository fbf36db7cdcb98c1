// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quillproof/quill/lib/canonical"
	"github.com/quillproof/quill/lib/clock"
	"github.com/quillproof/quill/lib/digest"
	"github.com/quillproof/quill/lib/keyring"
	"github.com/quillproof/quill/lib/run"
	"github.com/quillproof/quill/lib/schema"
)

// Signer lends a signing key for the duration of a callback.
// *keyring.Keyring implements it.
type Signer interface {
	WithSigner(fn func(*keyring.KeyPair) error) error
}

// Store persists a promoted receipt. *proofstore.Store implements it.
type Store interface {
	PutReceipt(ctx context.Context, receipt *Receipt) error
}

// ErrNoStore is returned by Promote on a builder configured without a
// Store.
var ErrNoStore = errors.New("receipt: builder has no store")

// Config holds the dependencies of a Builder.
type Config struct {
	Signer Signer

	// Store is required by Promote and unused by Build.
	Store Store

	// SchemaVersion is the version receipts are built against. Empty
	// means schema.Current.
	SchemaVersion string

	Clock  clock.Clock
	Logger *slog.Logger
}

// Builder produces receipts.
type Builder struct {
	signer        Signer
	store         Store
	schemaVersion string
	clock         clock.Clock
	logger        *slog.Logger
}

// NewBuilder validates config and returns a Builder.
func NewBuilder(config Config) (*Builder, error) {
	if config.Signer == nil {
		return nil, errors.New("receipt: builder requires a signer")
	}
	if config.SchemaVersion == "" {
		config.SchemaVersion = schema.Current
	}
	if !schema.Supported(config.SchemaVersion) {
		return nil, fmt.Errorf("receipt: %w %q", schema.ErrUnknownSchemaVersion, config.SchemaVersion)
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{
		signer:        config.Signer,
		store:         config.Store,
		schemaVersion: config.SchemaVersion,
		clock:         config.Clock,
		logger:        config.Logger,
	}, nil
}

// SchemaVersion returns the version this builder targets.
func (b *Builder) SchemaVersion() string { return b.schemaVersion }

// Build checks, canonicalizes, hashes, signs, and validates without
// persisting anything.
func (b *Builder) Build(captured *run.Run) (*Receipt, error) {
	required, err := schema.RequiredFields(b.schemaVersion, "document.run")
	if err != nil {
		return nil, err
	}
	if err := captured.CheckCompleteFor(required); err != nil {
		return nil, err
	}

	issuedAt := b.clock.Now().UTC()
	document, err := canonical.Marshal(envelope{
		IssuedAt: formatTime(issuedAt),
		Run:      captured.Normalized(),
	})
	if err != nil {
		return nil, fmt.Errorf("canonicalizing run %s: %w", captured.ID, err)
	}
	documentDigest := digest.Sum(document)

	receipt := &Receipt{
		SchemaVersion: b.schemaVersion,
		Document:      document,
		Digest:        documentDigest,
		IssuedAt:      issuedAt,
	}
	err = b.signer.WithSigner(func(pair *keyring.KeyPair) error {
		receipt.Signature = pair.Sign(documentDigest)
		receipt.PublicKey = pair.Public()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("signing run %s: %w", captured.ID, err)
	}

	// Completeness was checked above, so a violation here is a bug.
	if err := receipt.Validate(b.schemaVersion).Err(); err != nil {
		return nil, fmt.Errorf("receipt for run %s: %w", captured.ID, err)
	}
	return receipt, nil
}

// Promote builds a receipt and persists it through the store.
func (b *Builder) Promote(ctx context.Context, captured *run.Run) (*Receipt, error) {
	if b.store == nil {
		return nil, ErrNoStore
	}
	receipt, err := b.Build(captured)
	if err != nil {
		return nil, err
	}
	if err := b.store.PutReceipt(ctx, receipt); err != nil {
		return nil, fmt.Errorf("persisting receipt for run %s: %w", captured.ID, err)
	}
	b.logger.Info("promoted run",
		"run_id", captured.ID,
		"digest", receipt.Digest.String(),
		"key_id", receipt.PublicKey.KeyID,
		"schema_version", receipt.SchemaVersion,
	)
	return receipt, nil
}
