// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package proofstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quillproof/quill/lib/atomicfile"
	"github.com/quillproof/quill/lib/clock"
	"github.com/quillproof/quill/lib/sqlitepool"
)

// DirName is the name of the project state directory.
const DirName = ".quill"

const (
	configFile   = "config.yaml"
	lockFile     = "lock"
	auditFile    = "audit.log"
	indexFile    = "index.db"
	runsDir      = "runs"
	receiptsDir  = "receipts"
	keysDir      = "keys"
	tempDir      = "tmp"
	recordSuffix = ".cbor"
)

// Defaults for Config.LockAttempts and Config.LockInterval.
const (
	DefaultLockAttempts = 8
	DefaultLockInterval = 25 * time.Millisecond
)

// Config holds the parameters for opening a Store.
type Config struct {
	// Root is the .quill directory. Missing subdirectories are
	// created.
	Root string

	// LockAttempts bounds how many times a mutation tries to take the
	// lock before failing with *StoreConflict. Zero means
	// DefaultLockAttempts.
	LockAttempts int

	// LockInterval is the first retry delay. Later delays grow
	// exponentially. Zero means DefaultLockInterval.
	LockInterval time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Store is an open project directory.
type Store struct {
	root         string
	index        *sqlitepool.Pool
	lockAttempts int
	lockInterval time.Duration
	clock        clock.Clock
	logger       *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open opens the store at config.Root, creating the layout if needed.
func Open(config Config) (*Store, error) {
	if config.Root == "" {
		return nil, fmt.Errorf("proofstore: Root is required")
	}
	if config.LockAttempts <= 0 {
		config.LockAttempts = DefaultLockAttempts
	}
	if config.LockInterval <= 0 {
		config.LockInterval = DefaultLockInterval
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	for _, directory := range []string{"", runsDir, receiptsDir, tempDir} {
		if err := os.MkdirAll(filepath.Join(config.Root, directory), 0o755); err != nil {
			return nil, fmt.Errorf("proofstore: creating layout: %w", err)
		}
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:       filepath.Join(config.Root, indexFile),
		Migrations: indexMigrations,
		Logger:     config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("proofstore: %w", err)
	}

	return &Store{
		root:         config.Root,
		index:        pool,
		lockAttempts: config.LockAttempts,
		lockInterval: config.LockInterval,
		clock:        config.Clock,
		logger:       config.Logger,
	}, nil
}

// Close closes the registry index. Further calls return the first
// call's result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.index.Close() })
	return s.closeErr
}

// Root returns the .quill directory.
func (s *Store) Root() string { return s.root }

// KeysDir returns the directory lib/keyring manages.
func (s *Store) KeysDir() string { return filepath.Join(s.root, keysDir) }

// ConfigPath returns the project configuration file path.
func ConfigPath(root string) string { return filepath.Join(root, configFile) }

// Discover walks up from start looking for a .quill directory and
// returns its path.
func Discover(start string) (string, error) {
	directory, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("proofstore: resolving %s: %w", start, err)
	}
	for {
		candidate := filepath.Join(directory, DirName)
		info, err := os.Stat(candidate)
		if err == nil && info.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("proofstore: %w", err)
		}
		parent := filepath.Dir(directory)
		if parent == directory {
			return "", fmt.Errorf("%w (searched from %s)", ErrNoProject, start)
		}
		directory = parent
	}
}

func (s *Store) path(elements ...string) string {
	return filepath.Join(append([]string{s.root}, elements...)...)
}

// publish writes data at path once. Rewriting with identical bytes is
// a no-op; different bytes fail with atomicfile.ErrExists.
func (s *Store) publish(path string, data []byte) (created bool, err error) {
	err = atomicfile.Create(path, data, atomicfile.Options{TempDir: s.path(tempDir), Mode: 0o444})
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, atomicfile.ErrExists) {
		return false, err
	}
	existing, readErr := os.ReadFile(path)
	if readErr != nil {
		return false, fmt.Errorf("proofstore: reading existing %s: %w", path, readErr)
	}
	if string(existing) != string(data) {
		return false, err
	}
	return false, nil
}
