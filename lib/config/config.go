// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quillproof/quill/lib/atomicfile"
	"github.com/quillproof/quill/lib/schema"
)

// EnvironmentVariable names the file to load instead of the project's
// own config.yaml.
const EnvironmentVariable = "QUILL_CONFIG"

// Config is the project configuration.
type Config struct {
	// Project is the project reference recorded in every run.
	Project string `yaml:"project"`

	// SchemaVersion is the receipt schema new promotions target.
	SchemaVersion string `yaml:"schema_version"`

	Keys    KeysConfig    `yaml:"keys"`
	Store   StoreConfig   `yaml:"store"`
	Capture CaptureConfig `yaml:"capture"`
	Bundle  BundleConfig  `yaml:"bundle"`
}

// KeysConfig controls private key storage.
type KeysConfig struct {
	// PassphraseEnv names the environment variable holding the
	// passphrase that encrypts private keys. Empty stores them
	// unencrypted with mode 0600.
	PassphraseEnv string `yaml:"passphrase_env,omitempty"`

	// ScryptWorkFactor is the age scrypt log2(N). Zero uses the age
	// default.
	ScryptWorkFactor int `yaml:"scrypt_work_factor,omitempty"`
}

// StoreConfig controls proof store locking.
type StoreConfig struct {
	LockAttempts int           `yaml:"lock_attempts"`
	LockInterval time.Duration `yaml:"lock_interval"`
}

// CaptureConfig controls what "quill run" records.
type CaptureConfig struct {
	// EnvAllowlist names the environment variables recorded in a
	// run's environment descriptor.
	EnvAllowlist []string `yaml:"env_allowlist"`

	// Tools are recorded in every run's environment descriptor.
	Tools map[string]string `yaml:"tools,omitempty"`
}

// BundleConfig controls "quill bundle export".
type BundleConfig struct {
	// Compression is zstd, lz4, or none.
	Compression string `yaml:"compression"`

	// Directory receives bundles when no output path is given.
	Directory string `yaml:"directory"`
}

// Default returns the configuration used for fields the file omits.
func Default() *Config {
	return &Config{
		SchemaVersion: schema.Current,
		Store: StoreConfig{
			LockAttempts: 8,
			LockInterval: 25 * time.Millisecond,
		},
		Capture: CaptureConfig{
			EnvAllowlist: []string{},
		},
		Bundle: BundleConfig{
			Compression: "zstd",
			Directory:   "${QUILL_PROJECT}/bundles",
		},
	}
}

// Load loads QUILL_CONFIG if set, otherwise config.yaml in the .quill
// directory root.
func Load(root string) (*Config, error) {
	if path := os.Getenv(EnvironmentVariable); path != "" {
		return LoadFile(path, root)
	}
	return LoadFile(filepath.Join(root, "config.yaml"), root)
}

// LoadFile loads the file at path over Default. root is the .quill
// directory the configuration applies to.
func LoadFile(path, root string) (*Config, error) {
	config := Default()
	if err := config.loadFile(path); err != nil {
		return nil, err
	}
	config.expandVariables(root)
	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// Write saves c to path atomically.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.WriteFile(path, data, atomicfile.Options{})
}

func (c *Config) expandVariables(root string) {
	vars := map[string]string{
		"QUILL_PROJECT": filepath.Dir(root),
		"HOME":          os.Getenv("HOME"),
	}
	c.Bundle.Directory = expandVars(c.Bundle.Directory, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}. Provided vars win
// over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var environmentName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the configuration and reports every problem.
func (c *Config) Validate() error {
	var errs []error

	if c.Project == "" {
		errs = append(errs, errors.New("project is required"))
	}
	if !schema.Supported(c.SchemaVersion) {
		errs = append(errs, fmt.Errorf("schema_version %q is not one of %v", c.SchemaVersion, schema.Versions()))
	}
	if c.Keys.PassphraseEnv != "" && !environmentName.MatchString(c.Keys.PassphraseEnv) {
		errs = append(errs, fmt.Errorf("keys.passphrase_env %q is not a valid variable name", c.Keys.PassphraseEnv))
	}
	if c.Keys.ScryptWorkFactor < 0 || c.Keys.ScryptWorkFactor > 30 {
		errs = append(errs, fmt.Errorf("keys.scrypt_work_factor must be between 1 and 30, or 0 for the default"))
	}
	if c.Store.LockAttempts < 1 {
		errs = append(errs, errors.New("store.lock_attempts must be at least 1"))
	}
	if c.Store.LockInterval <= 0 {
		errs = append(errs, errors.New("store.lock_interval must be positive"))
	}
	for _, name := range c.Capture.EnvAllowlist {
		if !environmentName.MatchString(name) {
			errs = append(errs, fmt.Errorf("capture.env_allowlist entry %q is not a valid variable name", name))
		}
	}
	for name := range c.Capture.Tools {
		if slices.Contains(c.Capture.EnvAllowlist, name) {
			errs = append(errs, fmt.Errorf("capture.tools %q is also in capture.env_allowlist", name))
		}
	}
	compressions := []string{"zstd", "lz4", "none"}
	if !slices.Contains(compressions, c.Bundle.Compression) {
		errs = append(errs, fmt.Errorf("bundle.compression must be one of: %v", compressions))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
