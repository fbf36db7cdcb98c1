// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/quillproof/quill/lib/clock"
	"github.com/quillproof/quill/lib/digest"
	"github.com/quillproof/quill/lib/run"
)

// Artifact maps a logical name to a file.
type Artifact struct {
	Name string
	Path string
}

// ParseArtifact parses "name=path", or a bare path whose name is the
// path itself.
func ParseArtifact(text string) (Artifact, error) {
	name, path, found := strings.Cut(text, "=")
	if !found {
		path = name
	}
	if name == "" || path == "" {
		return Artifact{}, fmt.Errorf("artifact %q: expected name=path or path", text)
	}
	return Artifact{Name: name, Path: path}, nil
}

// Spec describes one command to capture.
type Spec struct {
	Project string
	Argv    []string

	// WorkingDir is where the command runs and where relative
	// artifact paths resolve. Empty means the current directory.
	WorkingDir string

	Inputs  []Artifact
	Outputs []Artifact

	// EnvAllowlist names the environment variables recorded in the
	// environment descriptor when set.
	EnvAllowlist []string

	// Tools are recorded in the environment descriptor verbatim, for
	// example {"python": "3.12.4"}.
	Tools map[string]string

	// Initiator identifies who ran the command. Empty means
	// DefaultInitiator().
	Initiator string

	// Stdout and Stderr receive the command's output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	// GracePeriod is how long a cancelled command gets between SIGTERM
	// and SIGKILL. Zero kills immediately.
	GracePeriod time.Duration
}

// Config holds the dependencies of a Capturer.
type Config struct {
	Clock  clock.Clock
	Logger *slog.Logger

	// LookupEnv reads the recorded environment. Nil means os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Capturer runs commands and records them.
type Capturer struct {
	clock     clock.Clock
	logger    *slog.Logger
	lookupEnv func(string) (string, bool)
}

// New returns a Capturer.
func New(config Config) *Capturer {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.LookupEnv == nil {
		config.LookupEnv = os.LookupEnv
	}
	return &Capturer{clock: config.Clock, logger: config.Logger, lookupEnv: config.LookupEnv}
}

// Capture hashes the inputs, runs the command, hashes the outputs, and
// returns the complete run.
func (c *Capturer) Capture(ctx context.Context, spec Spec) (*run.Run, error) {
	if len(spec.Argv) == 0 {
		return nil, errors.New("capture: no command given")
	}
	workingDir, err := filepath.Abs(spec.WorkingDir)
	if err != nil {
		return nil, fmt.Errorf("capture: resolving working directory: %w", err)
	}
	environment, err := c.environment(spec)
	if err != nil {
		return nil, err
	}

	captured := run.New(spec.Project)
	captured.Command = run.Command{Argv: append([]string(nil), spec.Argv...), WorkingDir: workingDir}
	captured.Environment = environment
	captured.Initiator = spec.Initiator
	if captured.Initiator == "" {
		captured.Initiator = DefaultInitiator()
	}

	if captured.Inputs, err = HashArtifacts(workingDir, spec.Inputs); err != nil {
		return nil, fmt.Errorf("capture: input %w", err)
	}

	captured.StartedAt = c.clock.Now()
	exitCode, err := execute(ctx, workingDir, spec)
	captured.EndedAt = c.clock.Now()
	if err != nil {
		return nil, fmt.Errorf("capture: running %s: %w", spec.Argv[0], err)
	}
	captured.ExitCode = &exitCode

	if captured.Outputs, err = HashArtifacts(workingDir, spec.Outputs); err != nil {
		return nil, fmt.Errorf("capture: output %w (command exited %d)", err, exitCode)
	}

	c.logger.Info("captured run",
		"run_id", captured.ID,
		"command", spec.Argv[0],
		"exit_code", exitCode,
		"inputs", len(captured.Inputs),
		"outputs", len(captured.Outputs),
		"duration", captured.Duration(),
	)
	return captured, nil
}

func (c *Capturer) environment(spec Spec) (map[string]string, error) {
	environment := make(map[string]string, len(spec.EnvAllowlist)+len(spec.Tools))
	for _, name := range spec.EnvAllowlist {
		if value, ok := c.lookupEnv(name); ok {
			environment[name] = value
		}
	}
	for name, version := range spec.Tools {
		if existing, ok := environment[name]; ok && existing != version {
			return nil, fmt.Errorf("capture: tool %q collides with environment variable of the same name", name)
		}
		environment[name] = version
	}
	return environment, nil
}

// HashArtifacts hashes each artifact's file, resolving relative paths
// against workingDir. Names must be unique.
func HashArtifacts(workingDir string, artifacts []Artifact) ([]run.ArtifactRef, error) {
	refs := make([]run.ArtifactRef, 0, len(artifacts))
	seen := make(map[string]bool, len(artifacts))
	for _, artifact := range artifacts {
		if seen[artifact.Name] {
			return nil, fmt.Errorf("%s: duplicate name", artifact.Name)
		}
		seen[artifact.Name] = true

		path := artifact.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(workingDir, path)
		}
		fileDigest, size, err := HashFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", artifact.Name, err)
		}
		refs = append(refs, run.ArtifactRef{Name: artifact.Name, Digest: fileDigest, Size: size})
	}
	return refs, nil
}

// HashFile returns the artifact digest and size of a regular file.
func HashFile(path string) (digest.Digest, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return digest.Digest{}, 0, err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return digest.Digest{}, 0, err
	}
	if !info.Mode().IsRegular() {
		return digest.Digest{}, 0, fmt.Errorf("%s is not a regular file", path)
	}
	fileDigest, err := digest.SumFile(file)
	if err != nil {
		return digest.Digest{}, 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	return fileDigest, info.Size(), nil
}

// DefaultInitiator returns "user@host" for the current process, with
// "unknown" for whichever part cannot be determined.
func DefaultInitiator() string {
	name := "unknown"
	if current, err := user.Current(); err == nil && current.Username != "" {
		name = current.Username
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return name + "@" + host
}

// execute runs the command in its own process group and returns its
// exit status. Errors other than a non-zero exit are returned as-is.
func execute(ctx context.Context, workingDir string, spec Spec) (int, error) {
	command := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	command.Dir = workingDir
	command.Stdout = spec.Stdout
	command.Stderr = spec.Stderr
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Signal the whole group so children the command spawned go too.
	if spec.GracePeriod > 0 {
		command.Cancel = func() error {
			group := -command.Process.Pid
			if err := syscall.Kill(group, syscall.SIGTERM); err != nil {
				return syscall.Kill(group, syscall.SIGKILL)
			}
			go func() {
				time.Sleep(spec.GracePeriod)
				_ = syscall.Kill(group, syscall.SIGKILL)
			}()
			return nil
		}
	} else {
		command.Cancel = func() error {
			return syscall.Kill(-command.Process.Pid, syscall.SIGKILL)
		}
	}

	err := command.Run()
	if err == nil {
		return 0, nil
	}
	var exitError *exec.ExitError
	if errors.As(err, &exitError) && ctx.Err() == nil {
		return exitError.ExitCode(), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, ctxErr
	}
	return -1, err
}
