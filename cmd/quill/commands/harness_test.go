// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/quillproof/quill/cmd/quill/cli"
	"github.com/quillproof/quill/lib/secret"
	"github.com/quillproof/quill/lib/testutil"
)

// harness runs commands against a project in a temporary directory.
type harness struct {
	t      *testing.T
	dir    string
	stdout bytes.Buffer
	stderr bytes.Buffer
	env    *environment
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, dir: t.TempDir()}
	variables := map[string]string{"LANG": "C.UTF-8", "SECRET_TOKEN": "hunter2"}
	h.env = &environment{
		stdout:     &h.stdout,
		stderr:     &h.stderr,
		clock:      testutil.Clock(),
		workingDir: func() (string, error) { return h.dir, nil },
		lookupEnv: func(name string) (string, bool) {
			value, ok := variables[name]
			return value, ok
		},
		newLogger: func(bool) *slog.Logger { return slog.New(slog.DiscardHandler) },
		prompt: func(string) (*secret.Buffer, error) {
			return nil, errors.New("no terminal in tests")
		},
	}
	return h
}

// initialized returns a harness whose directory holds a fresh project.
func initialized(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	h.mustRun("init", "--name", "forecast")
	return h
}

// run executes one quill invocation and returns its error. Stdout is
// reset first, so h.stdout holds only this invocation's output.
func (h *harness) run(args ...string) error {
	h.t.Helper()
	h.stdout.Reset()
	return newRoot(h.env).Execute(context.Background(), args)
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	if err := h.run(args...); err != nil {
		h.t.Fatalf("quill %v: %v\nstdout:\n%s\nstderr:\n%s", args, err, h.stdout.String(), h.stderr.String())
	}
	return h.stdout.String()
}

// runJSON runs with --json appended and decodes stdout into out.
func (h *harness) runJSON(out any, args ...string) error {
	h.t.Helper()
	err := h.run(append(args, "--json")...)
	if decodeErr := json.Unmarshal(h.stdout.Bytes(), out); decodeErr != nil {
		h.t.Fatalf("quill %v --json: output is not JSON (%v, run error %v):\n%s", args, decodeErr, err, h.stdout.String())
	}
	return err
}

func (h *harness) mustRunJSON(out any, args ...string) {
	h.t.Helper()
	if err := h.runJSON(out, args...); err != nil {
		h.t.Fatalf("quill %v --json: %v\nstderr:\n%s", args, err, h.stderr.String())
	}
}

func (h *harness) writeFile(name string, data []byte) string {
	h.t.Helper()
	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		h.t.Fatal(err)
	}
	return path
}

// captureTraining runs the scenario command: model.bin derived from
// data.csv, recorded with a tool version.
func (h *harness) captureTraining(extra ...string) runResult {
	h.t.Helper()
	h.writeFile("data.csv", testutil.DataCSV)
	args := []string{"run", "-i", "data.csv", "-o", "model.bin", "--tool", "x=1.0", "--env", "LANG"}
	args = append(args, extra...)
	args = append(args, "--", "sh", "-c", "cat data.csv > model.bin")
	var result runResult
	h.mustRunJSON(&result, args...)
	return result
}

func exitCode(err error) int {
	var exitError *cli.ExitError
	if errors.As(err, &exitError) {
		return exitError.Code
	}
	return -1
}
