// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/quillproof/quill/lib/clock"
	"github.com/quillproof/quill/lib/digest"
	"github.com/quillproof/quill/lib/keyring"
	"github.com/quillproof/quill/lib/run"
)

// Epoch is the instant fake clocks start at.
var Epoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

// Clock returns a fake clock set to Epoch.
func Clock() *clock.FakeClock {
	return clock.Fake(Epoch)
}

// Keyring returns a keyring with one current key, stored unencrypted
// under a fresh temporary directory.
func Keyring(t *testing.T) *keyring.Keyring {
	t.Helper()
	keys := keyring.New(keyring.Config{
		Directory: filepath.Join(t.TempDir(), "keys"),
		Clock:     Clock(),
	})
	if _, err := keys.Init(); err != nil {
		t.Fatalf("initializing test keyring: %v", err)
	}
	return keys
}

// Artifact contents of the scenario run.
var (
	DataCSV  = []byte("day,load\n1,0.42\n2,0.57\n")
	ModelBin = []byte{0x7f, 'M', 'O', 'D', 'E', 'L', 0x00, 0x01}
)

// ScenarioRun returns a complete run with one input, one output, and a
// recorded exit code of zero. Every call returns the same id and
// contents.
func ScenarioRun() *run.Run {
	exitCode := 0
	return &run.Run{
		ID:      "8c3f1d2e-5b6a-4c7d-9e8f-0a1b2c3d4e5f",
		Project: "forecast",
		Command: run.Command{Argv: []string{"python", "train.py", "--epochs", "3"}, WorkingDir: "/work/forecast"},
		Inputs: []run.ArtifactRef{
			{Name: "data.csv", Digest: digest.SumBytes(DataCSV), Size: int64(len(DataCSV))},
		},
		Outputs: []run.ArtifactRef{
			{Name: "model.bin", Digest: digest.SumBytes(ModelBin), Size: int64(len(ModelBin))},
		},
		Environment: map[string]string{"tool": "x@1.0"},
		StartedAt:   Epoch.Add(-10 * time.Minute),
		EndedAt:     Epoch.Add(-time.Minute),
		Initiator:   "alice@build-host",
		ExitCode:    &exitCode,
	}
}
