// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package run

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quillproof/quill/lib/digest"
)

// Run is a captured computation.
type Run struct {
	ID          string            `json:"id" cbor:"id"`
	Project     string            `json:"project" cbor:"project"`
	Command     Command           `json:"command" cbor:"command"`
	Inputs      []ArtifactRef     `json:"inputs" cbor:"inputs"`
	Outputs     []ArtifactRef     `json:"outputs" cbor:"outputs"`
	Environment map[string]string `json:"environment" cbor:"environment"`
	StartedAt   time.Time         `json:"started_at" cbor:"started_at"`
	EndedAt     time.Time         `json:"ended_at" cbor:"ended_at"`
	Initiator   string            `json:"initiator,omitempty" cbor:"initiator,omitempty"`
	ExitCode    *int              `json:"exit_code,omitempty" cbor:"exit_code,omitempty"`
}

// Command describes what was executed.
type Command struct {
	Argv       []string `json:"argv" cbor:"argv"`
	WorkingDir string   `json:"working_dir,omitempty" cbor:"working_dir,omitempty"`
}

// ArtifactRef names an input or output and pins its content.
type ArtifactRef struct {
	Name   string        `json:"name" cbor:"name"`
	Digest digest.Digest `json:"digest" cbor:"digest"`
	Size   int64         `json:"size,omitempty" cbor:"size,omitempty"`
}

// IncompleteError lists everything a run is missing before it can be
// promoted.
type IncompleteError struct {
	RunID   string
	Missing []string
}

func (e *IncompleteError) Error() string {
	id := e.RunID
	if id == "" {
		id = "(no id)"
	}
	return fmt.Sprintf("run %s is incomplete: %s", id, strings.Join(e.Missing, "; "))
}

// New returns a Run with a fresh random id.
func New(project string) *Run {
	return &Run{
		ID:          uuid.NewString(),
		Project:     project,
		Inputs:      []ArtifactRef{},
		Outputs:     []ArtifactRef{},
		Environment: map[string]string{},
	}
}

// CheckComplete verifies that every field a receipt needs is present
// and well formed. It returns *IncompleteError naming every problem,
// or nil.
func (r *Run) CheckComplete() error {
	return r.CheckCompleteFor(nil)
}

// CheckCompleteFor is CheckComplete plus presence of the optional
// fields a receipt schema makes mandatory. required holds JSON field
// names, as returned by schema.RequiredFields for "document.run".
func (r *Run) CheckCompleteFor(required []string) error {
	var missing []string
	add := func(format string, args ...any) {
		missing = append(missing, fmt.Sprintf(format, args...))
	}

	if r.ID == "" {
		add("id")
	} else if _, err := uuid.Parse(r.ID); err != nil {
		add("id: not a UUID")
	}
	if r.Project == "" {
		add("project")
	}
	if len(r.Command.Argv) == 0 {
		add("command.argv")
	}
	if r.StartedAt.IsZero() {
		add("started_at")
	}
	if r.EndedAt.IsZero() {
		add("ended_at")
	}
	if !r.StartedAt.IsZero() && !r.EndedAt.IsZero() && r.EndedAt.Before(r.StartedAt) {
		add("ended_at: before started_at")
	}
	checkArtifacts("inputs", r.Inputs, add)
	checkArtifacts("outputs", r.Outputs, add)

	if len(required) > 0 {
		present, err := r.fieldNames()
		if err != nil {
			return err
		}
		for _, name := range required {
			if !present[name] {
				add("%s", name)
			}
		}
	}

	if len(missing) > 0 {
		return &IncompleteError{RunID: r.ID, Missing: missing}
	}
	return nil
}

// fieldNames returns the top-level JSON fields r encodes to. Optional
// fields left unset are absent.
func (r *Run) fieldNames() (map[string]bool, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding run %s: %w", r.ID, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", r.ID, err)
	}
	names := make(map[string]bool, len(fields))
	for name := range fields {
		names[name] = true
	}
	return names, nil
}

func checkArtifacts(list string, artifacts []ArtifactRef, add func(string, ...any)) {
	seen := make(map[string]int, len(artifacts))
	for index, artifact := range artifacts {
		if artifact.Name == "" {
			add("%s[%d].name", list, index)
		} else if first, duplicate := seen[artifact.Name]; duplicate {
			add("%s[%d].name: duplicates %s[%d]", list, index, list, first)
		} else {
			seen[artifact.Name] = index
		}
		if artifact.Digest.IsZero() {
			add("%s[%d].digest", list, index)
		} else if artifact.Digest.Algorithm != digest.AlgorithmBLAKE3 {
			add("%s[%d].digest: unsupported algorithm %q", list, index, artifact.Digest.Algorithm)
		}
		if artifact.Size < 0 {
			add("%s[%d].size: negative", list, index)
		}
	}
}

// Normalized returns a copy with timestamps in UTC and nil collections
// replaced by empty ones, so that structurally equal runs have one
// canonical form.
func (r *Run) Normalized() *Run {
	copied := *r
	copied.StartedAt = r.StartedAt.UTC()
	copied.EndedAt = r.EndedAt.UTC()
	copied.Command.Argv = append([]string{}, r.Command.Argv...)
	copied.Inputs = append([]ArtifactRef{}, r.Inputs...)
	copied.Outputs = append([]ArtifactRef{}, r.Outputs...)
	copied.Environment = make(map[string]string, len(r.Environment))
	for key, value := range r.Environment {
		copied.Environment[key] = value
	}
	if r.ExitCode != nil {
		exitCode := *r.ExitCode
		copied.ExitCode = &exitCode
	}
	return &copied
}

// Output returns the output with the given name.
func (r *Run) Output(name string) (ArtifactRef, bool) {
	for _, output := range r.Outputs {
		if output.Name == name {
			return output, true
		}
	}
	return ArtifactRef{}, false
}

// OutputDigests returns the recorded output digests keyed by name.
func (r *Run) OutputDigests() map[string]digest.Digest {
	digests := make(map[string]digest.Digest, len(r.Outputs))
	for _, output := range r.Outputs {
		digests[output.Name] = output.Digest
	}
	return digests
}

// EnvironmentKeys returns the environment variable names in sorted
// order.
func (r *Run) EnvironmentKeys() []string {
	keys := make([]string, 0, len(r.Environment))
	for key := range r.Environment {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Duration is EndedAt minus StartedAt.
func (r *Run) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}
