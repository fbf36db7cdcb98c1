// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/quillproof/quill/lib/digest"
	"github.com/quillproof/quill/lib/keyring"
	"github.com/quillproof/quill/lib/receipt"
	"github.com/quillproof/quill/lib/schema"
)

// Level names how much a verification proved.
type Level string

const (
	// LevelNone means verification failed.
	LevelNone Level = "none"

	// LevelIntegrity means schema, digest, and signature checks passed.
	LevelIntegrity Level = "integrity"

	// LevelReproduced means integrity passed and supplied output
	// digests matched the recorded ones.
	LevelReproduced Level = "reproduced"
)

// Code identifies the kind of a verification finding.
type Code string

const (
	CodeSchemaViolation  Code = "schema_violation"
	CodeDigestMismatch   Code = "digest_mismatch"
	CodeSignatureInvalid Code = "signature_invalid"
	CodeUntrustedKey     Code = "untrusted_key"
	CodeOutputMismatch   Code = "output_mismatch"
	CodeOutputMissing    Code = "output_missing"
	CodeOutputUnexpected Code = "output_unexpected"
)

// Reason is one structured finding. Which optional fields are set
// depends on Code.
type Reason struct {
	Code       Code               `json:"code"`
	Message    string             `json:"message"`
	Violations []schema.Violation `json:"violations,omitempty"`
	Expected   string             `json:"expected,omitempty"`
	Actual     string             `json:"actual,omitempty"`
	KeyID      string             `json:"key_id,omitempty"`
	Output     string             `json:"output,omitempty"`
}

// Options adjust verification.
type Options struct {
	// Outputs are freshly computed output digests by output name.
	// Nil skips step (d).
	Outputs map[string]digest.Digest

	// SchemaVersion validates against this version instead of the
	// one the receipt declares.
	SchemaVersion string

	// TrustedKeys, when non-empty, is the set of key ids whose
	// signatures are accepted.
	TrustedKeys []string
}

// Result is the outcome of Verify.
type Result struct {
	Valid         bool     `json:"valid"`
	Level         Level    `json:"level"`
	Reasons       []Reason `json:"reasons"`
	Digest        string   `json:"digest"`
	KeyID         string   `json:"key_id"`
	SchemaVersion string   `json:"schema_version"`
}

// Codes returns the reason codes in order.
func (r Result) Codes() []Code {
	codes := make([]Code, len(r.Reasons))
	for index, reason := range r.Reasons {
		codes[index] = reason.Code
	}
	return codes
}

// Verify checks target and reports every finding.
func Verify(target *receipt.Receipt, options Options) Result {
	version := options.SchemaVersion
	if version == "" {
		version = target.SchemaVersion
	}
	result := Result{
		Level:         LevelNone,
		Reasons:       []Reason{},
		Digest:        target.Digest.String(),
		KeyID:         target.PublicKey.KeyID,
		SchemaVersion: version,
	}

	// (a)
	if validation := target.Validate(version); !validation.Valid() {
		result.Reasons = append(result.Reasons, Reason{
			Code:       CodeSchemaViolation,
			Message:    validation.Err().Error(),
			Violations: validation.Violations,
		})
		return result
	}

	// (b)
	if recomputed := digest.Sum(target.Document); !recomputed.Equal(target.Digest) {
		result.Reasons = append(result.Reasons, Reason{
			Code:     CodeDigestMismatch,
			Message:  "document does not hash to the recorded digest",
			Expected: target.Digest.String(),
			Actual:   recomputed.String(),
		})
	}

	// (c)
	if !keyring.Verify(target.PublicKey.Key, target.Digest, target.Signature) {
		result.Reasons = append(result.Reasons, Reason{
			Code:    CodeSignatureInvalid,
			Message: fmt.Sprintf("signature does not verify under key %s", target.PublicKey.KeyID),
			KeyID:   target.PublicKey.KeyID,
		})
	}
	if len(options.TrustedKeys) > 0 && !slices.Contains(options.TrustedKeys, target.PublicKey.KeyID) {
		result.Reasons = append(result.Reasons, Reason{
			Code:    CodeUntrustedKey,
			Message: fmt.Sprintf("key %s is not in the trusted set", target.PublicKey.KeyID),
			KeyID:   target.PublicKey.KeyID,
		})
	}
	integrity := len(result.Reasons) == 0

	// (d)
	reproduced := false
	if options.Outputs != nil {
		before := len(result.Reasons)
		result.Reasons = append(result.Reasons, compareOutputs(target, options.Outputs)...)
		reproduced = len(result.Reasons) == before
	}

	result.Valid = len(result.Reasons) == 0
	switch {
	case integrity && reproduced && result.Valid:
		result.Level = LevelReproduced
	case integrity && result.Valid:
		result.Level = LevelIntegrity
	}
	return result
}

func compareOutputs(target *receipt.Receipt, supplied map[string]digest.Digest) []Reason {
	signed, err := target.Run()
	if err != nil {
		// Unreachable after schema validation; reported rather than
		// assumed.
		return []Reason{{Code: CodeOutputMismatch, Message: "cannot read recorded outputs: " + err.Error()}}
	}

	var reasons []Reason
	recorded := make(map[string]bool, len(signed.Outputs))
	for _, output := range signed.Outputs {
		recorded[output.Name] = true
		actual, ok := supplied[output.Name]
		if !ok {
			reasons = append(reasons, Reason{
				Code:     CodeOutputMissing,
				Message:  fmt.Sprintf("no digest supplied for recorded output %q", output.Name),
				Output:   output.Name,
				Expected: output.Digest.String(),
			})
			continue
		}
		if !actual.Equal(output.Digest) {
			reasons = append(reasons, Reason{
				Code:     CodeOutputMismatch,
				Message:  fmt.Sprintf("output %q does not match the recorded digest", output.Name),
				Output:   output.Name,
				Expected: output.Digest.String(),
				Actual:   actual.String(),
			})
		}
	}

	var unexpected []string
	for name := range supplied {
		if !recorded[name] {
			unexpected = append(unexpected, name)
		}
	}
	sort.Strings(unexpected)
	for _, name := range unexpected {
		reasons = append(reasons, Reason{
			Code:    CodeOutputUnexpected,
			Message: fmt.Sprintf("supplied output %q was not recorded by the run", name),
			Output:  name,
			Actual:  supplied[name].String(),
		})
	}
	return reasons
}

// Summary renders the result on one line for terminal output.
func (r Result) Summary() string {
	if r.Valid {
		return fmt.Sprintf("valid (%s) %s signed by %s", r.Level, r.Digest, r.KeyID)
	}
	codes := make([]string, len(r.Reasons))
	for index, reason := range r.Reasons {
		codes[index] = string(reason.Code)
	}
	return fmt.Sprintf("invalid %s: %s", r.Digest, strings.Join(codes, ", "))
}
