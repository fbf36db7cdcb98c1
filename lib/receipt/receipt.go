// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package receipt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quillproof/quill/lib/canonical"
	"github.com/quillproof/quill/lib/codec"
	"github.com/quillproof/quill/lib/digest"
	"github.com/quillproof/quill/lib/keyring"
	"github.com/quillproof/quill/lib/run"
	"github.com/quillproof/quill/lib/schema"
)

// Receipt is an immutable proof that a run happened as recorded.
type Receipt struct {
	SchemaVersion string            `cbor:"schema_version"`
	Document      []byte            `cbor:"document"`
	Digest        digest.Digest     `cbor:"digest"`
	Signature     []byte            `cbor:"signature"`
	PublicKey     keyring.PublicKey `cbor:"public_key"`
	IssuedAt      time.Time         `cbor:"issued_at"`
}

// envelope is the structure whose canonical form is signed.
type envelope struct {
	IssuedAt string   `json:"issued_at"`
	Run      *run.Run `json:"run"`
}

// Encode returns the deterministic CBOR form stored in receipt files
// and bundles.
func (r *Receipt) Encode() ([]byte, error) {
	data, err := codec.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding receipt %s: %w", r.Digest, err)
	}
	return data, nil
}

// Decode parses a receipt file. Unknown fields are rejected.
func Decode(data []byte) (*Receipt, error) {
	var decoded Receipt
	if err := codec.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decoding receipt: %w", err)
	}
	return &decoded, nil
}

// Run parses the run out of the signed document. The result reflects
// exactly what was signed, not any copy stored elsewhere.
func (r *Receipt) Run() (*run.Run, error) {
	var signed struct {
		IssuedAt string  `json:"issued_at"`
		Run      run.Run `json:"run"`
	}
	if err := json.Unmarshal(r.Document, &signed); err != nil {
		return nil, fmt.Errorf("parsing receipt document: %w", err)
	}
	return &signed.Run, nil
}

// View returns the receipt in the generic value model with the
// document expanded, which is the shape the schema describes and the
// shape printed by "quill show --json". The second return value is
// non-nil when the document bytes do not parse; the view then carries
// the document as a string.
func (r *Receipt) View() (map[string]any, error) {
	view := map[string]any{
		"schema_version": r.SchemaVersion,
		"digest":         r.Digest.String(),
		"signature":      base64.StdEncoding.EncodeToString(r.Signature),
		"issued_at":      formatTime(r.IssuedAt),
		"public_key": map[string]any{
			"key_id":     r.PublicKey.KeyID,
			"algorithm":  r.PublicKey.Algorithm,
			"public_key": base64.StdEncoding.EncodeToString(r.PublicKey.Key),
		},
	}
	document, err := canonical.Parse(r.Document)
	if err != nil {
		view["document"] = string(r.Document)
		return view, err
	}
	view["document"] = document
	return view, nil
}

// MarshalJSON renders the view.
func (r *Receipt) MarshalJSON() ([]byte, error) {
	view, _ := r.View()
	return json.Marshal(view)
}

// Validate checks the receipt against the schema of version and
// checks the consistency the schema cannot express: the document must
// be canonical, its issued_at must equal the receipt's, and the key id
// must belong to the embedded public key.
func (r *Receipt) Validate(version string) schema.Result {
	view, parseError := r.View()
	result := schema.Validate(view, version)
	if !schema.Supported(version) {
		return result
	}

	if parseError != nil {
		// The schema already reported "document: expected object".
		// Replace that with the parse failure, which says more.
		result.Violations = replaceViolation(result.Violations, schema.Violation{
			Field:    "document",
			Expected: "canonical JSON object",
			Actual:   parseError.Error(),
		})
		return result
	}
	if !canonical.IsCanonical(r.Document) {
		result.Violations = append(result.Violations, schema.Violation{
			Field:    "document",
			Expected: "canonical encoding",
			Actual:   "non-canonical JSON",
		})
	}
	if document, ok := view["document"].(map[string]any); ok {
		if signedTime, ok := document["issued_at"].(string); ok && signedTime != view["issued_at"] {
			result.Violations = append(result.Violations, schema.Violation{
				Field:    "issued_at",
				Expected: signedTime,
				Actual:   fmt.Sprint(view["issued_at"]),
			})
		}
	}
	if len(r.PublicKey.Key) > 0 && r.PublicKey.KeyID != keyring.KeyID(r.PublicKey.Key) {
		result.Violations = append(result.Violations, schema.Violation{
			Field:    "public_key.key_id",
			Expected: keyring.KeyID(r.PublicKey.Key),
			Actual:   r.PublicKey.KeyID,
		})
	}
	return result
}

func replaceViolation(violations []schema.Violation, replacement schema.Violation) []schema.Violation {
	for index, violation := range violations {
		if violation.Field == replacement.Field {
			violations[index] = replacement
			return violations
		}
	}
	return append(violations, replacement)
}

func formatTime(instant time.Time) string {
	return instant.UTC().Format(time.RFC3339Nano)
}
