// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package auditchain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quillproof/quill/lib/canonical"
	"github.com/quillproof/quill/lib/digest"
)

// Action names what an entry records.
type Action string

const (
	ActionRunCaptured     Action = "run.captured"
	ActionReceiptPromoted Action = "receipt.promoted"
	ActionReceiptVerified Action = "receipt.verified"
	ActionReceiptImported Action = "receipt.imported"
	ActionKeyGenerated    Action = "key.generated"
	ActionKeyRotated      Action = "key.rotated"
	ActionKeyDestroyed    Action = "key.destroyed"
	ActionBundleExported  Action = "bundle.exported"
)

var knownActions = map[Action]bool{
	ActionRunCaptured:     true,
	ActionReceiptPromoted: true,
	ActionReceiptVerified: true,
	ActionReceiptImported: true,
	ActionKeyGenerated:    true,
	ActionKeyRotated:      true,
	ActionKeyDestroyed:    true,
	ActionBundleExported:  true,
}

// Valid reports whether a is one of the defined actions.
func (a Action) Valid() bool { return knownActions[a] }

// Entry is one link of the audit chain.
type Entry struct {
	Seq       uint64        `json:"seq"`
	Timestamp time.Time     `json:"timestamp"`
	Action    Action        `json:"action"`
	Subject   string        `json:"subject,omitempty"`
	Object    digest.Digest `json:"object"`
	Prev      digest.Digest `json:"prev"`
	Hash      digest.Digest `json:"hash"`
}

// hashedForm is the entry as covered by Hash.
type hashedForm struct {
	Seq       uint64        `json:"seq"`
	Timestamp string        `json:"timestamp"`
	Action    Action        `json:"action"`
	Subject   string        `json:"subject,omitempty"`
	Object    digest.Digest `json:"object"`
	Prev      digest.Digest `json:"prev"`
}

// Next returns the entry that follows previous, or the first entry
// when previous is nil.
func Next(previous *Entry, timestamp time.Time, action Action, subject string, object digest.Digest) (Entry, error) {
	if !action.Valid() {
		return Entry{}, fmt.Errorf("unknown audit action %q", action)
	}
	if object.IsZero() {
		return Entry{}, fmt.Errorf("audit entry %s has no object digest", action)
	}
	entry := Entry{
		Timestamp: timestamp.UTC(),
		Action:    action,
		Subject:   subject,
		Object:    object,
		Prev:      digest.Seed,
	}
	if previous != nil {
		entry.Seq = previous.Seq + 1
		entry.Prev = previous.Hash
	}
	hash, err := entry.ComputeHash()
	if err != nil {
		return Entry{}, err
	}
	entry.Hash = hash
	return entry, nil
}

// ComputeHash returns the audit-domain digest of the entry's canonical
// form without the hash field. The stored Hash is ignored.
func (e Entry) ComputeHash() (digest.Digest, error) {
	document, err := canonical.Marshal(hashedForm{
		Seq:       e.Seq,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:    e.Action,
		Subject:   e.Subject,
		Object:    e.Object,
		Prev:      e.Prev,
	})
	if err != nil {
		return digest.Digest{}, fmt.Errorf("canonicalizing audit entry %d: %w", e.Seq, err)
	}
	return digest.SumAudit(document), nil
}

// MarshalLine returns the canonical JSON of the full entry followed by
// a newline.
func (e Entry) MarshalLine() ([]byte, error) {
	line, err := canonical.Marshal(struct {
		hashedForm
		Hash digest.Digest `json:"hash"`
	}{
		hashedForm: hashedForm{
			Seq:       e.Seq,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
			Action:    e.Action,
			Subject:   e.Subject,
			Object:    e.Object,
			Prev:      e.Prev,
		},
		Hash: e.Hash,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding audit entry %d: %w", e.Seq, err)
	}
	return append(line, '\n'), nil
}

// ParseLine decodes one log line, with or without its trailing
// newline. Unknown fields are rejected.
func ParseLine(line []byte) (Entry, error) {
	decoder := json.NewDecoder(bytes.NewReader(bytes.TrimSuffix(line, []byte("\n"))))
	decoder.DisallowUnknownFields()
	var entry Entry
	if err := decoder.Decode(&entry); err != nil {
		return Entry{}, fmt.Errorf("parsing audit entry: %w", err)
	}
	if decoder.More() {
		return Entry{}, fmt.Errorf("parsing audit entry: trailing data")
	}
	return entry, nil
}
