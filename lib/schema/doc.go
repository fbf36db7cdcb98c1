// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema validates receipts against versioned, immutable
// schemas.
//
// Each supported version is a JSONC document embedded in the binary
// under schemas/. The set of versions is closed: [Validate] rejects a
// version it does not know with [ErrUnknownSchemaVersion] instead of
// guessing at compatibility. All versions are compiled once per process
// into read-only rule trees.
//
// A schema document has a root rule and optional named definitions.
// A rule has:
//
//	type           object, array, string, integer, number, boolean,
//	               digest, timestamp, or base64
//	required       the field must be present (default false)
//	extensibility  for objects: closed (no undeclared fields, the
//	               default), open (undeclared fields allowed), or map
//	               (any keys, each value checked against "values")
//	fields         declared object fields
//	items          rule for every array element
//	values         rule for every value of a map object
//	enum, pattern  constraints on strings
//	$ref           use the named definition; "required" may be set
//	               alongside it
//
// Validation visits the whole value and reports every violation with a
// dotted field path ("document.run.inputs[2].digest"). Nothing is
// short-circuited, so one report lists every defect.
//
// Values are in the generic model produced by [canonical.Parse] or
// encoding/json: map[string]any, []any, string, bool, nil, and
// json.Number or float64 for numbers.
package schema
