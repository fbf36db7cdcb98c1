// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/jsonc"
)

// Current is the version new receipts are built against unless
// configured otherwise.
const Current = "2.0"

//go:embed schemas/*.jsonc
var schemaFiles embed.FS

// versionFiles is the closed table of supported versions. Adding a
// version means adding a file and an entry here; existing entries
// never change.
var versionFiles = map[string]string{
	"1.0": "schemas/receipt-v1.0.jsonc",
	"2.0": "schemas/receipt-v2.0.jsonc",
}

var (
	compileOnce sync.Once
	compiled    map[string]*rule
)

// Versions returns the supported versions in ascending order.
func Versions() []string {
	versions := make([]string, 0, len(versionFiles))
	for version := range versionFiles {
		versions = append(versions, version)
	}
	sort.Strings(versions)
	return versions
}

// Supported reports whether version is in the compiled-in set.
func Supported(version string) bool {
	_, ok := versionFiles[version]
	return ok
}

// Source returns the embedded JSONC document of version.
func Source(version string) ([]byte, error) {
	path, ok := versionFiles[version]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSchemaVersion, version)
	}
	return schemaFiles.ReadFile(path)
}

// Validate checks value against the schema of version and reports
// every violation found.
func Validate(value any, version string) Result {
	root, ok := rules()[version]
	if !ok {
		return Result{
			Version:        version,
			unknownVersion: true,
			Violations: []Violation{{
				Field:    "schema_version",
				Expected: fmt.Sprintf("one of %v", Versions()),
				Actual:   fmt.Sprintf("%q", version),
			}},
		}
	}
	var violations []Violation
	root.check(value, "", &violations)
	return Result{Version: version, Violations: violations}
}

// RequiredFields returns the names of the required fields of the
// object at path, a dotted field path such as "document.run", in the
// schema of version. The names are in declaration order.
func RequiredFields(version, path string) ([]string, error) {
	current, ok := rules()[version]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSchemaVersion, version)
	}
	if path != "" {
		for _, name := range strings.Split(path, ".") {
			next, ok := current.fields[name]
			if !ok || next.kind != kindObject {
				return nil, fmt.Errorf("schema %s has no object at %q", version, path)
			}
			current = next
		}
	}
	var required []string
	for _, name := range current.fieldOrder {
		if current.fields[name].required {
			required = append(required, name)
		}
	}
	return required, nil
}

func rules() map[string]*rule {
	compileOnce.Do(func() {
		compiled = make(map[string]*rule, len(versionFiles))
		for version, path := range versionFiles {
			source, err := schemaFiles.ReadFile(path)
			if err != nil {
				panic("schema: reading embedded " + path + ": " + err.Error())
			}
			root, err := compile(version, source)
			if err != nil {
				panic("schema: compiling embedded " + path + ": " + err.Error())
			}
			compiled[version] = root
		}
	})
	return compiled
}

// documentSpec is the JSON shape of a schema document.
type documentSpec struct {
	Version     string               `json:"version"`
	Root        *ruleSpec            `json:"root"`
	Definitions map[string]*ruleSpec `json:"definitions"`
}

type ruleSpec struct {
	Ref           string               `json:"$ref"`
	Type          string               `json:"type"`
	Required      bool                 `json:"required"`
	Extensibility string               `json:"extensibility"`
	Fields        map[string]*ruleSpec `json:"fields"`
	Items         *ruleSpec            `json:"items"`
	Values        *ruleSpec            `json:"values"`
	Enum          []string             `json:"enum"`
	Pattern       string               `json:"pattern"`
}

// compile turns a JSONC schema document into a rule tree.
func compile(version string, source []byte) (*rule, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(source)))
	decoder.DisallowUnknownFields()
	var document documentSpec
	if err := decoder.Decode(&document); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	if document.Version != version {
		return nil, fmt.Errorf("declares version %q, registered as %q", document.Version, version)
	}
	if document.Root == nil {
		return nil, fmt.Errorf("no root rule")
	}
	compiler := &compiler{definitions: document.Definitions}
	return compiler.compile(document.Root, "root")
}

type compiler struct {
	definitions map[string]*ruleSpec
	depth       int
}

func (c *compiler) compile(spec *ruleSpec, location string) (*rule, error) {
	if spec.Ref != "" {
		definition, ok := c.definitions[spec.Ref]
		if !ok {
			return nil, fmt.Errorf("%s: undefined $ref %q", location, spec.Ref)
		}
		if spec.Type != "" || spec.Fields != nil || spec.Items != nil || spec.Values != nil {
			return nil, fmt.Errorf("%s: $ref allows only \"required\" alongside it", location)
		}
		c.depth++
		defer func() { c.depth-- }()
		if c.depth > 32 {
			return nil, fmt.Errorf("%s: $ref nesting too deep", location)
		}
		resolved, err := c.compile(definition, location+"->"+spec.Ref)
		if err != nil {
			return nil, err
		}
		copied := *resolved
		copied.required = spec.Required
		return &copied, nil
	}

	kind, ok := parseKind(spec.Type)
	if !ok {
		return nil, fmt.Errorf("%s: unknown type %q", location, spec.Type)
	}
	compiled := &rule{kind: kind, required: spec.Required, enum: spec.Enum}

	if spec.Pattern != "" {
		if kind != kindString {
			return nil, fmt.Errorf("%s: pattern on non-string type %s", location, kind)
		}
		pattern, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%s: pattern: %w", location, err)
		}
		compiled.pattern = pattern
	}
	if len(spec.Enum) > 0 && kind != kindString {
		return nil, fmt.Errorf("%s: enum on non-string type %s", location, kind)
	}

	switch kind {
	case kindObject:
		extensibility, ok := parseExtensibility(spec.Extensibility)
		if !ok {
			return nil, fmt.Errorf("%s: unknown extensibility %q", location, spec.Extensibility)
		}
		compiled.extensibility = extensibility
		if extensibility == extensibilityMap {
			if spec.Values == nil || spec.Fields != nil {
				return nil, fmt.Errorf("%s: map objects declare values and no fields", location)
			}
			values, err := c.compile(spec.Values, location+".values")
			if err != nil {
				return nil, err
			}
			compiled.values = values
			break
		}
		compiled.fields = make(map[string]*rule, len(spec.Fields))
		for name, fieldSpec := range spec.Fields {
			field, err := c.compile(fieldSpec, location+"."+name)
			if err != nil {
				return nil, err
			}
			compiled.fields[name] = field
			compiled.fieldOrder = append(compiled.fieldOrder, name)
		}
		sort.Strings(compiled.fieldOrder)
	case kindArray:
		if spec.Items == nil {
			return nil, fmt.Errorf("%s: array without items", location)
		}
		items, err := c.compile(spec.Items, location+"[]")
		if err != nil {
			return nil, err
		}
		compiled.items = items
	default:
		if spec.Fields != nil || spec.Items != nil || spec.Values != nil || spec.Extensibility != "" {
			return nil, fmt.Errorf("%s: %s rules take no fields, items, values, or extensibility", location, kind)
		}
	}
	return compiled, nil
}
