// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/quillproof/quill/lib/digest"
)

type kind int

const (
	kindObject kind = iota
	kindArray
	kindString
	kindInteger
	kindNumber
	kindBoolean
	kindDigest
	kindTimestamp
	kindBase64
)

var kindNames = map[kind]string{
	kindObject:    "object",
	kindArray:     "array",
	kindString:    "string",
	kindInteger:   "integer",
	kindNumber:    "number",
	kindBoolean:   "boolean",
	kindDigest:    "digest",
	kindTimestamp: "timestamp",
	kindBase64:    "base64",
}

func (k kind) String() string { return kindNames[k] }

func parseKind(name string) (kind, bool) {
	for candidate, candidateName := range kindNames {
		if candidateName == name {
			return candidate, true
		}
	}
	return 0, false
}

type extensibility int

const (
	extensibilityClosed extensibility = iota
	extensibilityOpen
	extensibilityMap
)

func parseExtensibility(name string) (extensibility, bool) {
	switch name {
	case "", "closed":
		return extensibilityClosed, true
	case "open":
		return extensibilityOpen, true
	case "map":
		return extensibilityMap, true
	}
	return 0, false
}

// rule is one compiled node of a schema. Rules are immutable after
// compilation and shared between goroutines.
type rule struct {
	kind          kind
	required      bool
	extensibility extensibility
	fields        map[string]*rule
	fieldOrder    []string
	items         *rule
	values        *rule
	enum          []string
	pattern       *regexp.Regexp
}

func (r *rule) check(value any, path string, violations *[]Violation) {
	report := func(expected, actual string) {
		*violations = append(*violations, Violation{Field: displayPath(path), Expected: expected, Actual: actual})
	}

	switch r.kind {
	case kindObject:
		object, ok := value.(map[string]any)
		if !ok {
			report("object", describe(value))
			return
		}
		r.checkObject(object, path, violations)

	case kindArray:
		array, ok := value.([]any)
		if !ok {
			report("array", describe(value))
			return
		}
		for index, element := range array {
			r.items.check(element, fmt.Sprintf("%s[%d]", path, index), violations)
		}

	case kindString:
		text, ok := value.(string)
		if !ok {
			report("string", describe(value))
			return
		}
		if len(r.enum) > 0 && !slices.Contains(r.enum, text) {
			report("one of "+strings.Join(quoteAll(r.enum), ", "), quote(text))
		}
		if r.pattern != nil && !r.pattern.MatchString(text) {
			report("string matching "+r.pattern.String(), quote(text))
		}

	case kindInteger:
		if !isInteger(value) {
			report("integer", describe(value))
		}

	case kindNumber:
		if !isNumber(value) {
			report("number", describe(value))
		}

	case kindBoolean:
		if _, ok := value.(bool); !ok {
			report("boolean", describe(value))
		}

	case kindDigest:
		text, ok := value.(string)
		if !ok {
			report("digest", describe(value))
			return
		}
		if _, err := digest.Parse(text); err != nil {
			report("digest", "malformed digest "+quote(text))
		}

	case kindTimestamp:
		text, ok := value.(string)
		if !ok {
			report("timestamp", describe(value))
			return
		}
		if _, err := time.Parse(time.RFC3339Nano, text); err != nil {
			report("timestamp", "malformed timestamp "+quote(text))
		}

	case kindBase64:
		text, ok := value.(string)
		if !ok {
			report("base64", describe(value))
			return
		}
		if _, err := base64.StdEncoding.Strict().DecodeString(text); err != nil {
			report("base64", "malformed base64 "+quote(text))
		}
	}
}

func (r *rule) checkObject(object map[string]any, path string, violations *[]Violation) {
	if r.extensibility == extensibilityMap {
		for _, key := range sortedKeys(object) {
			r.values.check(object[key], joinPath(path, key), violations)
		}
		return
	}

	for _, name := range r.fieldOrder {
		field := r.fields[name]
		value, present := object[name]
		if !present {
			if field.required {
				*violations = append(*violations, Violation{
					Field:    displayPath(joinPath(path, name)),
					Expected: "present",
					Actual:   "missing",
				})
			}
			continue
		}
		field.check(value, joinPath(path, name), violations)
	}

	if r.extensibility == extensibilityClosed {
		for _, key := range sortedKeys(object) {
			if _, declared := r.fields[key]; !declared {
				*violations = append(*violations, Violation{
					Field:    displayPath(joinPath(path, key)),
					Expected: "absent",
					Actual:   "undeclared field",
				})
			}
		}
	}
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func displayPath(path string) string {
	if path == "" {
		return "$"
	}
	return path
}

func sortedKeys(object map[string]any) []string {
	keys := make([]string, 0, len(object))
	for key := range object {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func isInteger(value any) bool {
	switch number := value.(type) {
	case json.Number:
		text := strings.TrimPrefix(number.String(), "-")
		if text == "" {
			return false
		}
		for _, character := range text {
			if character < '0' || character > '9' {
				return false
			}
		}
		return true
	case float64:
		return !math.IsInf(number, 0) && number == math.Trunc(number)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func isNumber(value any) bool {
	switch number := value.(type) {
	case json.Number:
		_, err := number.Float64()
		return err == nil
	case float64:
		return !math.IsNaN(number) && !math.IsInf(number, 0)
	case float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

// describe names the kind of a value for the Actual side of a
// violation.
func describe(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	}
	if isInteger(value) {
		return "integer"
	}
	if isNumber(value) {
		return "number"
	}
	return fmt.Sprintf("%T", value)
}

func quote(text string) string {
	const limit = 80
	if len(text) > limit {
		return fmt.Sprintf("%q...", text[:limit])
	}
	return fmt.Sprintf("%q", text)
}

func quoteAll(values []string) []string {
	quoted := make([]string, len(values))
	for index, value := range values {
		quoted[index] = quote(value)
	}
	return quoted
}
