// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"
)

// Parse decodes a single JSON value into the generic value model:
// nil, bool, string, json.Number, []any, map[string]any. Numbers keep
// their literal text. Duplicate object keys, invalid UTF-8, and
// trailing data are errors; encoding/json alone would silently keep
// the last duplicate.
func Parse(data []byte) (any, error) {
	if !utf8.Valid(data) {
		return nil, errorf("$", "input is not valid UTF-8")
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	value, err := parseValue(decoder, "$")
	if err != nil {
		return nil, err
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, errorf("$", "trailing data after top-level value")
	}
	return value, nil
}

func parseValue(decoder *json.Decoder, path string) (any, error) {
	token, err := decoder.Token()
	if err != nil {
		return nil, parseError(path, err)
	}
	return parseFrom(decoder, token, path)
}

func parseFrom(decoder *json.Decoder, token json.Token, path string) (any, error) {
	switch typed := token.(type) {
	case json.Delim:
		switch typed {
		case '{':
			return parseObject(decoder, path)
		case '[':
			return parseArray(decoder, path)
		default:
			return nil, errorf(path, "unexpected delimiter %q", typed)
		}
	case nil, bool, string, json.Number:
		return typed, nil
	default:
		return nil, errorf(path, "unexpected token %T", token)
	}
}

func parseObject(decoder *json.Decoder, path string) (any, error) {
	object := make(map[string]any)
	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return nil, parseError(path, err)
		}
		key, ok := token.(string)
		if !ok {
			return nil, errorf(path, "object key is %T, want string", token)
		}
		childPath := path + "." + key
		if _, exists := object[key]; exists {
			return nil, errorf(childPath, "duplicate key %q", key)
		}
		value, err := parseValue(decoder, childPath)
		if err != nil {
			return nil, err
		}
		object[key] = value
	}
	if _, err := decoder.Token(); err != nil {
		return nil, parseError(path, err)
	}
	return object, nil
}

func parseArray(decoder *json.Decoder, path string) (any, error) {
	array := make([]any, 0)
	for decoder.More() {
		value, err := parseValue(decoder, path+"["+strconv.Itoa(len(array))+"]")
		if err != nil {
			return nil, err
		}
		array = append(array, value)
	}
	if _, err := decoder.Token(); err != nil {
		return nil, parseError(path, err)
	}
	return array, nil
}

func parseError(path string, err error) *Error {
	if errors.Is(err, io.EOF) {
		return errorf(path, "unexpected end of input")
	}
	return &Error{Path: path, Reason: fmt.Sprintf("invalid JSON: %v", err)}
}
