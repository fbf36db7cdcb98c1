// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"strconv"
	"unicode/utf8"
)

// Canonicalize returns the canonical encoding of value. Accepted Go
// types are nil, bool, string, json.Number, all integer and float
// kinds, slices and arrays of accepted values, maps with string keys,
// and pointers or interfaces holding any of these. Structs are not
// accepted directly; use [Marshal].
func Canonicalize(value any) ([]byte, error) {
	var buffer bytes.Buffer
	if err := encodeValue(&buffer, reflect.ValueOf(value), "$"); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// Marshal converts v to the generic value model via encoding/json
// (honoring json struct tags and Marshaler implementations) and returns
// its canonical encoding.
func Marshal(v any) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		var unsupported *json.UnsupportedValueError
		if errors.As(err, &unsupported) {
			return nil, errorf("$", "unsupported value %s", unsupported.Str)
		}
		var unsupportedType *json.UnsupportedTypeError
		if errors.As(err, &unsupportedType) {
			return nil, errorf("$", "unsupported type %s", unsupportedType.Type)
		}
		return nil, &Error{Path: "$", Reason: err.Error()}
	}
	generic, err := Parse(intermediate)
	if err != nil {
		return nil, err
	}
	return Canonicalize(generic)
}

// IsCanonical reports whether data is already in canonical form: it
// parses, and re-canonicalizing the parsed value reproduces data
// exactly.
func IsCanonical(data []byte) bool {
	value, err := Parse(data)
	if err != nil {
		return false
	}
	again, err := Canonicalize(value)
	if err != nil {
		return false
	}
	return bytes.Equal(again, data)
}

var jsonNumberType = reflect.TypeOf(json.Number(""))

func encodeValue(buffer *bytes.Buffer, value reflect.Value, path string) error {
	if !value.IsValid() {
		buffer.WriteString("null")
		return nil
	}

	if value.Type() == jsonNumberType {
		return encodeNumberText(buffer, value.String(), path)
	}

	switch value.Kind() {
	case reflect.Pointer, reflect.Interface:
		if value.IsNil() {
			buffer.WriteString("null")
			return nil
		}
		return encodeValue(buffer, value.Elem(), path)

	case reflect.Bool:
		if value.Bool() {
			buffer.WriteString("true")
		} else {
			buffer.WriteString("false")
		}
		return nil

	case reflect.String:
		return encodeString(buffer, value.String(), path)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buffer.WriteString(strconv.FormatInt(value.Int(), 10))
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		buffer.WriteString(strconv.FormatUint(value.Uint(), 10))
		return nil

	case reflect.Float32, reflect.Float64:
		return encodeFloat(buffer, value.Float(), path)

	case reflect.Slice:
		if value.IsNil() {
			buffer.WriteString("null")
			return nil
		}
		return encodeSequence(buffer, value, path)

	case reflect.Array:
		return encodeSequence(buffer, value, path)

	case reflect.Map:
		if value.Type().Key().Kind() != reflect.String {
			return errorf(path, "map key type %s is not a string", value.Type().Key())
		}
		if value.IsNil() {
			buffer.WriteString("null")
			return nil
		}
		return encodeMapping(buffer, value, path)

	default:
		return errorf(path, "unsupported kind %s", value.Kind())
	}
}

func encodeSequence(buffer *bytes.Buffer, value reflect.Value, path string) error {
	buffer.WriteByte('[')
	for index := range value.Len() {
		if index > 0 {
			buffer.WriteByte(',')
		}
		if err := encodeValue(buffer, value.Index(index), path+"["+strconv.Itoa(index)+"]"); err != nil {
			return err
		}
	}
	buffer.WriteByte(']')
	return nil
}

func encodeMapping(buffer *bytes.Buffer, value reflect.Value, path string) error {
	keys := make([]string, 0, value.Len())
	lookup := make(map[string]reflect.Value, value.Len())
	iterator := value.MapRange()
	for iterator.Next() {
		key := iterator.Key().String()
		keys = append(keys, key)
		lookup[key] = iterator.Value()
	}
	// Go string comparison is bytewise, which is lexicographic order
	// over the UTF-8 encoding.
	sort.Strings(keys)

	buffer.WriteByte('{')
	for index, key := range keys {
		if index > 0 {
			buffer.WriteByte(',')
		}
		childPath := path + "." + key
		if err := encodeString(buffer, key, childPath); err != nil {
			return err
		}
		buffer.WriteByte(':')
		if err := encodeValue(buffer, lookup[key], childPath); err != nil {
			return err
		}
	}
	buffer.WriteByte('}')
	return nil
}

const hexDigits = "0123456789abcdef"

func encodeString(buffer *bytes.Buffer, s string, path string) error {
	if !utf8.ValidString(s) {
		return errorf(path, "string is not valid UTF-8")
	}
	buffer.WriteByte('"')
	for index := 0; index < len(s); index++ {
		c := s[index]
		switch c {
		case '"':
			buffer.WriteString(`\"`)
		case '\\':
			buffer.WriteString(`\\`)
		case '\b':
			buffer.WriteString(`\b`)
		case '\f':
			buffer.WriteString(`\f`)
		case '\n':
			buffer.WriteString(`\n`)
		case '\r':
			buffer.WriteString(`\r`)
		case '\t':
			buffer.WriteString(`\t`)
		default:
			if c < 0x20 {
				buffer.WriteString(`\u00`)
				buffer.WriteByte(hexDigits[c>>4])
				buffer.WriteByte(hexDigits[c&0x0f])
			} else {
				buffer.WriteByte(c)
			}
		}
	}
	buffer.WriteByte('"')
	return nil
}
