// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package canonical

import (
	"bytes"
	"math"
	"strconv"
	"strings"
)

// encodeNumberText canonicalizes a JSON number literal. Pure integer
// literals are normalized textually so that integers wider than
// float64 keep every digit; anything with a fraction or exponent goes
// through float64.
func encodeNumberText(buffer *bytes.Buffer, text string, path string) error {
	if !isJSONNumber(text) {
		return errorf(path, "invalid number literal %q", text)
	}
	if !strings.ContainsAny(text, ".eE") {
		digits := strings.TrimPrefix(text, "-")
		if digits == "0" {
			buffer.WriteByte('0')
			return nil
		}
		buffer.WriteString(text)
		return nil
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		// ParseFloat reports ErrRange for literals outside float64;
		// those would become ±Inf, which has no canonical form.
		return errorf(path, "number %q is out of range", text)
	}
	return encodeFloat(buffer, value, path)
}

// encodeFloat writes the canonical form of a finite float64. Integral
// values never use an exponent; 1e23 and 100000000000000000000000
// encode identically.
func encodeFloat(buffer *bytes.Buffer, value float64, path string) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return errorf(path, "non-finite number %v", value)
	}
	if value == 0 {
		buffer.WriteByte('0')
		return nil
	}
	if value == math.Trunc(value) {
		buffer.WriteString(strconv.FormatFloat(value, 'f', -1, 64))
		return nil
	}

	if value < 0 {
		buffer.WriteByte('-')
		value = -value
	}

	// FormatFloat with 'e' and precision -1 yields the shortest digit
	// string that round-trips: "d.ddddde±XX".
	formatted := strconv.FormatFloat(value, 'e', -1, 64)
	mantissa, exponentText, _ := strings.Cut(formatted, "e")
	digits := strings.Replace(mantissa, ".", "", 1)
	exponent, err := strconv.Atoi(exponentText)
	if err != nil {
		return errorf(path, "formatting %v: %v", value, err)
	}

	// value = 0.digits × 10^n. A non-integral float64 is below 2^53,
	// so n never exceeds 16 here.
	n := exponent + 1
	switch {
	case n > 0:
		buffer.WriteString(digits[:n])
		buffer.WriteByte('.')
		buffer.WriteString(digits[n:])
	case n > -6:
		buffer.WriteString("0.")
		buffer.WriteString(strings.Repeat("0", -n))
		buffer.WriteString(digits)
	default:
		buffer.WriteByte(digits[0])
		if len(digits) > 1 {
			buffer.WriteByte('.')
			buffer.WriteString(digits[1:])
		}
		buffer.WriteByte('e')
		buffer.WriteString(strconv.Itoa(n - 1))
	}
	return nil
}

// isJSONNumber reports whether text matches the JSON number grammar
// (RFC 8259 §6).
func isJSONNumber(text string) bool {
	index := 0
	if index < len(text) && text[index] == '-' {
		index++
	}
	if index >= len(text) {
		return false
	}
	switch {
	case text[index] == '0':
		index++
	case text[index] >= '1' && text[index] <= '9':
		for index < len(text) && isDigit(text[index]) {
			index++
		}
	default:
		return false
	}
	if index < len(text) && text[index] == '.' {
		index++
		start := index
		for index < len(text) && isDigit(text[index]) {
			index++
		}
		if index == start {
			return false
		}
	}
	if index < len(text) && (text[index] == 'e' || text[index] == 'E') {
		index++
		if index < len(text) && (text[index] == '+' || text[index] == '-') {
			index++
		}
		start := index
		for index < len(text) && isDigit(text[index]) {
			index++
		}
		if index == start {
			return false
		}
	}
	return index == len(text)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
