// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package canonical

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	got, err := Canonicalize(map[string]any{
		"zeta":  1,
		"alpha": map[string]any{"b": true, "a": nil},
		"Beta":  "x",
		"ä":     "umlaut",
	})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	want := `{"Beta":"x","alpha":{"a":null,"b":true},"zeta":1,"ä":"umlaut"}`
	if string(got) != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestCanonicalizeNumbers(t *testing.T) {
	// Typed so the sum is rounded at run time, not folded exactly.
	tenth, fifth := 0.1, 0.2
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"int", 42, "42"},
		{"negative int", int64(-7), "-7"},
		{"uint64 max", uint64(math.MaxUint64), "18446744073709551615"},
		{"integral float", 3.0, "3"},
		{"negative zero", math.Copysign(0, -1), "0"},
		{"fraction", 0.5, "0.5"},
		{"shortest roundtrip", tenth + fifth, "0.30000000000000004"},
		{"large integral float", 1e23, "100000000000000000000000"},
		{"small", 0.000001, "0.000001"},
		{"tiny", 1.5e-7, "1.5e-7"},
		{"number literal integer", json.Number("10"), "10"},
		{"number literal fraction zero", json.Number("1.0"), "1"},
		{"number literal exponent", json.Number("1e2"), "100"},
		{"number literal negative zero", json.Number("-0"), "0"},
		{"wide integer literal", json.Number("123456789012345678901234567890"), "123456789012345678901234567890"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Canonicalize(test.value)
			if err != nil {
				t.Fatalf("Canonicalize(%v): %v", test.value, err)
			}
			if string(got) != test.want {
				t.Errorf("Canonicalize(%v) = %s, want %s", test.value, got, test.want)
			}
		})
	}
}

func TestCanonicalizeStrings(t *testing.T) {
	got, err := Canonicalize("quote\" slash\\ nl\n tab\t bell\x07 <html>&é")
	if err != nil {
		t.Fatal(err)
	}
	want := `"quote\" slash\\ nl\n tab\t bell\u0007 <html>&é"`
	if string(got) != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestCanonicalizeRejectsUnsupported(t *testing.T) {
	tests := []struct {
		name  string
		value any
		path  string
	}{
		{"NaN", math.NaN(), "$"},
		{"positive infinity", math.Inf(1), "$"},
		{"nested infinity", map[string]any{"metrics": []any{1.0, math.Inf(-1)}}, "$.metrics[1]"},
		{"invalid UTF-8", "\xff\xfe", "$"},
		{"non-string key", map[int]string{1: "one"}, "$"},
		{"channel", make(chan int), "$"},
		{"function", func() {}, "$"},
		{"complex", complex(1, 2), "$"},
		{"struct", struct{ A int }{1}, "$"},
		{"bad number literal", json.Number("01"), "$"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Canonicalize(test.value)
			var canonicalError *Error
			if !errors.As(err, &canonicalError) {
				t.Fatalf("Canonicalize(%v) error = %v, want *Error", test.name, err)
			}
			if canonicalError.Path != test.path {
				t.Errorf("path = %q, want %q", canonicalError.Path, test.path)
			}
		})
	}
}

func TestMarshalStruct(t *testing.T) {
	type reference struct {
		Name   string `json:"name"`
		Digest string `json:"digest"`
	}
	type record struct {
		Outputs []reference       `json:"outputs"`
		Env     map[string]string `json:"env"`
		ID      string            `json:"id"`
		Note    string            `json:"note,omitempty"`
	}
	got, err := Marshal(record{
		ID:      "r1",
		Env:     map[string]string{"tool": "x@1.0", "PATH": "/bin"},
		Outputs: []reference{{Name: "model.bin", Digest: "blake3:00"}},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"env":{"PATH":"/bin","tool":"x@1.0"},"id":"r1","outputs":[{"digest":"blake3:00","name":"model.bin"}]}`
	if string(got) != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestMarshalRejectsNonFinite(t *testing.T) {
	_, err := Marshal(map[string]float64{"loss": math.NaN()})
	var canonicalError *Error
	if !errors.As(err, &canonicalError) {
		t.Fatalf("Marshal error = %v, want *Error", err)
	}
}

// TestDeterminismAcrossInsertionOrder builds the same logical mapping
// many times with keys inserted in shuffled order and checks every
// encoding is identical.
func TestDeterminismAcrossInsertionOrder(t *testing.T) {
	keys := []string{"id", "project", "command", "inputs", "outputs", "environment", "started_at", "ended_at", "initiator", "exit_code"}
	values := map[string]any{
		"id":          "9b1c",
		"project":     "demo",
		"command":     []any{"python", "train.py"},
		"inputs":      []any{map[string]any{"name": "data.csv", "digest": "blake3:d1"}},
		"outputs":     []any{map[string]any{"name": "model.bin", "digest": "blake3:d2"}},
		"environment": map[string]any{"tool": "x@1.0", "LANG": "C"},
		"started_at":  "2026-01-01T00:00:00Z",
		"ended_at":    "2026-01-01T00:01:00Z",
		"initiator":   "user:alice",
		"exit_code":   0,
	}

	random := rand.New(rand.NewPCG(1, 2))
	var reference []byte
	for iteration := range 50 {
		random.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
		built := make(map[string]any, len(keys))
		for _, key := range keys {
			built[key] = values[key]
		}
		encoded, err := Canonicalize(built)
		if err != nil {
			t.Fatal(err)
		}
		if iteration == 0 {
			reference = encoded
			continue
		}
		if string(encoded) != string(reference) {
			t.Fatalf("iteration %d produced different bytes:\n  %s\n  %s", iteration, encoded, reference)
		}
	}
}

func TestParseAndRecanonicalize(t *testing.T) {
	input := []byte(` { "b" : [1.0, 2e0, "x"], "a" : {"z": null, "y": false} } `)
	value, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := Canonicalize(value)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"a":{"y":false,"z":null},"b":[1,2,"x"]}`
	if string(got) != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
	if IsCanonical(input) {
		t.Error("IsCanonical should be false for whitespace-padded input")
	}
	if !IsCanonical(got) {
		t.Error("IsCanonical should be true for canonical output")
	}
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"duplicate key":  `{"a":1,"a":2}`,
		"trailing data":  `{"a":1} {"b":2}`,
		"truncated":      `{"a":[1,2`,
		"invalid UTF-8":  "\"\xff\"",
		"bare word":      `nope`,
		"leading zero":   `{"n":01}`,
		"empty input":    ``,
		"nested dupe":    `{"x":{"k":1,"k":1}}`,
		"trailing comma": `[1,2,]`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(input))
			var canonicalError *Error
			if !errors.As(err, &canonicalError) {
				t.Fatalf("Parse(%q) error = %v, want *Error", input, err)
			}
		})
	}
}
