// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/quillproof/quill/lib/canonical"
	"github.com/quillproof/quill/lib/codec"
)

func TestDomainsAreSeparated(t *testing.T) {
	data := []byte("the same bytes in every role")

	digests := map[string]Digest{
		"document": Sum(data),
		"artifact": SumBytes(data),
		"audit":    SumAudit(data),
		"key":      SumKey(data),
	}
	seen := make(map[[Size]byte]string)
	for domain, digest := range digests {
		if previous, exists := seen[digest.Value]; exists {
			t.Errorf("domains %s and %s produced the same digest %s", previous, domain, digest)
		}
		seen[digest.Value] = domain
	}
}

func TestSumIsDeterministic(t *testing.T) {
	first := Sum([]byte(`{"a":1}`))
	second := Sum([]byte(`{"a":1}`))
	if !first.Equal(second) {
		t.Errorf("Sum not deterministic: %s vs %s", first, second)
	}
	if first.Equal(Sum([]byte(`{"a":2}`))) {
		t.Error("different documents produced equal digests")
	}
}

func TestOfMatchesSumOfCanonical(t *testing.T) {
	value := map[string]any{"zeta": 1, "alpha": []any{"x", true}}

	got, err := Of(value)
	if err != nil {
		t.Fatalf("Of: %v", err)
	}
	document, err := canonical.Canonicalize(value)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if want := Sum(document); !got.Equal(want) {
		t.Errorf("Of = %s, want %s", got, want)
	}
}

func TestOfRejectsUncanonicalizable(t *testing.T) {
	_, err := Of(map[string]any{"f": func() {}})
	var canonicalError *canonical.Error
	if !errors.As(err, &canonicalError) {
		t.Fatalf("Of error = %v, want *canonical.Error", err)
	}
}

func TestSumFileMatchesSumBytes(t *testing.T) {
	// Larger than one BLAKE3 chunk so streaming crosses chunk boundaries.
	data := bytes.Repeat([]byte("quill-artifact-"), 1000)

	streamed, err := SumFile(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("SumFile: %v", err)
	}
	if whole := SumBytes(data); !streamed.Equal(whole) {
		t.Errorf("SumFile = %s, SumBytes = %s", streamed, whole)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestSumFileReadError(t *testing.T) {
	_, err := SumFile(failingReader{})
	if err == nil || !strings.Contains(err.Error(), "disk on fire") {
		t.Fatalf("SumFile error = %v, want read error", err)
	}
}

func TestParseRoundTrip(t *testing.T) {
	original := Sum([]byte("round trip"))
	text := original.String()
	if !strings.HasPrefix(text, "blake3:") || len(text) != len("blake3:")+64 {
		t.Fatalf("String() = %q, want blake3:<64 hex>", text)
	}
	parsed, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse(%q): %v", text, err)
	}
	if !parsed.Equal(original) {
		t.Errorf("Parse(String()) = %s, want %s", parsed, original)
	}
}

func TestParseRejects(t *testing.T) {
	valid := Sum([]byte("x")).Hex()
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no prefix", valid},
		{"wrong algorithm", "sha256:" + valid},
		{"short", "blake3:" + valid[:62]},
		{"long", "blake3:" + valid + "00"},
		{"uppercase", "blake3:" + strings.ToUpper(valid)},
		{"not hex", "blake3:" + strings.Repeat("zz", 32)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Parse(test.input); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", test.input)
			}
		})
	}
}

func TestSeed(t *testing.T) {
	want := "blake3:" + strings.Repeat("0", 64)
	if Seed.String() != want {
		t.Errorf("Seed = %s, want %s", Seed, want)
	}
	if Seed.IsZero() {
		t.Error("Seed reports IsZero; it carries an algorithm")
	}
	if !(Digest{}).IsZero() {
		t.Error("zero Digest does not report IsZero")
	}
}

func TestJSONAndCBOREncodeAsText(t *testing.T) {
	type record struct {
		Object Digest `json:"object" cbor:"object"`
	}
	original := record{Object: Sum([]byte("encoded"))}

	jsonData, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	if want := `{"object":"` + original.Object.String() + `"}`; string(jsonData) != want {
		t.Errorf("JSON = %s, want %s", jsonData, want)
	}

	cborData, err := codec.Marshal(original)
	if err != nil {
		t.Fatalf("codec.Marshal: %v", err)
	}
	var generic map[string]any
	if err := codec.Unmarshal(cborData, &generic); err != nil {
		t.Fatalf("codec.Unmarshal generic: %v", err)
	}
	if generic["object"] != original.Object.String() {
		t.Errorf("CBOR object field = %#v, want text %q", generic["object"], original.Object.String())
	}

	var decoded record
	if err := codec.Unmarshal(cborData, &decoded); err != nil {
		t.Fatalf("codec.Unmarshal: %v", err)
	}
	if !decoded.Object.Equal(original.Object) {
		t.Errorf("CBOR round trip = %s, want %s", decoded.Object, original.Object)
	}
}

func TestMarshalZeroDigestFails(t *testing.T) {
	if _, err := json.Marshal(struct{ D Digest }{}); err == nil {
		t.Error("marshaling a zero digest succeeded")
	}
}
