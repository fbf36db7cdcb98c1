// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package verify_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/quillproof/quill/lib/digest"
	"github.com/quillproof/quill/lib/receipt"
	"github.com/quillproof/quill/lib/schema"
	"github.com/quillproof/quill/lib/testutil"
	"github.com/quillproof/quill/lib/verify"
)

func build(t *testing.T, signer receipt.Signer, version string, configure func(*receipt.Config)) *receipt.Receipt {
	t.Helper()
	config := receipt.Config{Signer: signer, SchemaVersion: version, Clock: testutil.Clock()}
	if configure != nil {
		configure(&config)
	}
	builder, err := receipt.NewBuilder(config)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	run := testutil.ScenarioRun()
	if version == "1.0" {
		run.ExitCode = nil
	}
	built, err := builder.Build(run)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return built
}

func TestScenarioVerifiesAtIntegrityLevel(t *testing.T) {
	built := build(t, testutil.Keyring(t), "", nil)

	result := verify.Verify(built, verify.Options{})
	if !result.Valid || len(result.Reasons) != 0 {
		t.Fatalf("Verify = %+v, want valid with no reasons", result)
	}
	if result.Level != verify.LevelIntegrity {
		t.Errorf("Level = %s, want integrity without supplied outputs", result.Level)
	}
	if result.KeyID != built.PublicKey.KeyID || result.Digest != built.Digest.String() {
		t.Errorf("result identifies %s/%s", result.KeyID, result.Digest)
	}
}

func TestMatchingOutputsReachReproduced(t *testing.T) {
	built := build(t, testutil.Keyring(t), "", nil)

	result := verify.Verify(built, verify.Options{
		Outputs: map[string]digest.Digest{"model.bin": digest.SumBytes(testutil.ModelBin)},
	})
	if !result.Valid || result.Level != verify.LevelReproduced {
		t.Fatalf("Verify = %+v, want valid at reproduced", result)
	}

	empty := verify.Verify(built, verify.Options{Outputs: map[string]digest.Digest{}})
	if empty.Valid || empty.Level == verify.LevelReproduced {
		t.Errorf("empty supplied outputs gave %+v", empty)
	}
}

func TestOutputFindings(t *testing.T) {
	built := build(t, testutil.Keyring(t), "", nil)
	recorded := digest.SumBytes(testutil.ModelBin)
	other := digest.SumBytes([]byte("retrained weights"))

	tests := []struct {
		name    string
		outputs map[string]digest.Digest
		want    []verify.Reason
	}{
		{
			name:    "mismatch",
			outputs: map[string]digest.Digest{"model.bin": other},
			want: []verify.Reason{{
				Code:     verify.CodeOutputMismatch,
				Message:  `output "model.bin" does not match the recorded digest`,
				Output:   "model.bin",
				Expected: recorded.String(),
				Actual:   other.String(),
			}},
		},
		{
			name:    "missing and unexpected",
			outputs: map[string]digest.Digest{"model.pt": recorded},
			want: []verify.Reason{
				{
					Code:     verify.CodeOutputMissing,
					Message:  `no digest supplied for recorded output "model.bin"`,
					Output:   "model.bin",
					Expected: recorded.String(),
				},
				{
					Code:    verify.CodeOutputUnexpected,
					Message: `supplied output "model.pt" was not recorded by the run`,
					Output:  "model.pt",
					Actual:  recorded.String(),
				},
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := verify.Verify(built, verify.Options{Outputs: test.outputs})
			if result.Valid || result.Level != verify.LevelNone {
				t.Errorf("Valid = %v, Level = %s", result.Valid, result.Level)
			}
			if !reflect.DeepEqual(result.Reasons, test.want) {
				t.Errorf("Reasons = %+v\nwant %+v", result.Reasons, test.want)
			}
		})
	}
}

func TestEverySingleByteMutationFails(t *testing.T) {
	built := build(t, testutil.Keyring(t), "", nil)

	for index := range built.Document {
		mutated := *built
		mutated.Document = append([]byte(nil), built.Document...)
		mutated.Document[index] ^= 0x01

		result := verify.Verify(&mutated, verify.Options{})
		if result.Valid {
			t.Fatalf("mutating byte %d (%q) still verified", index, built.Document[index])
		}
		for _, code := range result.Codes() {
			if code != verify.CodeDigestMismatch && code != verify.CodeSchemaViolation {
				t.Errorf("byte %d: unexpected reason %s", index, code)
			}
		}
	}
}

func TestSignatureFromAnotherKey(t *testing.T) {
	keyA := testutil.Keyring(t)
	keyB := testutil.Keyring(t)
	signedByA := build(t, keyA, "", nil)
	signedByB := build(t, keyB, "", nil)

	// Receipt claims key A but carries key B's signature.
	forged := *signedByA
	forged.Signature = signedByB.Signature

	result := verify.Verify(&forged, verify.Options{})
	if want := []verify.Code{verify.CodeSignatureInvalid}; !reflect.DeepEqual(result.Codes(), want) {
		t.Fatalf("codes = %v, want %v", result.Codes(), want)
	}
	if result.Reasons[0].KeyID != signedByA.PublicKey.KeyID {
		t.Errorf("reason names key %s, want %s", result.Reasons[0].KeyID, signedByA.PublicKey.KeyID)
	}
}

func TestSwappedPublicKey(t *testing.T) {
	signedByB := build(t, testutil.Keyring(t), "", nil)
	otherKey, err := testutil.Keyring(t).Current()
	if err != nil {
		t.Fatal(err)
	}

	swapped := *signedByB
	swapped.PublicKey = otherKey

	result := verify.Verify(&swapped, verify.Options{})
	if result.Valid {
		t.Fatal("receipt with a swapped public key verified")
	}
	if want := []verify.Code{verify.CodeSignatureInvalid}; !reflect.DeepEqual(result.Codes(), want) {
		t.Errorf("codes = %v, want %v", result.Codes(), want)
	}
}

func TestReplacedDigest(t *testing.T) {
	built := build(t, testutil.Keyring(t), "", nil)
	replaced := *built
	replaced.Digest = digest.Sum([]byte(`{"other":"document"}`))

	result := verify.Verify(&replaced, verify.Options{})
	want := []verify.Code{verify.CodeDigestMismatch, verify.CodeSignatureInvalid}
	if !reflect.DeepEqual(result.Codes(), want) {
		t.Fatalf("codes = %v, want %v", result.Codes(), want)
	}
	if result.Reasons[0].Expected != replaced.Digest.String() || result.Reasons[0].Actual != built.Digest.String() {
		t.Errorf("digest_mismatch detail = %+v", result.Reasons[0])
	}
}

func TestVersionOneReceiptAgainstVersionTwo(t *testing.T) {
	versionOne := build(t, testutil.Keyring(t), "1.0", nil)

	if result := verify.Verify(versionOne, verify.Options{}); !result.Valid {
		t.Fatalf("version 1.0 receipt invalid under its own version: %+v", result.Reasons)
	}

	result := verify.Verify(versionOne, verify.Options{SchemaVersion: "2.0"})
	if result.Valid {
		t.Fatal("version 1.0 receipt verified against 2.0")
	}
	if want := []verify.Code{verify.CodeSchemaViolation}; !reflect.DeepEqual(result.Codes(), want) {
		t.Fatalf("codes = %v, want %v", result.Codes(), want)
	}
	wantViolations := []schema.Violation{{Field: "document.run.exit_code", Expected: "present", Actual: "missing"}}
	if !reflect.DeepEqual(result.Reasons[0].Violations, wantViolations) {
		t.Errorf("violations = %v, want %v", result.Reasons[0].Violations, wantViolations)
	}
	if result.SchemaVersion != "2.0" {
		t.Errorf("SchemaVersion = %s, want 2.0", result.SchemaVersion)
	}
}

func TestUnknownDeclaredVersion(t *testing.T) {
	built := build(t, testutil.Keyring(t), "", nil)
	unknown := *built
	unknown.SchemaVersion = "7.0"

	result := verify.Verify(&unknown, verify.Options{})
	if want := []verify.Code{verify.CodeSchemaViolation}; !reflect.DeepEqual(result.Codes(), want) {
		t.Fatalf("codes = %v, want %v", result.Codes(), want)
	}
}

func TestTrustedKeys(t *testing.T) {
	built := build(t, testutil.Keyring(t), "", nil)

	trusted := verify.Verify(built, verify.Options{TrustedKeys: []string{built.PublicKey.KeyID}})
	if !trusted.Valid {
		t.Errorf("trusted key rejected: %+v", trusted.Reasons)
	}

	untrusted := verify.Verify(built, verify.Options{TrustedKeys: []string{"key-0000000000000000"}})
	if want := []verify.Code{verify.CodeUntrustedKey}; !reflect.DeepEqual(untrusted.Codes(), want) {
		t.Errorf("codes = %v, want %v", untrusted.Codes(), want)
	}
}

func TestResultJSON(t *testing.T) {
	built := build(t, testutil.Keyring(t), "", nil)
	tampered := *built
	tampered.Signature = make([]byte, 64)

	data, err := json.Marshal(verify.Verify(&tampered, verify.Options{}))
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	var decoded struct {
		Valid   bool   `json:"valid"`
		Level   string `json:"level"`
		Reasons []struct {
			Code  string `json:"code"`
			KeyID string `json:"key_id"`
		} `json:"reasons"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Valid || decoded.Level != "none" || len(decoded.Reasons) != 1 || decoded.Reasons[0].Code != "signature_invalid" {
		t.Errorf("JSON result = %s", data)
	}
}
