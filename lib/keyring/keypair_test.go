// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"runtime"
	"strings"
	"testing"

	"github.com/quillproof/quill/lib/digest"
)

type brokenEntropy struct{}

func (brokenEntropy) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerateKeyPair(t *testing.T) {
	pair, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	defer pair.Close()

	public := pair.Public()
	if public.Algorithm != AlgorithmEd25519 || len(public.Key) != 32 {
		t.Errorf("public key = %+v", public)
	}
	if !strings.HasPrefix(public.KeyID, "key-") || len(public.KeyID) != len("key-")+16 {
		t.Errorf("KeyID = %q, want key-<16 hex>", public.KeyID)
	}
}

func TestGenerateKeyPairEntropyFailure(t *testing.T) {
	_, err := generateKeyPair(brokenEntropy{})
	var generationError *GenerationError
	if !errors.As(err, &generationError) {
		t.Fatalf("error = %v, want *GenerationError", err)
	}
	if !strings.Contains(err.Error(), "entropy exhausted") {
		t.Errorf("error %q does not name the cause", err)
	}
}

func TestSignIsDeterministic(t *testing.T) {
	pair, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	defer pair.Close()

	document := digest.Sum([]byte("document"))
	first := pair.Sign(document)
	second := pair.Sign(document)
	if !bytes.Equal(first, second) {
		t.Error("signatures of the same digest differ")
	}
	if !Verify(pair.Public().Key, document, first) {
		t.Error("signature does not verify")
	}
}

// The private key lives in mmap'd memory; signing must work from it
// repeatedly, across collections, and agree with a heap key built from
// the same seed.
func TestSignWithLockedKeyMatchesHeapKey(t *testing.T) {
	seed := bytes.Repeat([]byte{0x5a}, ed25519.SeedSize)
	pair, err := generateKeyPair(bytes.NewReader(seed))
	if err != nil {
		t.Fatalf("generateKeyPair: %v", err)
	}
	defer pair.Close()

	heapKey := ed25519.NewKeyFromSeed(seed)
	for round := range 3 {
		document := digest.Sum([]byte{byte(round)})
		got := pair.Sign(document)
		want := ed25519.Sign(heapKey, document.Value[:])
		if !bytes.Equal(got, want) {
			t.Fatalf("round %d: signature from locked key differs from heap key", round)
		}
		runtime.GC()
	}
	if !bytes.Equal(pair.private.Bytes(), heapKey) {
		t.Error("signing modified the locked private key")
	}
}

func TestVerifyRejects(t *testing.T) {
	signer, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	defer signer.Close()
	other, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()

	document := digest.Sum([]byte("document"))
	signature := signer.Sign(document)
	flipped := append([]byte(nil), signature...)
	flipped[0] ^= 0x01

	tests := []struct {
		name      string
		public    []byte
		document  digest.Digest
		signature []byte
	}{
		{"other key", other.Public().Key, document, signature},
		{"other digest", signer.Public().Key, digest.Sum([]byte("different")), signature},
		{"flipped signature bit", signer.Public().Key, document, flipped},
		{"nil public key", nil, document, signature},
		{"short public key", signer.Public().Key[:31], document, signature},
		{"nil signature", signer.Public().Key, document, nil},
		{"short signature", signer.Public().Key, document, signature[:63]},
		{"long signature", signer.Public().Key, document, append(signature, 0)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if Verify(test.public, test.document, test.signature) {
				t.Error("Verify = true, want false")
			}
		})
	}
}

func TestKeyIDIsStable(t *testing.T) {
	public := bytes.Repeat([]byte{0x42}, 32)
	if KeyID(public) != KeyID(append([]byte(nil), public...)) {
		t.Error("KeyID differs for equal keys")
	}
	if want := "key-" + digest.SumKey(public).Hex()[:16]; KeyID(public) != want {
		t.Errorf("KeyID = %s, want %s", KeyID(public), want)
	}
}
