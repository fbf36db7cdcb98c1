// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/quillproof/quill/lib/digest"
	"github.com/quillproof/quill/lib/secret"
)

// AlgorithmEd25519 is the signature algorithm identifier carried in
// every receipt's public key.
const AlgorithmEd25519 = "ed25519"

// PublicKey identifies and carries a verification key. It is embedded
// verbatim in receipts.
type PublicKey struct {
	KeyID     string `json:"key_id" cbor:"key_id"`
	Algorithm string `json:"algorithm" cbor:"algorithm"`
	Key       []byte `json:"public_key" cbor:"public_key"`
}

// GenerationError reports that a key pair could not be generated
// because the entropy source failed.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generating ed25519 key pair: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// KeyPair is a signing key held in locked memory. The zero value is not
// usable; obtain one from GenerateKeyPair or Keyring.WithSigner.
type KeyPair struct {
	public  PublicKey
	private *secret.Buffer
}

// GenerateKeyPair creates a new Ed25519 key pair from crypto/rand. The
// caller must Close it.
func GenerateKeyPair() (*KeyPair, error) {
	return generateKeyPair(rand.Reader)
}

func generateKeyPair(entropy io.Reader) (*KeyPair, error) {
	public, private, err := ed25519.GenerateKey(entropy)
	if err != nil {
		return nil, &GenerationError{Err: err}
	}
	return newKeyPair(public, private)
}

// newKeyPair moves private into locked memory and zeroes the heap copy.
func newKeyPair(public ed25519.PublicKey, private ed25519.PrivateKey) (*KeyPair, error) {
	buffer, err := secret.NewFromBytes(private)
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}
	return &KeyPair{
		public: PublicKey{
			KeyID:     KeyID(public),
			Algorithm: AlgorithmEd25519,
			Key:       append([]byte(nil), public...),
		},
		private: buffer,
	}, nil
}

// Public returns the verification half of the pair.
func (k *KeyPair) Public() PublicKey {
	public := k.public
	public.Key = append([]byte(nil), k.public.Key...)
	return public
}

// Sign returns the Ed25519 signature of the digest value. Ed25519 is
// deterministic: the same key and digest always give the same bytes.
// Panics if the pair has been closed.
//
// crypto/ed25519 keys its expanded-key cache on the address of the
// private key, which must be Go heap memory. The key is expanded from
// the locked seed into a heap copy for the duration of the call and
// zeroed afterwards.
func (k *KeyPair) Sign(document digest.Digest) []byte {
	private := ed25519.NewKeyFromSeed(k.private.Bytes()[:ed25519.SeedSize])
	defer secret.Zero(private)
	return ed25519.Sign(private, document.Value[:])
}

// Close zeroes and releases the private key.
func (k *KeyPair) Close() error {
	return k.private.Close()
}

// Verify reports whether signature is a valid Ed25519 signature of the
// digest under public. Malformed keys and signatures return false.
func Verify(public []byte, document digest.Digest, signature []byte) bool {
	if len(public) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(public), document.Value[:], signature)
}

// KeyID derives the key identifier: "key-" and the first 16 hex
// characters of the key-domain digest of the public key bytes.
func KeyID(public []byte) string {
	return "key-" + digest.SumKey(public).Hex()[:16]
}
