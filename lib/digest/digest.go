// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/quillproof/quill/lib/canonical"
)

// Size is the length in bytes of a BLAKE3 digest value.
const Size = 32

// AlgorithmBLAKE3 is the only algorithm identifier this version
// produces or accepts.
const AlgorithmBLAKE3 = "blake3"

// Digest is a content digest: an algorithm identifier and the raw
// digest bytes. The zero value is not a valid digest; see [Digest.IsZero].
type Digest struct {
	Algorithm string
	Value     [Size]byte
}

// Seed is the fixed "previous" digest of the first audit entry:
// the blake3 algorithm with an all-zero value.
var Seed = Digest{Algorithm: AlgorithmBLAKE3}

// domainKey is a 32-byte key for BLAKE3 keyed hashing. The byte
// values are the ASCII domain name, zero-padded. Changing a key
// invalidates every digest in its domain.
type domainKey [32]byte

var (
	documentDomainKey = domainKey{
		'q', 'u', 'i', 'l', 'l', '.', 'd', 'o', 'c', 'u', 'm', 'e', 'n', 't',
	}

	artifactDomainKey = domainKey{
		'q', 'u', 'i', 'l', 'l', '.', 'a', 'r', 't', 'i', 'f', 'a', 'c', 't',
	}

	auditDomainKey = domainKey{
		'q', 'u', 'i', 'l', 'l', '.', 'a', 'u', 'd', 'i', 't',
	}

	keyDomainKey = domainKey{
		'q', 'u', 'i', 'l', 'l', '.', 'k', 'e', 'y',
	}
)

// Sum returns the document-domain digest of a canonical document.
func Sum(document []byte) Digest {
	return keyedHash(documentDomainKey, document)
}

// Of canonicalizes value and returns the document-domain digest of
// the result.
func Of(value any) (Digest, error) {
	document, err := canonical.Canonicalize(value)
	if err != nil {
		return Digest{}, err
	}
	return Sum(document), nil
}

// SumFile streams r and returns the artifact-domain digest of its
// contents. Only read errors are returned.
func SumFile(r io.Reader) (Digest, error) {
	hasher := newHasher(artifactDomainKey)
	if _, err := io.Copy(hasher, r); err != nil {
		return Digest{}, fmt.Errorf("hashing artifact: %w", err)
	}
	return finish(hasher), nil
}

// SumBytes returns the artifact-domain digest of data. Equivalent to
// SumFile over a reader of data.
func SumBytes(data []byte) Digest {
	return keyedHash(artifactDomainKey, data)
}

// SumAudit returns the audit-domain digest of a canonical audit entry.
func SumAudit(entry []byte) Digest {
	return keyedHash(auditDomainKey, entry)
}

// SumKey returns the key-domain digest of raw public key bytes.
func SumKey(publicKey []byte) Digest {
	return keyedHash(keyDomainKey, publicKey)
}

// Parse parses the text form "blake3:<64 hex>". Uppercase hex is
// rejected so that every digest has exactly one text form.
func Parse(text string) (Digest, error) {
	algorithm, encoded, found := strings.Cut(text, ":")
	if !found {
		return Digest{}, fmt.Errorf("digest %q: missing algorithm prefix", text)
	}
	if algorithm != AlgorithmBLAKE3 {
		return Digest{}, fmt.Errorf("digest %q: unsupported algorithm %q", text, algorithm)
	}
	if len(encoded) != 2*Size {
		return Digest{}, fmt.Errorf("digest %q: value is %d hex characters, want %d", text, len(encoded), 2*Size)
	}
	if strings.ToLower(encoded) != encoded {
		return Digest{}, fmt.Errorf("digest %q: hex must be lowercase", text)
	}
	var digest Digest
	if _, err := hex.Decode(digest.Value[:], []byte(encoded)); err != nil {
		return Digest{}, fmt.Errorf("digest %q: %w", text, err)
	}
	digest.Algorithm = algorithm
	return digest, nil
}

// MustParse is Parse for constants in tests and tables. Panics on error.
func MustParse(text string) Digest {
	digest, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return digest
}

// String returns the text form. The zero Digest formats as "".
func (d Digest) String() string {
	if d.Algorithm == "" {
		return ""
	}
	return d.Algorithm + ":" + d.Hex()
}

// Hex returns the lowercase hex encoding of the digest value alone.
func (d Digest) Hex() string {
	return hex.EncodeToString(d.Value[:])
}

// Equal reports whether d and other have the same algorithm and value.
func (d Digest) Equal(other Digest) bool {
	return d.Algorithm == other.Algorithm && d.Value == other.Value
}

// IsZero reports whether d is the zero Digest (no algorithm).
func (d Digest) IsZero() bool {
	return d.Algorithm == ""
}

// MarshalText implements encoding.TextMarshaler. Used by both
// encoding/json and lib/codec.
func (d Digest) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("marshaling zero digest")
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func newHasher(key domainKey) *blake3.Hasher {
	// NewKeyed only fails for a key that is not 32 bytes, which the
	// domainKey type rules out.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("digest: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}

func finish(hasher *blake3.Hasher) Digest {
	digest := Digest{Algorithm: AlgorithmBLAKE3}
	copy(digest.Value[:], hasher.Sum(nil))
	return digest
}

func keyedHash(key domainKey, data []byte) Digest {
	hasher := newHasher(key)
	hasher.Write(data)
	return finish(hasher)
}
