// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/quillproof/quill/lib/codec"
	"github.com/quillproof/quill/lib/keyring"
	"github.com/quillproof/quill/lib/receipt"
)

// Format identifies this bundle layout.
const Format = "quill-bundle/1"

// MaxPayloadSize bounds the decompressed payload. Receipts are a few
// kilobytes; the limit stops a crafted bundle from exhausting memory.
const MaxPayloadSize = 16 << 20

type envelope struct {
	Format      string      `cbor:"format"`
	Compression Compression `cbor:"compression"`
	Size        int         `cbor:"size"`
	Payload     []byte      `cbor:"payload"`
}

type payload struct {
	Receipt   []byte            `cbor:"receipt"`
	PublicKey keyring.PublicKey `cbor:"public_key"`
}

// Bundle is an imported bundle.
type Bundle struct {
	// Receipt is the receipt file bytes, unaltered.
	Receipt     []byte
	PublicKey   keyring.PublicKey
	Compression Compression
}

// Decode parses the bundled receipt.
func (b *Bundle) Decode() (*receipt.Receipt, error) {
	return receipt.Decode(b.Receipt)
}

// Export wraps stored receipt bytes in a bundle. If the requested
// compression does not shrink the payload the bundle is written
// uncompressed.
func Export(receiptBytes []byte, compression Compression) ([]byte, error) {
	if _, err := ParseCompression(string(compression)); err != nil {
		return nil, err
	}
	decoded, err := receipt.Decode(receiptBytes)
	if err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}
	inner, err := codec.Marshal(payload{Receipt: receiptBytes, PublicKey: decoded.PublicKey})
	if err != nil {
		return nil, fmt.Errorf("bundle: encoding payload: %w", err)
	}
	if len(inner) > MaxPayloadSize {
		return nil, fmt.Errorf("bundle: payload of %d bytes exceeds %d", len(inner), MaxPayloadSize)
	}

	compressed, err := compress(inner, compression)
	if errors.Is(err, errIncompressible) {
		compression, compressed, err = CompressionNone, inner, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}
	data, err := codec.Marshal(envelope{
		Format:      Format,
		Compression: compression,
		Size:        len(inner),
		Payload:     compressed,
	})
	if err != nil {
		return nil, fmt.Errorf("bundle: encoding envelope: %w", err)
	}
	return data, nil
}

// Import reads a bundle. The receipt bytes are returned as stored in
// the bundle; Import checks only that they decode as a receipt whose
// key matches the bundle's.
func Import(data []byte) (*Bundle, error) {
	var outer envelope
	if err := codec.Unmarshal(data, &outer); err != nil {
		return nil, fmt.Errorf("bundle: decoding envelope: %w", err)
	}
	if outer.Format != Format {
		return nil, fmt.Errorf("bundle: unsupported format %q (want %q)", outer.Format, Format)
	}
	if _, err := ParseCompression(string(outer.Compression)); err != nil {
		return nil, err
	}
	if outer.Size < 0 || outer.Size > MaxPayloadSize {
		return nil, fmt.Errorf("bundle: declared payload size %d out of range", outer.Size)
	}
	inner, err := decompress(outer.Payload, outer.Compression, outer.Size)
	if err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}

	var contents payload
	if err := codec.Unmarshal(inner, &contents); err != nil {
		return nil, fmt.Errorf("bundle: decoding payload: %w", err)
	}
	decoded, err := receipt.Decode(contents.Receipt)
	if err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}
	if decoded.PublicKey.KeyID != contents.PublicKey.KeyID ||
		!bytes.Equal(decoded.PublicKey.Key, contents.PublicKey.Key) {
		return nil, fmt.Errorf("bundle: public key %s does not match the receipt's key %s",
			contents.PublicKey.KeyID, decoded.PublicKey.KeyID)
	}
	return &Bundle{
		Receipt:     contents.Receipt,
		PublicKey:   contents.PublicKey,
		Compression: outer.Compression,
	}, nil
}
