// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer is a fixed-size region holding one secret: an Ed25519
// private key or a keyring passphrase. The region is mapped outside
// the Go heap, so the garbage collector never moves or copies it, and
// it is pinned in RAM and left out of core dumps for its whole life.
//
// A Buffer must not be copied. Close releases it; reading after Close
// panics.
//
// Memory from Bytes is not Go heap memory. APIs that hold weak
// references to their argument, as crypto/ed25519 does for private
// keys, must be given a heap copy, which the caller scrubs with [Zero]
// once done.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

// New maps a zero-filled anonymous region of size bytes, locks it with
// mlock and marks it MADV_DONTDUMP. Any failure unwinds the earlier
// steps, so no half-protected region is ever returned.
//
// mlock counts against RLIMIT_MEMLOCK. Quill holds at most a handful
// of 64-byte keys and one passphrase at a time, well under the default
// limit.
func New(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("secret: buffer size must be positive, got %d", size)
	}

	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	if err := unix.Mlock(data); err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: mlock: %w", err)
	}
	if err := unix.Madvise(data, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(data)
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: madvise(MADV_DONTDUMP): %w", err)
	}
	return &Buffer{data: data}, nil
}

// NewFromBytes moves source into a new Buffer. source is zeroed
// whether or not the move succeeds, so the caller's heap copy never
// outlives this call.
func NewFromBytes(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, fmt.Errorf("secret: cannot create buffer from empty source")
	}
	buffer, err := New(len(source))
	if err != nil {
		Zero(source)
		return nil, err
	}
	copy(buffer.data, source)
	Zero(source)
	return buffer, nil
}

// Bytes returns the secret in place. The slice aliases the locked
// region: writes through it change the secret, and it must not be
// retained past Close.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("secret: read from closed buffer")
	}
	return b.data
}

// Len returns the size of the secret, or 0 once the buffer is closed.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Close zeroes the region, then unlocks and unmaps it. The contents
// are gone even when munlock or munmap fails; the first such error is
// returned. Close is idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	Zero(b.data)

	var firstError error
	if err := unix.Munlock(b.data); err != nil {
		firstError = fmt.Errorf("secret: munlock: %w", err)
	}
	if err := unix.Munmap(b.data); err != nil && firstError == nil {
		firstError = fmt.Errorf("secret: munmap: %w", err)
	}
	b.data = nil
	return firstError
}

// Zero overwrites data with zero bytes. It is for heap copies of
// secrets: decrypted key files, passphrase reads, expanded signing
// keys.
func Zero(data []byte) {
	clear(data)
}
