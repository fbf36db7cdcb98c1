// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyring generates, stores, and uses the Ed25519 keys that
// sign receipts.
//
// A signature covers the 32-byte document digest. [Verify] is a pure
// function of the public key, digest, and signature and never panics on
// malformed input, so verifiers can feed it untrusted receipts
// directly.
//
// A [Keyring] manages the project's keys/ directory:
//
//	keys/<key-id>.pub   public key record (CBOR), kept forever
//	keys/<key-id>.key   private key, 0600; age scrypt ciphertext when a
//	                    passphrase is configured
//	keys/current        id of the key that signs new receipts
//
// Rotation writes a new key and moves current; old public keys stay so
// every historical receipt remains verifiable. Destroy removes only a
// private key file.
//
// Private key bytes live only in a [secret.Buffer]. [Keyring.WithSigner]
// loads the current key, hands a [KeyPair] to a callback, and closes
// the buffer when the callback returns or panics. No function returns
// private key bytes.
package keyring
