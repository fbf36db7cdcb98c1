// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quillproof/quill/lib/clock"
	"github.com/quillproof/quill/lib/digest"
	"github.com/quillproof/quill/lib/secret"
)

func newTestKeyring(t *testing.T, passphrase string) (*Keyring, string) {
	t.Helper()
	directory := filepath.Join(t.TempDir(), "keys")
	config := Config{
		Directory:        directory,
		ScryptWorkFactor: 10,
		Clock:            clock.Fake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)),
	}
	if passphrase != "" {
		config.Passphrase = func() (*secret.Buffer, error) {
			return secret.NewFromBytes([]byte(passphrase))
		}
	}
	return New(config), directory
}

func TestInitCreatesCurrentKey(t *testing.T) {
	keyring, directory := newTestKeyring(t, "")

	public, err := keyring.Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if public.KeyID != KeyID(public.Key) {
		t.Errorf("KeyID = %s, want %s", public.KeyID, KeyID(public.Key))
	}

	current, err := keyring.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if current.KeyID != public.KeyID || !bytes.Equal(current.Key, public.Key) {
		t.Errorf("Current = %+v, want %+v", current, public)
	}

	directoryInfo, err := os.Stat(directory)
	if err != nil {
		t.Fatal(err)
	}
	if directoryInfo.Mode().Perm() != 0o700 {
		t.Errorf("key directory mode = %v, want 0700", directoryInfo.Mode().Perm())
	}
	privateInfo, err := os.Stat(filepath.Join(directory, public.KeyID+".key"))
	if err != nil {
		t.Fatal(err)
	}
	if privateInfo.Mode().Perm() != 0o600 {
		t.Errorf("private key mode = %v, want 0600", privateInfo.Mode().Perm())
	}

	if _, err := keyring.Init(); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Init error = %v, want ErrAlreadyInitialized", err)
	}
}

func TestCurrentBeforeInit(t *testing.T) {
	keyring, _ := newTestKeyring(t, "")
	if _, err := keyring.Current(); !errors.Is(err, ErrNoCurrentKey) {
		t.Errorf("Current error = %v, want ErrNoCurrentKey", err)
	}
	if err := keyring.WithSigner(func(*KeyPair) error { return nil }); !errors.Is(err, ErrNoCurrentKey) {
		t.Errorf("WithSigner error = %v, want ErrNoCurrentKey", err)
	}
	keys, err := keyring.List()
	if err != nil || len(keys) != 0 {
		t.Errorf("List = %v, %v; want empty", keys, err)
	}
}

func TestWithSignerSignsVerifiably(t *testing.T) {
	for _, passphrase := range []string{"", "correct horse battery staple"} {
		name := "plain"
		if passphrase != "" {
			name = "encrypted"
		}
		t.Run(name, func(t *testing.T) {
			keyring, _ := newTestKeyring(t, passphrase)
			public, err := keyring.Init()
			if err != nil {
				t.Fatalf("Init: %v", err)
			}

			document := digest.Sum([]byte(`{"run":{}}`))
			var signature []byte
			err = keyring.WithSigner(func(pair *KeyPair) error {
				if pair.Public().KeyID != public.KeyID {
					t.Errorf("signer key = %s, want %s", pair.Public().KeyID, public.KeyID)
				}
				signature = pair.Sign(document)
				return nil
			})
			if err != nil {
				t.Fatalf("WithSigner: %v", err)
			}
			if !Verify(public.Key, document, signature) {
				t.Error("signature from WithSigner does not verify")
			}

			// A second load from disk signs identically.
			err = keyring.WithSigner(func(pair *KeyPair) error {
				if again := pair.Sign(document); !bytes.Equal(again, signature) {
					t.Error("reloaded key signs differently")
				}
				return nil
			})
			if err != nil {
				t.Fatalf("second WithSigner: %v", err)
			}

			keys, err := keyring.List()
			if err != nil || len(keys) != 1 {
				t.Fatalf("List = %v, %v", keys, err)
			}
			if keys[0].Encrypted != (passphrase != "") {
				t.Errorf("Encrypted = %v, want %v", keys[0].Encrypted, passphrase != "")
			}
		})
	}
}

func TestWrongPassphraseFails(t *testing.T) {
	directory := filepath.Join(t.TempDir(), "keys")
	writer := New(Config{
		Directory:        directory,
		ScryptWorkFactor: 10,
		Passphrase:       func() (*secret.Buffer, error) { return secret.NewFromBytes([]byte("right")) },
	})
	if _, err := writer.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	reader := New(Config{
		Directory:  directory,
		Passphrase: func() (*secret.Buffer, error) { return secret.NewFromBytes([]byte("wrong")) },
	})
	if err := reader.WithSigner(func(*KeyPair) error { return nil }); err == nil {
		t.Error("WithSigner with the wrong passphrase succeeded")
	}

	unconfigured := New(Config{Directory: directory})
	if err := unconfigured.WithSigner(func(*KeyPair) error { return nil }); err == nil {
		t.Error("WithSigner without a passphrase succeeded on an encrypted key")
	}
}

func TestWithSignerReleasesKeyOnErrorAndPanic(t *testing.T) {
	keyring, _ := newTestKeyring(t, "")
	if _, err := keyring.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var retained *KeyPair
	sentinel := errors.New("callback failed")
	err := keyring.WithSigner(func(pair *KeyPair) error {
		retained = pair
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("WithSigner error = %v, want callback error", err)
	}
	if retained.private.Len() != 0 {
		t.Error("private key still mapped after WithSigner returned an error")
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("panic did not propagate out of WithSigner")
			}
		}()
		keyring.WithSigner(func(pair *KeyPair) error {
			retained = pair
			panic("signer exploded")
		})
	}()
	if retained.private.Len() != 0 {
		t.Error("private key still mapped after WithSigner panicked")
	}
}

func TestRotateKeepsOldPublicKeys(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	keyring := New(Config{Directory: filepath.Join(t.TempDir(), "keys"), Clock: fake})

	first, err := keyring.Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	fake.Advance(time.Hour)
	second, previous, err := keyring.Rotate()
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if previous != first.KeyID {
		t.Errorf("Rotate previous = %s, want %s", previous, first.KeyID)
	}
	if second.KeyID == first.KeyID {
		t.Fatal("Rotate produced the same key")
	}

	current, err := keyring.Current()
	if err != nil || current.KeyID != second.KeyID {
		t.Fatalf("Current = %v, %v; want %s", current.KeyID, err, second.KeyID)
	}
	old, err := keyring.PublicKey(first.KeyID)
	if err != nil || !bytes.Equal(old.Key, first.Key) {
		t.Fatalf("PublicKey(old) = %v, %v", old, err)
	}

	keys, err := keyring.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 || keys[0].PublicKey.KeyID != first.KeyID || keys[1].PublicKey.KeyID != second.KeyID {
		t.Fatalf("List order = %+v, want oldest first", keys)
	}
	if keys[0].Current || !keys[1].Current {
		t.Errorf("Current flags = %v, %v; want false, true", keys[0].Current, keys[1].Current)
	}
}

func TestDestroyRemovesOnlyPrivateKey(t *testing.T) {
	keyring, _ := newTestKeyring(t, "")
	public, err := keyring.Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := keyring.Destroy(public.KeyID); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := keyring.PublicKey(public.KeyID); err != nil {
		t.Errorf("PublicKey after Destroy: %v", err)
	}
	if _, err := keyring.Current(); !errors.Is(err, ErrNoCurrentKey) {
		t.Errorf("Current after destroying it: %v, want ErrNoCurrentKey", err)
	}
	if err := keyring.Destroy(public.KeyID); !errors.Is(err, ErrPrivateKeyDestroyed) {
		t.Errorf("second Destroy error = %v, want ErrPrivateKeyDestroyed", err)
	}

	keys, err := keyring.List()
	if err != nil || len(keys) != 1 || keys[0].HasPrivate {
		t.Errorf("List after Destroy = %+v, %v", keys, err)
	}

	if _, _, err := keyring.Rotate(); err != nil {
		t.Fatalf("Rotate after Destroy: %v", err)
	}
}

func TestPublicKeyRejectsBadIDs(t *testing.T) {
	keyring, _ := newTestKeyring(t, "")
	for _, keyID := range []string{"", "key-", "../../etc/passwd", "key-0123456789ABCDEF", "key-0123456789abcdef"} {
		if _, err := keyring.PublicKey(keyID); !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("PublicKey(%q) error = %v, want ErrKeyNotFound", keyID, err)
		}
	}
}
