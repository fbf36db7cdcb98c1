// Copyright 2026 The Quill Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"filippo.io/age"

	"github.com/quillproof/quill/lib/atomicfile"
	"github.com/quillproof/quill/lib/clock"
	"github.com/quillproof/quill/lib/codec"
	"github.com/quillproof/quill/lib/secret"
)

var (
	// ErrNoCurrentKey means the keyring has never been initialized or
	// its current key was destroyed.
	ErrNoCurrentKey = errors.New("keyring: no current key")

	// ErrKeyNotFound means no public key record exists for an id.
	ErrKeyNotFound = errors.New("keyring: key not found")

	// ErrPrivateKeyDestroyed means the public key exists but its
	// private key file was removed.
	ErrPrivateKeyDestroyed = errors.New("keyring: private key destroyed")

	// ErrAlreadyInitialized is returned by Init when a current key
	// already exists.
	ErrAlreadyInitialized = errors.New("keyring: already initialized")
)

const (
	currentFile     = "current"
	publicSuffix    = ".pub"
	privateSuffix   = ".key"
	ageHeaderPrefix = "age-encryption.org/"
)

// PassphraseFunc returns the passphrase protecting private keys. The
// keyring closes the returned buffer.
type PassphraseFunc func() (*secret.Buffer, error)

// Config holds the dependencies of a Keyring.
type Config struct {
	// Directory is the keys/ directory. Created with mode 0700 on
	// first write.
	Directory string

	// Passphrase, when set, encrypts private keys at rest with age
	// scrypt. Nil stores raw private keys with mode 0600.
	Passphrase PassphraseFunc

	// ScryptWorkFactor is the scrypt log2(N) for new encryptions.
	// Zero uses the age default.
	ScryptWorkFactor int

	Clock  clock.Clock
	Logger *slog.Logger
}

// Keyring manages the key files of one project.
type Keyring struct {
	directory        string
	passphrase       PassphraseFunc
	scryptWorkFactor int
	clock            clock.Clock
	logger           *slog.Logger
}

// Info describes one key for listings.
type Info struct {
	PublicKey  PublicKey `json:"public_key"`
	CreatedAt  time.Time `json:"created_at"`
	Current    bool      `json:"current"`
	HasPrivate bool      `json:"has_private"`
	Encrypted  bool      `json:"encrypted"`
}

// publicRecord is the CBOR content of a .pub file.
type publicRecord struct {
	KeyID     string    `cbor:"key_id"`
	Algorithm string    `cbor:"algorithm"`
	PublicKey []byte    `cbor:"public_key"`
	CreatedAt time.Time `cbor:"created_at"`
}

// New returns a Keyring over config.Directory. No files are touched
// until a mutating call.
func New(config Config) *Keyring {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Keyring{
		directory:        config.Directory,
		passphrase:       config.Passphrase,
		scryptWorkFactor: config.ScryptWorkFactor,
		clock:            config.Clock,
		logger:           config.Logger,
	}
}

// Init generates the first key and makes it current.
func (r *Keyring) Init() (PublicKey, error) {
	if _, err := r.currentID(); err == nil {
		return PublicKey{}, ErrAlreadyInitialized
	} else if !errors.Is(err, ErrNoCurrentKey) {
		return PublicKey{}, err
	}
	return r.addKey()
}

// Rotate generates a new key and makes it current. The previous key's
// files are left in place. Returns the new public key and the previous
// key id, empty when there was none.
func (r *Keyring) Rotate() (PublicKey, string, error) {
	previous, err := r.currentID()
	if err != nil && !errors.Is(err, ErrNoCurrentKey) {
		return PublicKey{}, "", err
	}
	public, err := r.addKey()
	if err != nil {
		return PublicKey{}, "", err
	}
	r.logger.Info("rotated signing key", "key_id", public.KeyID, "previous_key_id", previous)
	return public, previous, nil
}

func (r *Keyring) addKey() (PublicKey, error) {
	if err := os.MkdirAll(r.directory, 0o700); err != nil {
		return PublicKey{}, fmt.Errorf("creating key directory: %w", err)
	}

	public, private, err := ed25519.GenerateKey(nil)
	if err != nil {
		return PublicKey{}, &GenerationError{Err: err}
	}
	defer secret.Zero(private)
	keyID := KeyID(public)

	privateData, err := r.sealPrivate(private)
	if err != nil {
		return PublicKey{}, err
	}
	defer secret.Zero(privateData)

	if err := atomicfile.WriteFile(r.path(keyID, privateSuffix), privateData, atomicfile.Options{Mode: 0o600}); err != nil {
		return PublicKey{}, fmt.Errorf("writing private key %s: %w", keyID, err)
	}

	record, err := codec.Marshal(publicRecord{
		KeyID:     keyID,
		Algorithm: AlgorithmEd25519,
		PublicKey: public,
		CreatedAt: r.clock.Now(),
	})
	if err != nil {
		return PublicKey{}, fmt.Errorf("encoding public key %s: %w", keyID, err)
	}
	if err := atomicfile.WriteFile(r.path(keyID, publicSuffix), record, atomicfile.Options{Mode: 0o644}); err != nil {
		return PublicKey{}, fmt.Errorf("writing public key %s: %w", keyID, err)
	}

	// current moves last: a crash before this point leaves an unused
	// key, never a current key without its files.
	if err := atomicfile.WriteFile(filepath.Join(r.directory, currentFile), []byte(keyID+"\n"), atomicfile.Options{Mode: 0o600}); err != nil {
		return PublicKey{}, fmt.Errorf("setting current key: %w", err)
	}

	r.logger.Info("generated signing key", "key_id", keyID, "encrypted", r.passphrase != nil)
	return PublicKey{KeyID: keyID, Algorithm: AlgorithmEd25519, Key: append([]byte(nil), public...)}, nil
}

// Destroy removes the private key file of keyID. The public key record
// stays. Destroying the current key leaves the keyring without a
// current key until the next Rotate.
func (r *Keyring) Destroy(keyID string) error {
	if _, err := r.readPublic(keyID); err != nil {
		return err
	}
	err := os.Remove(r.path(keyID, privateSuffix))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrPrivateKeyDestroyed, keyID)
	}
	if err != nil {
		return fmt.Errorf("removing private key %s: %w", keyID, err)
	}
	if current, err := r.currentID(); err == nil && current == keyID {
		if err := os.Remove(filepath.Join(r.directory, currentFile)); err != nil {
			return fmt.Errorf("clearing current key: %w", err)
		}
	}
	if err := atomicfile.SyncDir(r.directory); err != nil {
		return err
	}
	r.logger.Warn("destroyed private key", "key_id", keyID)
	return nil
}

// Current returns the public key that signs new receipts.
func (r *Keyring) Current() (PublicKey, error) {
	keyID, err := r.currentID()
	if err != nil {
		return PublicKey{}, err
	}
	return r.PublicKey(keyID)
}

// PublicKey returns the public key with the given id, including keys
// whose private half has been destroyed.
func (r *Keyring) PublicKey(keyID string) (PublicKey, error) {
	record, err := r.readPublic(keyID)
	if err != nil {
		return PublicKey{}, err
	}
	return PublicKey{KeyID: record.KeyID, Algorithm: record.Algorithm, Key: record.PublicKey}, nil
}

// List returns every key, oldest first.
func (r *Keyring) List() ([]Info, error) {
	entries, err := os.ReadDir(r.directory)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading key directory: %w", err)
	}
	current, _ := r.currentID()

	var infos []Info
	for _, entry := range entries {
		keyID, ok := strings.CutSuffix(entry.Name(), publicSuffix)
		if !ok {
			continue
		}
		record, err := r.readPublic(keyID)
		if err != nil {
			return nil, err
		}
		info := Info{
			PublicKey: PublicKey{KeyID: record.KeyID, Algorithm: record.Algorithm, Key: record.PublicKey},
			CreatedAt: record.CreatedAt,
			Current:   keyID == current,
		}
		if header, err := readHeader(r.path(keyID, privateSuffix)); err == nil {
			info.HasPrivate = true
			info.Encrypted = bytes.HasPrefix(header, []byte(ageHeaderPrefix))
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.Before(infos[j].CreatedAt)
		}
		return infos[i].PublicKey.KeyID < infos[j].PublicKey.KeyID
	})
	return infos, nil
}

// WithSigner loads the current private key into locked memory, calls
// fn with it, and releases the key when fn returns or panics. The
// KeyPair must not be retained past fn.
func (r *Keyring) WithSigner(fn func(*KeyPair) error) error {
	keyID, err := r.currentID()
	if err != nil {
		return err
	}
	pair, err := r.load(keyID)
	if err != nil {
		return err
	}
	defer pair.Close()
	return fn(pair)
}

func (r *Keyring) load(keyID string) (*KeyPair, error) {
	record, err := r.readPublic(keyID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.path(keyID, privateSuffix))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrPrivateKeyDestroyed, keyID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading private key %s: %w", keyID, err)
	}
	private, err := r.openPrivate(data)
	secret.Zero(data)
	if err != nil {
		return nil, fmt.Errorf("private key %s: %w", keyID, err)
	}
	if len(private) != ed25519.PrivateKeySize {
		secret.Zero(private)
		return nil, fmt.Errorf("private key %s has %d bytes, want %d", keyID, len(private), ed25519.PrivateKeySize)
	}
	derived := ed25519.PrivateKey(private).Public().(ed25519.PublicKey)
	if !bytes.Equal(derived, record.PublicKey) {
		secret.Zero(private)
		return nil, fmt.Errorf("private key %s does not match its public key", keyID)
	}
	return newKeyPair(record.PublicKey, private)
}

func (r *Keyring) sealPrivate(private []byte) ([]byte, error) {
	if r.passphrase == nil {
		return append([]byte(nil), private...), nil
	}
	passphrase, err := r.passphrase()
	if err != nil {
		return nil, fmt.Errorf("obtaining key passphrase: %w", err)
	}
	defer passphrase.Close()

	// age takes the passphrase as a string; the heap copy lives only
	// for this call.
	recipient, err := age.NewScryptRecipient(string(passphrase.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if r.scryptWorkFactor > 0 {
		recipient.SetWorkFactor(r.scryptWorkFactor)
	}
	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(private); err != nil {
		return nil, fmt.Errorf("encrypting private key: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing private key encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

func (r *Keyring) openPrivate(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, []byte(ageHeaderPrefix)) {
		return append([]byte(nil), data...), nil
	}
	if r.passphrase == nil {
		return nil, errors.New("key is encrypted and no passphrase is configured")
	}
	passphrase, err := r.passphrase()
	if err != nil {
		return nil, fmt.Errorf("obtaining key passphrase: %w", err)
	}
	defer passphrase.Close()

	identity, err := age.NewScryptIdentity(string(passphrase.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(data), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted key: %w", err)
	}
	return plaintext, nil
}

func (r *Keyring) currentID() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.directory, currentFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoCurrentKey
	}
	if err != nil {
		return "", fmt.Errorf("reading current key: %w", err)
	}
	keyID := strings.TrimSpace(string(data))
	if keyID == "" {
		return "", ErrNoCurrentKey
	}
	return keyID, nil
}

func (r *Keyring) readPublic(keyID string) (publicRecord, error) {
	if !validKeyID(keyID) {
		return publicRecord{}, fmt.Errorf("%w: invalid key id %q", ErrKeyNotFound, keyID)
	}
	data, err := os.ReadFile(r.path(keyID, publicSuffix))
	if errors.Is(err, fs.ErrNotExist) {
		return publicRecord{}, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}
	if err != nil {
		return publicRecord{}, fmt.Errorf("reading public key %s: %w", keyID, err)
	}
	var record publicRecord
	if err := codec.Unmarshal(data, &record); err != nil {
		return publicRecord{}, fmt.Errorf("decoding public key %s: %w", keyID, err)
	}
	if record.KeyID != keyID || KeyID(record.PublicKey) != keyID {
		return publicRecord{}, fmt.Errorf("public key file %s does not match its key id", keyID)
	}
	return record, nil
}

func (r *Keyring) path(keyID, suffix string) string {
	return filepath.Join(r.directory, keyID+suffix)
}

// validKeyID keeps caller-supplied ids from escaping the directory.
func validKeyID(keyID string) bool {
	hexPart, ok := strings.CutPrefix(keyID, "key-")
	if !ok || len(hexPart) != 16 {
		return false
	}
	for _, character := range hexPart {
		if !strings.ContainsRune("0123456789abcdef", character) {
			return false
		}
	}
	return true
}

func readHeader(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	header := make([]byte, len(ageHeaderPrefix))
	n, err := io.ReadFull(file, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return header[:n], nil
}
