package postgres

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// sealVersion prefixes every sealed blob
	sealVersion = 0x01

	nonceSize = 12
	keySize   = 32

	keyInfo = "timeline drive credentials v1"
)

var (
	ErrInvalidKeySize     = errors.New("encryption key must be 32 bytes")
	ErrEmptyPassphrase    = errors.New("encryption passphrase is empty")
	ErrInvalidBlobSize    = errors.New("sealed blob is too small")
	ErrUnsupportedVersion = errors.New("unsupported sealed blob version")
	ErrDecryptionFailed   = errors.New("failed to open sealed blob")
)

// SecretEncryptor seals values with AES-256-GCM.
// Blob layout: version(1) || nonce(12) || ciphertext.
type SecretEncryptor struct {
	gcm cipher.AEAD
}

// DeriveKey stretches an operator passphrase into an AES-256 key with
// HKDF-SHA256. The same passphrase always yields the same key.
func DeriveKey(passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	key := make([]byte, keySize)
	r := hkdf.New(sha256.New, []byte(passphrase), nil, []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// NewSecretEncryptor creates an encryptor from a 32-byte key
func NewSecretEncryptor(key []byte) (*SecretEncryptor, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &SecretEncryptor{gcm: gcm}, nil
}

// NewSecretEncryptorFromPassphrase derives the key and builds the encryptor
func NewSecretEncryptorFromPassphrase(passphrase string) (*SecretEncryptor, error) {
	key, err := DeriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	return NewSecretEncryptor(key)
}

// Encrypt JSON-encodes value and seals it
func (e *SecretEncryptor) Encrypt(value any) ([]byte, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}

	blob := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+e.gcm.Overhead())
	blob[0] = sealVersion
	if _, err := rand.Read(blob[1:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return e.gcm.Seal(blob, blob[1:], plaintext, nil), nil
}

// Decrypt opens blob and decodes it into value, which must be a pointer
func (e *SecretEncryptor) Decrypt(blob []byte, value any) error {
	if len(blob) < 1+nonceSize+e.gcm.Overhead() {
		return ErrInvalidBlobSize
	}
	if blob[0] != sealVersion {
		return fmt.Errorf("%w: got version %d", ErrUnsupportedVersion, blob[0])
	}

	plaintext, err := e.gcm.Open(nil, blob[1:1+nonceSize], blob[1+nonceSize:], nil)
	if err != nil {
		return ErrDecryptionFailed
	}
	if err := json.Unmarshal(plaintext, value); err != nil {
		return fmt.Errorf("unmarshal opened value: %w", err)
	}
	return nil
}
