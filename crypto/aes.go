// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package crypto provides the symmetric and asymmetric primitives the
// private WNFS subsystem is built on: AES-256-GCM for randomized content
// encryption, AES-KWP for deterministic header wrapping, and RSA-OAEP for
// the sharing protocol's key exchange.
//
// Every randomized operation takes an explicit io.Reader so tests can feed
// a seeded, deterministic source while production code feeds crypto/rand.
// Nothing in this package reaches for package-level randomness.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
)

// KeySize is the size in bytes of every AES key used by the core.
const KeySize = 32

// NonceSize is the size in bytes of a GCM nonce.
const NonceSize = 12

// AesKey is a 256-bit AES key.
type AesKey [KeySize]byte

// ErrDecryptionFailed is returned whenever a ciphertext fails to
// authenticate, whether because of a wrong key or corruption.
var ErrDecryptionFailed = errors.New("crypto: decryption failed")

// NewAesKey draws a fresh random key from rng.
func NewAesKey(rng io.Reader) (AesKey, error) {
	var k AesKey
	if _, err := io.ReadFull(rng, k[:]); err != nil {
		return AesKey{}, fmt.Errorf("crypto: generate key: %w", err)
	}
	return k, nil
}

// EncryptGCM encrypts plaintext under key with a fresh random nonce drawn
// from rng, and returns nonce‖ciphertext‖tag as specified for content
// blocks. aad may be nil.
func EncryptGCM(key AesKey, plaintext, aad []byte, rng io.Reader) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rng, nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}

	out := make([]byte, 0, len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, aad)
	return out, nil
}

// DecryptGCM reverses EncryptGCM. It expects data to be nonce‖ciphertext‖tag.
func DecryptGCM(key AesKey, data, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(data) < NonceSize {
		return nil, ErrDecryptionFailed
	}

	nonce, ciphertext := data[:NonceSize], data[NonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key AesKey) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	return gcm, nil
}
