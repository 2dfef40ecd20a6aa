// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"io"
)

// ExchangeKeySize is the modulus size in bits used for the sharing
// protocol's RSA-OAEP exchange keypairs.
const ExchangeKeySize = 2048

// ExchangeKeyPair is a recipient's RSA-OAEP keypair, used only to wrap
// access keys during sharing. It is unrelated to the name accumulator's
// RSA modulus, which is a separate trusted setup.
type ExchangeKeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// GenerateExchangeKeyPair creates a fresh RSA-2048 keypair, drawing
// randomness from rng.
func GenerateExchangeKeyPair(rng io.Reader) (*ExchangeKeyPair, error) {
	priv, err := rsa.GenerateKey(rng, ExchangeKeySize)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate exchange key: %w", err)
	}
	return &ExchangeKeyPair{Private: priv, Public: &priv.PublicKey}, nil
}

// PublicModulus returns the public modulus bytes, suitable for publishing
// in the public tree so sharers can find this recipient.
func (kp *ExchangeKeyPair) PublicModulus() []byte {
	return kp.Public.N.Bytes()
}

// EncryptForRecipient wraps plaintext (an access key's serialized bytes)
// under a recipient's RSA-OAEP public key.
func EncryptForRecipient(pub *rsa.PublicKey, plaintext []byte, rng io.Reader) ([]byte, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rng, pub, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: rsa-oaep encrypt: %w", err)
	}
	return ciphertext, nil
}

// DecryptAsRecipient unwraps a ciphertext produced by EncryptForRecipient
// using this keypair's private key.
func (kp *ExchangeKeyPair) DecryptAsRecipient(ciphertext []byte) ([]byte, error) {
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, kp.Private, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
