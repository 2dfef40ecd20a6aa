// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestGCMRoundTrip(t *testing.T) {
	key, err := NewAesKey(rand.Reader)
	if err != nil {
		t.Fatalf("NewAesKey: %v", err)
	}

	plaintext := []byte("Hello")
	ct, err := EncryptGCM(key, plaintext, nil, rand.Reader)
	if err != nil {
		t.Fatalf("EncryptGCM: %v", err)
	}

	pt, err := DecryptGCM(key, ct, nil)
	if err != nil {
		t.Fatalf("DecryptGCM: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", pt, plaintext)
	}
}

func TestGCMWrongKeyFails(t *testing.T) {
	k1, _ := NewAesKey(rand.Reader)
	k2, _ := NewAesKey(rand.Reader)

	ct, err := EncryptGCM(k1, []byte("secret"), nil, rand.Reader)
	if err != nil {
		t.Fatalf("EncryptGCM: %v", err)
	}
	if _, err := DecryptGCM(k2, ct, nil); err != ErrDecryptionFailed {
		t.Fatalf("DecryptGCM with wrong key = %v, want ErrDecryptionFailed", err)
	}
}

func TestKWPRoundTripVariousSizes(t *testing.T) {
	key, _ := NewAesKey(rand.Reader)

	for _, size := range []int{0, 1, 7, 8, 9, 16, 23, 100} {
		plaintext := make([]byte, size)
		if _, err := rand.Read(plaintext); err != nil {
			t.Fatalf("rand.Read: %v", err)
		}

		wrapped, err := WrapKWP(key, plaintext)
		if err != nil {
			t.Fatalf("WrapKWP(size=%d): %v", size, err)
		}
		if len(wrapped)%8 != 0 || len(wrapped) < 16 {
			t.Fatalf("WrapKWP(size=%d) length = %d, want multiple of 8 >= 16", size, len(wrapped))
		}

		unwrapped, err := UnwrapKWP(key, wrapped)
		if err != nil {
			t.Fatalf("UnwrapKWP(size=%d): %v", size, err)
		}
		if !bytes.Equal(unwrapped, plaintext) {
			t.Fatalf("UnwrapKWP(size=%d) = %x, want %x", size, unwrapped, plaintext)
		}
	}
}

func TestKWPIsDeterministic(t *testing.T) {
	key, _ := NewAesKey(rand.Reader)
	plaintext := []byte("same header bytes every time")

	w1, err := WrapKWP(key, plaintext)
	if err != nil {
		t.Fatalf("WrapKWP: %v", err)
	}
	w2, err := WrapKWP(key, plaintext)
	if err != nil {
		t.Fatalf("WrapKWP: %v", err)
	}
	if !bytes.Equal(w1, w2) {
		t.Fatalf("WrapKWP not deterministic: %x != %x", w1, w2)
	}
}

func TestKWPTamperedCiphertextFails(t *testing.T) {
	key, _ := NewAesKey(rand.Reader)
	wrapped, err := WrapKWP(key, []byte("a private node header"))
	if err != nil {
		t.Fatalf("WrapKWP: %v", err)
	}
	wrapped[0] ^= 0xFF

	if _, err := UnwrapKWP(key, wrapped); err != ErrDecryptionFailed {
		t.Fatalf("UnwrapKWP(tampered) = %v, want ErrDecryptionFailed", err)
	}
}

func TestRSAExchangeRoundTrip(t *testing.T) {
	kp, err := GenerateExchangeKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateExchangeKeyPair: %v", err)
	}

	plaintext := []byte("an access key, serialized")
	ct, err := EncryptForRecipient(kp.Public, plaintext, rand.Reader)
	if err != nil {
		t.Fatalf("EncryptForRecipient: %v", err)
	}

	pt, err := kp.DecryptAsRecipient(ct)
	if err != nil {
		t.Fatalf("DecryptAsRecipient: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", pt, plaintext)
	}
}
