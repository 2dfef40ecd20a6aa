// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/aes"
	"encoding/binary"
	"fmt"
)

// AES-KWP (RFC 5649, "AES Key Wrap with Padding") is a deterministic
// authenticated encryption mode: no nonce is involved, so wrapping the
// same plaintext under the same key always yields the same ciphertext.
// Private node headers are wrapped with KWP specifically so that two
// writers producing the same header converge on the same block Cid.
//
// No third-party Go module in this codebase's dependency graph implements
// KWP, so it is hand-rolled here directly against crypto/aes per RFC 5649 —
// it is a fixed, well-specified algorithm with no room for design choices,
// unlike AES-GCM or RSA-OAEP where we defer to the standard library's own
// implementations.

// icv2 is the fixed KWP integrity check value (RFC 5649 §3).
var icv2 = [4]byte{0xA6, 0x59, 0x59, 0xA6}

// WrapKWP deterministically wraps plaintext under key, per RFC 5649.
// The output is always a multiple of 8 bytes and at least 16 bytes long.
func WrapKWP(key AesKey, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: kwp: new cipher: %w", err)
	}

	mli := len(plaintext)
	padded := padTo8(plaintext)

	aiv := make([]byte, 8)
	copy(aiv[0:4], icv2[:])
	binary.BigEndian.PutUint32(aiv[4:8], uint32(mli))

	if len(padded) == 8 {
		// Single semiblock: one direct AES-ECB block encryption of AIV||P.
		in := append(append([]byte{}, aiv...), padded...)
		out := make([]byte, 16)
		block.Encrypt(out, in)
		return out, nil
	}

	return wrapRFC3394(block, aiv, padded), nil
}

// UnwrapKWP reverses WrapKWP, returning ErrDecryptionFailed if the
// ciphertext does not authenticate (wrong key, corruption, or truncation).
func UnwrapKWP(key AesKey, wrapped []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: kwp: new cipher: %w", err)
	}

	if len(wrapped) < 16 || len(wrapped)%8 != 0 {
		return nil, ErrDecryptionFailed
	}

	var aiv []byte
	var padded []byte

	if len(wrapped) == 16 {
		out := make([]byte, 16)
		block.Decrypt(out, wrapped)
		aiv, padded = out[:8], out[8:]
	} else {
		aiv, padded = unwrapRFC3394(block, wrapped)
	}

	if aiv == nil || aiv[0] != icv2[0] || aiv[1] != icv2[1] || aiv[2] != icv2[2] || aiv[3] != icv2[3] {
		return nil, ErrDecryptionFailed
	}
	mli := int(binary.BigEndian.Uint32(aiv[4:8]))
	if mli < 0 || mli > len(padded) || (len(padded)-mli >= 8 && !(mli == 0 && len(padded) == 8)) {
		return nil, ErrDecryptionFailed
	}
	for _, b := range padded[mli:] {
		if b != 0 {
			return nil, ErrDecryptionFailed
		}
	}
	return padded[:mli], nil
}

func padTo8(data []byte) []byte {
	rem := len(data) % 8
	if rem == 0 && len(data) > 0 {
		return append([]byte{}, data...)
	}
	padLen := 8 - rem
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	return out
}

// wrapRFC3394 implements the RFC 3394 key wrap algorithm over n>=2
// semiblocks, using aiv as the initial value in place of the fixed
// RFC 3394 IV (this is exactly what distinguishes KWP from plain key wrap).
func wrapRFC3394(block interface {
	Encrypt(dst, src []byte)
}, aiv []byte, plaintext []byte) []byte {
	n := len(plaintext) / 8
	r := make([][]byte, n)
	for i := 0; i < n; i++ {
		r[i] = append([]byte{}, plaintext[i*8:(i+1)*8]...)
	}

	a := append([]byte{}, aiv...)
	buf := make([]byte, 16)

	for j := 0; j <= 5; j++ {
		for i := 1; i <= n; i++ {
			copy(buf[:8], a)
			copy(buf[8:], r[i-1])
			enc := make([]byte, 16)
			block.Encrypt(enc, buf)

			t := uint64(n*j + i)
			a = xorT(enc[:8], t)
			r[i-1] = enc[8:]
		}
	}

	out := make([]byte, 0, (n+1)*8)
	out = append(out, a...)
	for _, blk := range r {
		out = append(out, blk...)
	}
	return out
}

func unwrapRFC3394(block interface {
	Decrypt(dst, src []byte)
}, wrapped []byte) (aiv []byte, plaintext []byte) {
	n := len(wrapped)/8 - 1
	a := append([]byte{}, wrapped[:8]...)
	r := make([][]byte, n)
	for i := 0; i < n; i++ {
		r[i] = append([]byte{}, wrapped[(i+1)*8:(i+2)*8]...)
	}

	buf := make([]byte, 16)
	for j := 5; j >= 0; j-- {
		for i := n; i >= 1; i-- {
			t := uint64(n*j + i)
			xored := xorT(a, t)

			copy(buf[:8], xored)
			copy(buf[8:], r[i-1])
			dec := make([]byte, 16)
			block.Decrypt(dec, buf)

			a = dec[:8]
			r[i-1] = dec[8:]
		}
	}

	plaintext = make([]byte, 0, n*8)
	for _, blk := range r {
		plaintext = append(plaintext, blk...)
	}
	return a, plaintext
}

func xorT(a []byte, t uint64) []byte {
	out := append([]byte{}, a...)
	var tb [8]byte
	binary.BigEndian.PutUint64(tb[:], t)
	for i := range out {
		out[i] ^= tb[i]
	}
	return out
}
