// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package nameaccumulator

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/zeebo/blake3"
)

// SegmentBits is the bit length of a name segment's prime
// representative.
const SegmentBits = 256

// NameSegment is a single element accumulated into a Name: a 256-bit
// prime drawn either from a random source or deterministically from a
// label such as a child's inumber or a revision key.
type NameSegment struct {
	prime *big.Int
}

// RandomNameSegment draws a fresh random 256-bit prime.
func RandomNameSegment(rng io.Reader) (NameSegment, error) {
	prime, err := rand.Prime(rng, SegmentBits)
	if err != nil {
		return NameSegment{}, fmt.Errorf("nameaccumulator: random segment: %w", err)
	}
	return NameSegment{prime: prime}, nil
}

// DeriveNameSegment deterministically maps domain||seed to a 256-bit
// prime by rejection sampling over Blake3: hash, force the candidate
// odd, and check primality; on failure, mix in an incrementing counter
// and try again. The same (domain, seed) always yields the same prime.
func DeriveNameSegment(domain string, seed []byte) NameSegment {
	var counter uint32
	for {
		h := blake3.New()
		h.Write([]byte(domain))
		h.Write(seed)
		h.Write([]byte{byte(counter), byte(counter >> 8), byte(counter >> 16), byte(counter >> 24)})
		digest := h.Sum(nil)

		candidate := new(big.Int).SetBytes(digest)
		candidate.SetBit(candidate, 0, 1) // force odd

		if candidate.ProbablyPrime(20) {
			return NameSegment{prime: candidate}
		}
		counter++
	}
}

// Bytes returns the segment's prime as big-endian bytes.
func (s NameSegment) Bytes() []byte {
	return s.prime.Bytes()
}

// NameSegmentFromBytes reconstructs a segment from the big-endian
// bytes Bytes produces. It does not re-check primality: the bytes are
// assumed to have come from a trusted source (a block this process
// itself encrypted, or one that separately passed a membership proof).
func NameSegmentFromBytes(b []byte) NameSegment {
	return NameSegment{prime: new(big.Int).SetBytes(b)}
}

// Equal reports whether two segments are the same prime.
func (s NameSegment) Equal(other NameSegment) bool {
	if s.prime == nil || other.prime == nil {
		return s.prime == other.prime
	}
	return s.prime.Cmp(other.prime) == 0
}

func productOfPrimes(segments []NameSegment) *big.Int {
	product := big.NewInt(1)
	for _, s := range segments {
		product.Mul(product, s.prime)
	}
	return product
}
