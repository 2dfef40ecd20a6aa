// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package nameaccumulator implements the RSA-based cryptographic
// accumulator that gives every private node a hierarchical,
// unforgeable name. An accumulated name is a single fixed-size value
// in Z/N that stands in for an entire multiset of name segments; two
// names are equal iff their segment multisets are equal, and a
// membership proof lets a holder demonstrate that one name extends
// another without revealing the segments themselves.
//
// The underlying big-integer and modular-exponentiation arithmetic has
// no suitable third-party home in this codebase's dependency graph —
// accumulator schemes are not something any library in the corpus
// provides — so it is built directly on math/big and crypto/rand,
// mirroring the structure of the reference accumulator crate.
package nameaccumulator

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// ModulusBits is the bit length of each of the two trusted-setup
// primes. The resulting RSA modulus is therefore ~2048 bits.
const ModulusBits = 1024

// Setup holds the public parameters of the accumulator: an RSA modulus
// whose factorization ("toxic waste") must be destroyed after
// generation, and a public generator used as the base of the empty
// accumulator.
type Setup struct {
	Modulus   *big.Int
	Generator *big.Int
}

// TrustedSetup runs the (one-time, security-critical) ceremony that
// produces a fresh Setup: two random 1024-bit primes are multiplied
// into the modulus and then discarded. Anyone who retains the factors
// can forge membership proofs, so callers MUST NOT persist them; this
// function only ever returns the modulus.
func TrustedSetup(rng io.Reader) (*Setup, error) {
	p, err := rand.Prime(rng, ModulusBits)
	if err != nil {
		return nil, fmt.Errorf("nameaccumulator: generate p: %w", err)
	}
	q, err := rand.Prime(rng, ModulusBits)
	if err != nil {
		return nil, fmt.Errorf("nameaccumulator: generate q: %w", err)
	}

	modulus := new(big.Int).Mul(p, q)

	// Best-effort destruction of the toxic waste. Go offers no hard
	// guarantee of memory wipe, but there is no reason to keep these
	// around a moment longer than necessary.
	p.SetInt64(0)
	q.SetInt64(0)

	generator, err := randomQuadraticResidue(rng, modulus)
	if err != nil {
		return nil, fmt.Errorf("nameaccumulator: generate generator: %w", err)
	}

	return &Setup{Modulus: modulus, Generator: generator}, nil
}

// randomQuadraticResidue picks a random element of Z/N and squares it,
// which is the standard way to land inside the quadratic-residue
// subgroup an RSA accumulator operates over (avoiding the -1/1
// ambiguity a non-QR generator would introduce).
func randomQuadraticResidue(rng io.Reader, modulus *big.Int) (*big.Int, error) {
	r, err := rand.Int(rng, modulus)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Exp(r, big.NewInt(2), modulus), nil
}

// Equal reports whether two setups share the same modulus, meaning
// accumulators produced under one are comparable to those produced
// under the other.
func (s *Setup) Equal(other *Setup) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Modulus.Cmp(other.Modulus) == 0
}

// EmptyAccumulator returns the accumulator with no segments added: the
// setup's generator itself.
func (s *Setup) EmptyAccumulator() NameAccumulator {
	return NameAccumulator{value: new(big.Int).Set(s.Generator)}
}
