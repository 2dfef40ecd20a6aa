// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package nameaccumulator

import (
	"errors"
	"math/big"
)

// ByteSize is the fixed serialized width of an accumulated name,
// matching the modulus size used by TrustedSetup.
const ByteSize = 2 * ModulusBits / 8

// ErrInvalidProof is returned when a membership proof does not verify
// against the claimed accumulator.
var ErrInvalidProof = errors.New("nameaccumulator: invalid proof")

// ErrIncompatibleSetup is returned when two accumulators or proofs
// were produced under different RSA moduli and cannot be compared,
// merged, or verified against one another.
var ErrIncompatibleSetup = errors.New("nameaccumulator: incompatible setup")

// NameAccumulator is a single fixed-size value standing in for an
// entire multiset of NameSegments, accumulated against a trusted
// Setup. Two accumulators are equal iff their underlying segment
// multisets are equal.
type NameAccumulator struct {
	value *big.Int
}

// RelativeName is a name expressed as a base accumulator plus the
// segments still to be added to it. It avoids doing the modular
// exponentiation until the caller actually needs the accumulated
// value, which is the common case when only the proof is needed or
// when segments are appended incrementally.
type RelativeName struct {
	Base     NameAccumulator
	Segments []NameSegment
}

// ElementsProof witnesses that an accumulator equals Base raised to
// the product of Segments' primes, modulo the setup's modulus.
type ElementsProof struct {
	Base     *big.Int
	Segments []NameSegment
}

// Accumulate folds segments into base, returning the resulting
// accumulator along with a membership proof that it was produced by
// extending base with exactly these segments. Accumulation is
// associative and commutative: the order of segments never affects
// the result, matching multiset semantics.
func Accumulate(setup *Setup, base NameAccumulator, segments []NameSegment) (NameAccumulator, ElementsProof) {
	exponent := productOfPrimes(segments)
	value := new(big.Int).Exp(base.value, exponent, setup.Modulus)

	proof := ElementsProof{
		Base:     new(big.Int).Set(base.value),
		Segments: append([]NameSegment(nil), segments...),
	}
	return NameAccumulator{value: value}, proof
}

// Accumulate resolves a RelativeName into its accumulated value and
// membership proof.
func (n RelativeName) Accumulate(setup *Setup) (NameAccumulator, ElementsProof) {
	return Accumulate(setup, n.Base, n.Segments)
}

// Verify checks that acc was produced by extending the proof's base
// with exactly its claimed segments.
func (p ElementsProof) Verify(setup *Setup, acc NameAccumulator) error {
	exponent := productOfPrimes(p.Segments)
	expected := new(big.Int).Exp(p.Base, exponent, setup.Modulus)
	if expected.Cmp(acc.value) != 0 {
		return ErrInvalidProof
	}
	return nil
}

// Equal reports whether two accumulators hold the same value.
func (a NameAccumulator) Equal(other NameAccumulator) bool {
	if a.value == nil || other.value == nil {
		return a.value == other.value
	}
	return a.value.Cmp(other.value) == 0
}

// Bytes serializes the accumulator as fixed-width big-endian bytes,
// suitable for use as a HAMT key or forest label input.
func (a NameAccumulator) Bytes() []byte {
	out := make([]byte, ByteSize)
	a.value.FillBytes(out)
	return out
}

// FromBytes reconstructs an accumulator from its fixed-width
// serialized form.
func FromBytes(b []byte) NameAccumulator {
	return NameAccumulator{value: new(big.Int).SetBytes(b)}
}

// WithSegment returns a RelativeName extending this accumulator with a
// single additional segment, the common case of a child name
// extending its parent's.
func (a NameAccumulator) WithSegment(segment NameSegment) RelativeName {
	return RelativeName{Base: a, Segments: []NameSegment{segment}}
}

// WithSegments returns a RelativeName extending this accumulator with
// several additional segments at once.
func (a NameAccumulator) WithSegments(segments ...NameSegment) RelativeName {
	return RelativeName{Base: a, Segments: segments}
}
