// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package nameaccumulator

import "math/big"

// BatchedProofPart is one element's witness going into an aggregated
// batch verification: a base B_i together with the product of segment
// primes that was raised against it.
type BatchedProofPart struct {
	Base     *big.Int
	Exponent *big.Int
}

// NewBatchedProofPart builds the batched witness for a single proof,
// reusing the product of segment primes the non-batched proof already
// has to compute.
func NewBatchedProofPart(proof ElementsProof) BatchedProofPart {
	return BatchedProofPart{
		Base:     new(big.Int).Set(proof.Base),
		Exponent: productOfPrimes(proof.Segments),
	}
}

// VerifyBatched checks an entire forest's worth of added labels in a
// single aggregated computation rather than one modular exponentiation
// per label. It is used by a replica that lacks read access to the
// content behind a label but still wants to confirm that a peer's
// forest additions are structurally well-formed: expected[i] is the
// accumulator claimed for parts[i].
//
// With x_i the exponent of part i and X* the product of every x_i, it
// checks that the product over i of expected[i]^(X*/x_i) equals the
// product of every part's base raised to X*, which holds when each
// expected[i] equals Base_i^x_i mod N. Only the aggregate is checked,
// so a failure does not say which part is wrong. The left-hand side is
// computed with multi_exp from "Batching Techniques for Accumulators
// with Applications to IOPs and Stateless Blockchains" (eprint
// 2018/1188), section 3.3, instead of one exponentiation per element.
func VerifyBatched(setup *Setup, parts []BatchedProofPart, expected []NameAccumulator) error {
	if len(parts) != len(expected) {
		return ErrInvalidProof
	}

	claimed := make([]BatchedProofPart, len(parts))
	for i, p := range parts {
		claimed[i] = BatchedProofPart{Base: expected[i].value, Exponent: p.Exponent}
	}
	product := multiExp(claimed, setup.Modulus)
	aggregated := aggregateBases(parts, setup.Modulus)
	if product.Cmp(aggregated) != 0 {
		return ErrInvalidProof
	}
	return nil
}

// aggregateBases computes (product of every Base_i)^X* mod N, X* being
// the product of every part's exponent: the value multiExp yields over
// the claimed accumulators when each one equals Base_i^Exponent_i.
func aggregateBases(parts []BatchedProofPart, modulus *big.Int) *big.Int {
	product := big.NewInt(1)
	for _, p := range parts {
		product.Mul(product, p.Base)
		product.Mod(product, modulus)
	}
	return product.Exp(product, nlognProduct(exponentsOf(parts)), modulus)
}

// multiExp computes, with (base_i, exponent_i) = parts[i], the product
// over i of base_i ^ (product of exponent_j for j != i), in
// O(n log n) modular exponentiations via divide and conquer rather
// than the naive O(n^2).
func multiExp(parts []BatchedProofPart, modulus *big.Int) *big.Int {
	switch len(parts) {
	case 0:
		return big.NewInt(1)
	case 1:
		return new(big.Int).Mod(parts[0].Base, modulus)
	default:
		mid := len(parts) / 2
		left, right := parts[:mid], parts[mid:]

		xStarLeft := nlognProduct(exponentsOf(left))
		xStarRight := nlognProduct(exponentsOf(right))

		leftExp := new(big.Int).Exp(multiExp(left, modulus), xStarRight, modulus)
		rightExp := new(big.Int).Exp(multiExp(right, modulus), xStarLeft, modulus)

		return new(big.Int).Mod(new(big.Int).Mul(leftExp, rightExp), modulus)
	}
}

// nlognProduct computes the product of factors in O(n log n) time via
// divide and conquer, keeping intermediate values smaller than a
// straight left-to-right multiplication would.
func nlognProduct(factors []*big.Int) *big.Int {
	switch len(factors) {
	case 0:
		return big.NewInt(1)
	case 1:
		return new(big.Int).Set(factors[0])
	default:
		mid := len(factors) / 2
		left := nlognProduct(factors[:mid])
		right := nlognProduct(factors[mid:])
		return new(big.Int).Mul(left, right)
	}
}

func exponentsOf(parts []BatchedProofPart) []*big.Int {
	out := make([]*big.Int, len(parts))
	for i, p := range parts {
		out[i] = p.Exponent
	}
	return out
}
