// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package nameaccumulator

import (
	"crypto/rand"
	"testing"
)

func testSetup(t *testing.T) *Setup {
	t.Helper()
	setup, err := TrustedSetup(rand.Reader)
	if err != nil {
		t.Fatalf("TrustedSetup: %v", err)
	}
	return setup
}

func TestAccumulateIsCommutative(t *testing.T) {
	setup := testSetup(t)
	empty := setup.EmptyAccumulator()

	s1, err := RandomNameSegment(rand.Reader)
	if err != nil {
		t.Fatalf("RandomNameSegment: %v", err)
	}
	s2, err := RandomNameSegment(rand.Reader)
	if err != nil {
		t.Fatalf("RandomNameSegment: %v", err)
	}

	ab, _ := Accumulate(setup, empty, []NameSegment{s1, s2})
	ba, _ := Accumulate(setup, empty, []NameSegment{s2, s1})

	if !ab.Equal(ba) {
		t.Fatalf("accumulation order changed the result")
	}
}

func TestAccumulateTwoStepsMatchesOneStep(t *testing.T) {
	setup := testSetup(t)
	empty := setup.EmptyAccumulator()

	s1, _ := RandomNameSegment(rand.Reader)
	s2, _ := RandomNameSegment(rand.Reader)

	oneShot, _ := Accumulate(setup, empty, []NameSegment{s1, s2})

	mid, _ := Accumulate(setup, empty, []NameSegment{s1})
	twoStep, _ := Accumulate(setup, mid, []NameSegment{s2})

	if !oneShot.Equal(twoStep) {
		t.Fatalf("accumulating in two steps diverged from accumulating at once")
	}
}

func TestElementsProofVerifies(t *testing.T) {
	setup := testSetup(t)
	empty := setup.EmptyAccumulator()

	s1, _ := RandomNameSegment(rand.Reader)
	s2, _ := RandomNameSegment(rand.Reader)

	acc, proof := Accumulate(setup, empty, []NameSegment{s1, s2})

	if err := proof.Verify(setup, acc); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestElementsProofFailsOnTamperedSegment(t *testing.T) {
	setup := testSetup(t)
	empty := setup.EmptyAccumulator()

	s1, _ := RandomNameSegment(rand.Reader)
	s2, _ := RandomNameSegment(rand.Reader)
	other, _ := RandomNameSegment(rand.Reader)

	acc, proof := Accumulate(setup, empty, []NameSegment{s1, s2})
	proof.Segments[1] = other

	if err := proof.Verify(setup, acc); err != ErrInvalidProof {
		t.Fatalf("Verify(tampered) = %v, want ErrInvalidProof", err)
	}
}

func TestDeriveNameSegmentDeterministic(t *testing.T) {
	a := DeriveNameSegment("wnfs/test", []byte("child.txt"))
	b := DeriveNameSegment("wnfs/test", []byte("child.txt"))
	if !a.Equal(b) {
		t.Fatalf("DeriveNameSegment not deterministic")
	}

	c := DeriveNameSegment("wnfs/test", []byte("other.txt"))
	if a.Equal(c) {
		t.Fatalf("DeriveNameSegment collided across distinct seeds")
	}
}

func TestBytesRoundTrip(t *testing.T) {
	setup := testSetup(t)
	empty := setup.EmptyAccumulator()
	s1, _ := RandomNameSegment(rand.Reader)

	acc, _ := Accumulate(setup, empty, []NameSegment{s1})

	restored := FromBytes(acc.Bytes())
	if !acc.Equal(restored) {
		t.Fatalf("Bytes/FromBytes round trip mismatch")
	}
	if len(acc.Bytes()) != ByteSize {
		t.Fatalf("Bytes() length = %d, want %d", len(acc.Bytes()), ByteSize)
	}
}

func TestVerifyBatched(t *testing.T) {
	setup := testSetup(t)
	empty := setup.EmptyAccumulator()

	var parts []BatchedProofPart
	var expected []NameAccumulator
	for i := 0; i < 5; i++ {
		seg, _ := RandomNameSegment(rand.Reader)
		acc, proof := Accumulate(setup, empty, []NameSegment{seg})
		parts = append(parts, NewBatchedProofPart(proof))
		expected = append(expected, acc)
	}

	if err := VerifyBatched(setup, parts, expected); err != nil {
		t.Fatalf("VerifyBatched: %v", err)
	}
}

func TestVerifyBatchedFailsOnMismatch(t *testing.T) {
	setup := testSetup(t)
	empty := setup.EmptyAccumulator()

	seg1, _ := RandomNameSegment(rand.Reader)
	seg2, _ := RandomNameSegment(rand.Reader)
	acc1, proof1 := Accumulate(setup, empty, []NameSegment{seg1})
	_, proof2 := Accumulate(setup, empty, []NameSegment{seg2})

	parts := []BatchedProofPart{NewBatchedProofPart(proof1), NewBatchedProofPart(proof2)}
	// Mismatch: reuse acc1 twice instead of the real second accumulator.
	expected := []NameAccumulator{acc1, acc1}

	if err := VerifyBatched(setup, parts, expected); err != ErrInvalidProof {
		t.Fatalf("VerifyBatched(mismatched) = %v, want ErrInvalidProof", err)
	}
}

func TestSetupIncompatible(t *testing.T) {
	s1 := testSetup(t)
	s2 := testSetup(t)
	if s1.Equal(s2) {
		t.Fatalf("two independently generated setups should not share a modulus")
	}
}
