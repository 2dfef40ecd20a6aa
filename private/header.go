// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package private

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/webnative-fs/wnfs/crypto"
	"github.com/webnative-fs/wnfs/nameaccumulator"
	"github.com/webnative-fs/wnfs/ratchet"
)

// INumber is a node's random, immutable identity segment: the
// NameSegment that, appended to its parent's name, fixes this node's
// position for its entire lifetime regardless of how many revisions
// it accumulates.
type INumber = nameaccumulator.NameSegment

// Header is the PrivateNodeHeader: a node's identity, its current
// ratchet position, and the accumulated name that both of those
// combine to produce. It is encrypted under AES-KWP with the node's
// current temporal key and stored as its own block, separate from the
// node's content.
type Header struct {
	Inumber INumber
	Ratchet ratchet.Ratchet
	Name    nameaccumulator.NameAccumulator
}

// NewRootHeader creates the header for a freshly-created root node:
// a random inumber, a freshly-seeded ratchet, and a name accumulated
// from nothing but that inumber.
func NewRootHeader(setup *nameaccumulator.Setup, rng io.Reader) (Header, error) {
	inumber, err := nameaccumulator.RandomNameSegment(rng)
	if err != nil {
		return Header{}, fmt.Errorf("private: random inumber: %w", err)
	}
	r, err := ratchet.Random(rng)
	if err != nil {
		return Header{}, fmt.Errorf("private: random ratchet: %w", err)
	}
	name, _ := nameaccumulator.Accumulate(setup, setup.EmptyAccumulator(), []nameaccumulator.NameSegment{inumber})

	return Header{Inumber: inumber, Ratchet: r, Name: name}, nil
}

// NewChildHeader creates the header for a new child of parentName: a
// fresh random inumber, a fresh ratchet, and a name that extends the
// parent's by exactly the child's inumber (the invariant every node's
// name must satisfy).
func NewChildHeader(setup *nameaccumulator.Setup, parentName nameaccumulator.NameAccumulator, rng io.Reader) (Header, error) {
	inumber, err := nameaccumulator.RandomNameSegment(rng)
	if err != nil {
		return Header{}, fmt.Errorf("private: random inumber: %w", err)
	}
	r, err := ratchet.Random(rng)
	if err != nil {
		return Header{}, fmt.Errorf("private: random ratchet: %w", err)
	}
	name, _ := nameaccumulator.Accumulate(setup, parentName, []nameaccumulator.NameSegment{inumber})

	return Header{Inumber: inumber, Ratchet: r, Name: name}, nil
}

// TemporalKey returns the AES key for this header's current ratchet
// position.
func (h Header) TemporalKey() TemporalKey {
	return TemporalKey(h.Ratchet.DeriveKey())
}

// Advance returns a copy of h with its ratchet advanced by one
// position, used by PrepareNextRevision before a node is mutated.
func (h Header) Advance() Header {
	h.Ratchet = h.Ratchet.Inc()
	return h
}

// RevisionLabel returns the NameAccumulator this header's current
// revision is stored under in the forest: the header's name extended
// by a segment derived from the current temporal key.
func (h Header) RevisionLabel(setup *nameaccumulator.Setup) nameaccumulator.NameAccumulator {
	segment := h.TemporalKey().RevisionSegment()
	label, _ := nameaccumulator.Accumulate(setup, h.Name, []nameaccumulator.NameSegment{segment})
	return label
}

// wireHeader is the DAG-CBOR shape persisted inside a header block,
// prior to AES-KWP wrapping.
type wireHeader struct {
	Inumber []byte `cbor:"1,keyasint"`
	Ratchet []byte `cbor:"2,keyasint"`
	Name    []byte `cbor:"3,keyasint"`
}

// EncryptedBlock serializes and AES-KWP-wraps the header under its own
// temporal key, producing a deterministic ciphertext: two writers
// producing the same header converge on the same block bytes and
// therefore the same CID.
func (h Header) EncryptedBlock() ([]byte, error) {
	wire := wireHeader{
		Inumber: h.Inumber.Bytes(),
		Ratchet: h.Ratchet.Bytes(),
		Name:    h.Name.Bytes(),
	}
	plaintext, err := cborEncMode.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("private: encode header: %w", err)
	}

	key := crypto.AesKey(h.TemporalKey())
	return crypto.WrapKWP(key, plaintext)
}

// DecryptHeaderBlock reverses EncryptedBlock, given the temporal key
// the caller already holds or has derived via the ratchet.
func DecryptHeaderBlock(key TemporalKey, block []byte) (Header, error) {
	plaintext, err := crypto.UnwrapKWP(crypto.AesKey(key), block)
	if err != nil {
		return Header{}, err
	}

	var wire wireHeader
	if err := cbor.Unmarshal(plaintext, &wire); err != nil {
		return Header{}, fmt.Errorf("private: decode header: %w", err)
	}

	r, err := ratchet.FromBytes(wire.Ratchet)
	if err != nil {
		return Header{}, err
	}

	return Header{
		Inumber: nameaccumulator.NameSegmentFromBytes(wire.Inumber),
		Ratchet: r,
		Name:    nameaccumulator.FromBytes(wire.Name),
	}, nil
}
