// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package private implements the WNFS private subsystem: the
// PrivateForest revision index, the PrivateNode file/directory model
// with its header/content split and chunked file encryption, the
// operations layer that walks an in-memory directory tree with
// clone-on-write semantics, history traversal, and the sharing
// protocol.
package private

import (
	"github.com/webnative-fs/wnfs/crypto"
	"github.com/webnative-fs/wnfs/nameaccumulator"
	"github.com/webnative-fs/wnfs/ratchet"
)

// TemporalKey is the AES key derived from a node's current ratchet
// position. It grants the ability to decrypt the current revision's
// header and to derive every future temporal and snapshot key via the
// ratchet.
type TemporalKey crypto.AesKey

// SnapshotKey is derived from a TemporalKey by a one-way hash. It
// grants decryption of exactly one revision's content block, never
// future ones.
type SnapshotKey crypto.AesKey

const snapshotKeyDomain = "wnfs/private/snapshot-key"

// DeriveSnapshotKey computes the snapshot key for this temporal key's
// revision.
func (tk TemporalKey) DeriveSnapshotKey() SnapshotKey {
	seed := ratchet.RevisionSegmentSeed(crypto.AesKey(tk))
	return SnapshotKey(crypto.AesKey(hashToKey(snapshotKeyDomain, seed[:])))
}

// RevisionSegment derives the NameSegment that extends a node's bare
// name into this temporal key's revision label.
func (tk TemporalKey) RevisionSegment() nameaccumulator.NameSegment {
	seed := ratchet.RevisionSegmentSeed(crypto.AesKey(tk))
	return nameaccumulator.DeriveNameSegment("wnfs/private/revision-segment", seed[:])
}

func hashToKey(domain string, data []byte) crypto.AesKey {
	var out crypto.AesKey
	h := newDomainHasher(domain)
	h.Write(data)
	copy(out[:], h.Sum(nil))
	return out
}

// AccessKey is the capability a client holds for a node: either
// Temporal (grants current + future revisions) or Snapshot (grants
// only the one revision it names).
type AccessKey struct {
	// RevisionLabelHash is the forest label this key's revision is
	// stored at.
	RevisionLabelHash [32]byte
	// Temporal holds the temporal key when this is a temporal access
	// key; the zero value otherwise.
	Temporal TemporalKey
	// Snapshot holds the snapshot key when this is a snapshot access
	// key; the zero value otherwise.
	Snapshot SnapshotKey
	// IsTemporal distinguishes the two key variants, since either
	// Temporal or Snapshot may legitimately be the zero key.
	IsTemporal bool
	// ContentCid is the content block this access key was minted
	// against, included so a holder can fetch it directly without
	// first resolving the forest label.
	ContentCid []byte
}
