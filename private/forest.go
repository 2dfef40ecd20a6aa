// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package private

import (
	"context"
	"fmt"
	"io"
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	"github.com/webnative-fs/wnfs/crypto"
	"github.com/webnative-fs/wnfs/hamt"
	"github.com/webnative-fs/wnfs/nameaccumulator"
	"github.com/webnative-fs/wnfs/store"
)

// Forest is the Private Forest: a HAMT mapping accumulated name labels
// to sets of content-block CIDs, plus the accumulator Setup every
// label is computed under. It is the revision index private nodes are
// stored in and looked up from; the node graph itself lives only in
// memory, reconstructed on demand from forest entries.
type Forest struct {
	Setup *nameaccumulator.Setup

	root       *hamt.Node
	blockStore store.BlockStore
	rng        io.Reader
}

// NewForest creates an empty forest under setup, backed by bs.
func NewForest(setup *nameaccumulator.Setup, bs store.BlockStore, rng io.Reader) *Forest {
	return &Forest{Setup: setup, root: hamt.New(), blockStore: bs, rng: rng}
}

// wireForestRoot is the DAG-CBOR shape of a forest root block, the
// durable handle a caller persists to resume work against a forest
// later.
type wireForestRoot struct {
	Structure   string            `cbor:"1,keyasint"`
	Version     int               `cbor:"2,keyasint"`
	Root        []byte            `cbor:"3,keyasint"`
	Accumulator wireAccumulatorSetup `cbor:"4,keyasint"`
}

type wireAccumulatorSetup struct {
	Modulus   []byte `cbor:"1,keyasint"`
	Generator []byte `cbor:"2,keyasint"`
}

const forestRootVersion = 1

// StoreRoot flushes the forest's in-memory HAMT to bs and writes a
// forest root block naming it, returning that block's CID.
func (f *Forest) StoreRoot(ctx context.Context) (cid.Cid, error) {
	hamtRoot, err := hamt.Store(ctx, f.root, f.blockStore)
	if err != nil {
		return cid.Undef, err
	}
	wire := wireForestRoot{
		Structure: "hamt",
		Version:   forestRootVersion,
		Root:      hamtRoot.Bytes(),
		Accumulator: wireAccumulatorSetup{
			Modulus:   f.Setup.Modulus.Bytes(),
			Generator: f.Setup.Generator.Bytes(),
		},
	}
	data, err := cborEncMode.Marshal(wire)
	if err != nil {
		return cid.Undef, fmt.Errorf("private: encode forest root: %w", err)
	}
	return f.blockStore.Put(ctx, data, store.CodecDagCBOR)
}

// LoadForest reconstructs a Forest from a previously stored forest
// root block.
func LoadForest(ctx context.Context, rootCid cid.Cid, bs store.BlockStore, rng io.Reader) (*Forest, error) {
	data, err := bs.Get(ctx, rootCid)
	if err != nil {
		return nil, err
	}
	var wire wireForestRoot
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("private: decode forest root: %w", err)
	}
	hamtRootCid, err := cid.Cast(wire.Root)
	if err != nil {
		return nil, fmt.Errorf("private: decode forest hamt root: %w", err)
	}
	hamtRoot, err := hamt.Load(ctx, hamtRootCid, bs)
	if err != nil {
		return nil, err
	}
	setup := &nameaccumulator.Setup{
		Modulus:   new(big.Int).SetBytes(wire.Accumulator.Modulus),
		Generator: new(big.Int).SetBytes(wire.Accumulator.Generator),
	}
	return &Forest{Setup: setup, root: hamtRoot, blockStore: bs, rng: rng}, nil
}

// putLabel inserts cid into the CID set stored at label, unioning with
// whatever is already there rather than replacing it — the multivalue
// semantics that let concurrent writers land at the same label without
// clobbering each other.
func (f *Forest) putLabel(ctx context.Context, label nameaccumulator.NameAccumulator, c cid.Cid) error {
	key := label.Bytes()
	existing, err := f.root.Get(ctx, key, f.blockStore)
	if err != nil {
		return err
	}
	merged, err := hamt.UnionCombiner(existing, []cid.Cid{c})
	if err != nil {
		return err
	}
	newRoot, err := f.root.Set(ctx, key, merged, f.blockStore)
	if err != nil {
		return err
	}
	f.root = newRoot
	return nil
}

// getCids returns the CID set stored at label.
func (f *Forest) getCids(ctx context.Context, label nameaccumulator.NameAccumulator) ([]cid.Cid, error) {
	return f.root.Get(ctx, label.Bytes(), f.blockStore)
}

// Has reports whether label has any value in the forest.
func (f *Forest) Has(ctx context.Context, label nameaccumulator.NameAccumulator) (bool, error) {
	cids, err := f.getCids(ctx, label)
	if err != nil {
		return false, err
	}
	return len(cids) > 0, nil
}

// Put persists node's current revision (and, for an external file, its
// chunks) and records it in the forest at node's revision label,
// returning the PrivateRef a caller can hand to others or stash in a
// parent directory's entries.
func (f *Forest) Put(ctx context.Context, node *PrivateNode) (PrivateRef, error) {
	if node.IsFile() && node.File.external != nil && !node.File.external.stored {
		if err := f.storeFileChunks(ctx, node.File); err != nil {
			return PrivateRef{}, err
		}
	}

	header := node.Header()
	contentCid, err := node.persist(ctx, f.blockStore, f.rng)
	if err != nil {
		return PrivateRef{}, err
	}

	label := header.RevisionLabel(f.Setup)
	if err := f.putLabel(ctx, label, contentCid); err != nil {
		return PrivateRef{}, err
	}

	temporalKey := header.TemporalKey()
	ref := PrivateRef{
		RevisionLabelHash: hamt.HashKey(label.Bytes()),
		Temporal:          temporalKey,
		ContentCid:        contentCid.Bytes(),
	}
	node.setPersistedRef(&ref)
	return ref, nil
}

func (f *Forest) storeFileChunks(ctx context.Context, file *PrivateFile) error {
	content := file.pendingContent
	for i := uint64(0); i < file.external.BlockCount; i++ {
		start := i * file.external.BlockContentSize
		end := start + file.external.BlockContentSize
		if end > uint64(len(content)) {
			end = uint64(len(content))
		}
		ciphertext, err := crypto.EncryptGCM(file.external.Key, content[start:end], nil, f.rng)
		if err != nil {
			return err
		}
		chunkCid, err := f.blockStore.Put(ctx, ciphertext, store.CodecRaw)
		if err != nil {
			return err
		}
		label := file.ChunkLabel(f.Setup, i)
		if err := f.putLabel(ctx, label, chunkCid); err != nil {
			return err
		}
	}
	file.pendingContent = nil
	file.external.stored = true
	return nil
}

// GetByRef resolves a PrivateRef to its node, decrypting the content
// block under ref's temporal key. Exported for callers (e.g. the
// sharing protocol) that only hold a ref, not a live PrivateLink.
func (f *Forest) GetByRef(ctx context.Context, ref PrivateRef) (*PrivateNode, error) {
	return f.getByRef(ctx, ref)
}

func (f *Forest) getByRef(ctx context.Context, ref PrivateRef) (*PrivateNode, error) {
	c, err := cid.Cast(ref.ContentCid)
	if err != nil {
		return nil, fmt.Errorf("private: decode content cid: %w", err)
	}
	node, err := loadNode(ctx, f.blockStore, c, ref.Temporal)
	if err != nil {
		return nil, err
	}
	return node, nil
}

// GetLatest fetches every revision currently stored at label and
// attempts to decrypt each one under temporalKey, returning the ones
// that succeed. Decryption failures here are not errors: a label may
// legitimately hold ciphertext from concurrent writers under keys this
// caller doesn't hold, indistinguishable from corruption. Use
// GetByRef for a targeted fetch where failure should be fatal.
func (f *Forest) GetLatest(ctx context.Context, label nameaccumulator.NameAccumulator, temporalKey TemporalKey) ([]*PrivateNode, error) {
	cids, err := f.getCids(ctx, label)
	if err != nil {
		return nil, err
	}
	var out []*PrivateNode
	for _, c := range cids {
		node, err := loadNode(ctx, f.blockStore, c, temporalKey)
		if err != nil {
			continue
		}
		out = append(out, node)
	}
	return out, nil
}

// Diff reports the labels whose CID sets differ between f and other,
// which must share a Setup.
func (f *Forest) Diff(ctx context.Context, other *Forest) ([]hamt.Change, error) {
	if !f.Setup.Equal(other.Setup) {
		return nil, ErrIncompatibleAccumulatorSetups
	}
	return f.root.Diff(ctx, other.root, f.blockStore)
}

// Merge reconciles f with other into a new Forest whose value set at
// every label is the union of both sides', implementing the
// convergent multi-writer semantics the forest is designed around.
func (f *Forest) Merge(ctx context.Context, other *Forest) (*Forest, error) {
	if !f.Setup.Equal(other.Setup) {
		return nil, ErrIncompatibleAccumulatorSetups
	}
	merged, err := hamt.Merge(ctx, f.root, other.root, hamt.UnionCombiner, f.blockStore)
	if err != nil {
		return nil, err
	}
	return &Forest{Setup: f.Setup, root: merged, blockStore: f.blockStore, rng: f.rng}, nil
}
