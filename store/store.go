// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package store defines the content-addressed block store contract that the
// WNFS core treats as an external collaborator, plus a couple of concrete
// implementations (an in-memory store for tests and demos, and a binary
// protocol client for talking to a remote block server).
//
// The core never assumes anything about how bytes are durably kept: it only
// ever calls Put, Get and Has. CIDs are content identifiers computed by
// hashing bytes with BLAKE3-256 and wrapping the result as CIDv1.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/zeebo/blake3"
)

// Multicodec codes for the two codecs the core emits.
const (
	CodecRaw     = 0x55
	CodecDagCBOR = 0x71
)

// MaxBlockSize bounds the size of a single block, matching the spec's
// external block-store contract (blocks are expected to fit comfortably
// inside a single IPFS-style block).
const MaxBlockSize = 1 << 20 // ~1 MiB

// Common errors returned by BlockStore implementations.
var (
	// ErrBlockNotFound is returned by Get when no block exists for a CID.
	ErrBlockNotFound = errors.New("store: block not found")

	// ErrMaximumBlockSizeExceeded is returned by Put when data exceeds MaxBlockSize.
	ErrMaximumBlockSizeExceeded = errors.New("store: maximum block size exceeded")
)

// BlockStore is the minimal contract the WNFS core requires of its
// persistence layer. Implementations must be safe for concurrent use by
// multiple goroutines/tasks; the core itself never mutates a store
// concurrently from a single logical operation but many operations may be
// in flight across different forests sharing one store.
type BlockStore interface {
	// Put hashes data with BLAKE3-256, wraps it as a CIDv1 block tagged with
	// codec, stores it, and returns the resulting Cid. Putting the same bytes
	// twice is idempotent and returns the same Cid.
	Put(ctx context.Context, data []byte, codec uint64) (cid.Cid, error)

	// Get returns the bytes stored under c, or ErrBlockNotFound.
	Get(ctx context.Context, c cid.Cid) ([]byte, error)

	// Has reports whether a block exists for c without fetching its bytes.
	Has(ctx context.Context, c cid.Cid) (bool, error)
}

// ComputeCid hashes data with BLAKE3-256 and returns the CIDv1 that Put
// would assign it, without touching storage. Useful for callers that need
// to predict a label before writing (e.g. deduplicating uploads).
func ComputeCid(data []byte, codec uint64) (cid.Cid, error) {
	sum := blake3.Sum256(data)
	raw, err := mh.Encode(sum[:], mh.BLAKE3)
	if err != nil {
		return cid.Undef, fmt.Errorf("store: encode multihash: %w", err)
	}
	return cid.NewCidV1(codec, mh.Multihash(raw)), nil
}
