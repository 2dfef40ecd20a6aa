// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package hamt

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/webnative-fs/wnfs/store"
)

// ChangeType classifies one entry of a Diff.
type ChangeType int

const (
	// ChangeAdd means the key exists only in the "other" (right-hand)
	// tree.
	ChangeAdd ChangeType = iota
	// ChangeRemove means the key exists only in this tree.
	ChangeRemove
	// ChangeModify means the key exists in both trees with different
	// value sets.
	ChangeModify
)

// Change is one entry of a structural diff between two HAMT roots.
type Change struct {
	Type   ChangeType
	Key    []byte
	Before []cid.Cid
	After  []cid.Cid
}

// Diff returns the sequence of key-level changes between n and other.
// Identical subtrees (same child link CID on both sides) are skipped
// without being fetched, so the cost of a diff is proportional to the
// size of the actual difference rather than the size of either tree.
func (n *Node) Diff(ctx context.Context, other *Node, bs store.BlockStore) ([]Change, error) {
	return diffNodes(ctx, n, other, bs)
}

func diffNodes(ctx context.Context, a, b *Node, bs store.BlockStore) ([]Change, error) {
	var changes []Change

	for nibble := 0; nibble < 16; nibble++ {
		bit := uint16(1) << uint(nibble)
		aHas := a.Bitmask&bit != 0
		bHas := b.Bitmask&bit != 0

		switch {
		case aHas && !bHas:
			pairs, err := slotPairs(ctx, a, bit, bs)
			if err != nil {
				return nil, err
			}
			for _, p := range pairs {
				changes = append(changes, Change{Type: ChangeRemove, Key: p.Key, Before: p.Value})
			}
		case !aHas && bHas:
			pairs, err := slotPairs(ctx, b, bit, bs)
			if err != nil {
				return nil, err
			}
			for _, p := range pairs {
				changes = append(changes, Change{Type: ChangeAdd, Key: p.Key, After: p.Value})
			}
		case aHas && bHas:
			aPos := slotIndex(a.Bitmask, bit)
			bPos := slotIndex(b.Bitmask, bit)
			aPtr, bPtr := a.Pointers[aPos], b.Pointers[bPos]

			if isLinkPointer(aPtr) && isLinkPointer(bPtr) && aPtr.Link != cid.Undef && aPtr.Link == bPtr.Link {
				continue // identical subtree, nothing to walk
			}

			sub, err := diffSlot(ctx, aPtr, bPtr, bs)
			if err != nil {
				return nil, err
			}
			changes = append(changes, sub...)
		}
	}

	return changes, nil
}

func slotPairs(ctx context.Context, n *Node, bit uint16, bs store.BlockStore) ([]Pair, error) {
	pos := slotIndex(n.Bitmask, bit)
	p := n.Pointers[pos]
	if isLinkPointer(p) {
		child, err := resolve(ctx, p, bs)
		if err != nil {
			return nil, err
		}
		return collectAll(ctx, child, bs)
	}
	return p.Values, nil
}

func diffSlot(ctx context.Context, a, b Pointer, bs store.BlockStore) ([]Change, error) {
	if isLinkPointer(a) && isLinkPointer(b) {
		aChild, err := resolve(ctx, a, bs)
		if err != nil {
			return nil, err
		}
		bChild, err := resolve(ctx, b, bs)
		if err != nil {
			return nil, err
		}
		return diffNodes(ctx, aChild, bChild, bs)
	}

	aPairs, err := flattenPointer(ctx, a, bs)
	if err != nil {
		return nil, err
	}
	bPairs, err := flattenPointer(ctx, b, bs)
	if err != nil {
		return nil, err
	}
	return diffPairLists(aPairs, bPairs), nil
}

func flattenPointer(ctx context.Context, p Pointer, bs store.BlockStore) ([]Pair, error) {
	if isLinkPointer(p) {
		child, err := resolve(ctx, p, bs)
		if err != nil {
			return nil, err
		}
		return collectAll(ctx, child, bs)
	}
	return p.Values, nil
}

func diffPairLists(a, b []Pair) []Change {
	var changes []Change

	for _, pa := range a {
		j := findPair(b, pa.Key)
		if j < 0 {
			changes = append(changes, Change{Type: ChangeRemove, Key: pa.Key, Before: pa.Value})
			continue
		}
		if !sameCidSet(pa.Value, b[j].Value) {
			changes = append(changes, Change{Type: ChangeModify, Key: pa.Key, Before: pa.Value, After: b[j].Value})
		}
	}
	for _, pb := range b {
		if findPair(a, pb.Key) < 0 {
			changes = append(changes, Change{Type: ChangeAdd, Key: pb.Key, After: pb.Value})
		}
	}

	return changes
}

func sameCidSet(a, b []cid.Cid) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, c := range a {
		seen[c.String()] = true
	}
	for _, c := range b {
		if !seen[c.String()] {
			return false
		}
	}
	return true
}
