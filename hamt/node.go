// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package hamt

import (
	"bytes"
	"context"
	"fmt"
	"math/bits"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/webnative-fs/wnfs/store"
)

// ValuesBucketSize is the maximum number of key-value pairs a leaf
// bucket holds before it splits into a child node at the next nibble.
const ValuesBucketSize = 3

// Pair is a single key-value entry in a leaf bucket. Value is a set of
// CIDs: the Forest stores one entry per accumulated name, and a set
// (rather than a single CID) is what lets concurrent writers land at
// the same label without clobbering each other.
type Pair struct {
	Key   []byte
	Value []cid.Cid
}

// Pointer is one of the sixteen slots under a Node: either a bucket of
// key-value pairs, or a link to a child Node one nibble deeper. cached
// holds an already-resolved child so a chain of operations within the
// same in-memory tree doesn't round-trip through the store repeatedly;
// it is never part of the serialized form.
type Pointer struct {
	Values []Pair
	Link   cid.Cid
	cached *Node
}

func isLinkPointer(p Pointer) bool {
	return p.Link != cid.Undef || p.cached != nil
}

// Node is one level of the trie: a bitmask marking which of the 16
// possible nibble slots are populated, and a Pointers slice holding
// exactly one entry per set bit, in ascending nibble order. Every
// mutating method returns a new Node; the receiver is never modified.
type Node struct {
	Bitmask  uint16
	Pointers []Pointer
}

// New returns an empty HAMT node.
func New() *Node {
	return &Node{}
}

func slotIndex(bitmask uint16, bit uint16) int {
	return bits.OnesCount16(bitmask & (bit - 1))
}

func cloneValues(values []Pair) []Pair {
	return append([]Pair(nil), values...)
}

func insertPointer(pointers []Pointer, pos int, p Pointer) []Pointer {
	out := make([]Pointer, len(pointers)+1)
	copy(out, pointers[:pos])
	out[pos] = p
	copy(out[pos+1:], pointers[pos:])
	return out
}

func replacePointer(pointers []Pointer, pos int, p Pointer) []Pointer {
	out := append([]Pointer(nil), pointers...)
	out[pos] = p
	return out
}

func removePointerAt(pointers []Pointer, pos int) []Pointer {
	out := make([]Pointer, 0, len(pointers)-1)
	out = append(out, pointers[:pos]...)
	out = append(out, pointers[pos+1:]...)
	return out
}

func findPair(values []Pair, key []byte) int {
	for i, p := range values {
		if bytes.Equal(p.Key, key) {
			return i
		}
	}
	return -1
}

// resolve returns the child Node a Link pointer refers to, fetching
// and decoding it from store if it isn't already cached in memory.
func resolve(ctx context.Context, p Pointer, bs store.BlockStore) (*Node, error) {
	if p.cached != nil {
		return p.cached, nil
	}
	return Load(ctx, p.Link, bs)
}

// Set returns a new root with value stored at key, replacing whatever
// was there before. The caller (typically the Private Forest) is
// responsible for folding an existing set into value first if
// multi-value "put" semantics are wanted; Set itself always replaces.
func (n *Node) Set(ctx context.Context, key []byte, value []cid.Cid, bs store.BlockStore) (*Node, error) {
	return setAt(ctx, n, 0, HashKey(key), key, value, bs)
}

func setAt(ctx context.Context, n *Node, cursor int, digest Digest, key []byte, value []cid.Cid, bs store.BlockStore) (*Node, error) {
	if cursor >= MaxNibbles {
		return nil, ErrCursorOutOfBounds
	}

	idx := digest.Nibble(cursor)
	bit := uint16(1) << idx
	pos := slotIndex(n.Bitmask, bit)

	if n.Bitmask&bit == 0 {
		newPointer := Pointer{Values: []Pair{{Key: append([]byte(nil), key...), Value: value}}}
		return &Node{
			Bitmask:  n.Bitmask | bit,
			Pointers: insertPointer(n.Pointers, pos, newPointer),
		}, nil
	}

	existing := n.Pointers[pos]
	if isLinkPointer(existing) {
		child, err := resolve(ctx, existing, bs)
		if err != nil {
			return nil, err
		}
		newChild, err := setAt(ctx, child, cursor+1, digest, key, value, bs)
		if err != nil {
			return nil, err
		}
		return &Node{
			Bitmask:  n.Bitmask,
			Pointers: replacePointer(n.Pointers, pos, Pointer{cached: newChild}),
		}, nil
	}

	values := existing.Values
	if i := findPair(values, key); i >= 0 {
		newValues := cloneValues(values)
		newValues[i] = Pair{Key: append([]byte(nil), key...), Value: value}
		return &Node{
			Bitmask:  n.Bitmask,
			Pointers: replacePointer(n.Pointers, pos, Pointer{Values: newValues}),
		}, nil
	}

	if len(values) < ValuesBucketSize {
		newValues := append(cloneValues(values), Pair{Key: append([]byte(nil), key...), Value: value})
		sortPairsByHash(newValues)
		return &Node{
			Bitmask:  n.Bitmask,
			Pointers: replacePointer(n.Pointers, pos, Pointer{Values: newValues}),
		}, nil
	}

	// Bucket overflow: split into a child node at the next nibble.
	child := New()
	var err error
	for _, p := range values {
		child, err = setAt(ctx, child, cursor+1, HashKey(p.Key), p.Key, p.Value, bs)
		if err != nil {
			return nil, err
		}
	}
	child, err = setAt(ctx, child, cursor+1, digest, key, value, bs)
	if err != nil {
		return nil, err
	}
	return &Node{
		Bitmask:  n.Bitmask,
		Pointers: replacePointer(n.Pointers, pos, Pointer{cached: child}),
	}, nil
}

// Get returns the value set stored at key, or nil if no such key
// exists.
func (n *Node) Get(ctx context.Context, key []byte, bs store.BlockStore) ([]cid.Cid, error) {
	return getAt(ctx, n, 0, HashKey(key), key, bs)
}

func getAt(ctx context.Context, n *Node, cursor int, digest Digest, key []byte, bs store.BlockStore) ([]cid.Cid, error) {
	if cursor >= MaxNibbles {
		return nil, ErrCursorOutOfBounds
	}

	idx := digest.Nibble(cursor)
	bit := uint16(1) << idx
	if n.Bitmask&bit == 0 {
		return nil, nil
	}

	pos := slotIndex(n.Bitmask, bit)
	existing := n.Pointers[pos]
	if isLinkPointer(existing) {
		child, err := resolve(ctx, existing, bs)
		if err != nil {
			return nil, err
		}
		return getAt(ctx, child, cursor+1, digest, key, bs)
	}

	if i := findPair(existing.Values, key); i >= 0 {
		return existing.Values[i].Value, nil
	}
	return nil, nil
}

// GetByHash returns the value set whose key hashes to digest, along
// with that key, or (nil, nil, nil) if no such entry exists. It lets a
// caller who only knows a revision's label hash (not the original
// accumulated name bytes) still look the entry up.
func (n *Node) GetByHash(ctx context.Context, digest Digest, bs store.BlockStore) ([]byte, []cid.Cid, error) {
	return getByHashAt(ctx, n, 0, digest, bs)
}

func getByHashAt(ctx context.Context, n *Node, cursor int, digest Digest, bs store.BlockStore) ([]byte, []cid.Cid, error) {
	if cursor >= MaxNibbles {
		return nil, nil, ErrCursorOutOfBounds
	}

	idx := digest.Nibble(cursor)
	bit := uint16(1) << idx
	if n.Bitmask&bit == 0 {
		return nil, nil, nil
	}

	pos := slotIndex(n.Bitmask, bit)
	existing := n.Pointers[pos]
	if isLinkPointer(existing) {
		child, err := resolve(ctx, existing, bs)
		if err != nil {
			return nil, nil, err
		}
		return getByHashAt(ctx, child, cursor+1, digest, bs)
	}

	for _, p := range existing.Values {
		if HashKey(p.Key) == digest {
			return p.Key, p.Value, nil
		}
	}
	return nil, nil, nil
}

// Remove returns a new root with key removed, along with the value set
// that was stored there (nil if the key was not present).
func (n *Node) Remove(ctx context.Context, key []byte, bs store.BlockStore) (*Node, []cid.Cid, error) {
	return removeAt(ctx, n, 0, HashKey(key), key, bs)
}

func removeAt(ctx context.Context, n *Node, cursor int, digest Digest, key []byte, bs store.BlockStore) (*Node, []cid.Cid, error) {
	if cursor >= MaxNibbles {
		return nil, nil, ErrCursorOutOfBounds
	}

	idx := digest.Nibble(cursor)
	bit := uint16(1) << idx
	if n.Bitmask&bit == 0 {
		return n, nil, nil
	}
	pos := slotIndex(n.Bitmask, bit)
	existing := n.Pointers[pos]

	if isLinkPointer(existing) {
		child, err := resolve(ctx, existing, bs)
		if err != nil {
			return nil, nil, err
		}
		newChild, removed, err := removeAt(ctx, child, cursor+1, digest, key, bs)
		if err != nil {
			return nil, nil, err
		}
		if removed == nil {
			return n, nil, nil
		}

		newPointer, ok := canonicalize(newChild)
		if !ok {
			return &Node{
				Bitmask:  n.Bitmask &^ bit,
				Pointers: removePointerAt(n.Pointers, pos),
			}, removed, nil
		}
		return &Node{
			Bitmask:  n.Bitmask,
			Pointers: replacePointer(n.Pointers, pos, *newPointer),
		}, removed, nil
	}

	i := findPair(existing.Values, key)
	if i < 0 {
		return n, nil, nil
	}
	removed := existing.Values[i].Value
	newValues := append(cloneValues(existing.Values[:i]), existing.Values[i+1:]...)
	if len(newValues) == 0 {
		return &Node{
			Bitmask:  n.Bitmask &^ bit,
			Pointers: removePointerAt(n.Pointers, pos),
		}, removed, nil
	}
	return &Node{
		Bitmask:  n.Bitmask,
		Pointers: replacePointer(n.Pointers, pos, Pointer{Values: newValues}),
	}, removed, nil
}

// collectAll gathers every key-value pair reachable from n, used when
// flattening an entire subtree (e.g. during Diff or canonicalization).
func collectAll(ctx context.Context, n *Node, bs store.BlockStore) ([]Pair, error) {
	var out []Pair
	for _, p := range n.Pointers {
		if isLinkPointer(p) {
			child, err := resolve(ctx, p, bs)
			if err != nil {
				return nil, err
			}
			sub, err := collectAll(ctx, child, bs)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		} else {
			out = append(out, p.Values...)
		}
	}
	return out, nil
}

// countFlatValues returns the number of values directly under n and
// whether every pointer is a Values bucket (no nested links) — the
// condition canonicalization requires before it's safe to flatten a
// subtree back into a single bucket without fetching further blocks.
func countFlatValues(n *Node) (int, bool) {
	total := 0
	for _, p := range n.Pointers {
		if isLinkPointer(p) {
			return 0, false
		}
		total += len(p.Values)
	}
	return total, true
}

func sortPairsByHash(pairs []Pair) {
	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(HashKey(pairs[i].Key).bytes(), HashKey(pairs[j].Key).bytes()) < 0
	})
}

func (d Digest) bytes() []byte {
	return d[:]
}

func (n *Node) String() string {
	return fmt.Sprintf("hamt.Node{bitmask=%016b, pointers=%d}", n.Bitmask, len(n.Pointers))
}
