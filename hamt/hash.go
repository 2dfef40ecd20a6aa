// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package hamt implements a persistent 16-way hash-array-mapped trie,
// keyed by the Blake3 hash of its keys, with bitmask-compressed
// children and small leaf buckets. Every mutating operation returns a
// new root rather than touching the old one in place, so a HAMT
// doubles as a cheap snapshot of whatever state existed before the
// mutation.
package hamt

import "github.com/zeebo/blake3"

// MaxNibbles is the number of nibbles (4-bit digits) in a 256-bit
// Blake3 digest, and therefore the maximum depth the trie can reach
// before a cursor runs out of bits to branch on.
const MaxNibbles = 64

// Digest is a key's Blake3 hash, read four bits at a time while
// descending the trie.
type Digest [32]byte

// HashKey hashes an arbitrary byte-slice key with Blake3.
func HashKey(key []byte) Digest {
	return Digest(blake3.Sum256(key))
}

// Nibble returns the nibble (0-15) at the given cursor position,
// counting from the most significant half of the first byte.
func (d Digest) Nibble(cursor int) uint8 {
	b := d[cursor/2]
	if cursor%2 == 0 {
		return b >> 4
	}
	return b & 0x0F
}
