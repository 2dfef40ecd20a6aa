// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package hamt

// canonicalize collapses a just-mutated child node back down to its
// smallest equivalent representation, so that the CID of a HAMT
// depends only on its key-value multiset and never on the particular
// sequence of inserts and removes that produced it.
//
// It returns (nil, false) for an empty child, whose slot disappears
// entirely. Otherwise it returns (pointer, true), where the pointer is
// the child's lone Values bucket, a merged bucket of at most
// ValuesBucketSize pairs sorted by key hash, or, if neither collapse
// applies, a pointer to the child node itself.
func canonicalize(child *Node) (*Pointer, bool) {
	switch len(child.Pointers) {
	case 0:
		return nil, false
	case 1:
		if !isLinkPointer(child.Pointers[0]) {
			p := child.Pointers[0]
			return &p, true
		}
	default:
		if total, flat := countFlatValues(child); flat && total <= ValuesBucketSize {
			var values []Pair
			for _, p := range child.Pointers {
				values = append(values, p.Values...)
			}
			sortPairsByHash(values)
			return &Pointer{Values: values}, true
		}
	}

	// Not collapsible: keep pointing at the (possibly still-cached)
	// child node directly.
	return &Pointer{cached: child}, true
}
