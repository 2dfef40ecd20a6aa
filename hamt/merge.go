// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package hamt

import (
	"context"
	"sort"

	"github.com/ipfs/go-cid"
	"github.com/webnative-fs/wnfs/store"
)

// Combiner resolves a key present with different value sets on both
// sides of a merge into the value set that should win. The Private
// Forest's combiner is simply set-union, which is what makes
// Merge(Merge(A,B)) commutative and idempotent regardless of which
// replica computed it.
type Combiner func(a, b []cid.Cid) ([]cid.Cid, error)

// Merge computes a new root whose value at every key is resolved from
// n's and other's values by f. Keys present on only one side are
// carried over unchanged.
func Merge(ctx context.Context, n, other *Node, f Combiner, bs store.BlockStore) (*Node, error) {
	changes, err := n.Diff(ctx, other, bs)
	if err != nil {
		return nil, err
	}

	result := n
	for _, change := range changes {
		switch change.Type {
		case ChangeAdd:
			result, err = result.Set(ctx, change.Key, change.After, bs)
		case ChangeRemove:
			// Present only in n (the "remove" side relative to other):
			// nothing to do, n already carries this key's value.
		case ChangeModify:
			merged, fErr := f(change.Before, change.After)
			if fErr != nil {
				return nil, fErr
			}
			result, err = result.Set(ctx, change.Key, merged, bs)
		}
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// UnionCombiner merges two CID sets, deduplicating by string form and
// returning the union sorted by that form, so the result does not
// depend on which side is a and which is b.
// This is the Private Forest's combiner: concurrent writers at the
// same label accumulate rather than clobber each other.
func UnionCombiner(a, b []cid.Cid) ([]cid.Cid, error) {
	seen := make(map[string]bool, len(a)+len(b))
	var out []cid.Cid
	for _, c := range append(append([]cid.Cid(nil), a...), b...) {
		key := c.String()
		if !seen[key] {
			seen[key] = true
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}
