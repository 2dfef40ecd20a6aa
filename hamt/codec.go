// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package hamt

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	"github.com/webnative-fs/wnfs/store"
)

var cborEncMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("hamt: build canonical cbor enc mode: %v", err))
	}
	return mode
}()

// wireNode and wirePointer are the DAG-CBOR on-the-wire shapes.
// Canonical encoding (sorted map keys, minimal integer widths) is what
// makes a Node's CID a pure function of its contents.
type wireNode struct {
	Bitmask  uint16        `cbor:"1,keyasint"`
	Pointers []wirePointer `cbor:"2,keyasint"`
}

type wirePointer struct {
	Values []wirePair `cbor:"1,keyasint,omitempty"`
	Link   []byte     `cbor:"2,keyasint,omitempty"`
}

type wirePair struct {
	Key   []byte   `cbor:"1,keyasint"`
	Value [][]byte `cbor:"2,keyasint"`
}

// Store serializes n to DAG-CBOR, recursively flushing any cached
// (not-yet-persisted) child nodes first, and writes it to bs. It
// returns the resulting root CID.
func Store(ctx context.Context, n *Node, bs store.BlockStore) (cid.Cid, error) {
	wire := wireNode{Bitmask: n.Bitmask}
	for _, p := range n.Pointers {
		wp := wirePointer{}
		if p.cached != nil {
			childCid, err := Store(ctx, p.cached, bs)
			if err != nil {
				return cid.Undef, err
			}
			wp.Link = childCid.Bytes()
		} else if p.Link != cid.Undef {
			wp.Link = p.Link.Bytes()
		} else {
			for _, pair := range p.Values {
				wp.Values = append(wp.Values, wirePair{
					Key:   pair.Key,
					Value: cidsToBytes(pair.Value),
				})
			}
		}
		wire.Pointers = append(wire.Pointers, wp)
	}

	data, err := cborEncMode.Marshal(wire)
	if err != nil {
		return cid.Undef, fmt.Errorf("hamt: encode node: %w", err)
	}
	return bs.Put(ctx, data, store.CodecDagCBOR)
}

// Load fetches and decodes the node at c. Children remain unresolved
// Link pointers until a traversal reaches them.
func Load(ctx context.Context, c cid.Cid, bs store.BlockStore) (*Node, error) {
	data, err := bs.Get(ctx, c)
	if err != nil {
		return nil, err
	}

	var wire wireNode
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("hamt: decode node: %w", err)
	}

	n := &Node{Bitmask: wire.Bitmask}
	for _, wp := range wire.Pointers {
		if wp.Link != nil {
			linkCid, err := cid.Cast(wp.Link)
			if err != nil {
				return nil, fmt.Errorf("hamt: decode link: %w", err)
			}
			n.Pointers = append(n.Pointers, Pointer{Link: linkCid})
			continue
		}

		var values []Pair
		for _, wv := range wp.Values {
			values = append(values, Pair{Key: wv.Key, Value: bytesToCids(wv.Value)})
		}
		n.Pointers = append(n.Pointers, Pointer{Values: values})
	}
	return n, nil
}

func cidsToBytes(cids []cid.Cid) [][]byte {
	out := make([][]byte, len(cids))
	for i, c := range cids {
		out[i] = c.Bytes()
	}
	return out
}

func bytesToCids(raw [][]byte) []cid.Cid {
	out := make([]cid.Cid, 0, len(raw))
	for _, b := range raw {
		if c, err := cid.Cast(b); err == nil {
			out = append(out, c)
		}
	}
	return out
}
