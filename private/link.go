// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package private

import "context"

// PrivateRef is the unresolved capability to fetch and decrypt one
// revision of a node: the forest label it's stored under, the
// temporal key that decrypts its header, and the content block's
// CID (the content block in turn names the header block).
type PrivateRef struct {
	RevisionLabelHash [32]byte
	Temporal          TemporalKey
	ContentCid        []byte
}

// PrivateLink is a directory entry: either a materialized PrivateNode
// already sitting in memory, or an unresolved PrivateRef naming where
// to fetch one. It caches whichever form it is first resolved to, so
// repeated reads of the same entry within one operation don't re-walk
// the forest or re-decrypt a block.
//
// Apart from filling that cache, a PrivateLink is not modified after
// construction; PrepareNextRevision on the owning directory copies its
// entries into a new map rather than mutating the old one, which is
// what makes clone-on-write correct under readers of the old revision.
type PrivateLink struct {
	ref      *PrivateRef
	resolved *PrivateNode
}

// NewPrivateLink wraps an already-resolved node, as happens immediately
// after creating or mutating it in memory.
func NewPrivateLink(node *PrivateNode) PrivateLink {
	return PrivateLink{resolved: node}
}

// NewUnresolvedLink wraps a reference that hasn't been fetched yet, as
// happens when a directory is loaded from the forest and its entries
// are left lazy until a traversal actually needs them.
func NewUnresolvedLink(ref PrivateRef) PrivateLink {
	return PrivateLink{ref: &ref}
}

// Resolve returns the link's node, fetching and decrypting it from
// forest on first use and caching the result on l for subsequent calls.
// Resolve takes a pointer receiver so the cache lands on l; a caller
// holding a copy taken from a map must store it back for the cache to
// persist, as PrivateDirectory.LookupNode does.
func (l *PrivateLink) Resolve(ctx context.Context, forest *Forest) (*PrivateNode, error) {
	if l.resolved != nil {
		return l.resolved, nil
	}
	node, err := forest.getByRef(ctx, *l.ref)
	if err != nil {
		return nil, err
	}
	l.resolved = node
	return node, nil
}

// AsRef returns the link's PrivateRef, computing it from the resolved
// node (and caching it) if the link hasn't been dereferenced into a
// ref yet. The resolved node must already have been persisted (its
// persistedRef set by Forest.Put) — the operations layer always
// persists children bottom-up before their parent, so by the time a
// parent serializes its entries every child already has one.
func (l *PrivateLink) AsRef() (PrivateRef, error) {
	if l.ref != nil {
		return *l.ref, nil
	}
	ref, err := l.resolved.asRef()
	if err != nil {
		return PrivateRef{}, err
	}
	l.ref = &ref
	return ref, nil
}
