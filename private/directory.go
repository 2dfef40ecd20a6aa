// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package private

import (
	"context"
	"io"
	"sort"

	"github.com/webnative-fs/wnfs/crypto"
	"github.com/webnative-fs/wnfs/nameaccumulator"
)

// PrivateDirectory is a node holding an ordered set of named children.
type PrivateDirectory struct {
	Header   Header
	Metadata Metadata
	Previous []PreviousLink
	Entries  map[string]PrivateLink

	persistedRef *PrivateRef
}

// NewDirectory creates a new, empty root-level directory.
func NewDirectory(setup *nameaccumulator.Setup, rng io.Reader, mtime int64) (*PrivateDirectory, error) {
	header, err := NewRootHeader(setup, rng)
	if err != nil {
		return nil, err
	}
	return &PrivateDirectory{
		Header:   header,
		Metadata: Metadata{Ctime: mtime, Mtime: mtime},
		Entries:  make(map[string]PrivateLink),
	}, nil
}

// NewChildDirectory creates a new, empty directory whose name extends
// parentName, for use as a freshly mkdir'd subdirectory.
func NewChildDirectory(setup *nameaccumulator.Setup, parentName nameaccumulator.NameAccumulator, rng io.Reader, mtime int64) (*PrivateDirectory, error) {
	header, err := NewChildHeader(setup, parentName, rng)
	if err != nil {
		return nil, err
	}
	return &PrivateDirectory{
		Header:   header,
		Metadata: Metadata{Ctime: mtime, Mtime: mtime},
		Entries:  make(map[string]PrivateLink),
	}, nil
}

// LookupNode resolves a single named child, fetching and decrypting it
// from forest if only an unresolved ref is cached for that name.
func (d *PrivateDirectory) LookupNode(ctx context.Context, name string, forest *Forest) (*PrivateNode, bool, error) {
	link, ok := d.Entries[name]
	if !ok {
		return nil, false, nil
	}
	node, err := link.Resolve(ctx, forest)
	if err != nil {
		return nil, false, err
	}
	d.Entries[name] = link
	return node, true, nil
}

// PutNode inserts or replaces the child named name.
func (d *PrivateDirectory) PutNode(name string, node *PrivateNode) {
	d.Entries[name] = NewPrivateLink(node)
}

// RemoveNode removes the child named name, returning it if present.
func (d *PrivateDirectory) RemoveNode(ctx context.Context, name string, forest *Forest) (*PrivateNode, bool, error) {
	link, ok := d.Entries[name]
	if !ok {
		return nil, false, nil
	}
	node, err := link.Resolve(ctx, forest)
	if err != nil {
		return nil, false, err
	}
	delete(d.Entries, name)
	return node, true, nil
}

// DirEntry is one row of an Ls listing.
type DirEntry struct {
	Name     string
	Metadata Metadata
	IsDir    bool
}

// Ls returns the directory's children ordered by name, resolving each
// one to read its metadata.
func (d *PrivateDirectory) Ls(ctx context.Context, forest *Forest) ([]DirEntry, error) {
	names := make([]string, 0, len(d.Entries))
	for name := range d.Entries {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]DirEntry, 0, len(names))
	for _, name := range names {
		node, _, err := d.LookupNode(ctx, name, forest)
		if err != nil {
			return nil, err
		}
		out = append(out, DirEntry{Name: name, Metadata: node.Metadata(), IsDir: node.IsDir()})
	}
	return out, nil
}

// wireDirBody is the directory-specific portion of a content block's
// body: the entry list, ordered by name for determinism.
type wireDirBody struct {
	Entries []wireDirEntry `cbor:"1,keyasint"`
}

type wireDirEntry struct {
	Name              string `cbor:"1,keyasint"`
	RevisionLabelHash []byte `cbor:"2,keyasint"`
	Temporal          []byte `cbor:"3,keyasint"`
	ContentCid        []byte `cbor:"4,keyasint"`
}

func (d *PrivateDirectory) wireBody() wireDirBody {
	names := make([]string, 0, len(d.Entries))
	for name := range d.Entries {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]wireDirEntry, 0, len(names))
	for _, name := range names {
		link := d.Entries[name]
		ref, err := link.AsRef()
		if err != nil {
			// Unpersisted child: skip. The operations layer is
			// responsible for persisting every touched child bottom-up
			// before the parent is persisted, so this should not
			// happen on a well-formed write path.
			continue
		}
		entries = append(entries, wireDirEntry{
			Name:              name,
			RevisionLabelHash: ref.RevisionLabelHash[:],
			Temporal:          crypto.AesKey(ref.Temporal)[:],
			ContentCid:        ref.ContentCid,
		})
	}
	return wireDirBody{Entries: entries}
}
