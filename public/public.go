// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package public implements the unencrypted counterpart of the private
// subsystem: a plain content-addressed DAG of directory and file nodes,
// with no ratchet, no accumulator, and no encryption. Its main role in
// this repo is to give sharing (wnfs/private.Share) a well-known place
// to publish a recipient's RSA exchange public key, per the "known
// location of the public tree" setup step of the sharing protocol.
package public

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"

	"github.com/webnative-fs/wnfs/store"
)

// Type-tag strings stamped into every block, stable across
// implementations for interop, matching the private subsystem's own
// tags (wnfs/priv/file, wnfs/priv/dir).
const (
	typeTagFile = "wnfs/pub/file"
	typeTagDir  = "wnfs/pub/dir"

	contentVersion = 1
)

// ErrUnexpectedNodeType is returned when a fetched block's type tag
// doesn't match what the caller expected (GetFile on a directory CID,
// or vice versa).
var ErrUnexpectedNodeType = errors.New("public: unexpected node type")

var cborEncMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("public: build canonical cbor enc mode: %v", err))
	}
	return mode
}()

// PublicFile is either inline bytes or a pointer to a single raw block
// holding the content — there is no chunking on the public side, since
// nothing here needs the private side's per-chunk label derivation.
type PublicFile struct {
	Content    []byte
	ContentCid *cid.Cid
}

// PublicDirectory is an ordered set of named children, each identified
// by the CID of its own content block.
type PublicDirectory struct {
	Entries map[string]cid.Cid
}

type wireFile struct {
	Type       string `cbor:"1,keyasint"`
	Version    int    `cbor:"2,keyasint"`
	Content    []byte `cbor:"3,keyasint"`
	ContentCid []byte `cbor:"4,keyasint"`
}

type wireDirEntry struct {
	Name string `cbor:"1,keyasint"`
	Cid  []byte `cbor:"2,keyasint"`
}

type wireDir struct {
	Type    string         `cbor:"1,keyasint"`
	Version int            `cbor:"2,keyasint"`
	Entries []wireDirEntry `cbor:"3,keyasint"`
}

// PutFile encodes f as DAG-CBOR and stores it, returning its CID.
func PutFile(ctx context.Context, bs store.BlockStore, f *PublicFile) (cid.Cid, error) {
	wire := wireFile{Type: typeTagFile, Version: contentVersion, Content: f.Content}
	if f.ContentCid != nil {
		wire.ContentCid = f.ContentCid.Bytes()
	}
	data, err := cborEncMode.Marshal(wire)
	if err != nil {
		return cid.Undef, fmt.Errorf("public: encode file: %w", err)
	}
	return bs.Put(ctx, data, store.CodecDagCBOR)
}

// GetFile fetches and decodes the file at c. If the file's content was
// stored out-of-line, the referenced raw block is fetched and returned
// as Content so callers never need to chase ContentCid themselves.
func GetFile(ctx context.Context, bs store.BlockStore, c cid.Cid) (*PublicFile, error) {
	data, err := bs.Get(ctx, c)
	if err != nil {
		return nil, err
	}
	var wire wireFile
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("public: decode file: %w", err)
	}
	if wire.Type != typeTagFile {
		return nil, ErrUnexpectedNodeType
	}

	f := &PublicFile{Content: wire.Content}
	if len(wire.ContentCid) > 0 {
		blockCid, err := cid.Cast(wire.ContentCid)
		if err != nil {
			return nil, fmt.Errorf("public: decode content cid: %w", err)
		}
		f.ContentCid = &blockCid
		if f.Content == nil {
			f.Content, err = bs.Get(ctx, blockCid)
			if err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

// PutDirectory encodes d as DAG-CBOR (entries sorted by name for
// determinism) and stores it, returning its CID.
func PutDirectory(ctx context.Context, bs store.BlockStore, d *PublicDirectory) (cid.Cid, error) {
	names := make([]string, 0, len(d.Entries))
	for name := range d.Entries {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]wireDirEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, wireDirEntry{Name: name, Cid: d.Entries[name].Bytes()})
	}

	data, err := cborEncMode.Marshal(wireDir{Type: typeTagDir, Version: contentVersion, Entries: entries})
	if err != nil {
		return cid.Undef, fmt.Errorf("public: encode dir: %w", err)
	}
	return bs.Put(ctx, data, store.CodecDagCBOR)
}

// GetDirectory fetches and decodes the directory at c.
func GetDirectory(ctx context.Context, bs store.BlockStore, c cid.Cid) (*PublicDirectory, error) {
	data, err := bs.Get(ctx, c)
	if err != nil {
		return nil, err
	}
	var wire wireDir
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("public: decode dir: %w", err)
	}
	if wire.Type != typeTagDir {
		return nil, ErrUnexpectedNodeType
	}

	d := &PublicDirectory{Entries: make(map[string]cid.Cid, len(wire.Entries))}
	for _, e := range wire.Entries {
		childCid, err := cid.Cast(e.Cid)
		if err != nil {
			return nil, fmt.Errorf("public: decode child cid: %w", err)
		}
		d.Entries[e.Name] = childCid
	}
	return d, nil
}

// Ls returns the directory's children ordered by name.
func (d *PublicDirectory) Ls() []string {
	names := make([]string, 0, len(d.Entries))
	for name := range d.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
