// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package private

import (
	"context"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	"github.com/webnative-fs/wnfs/crypto"
	"github.com/webnative-fs/wnfs/store"
)

// Type-tag strings stamped into every content block, stable across
// implementations for interop.
const (
	typeTagFile = "wnfs/priv/file"
	typeTagDir  = "wnfs/priv/dir"

	contentVersion = 1
)

// ErrUnexpectedNodeType is returned when a block decrypts and decodes
// successfully but carries the wrong type tag for the context it was
// fetched in (e.g. a file block where a directory was expected).
var ErrUnexpectedNodeType = fmt.Errorf("private: unexpected node type")

// Metadata is the small set of node attributes carried alongside every
// file and directory, independent of content.
type Metadata struct {
	Ctime int64 `cbor:"1,keyasint"`
	Mtime int64 `cbor:"2,keyasint"`
}

// PreviousLink is one entry in a node's previous skip-list: distance 1
// names the immediate predecessor revision, larger distances short-cut
// further back for O(log n) history seeks. EncryptedCid is the
// predecessor's content CID, encrypted under that predecessor's own
// temporal key so that only a holder of a key reachable via the
// ratchet chain can follow the link.
type PreviousLink struct {
	Distance     uint64
	EncryptedCid []byte
}

// PrivateNode is the tagged union of the two node kinds the private
// subsystem stores: exactly one of File or Dir is non-nil.
type PrivateNode struct {
	File *PrivateFile
	Dir  *PrivateDirectory
}

// WrapFile wraps f as a PrivateNode.
func WrapFile(f *PrivateFile) *PrivateNode { return &PrivateNode{File: f} }

// WrapDirectory wraps d as a PrivateNode.
func WrapDirectory(d *PrivateDirectory) *PrivateNode { return &PrivateNode{Dir: d} }

// IsFile reports whether n wraps a file.
func (n *PrivateNode) IsFile() bool { return n.File != nil }

// IsDir reports whether n wraps a directory.
func (n *PrivateNode) IsDir() bool { return n.Dir != nil }

// Header returns the node's current header, regardless of kind.
func (n *PrivateNode) Header() Header {
	if n.File != nil {
		return n.File.Header
	}
	return n.Dir.Header
}

// setHeader replaces the node's header in place, used by operations
// that need to re-stamp a node's name after a move.
func (n *PrivateNode) setHeader(h Header) {
	if n.File != nil {
		n.File.Header = h
		return
	}
	n.Dir.Header = h
}

// Metadata returns the node's metadata, regardless of kind.
func (n *PrivateNode) Metadata() Metadata {
	if n.File != nil {
		return n.File.Metadata
	}
	return n.Dir.Metadata
}

func (n *PrivateNode) previous() []PreviousLink {
	if n.File != nil {
		return n.File.Previous
	}
	return n.Dir.Previous
}

func (n *PrivateNode) setPrevious(p []PreviousLink) {
	if n.File != nil {
		n.File.Previous = p
		return
	}
	n.Dir.Previous = p
}

func (n *PrivateNode) persistedRef() *PrivateRef {
	if n.File != nil {
		return n.File.persistedRef
	}
	return n.Dir.persistedRef
}

func (n *PrivateNode) setPersistedRef(ref *PrivateRef) {
	if n.File != nil {
		n.File.persistedRef = ref
		return
	}
	n.Dir.persistedRef = ref
}

// clone returns a shallow copy of n: a new File or Dir struct with the
// same field values (map entries still shared), the starting point for
// PrepareNextRevision's copy-on-write.
func (n *PrivateNode) clone() *PrivateNode {
	if n.File != nil {
		f := *n.File
		return WrapFile(&f)
	}
	d := *n.Dir
	d.Entries = make(map[string]PrivateLink, len(n.Dir.Entries))
	for k, v := range n.Dir.Entries {
		d.Entries[k] = v
	}
	return WrapDirectory(&d)
}

// wireContent is the DAG-CBOR shape of a content block, shared by both
// node kinds and discriminated by Type.
type wireContent struct {
	Type      string          `cbor:"1,keyasint"`
	Version   int             `cbor:"2,keyasint"`
	HeaderCid []byte          `cbor:"3,keyasint"`
	Metadata  Metadata        `cbor:"4,keyasint"`
	Body      cbor.RawMessage `cbor:"5,keyasint"`
	Previous  []wirePrevious  `cbor:"6,keyasint"`
}

type wirePrevious struct {
	Distance     uint64 `cbor:"1,keyasint"`
	EncryptedCid []byte `cbor:"2,keyasint"`
}

func encodePrevious(prev []PreviousLink) []wirePrevious {
	out := make([]wirePrevious, len(prev))
	for i, p := range prev {
		out[i] = wirePrevious{Distance: p.Distance, EncryptedCid: p.EncryptedCid}
	}
	return out
}

func decodePrevious(wire []wirePrevious) []PreviousLink {
	out := make([]PreviousLink, len(wire))
	for i, w := range wire {
		out[i] = PreviousLink{Distance: w.Distance, EncryptedCid: w.EncryptedCid}
	}
	return out
}

// persist writes n's header block and content block to bs under n's
// current header, returning the content CID (the value actually
// inserted into the forest at the revision label); the header block's
// CID is embedded inside the content block.
func (n *PrivateNode) persist(ctx context.Context, bs store.BlockStore, rng io.Reader) (contentCid cid.Cid, err error) {
	header := n.Header()

	headerBlock, err := header.EncryptedBlock()
	if err != nil {
		return cid.Undef, err
	}
	headerCid, err := bs.Put(ctx, headerBlock, store.CodecRaw)
	if err != nil {
		return cid.Undef, err
	}

	var body []byte
	var typeTag string
	if n.File != nil {
		body, err = cborEncMode.Marshal(n.File.wireBody())
		typeTag = typeTagFile
	} else {
		body, err = cborEncMode.Marshal(n.Dir.wireBody())
		typeTag = typeTagDir
	}
	if err != nil {
		return cid.Undef, fmt.Errorf("private: encode content body: %w", err)
	}

	wire := wireContent{
		Type:      typeTag,
		Version:   contentVersion,
		HeaderCid: headerCid.Bytes(),
		Metadata:  n.Metadata(),
		Body:      body,
		Previous:  encodePrevious(n.previous()),
	}
	plaintext, err := cborEncMode.Marshal(wire)
	if err != nil {
		return cid.Undef, fmt.Errorf("private: encode content: %w", err)
	}

	snapshotKey := crypto.AesKey(header.TemporalKey().DeriveSnapshotKey())
	ciphertext, err := crypto.EncryptGCM(snapshotKey, plaintext, nil, rng)
	if err != nil {
		return cid.Undef, err
	}

	contentCid, err = bs.Put(ctx, ciphertext, store.CodecRaw)
	if err != nil {
		return cid.Undef, err
	}
	return contentCid, nil
}

// loadNode fetches and decrypts the content block at contentCid under
// snapshotKey, and the header block it references under temporalKey,
// reconstructing the PrivateNode. A kind mismatch against the content's
// own type tag is impossible here (the tag drives construction); a
// caller expecting a specific kind checks IsFile/IsDir afterward.
func loadNode(ctx context.Context, bs store.BlockStore, contentCid cid.Cid, temporalKey TemporalKey) (*PrivateNode, error) {
	ciphertext, err := bs.Get(ctx, contentCid)
	if err != nil {
		return nil, err
	}
	snapshotKey := crypto.AesKey(temporalKey.DeriveSnapshotKey())
	plaintext, err := crypto.DecryptGCM(snapshotKey, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	var wire wireContent
	if err := cbor.Unmarshal(plaintext, &wire); err != nil {
		return nil, fmt.Errorf("private: decode content: %w", err)
	}

	headerBlock, err := bs.Get(ctx, mustCid(wire.HeaderCid))
	if err != nil {
		return nil, err
	}
	header, err := DecryptHeaderBlock(temporalKey, headerBlock)
	if err != nil {
		return nil, err
	}

	previous := decodePrevious(wire.Previous)
	ref := &PrivateRef{Temporal: temporalKey, ContentCid: contentCid.Bytes()}

	switch wire.Type {
	case typeTagFile:
		var body wireFileBody
		if err := cbor.Unmarshal(wire.Body, &body); err != nil {
			return nil, fmt.Errorf("private: decode file body: %w", err)
		}
		f := &PrivateFile{
			Header:       header,
			Metadata:     wire.Metadata,
			Previous:     previous,
			persistedRef: ref,
		}
		if err := f.fromWireBody(body); err != nil {
			return nil, err
		}
		return WrapFile(f), nil
	case typeTagDir:
		var body wireDirBody
		if err := cbor.Unmarshal(wire.Body, &body); err != nil {
			return nil, fmt.Errorf("private: decode dir body: %w", err)
		}
		d := &PrivateDirectory{
			Header:       header,
			Metadata:     wire.Metadata,
			Previous:     previous,
			persistedRef: ref,
			Entries:      make(map[string]PrivateLink, len(body.Entries)),
		}
		for _, e := range body.Entries {
			d.Entries[e.Name] = NewUnresolvedLink(PrivateRef{
				RevisionLabelHash: [32]byte(e.RevisionLabelHash),
				Temporal:          TemporalKey(crypto.AesKey(e.Temporal)),
				ContentCid:        e.ContentCid,
			})
		}
		return WrapDirectory(d), nil
	default:
		return nil, ErrUnexpectedNodeType
	}
}

func mustCid(b []byte) cid.Cid {
	c, err := cid.Cast(b)
	if err != nil {
		return cid.Undef
	}
	return c
}

// asRef returns the PrivateRef a link to n should carry. n must
// already have been persisted via Forest.Put.
func (n *PrivateNode) asRef() (PrivateRef, error) {
	if ref := n.persistedRef(); ref != nil {
		return *ref, nil
	}
	return PrivateRef{}, fmt.Errorf("private: node has no persisted ref; call forest.Put first")
}

// PrepareNextRevision implements the clone-on-write protocol: if n has
// never been persisted it is already safe to mutate in place and is
// returned unchanged; otherwise the current revision is flushed to bs,
// and a clone with an advanced ratchet and a fresh previous pointer is
// returned for the caller to mutate instead.
func PrepareNextRevision(ctx context.Context, n *PrivateNode, bs store.BlockStore, rng io.Reader) (*PrivateNode, error) {
	if n.persistedRef() == nil {
		return n, nil
	}

	contentCid, err := n.persist(ctx, bs, rng)
	if err != nil {
		return nil, err
	}

	temporalKey := n.Header().TemporalKey()
	encryptedCid, err := crypto.EncryptGCM(crypto.AesKey(temporalKey), contentCid.Bytes(), nil, rng)
	if err != nil {
		return nil, err
	}

	next := n.clone()
	next.setPrevious([]PreviousLink{{Distance: 1, EncryptedCid: encryptedCid}})
	next.setHeader(n.Header().Advance())
	next.setPersistedRef(nil)
	return next, nil
}
