// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package private

import (
	"context"
	"fmt"
	"io"

	"github.com/webnative-fs/wnfs/crypto"
	"github.com/webnative-fs/wnfs/nameaccumulator"
)

// MaxInlineContentSize is the largest file content embedded verbatim
// inside its content block rather than split into external chunks.
const MaxInlineContentSize = 1024

// MaxBlockContentSize is the size of one external file chunk.
const MaxBlockContentSize = 256 * 1024

const chunkLabelDomain = "wnfs/private/chunk-index"

// PrivateFile is a node holding either inline or chunked content.
type PrivateFile struct {
	Header   Header
	Metadata Metadata
	Previous []PreviousLink

	inline   []byte
	external *externalContent

	// pendingContent holds an external file's plaintext between
	// SetContent and the Forest.Put call that actually encrypts and
	// writes its chunks; cleared once stored.
	pendingContent []byte

	persistedRef *PrivateRef
}

type externalContent struct {
	Key              crypto.AesKey
	BlockCount       uint64
	BlockContentSize uint64
	ContentSize      uint64
	BaseName         nameaccumulator.NameAccumulator

	// stored reports whether this revision's chunks have already been
	// written to the forest, so a Put on an already-flushed node (e.g.
	// one only touched for its header/content block) doesn't redo it.
	stored bool
}

// NewFile creates a new file whose name extends parentName, with the
// given content, choosing inline or external storage by size.
func NewFile(setup *nameaccumulator.Setup, parentName nameaccumulator.NameAccumulator, content []byte, mtime int64, rng io.Reader) (*PrivateFile, error) {
	header, err := NewChildHeader(setup, parentName, rng)
	if err != nil {
		return nil, err
	}
	f := &PrivateFile{
		Header:   header,
		Metadata: Metadata{Ctime: mtime, Mtime: mtime},
	}
	if err := f.SetContent(content, rng); err != nil {
		return nil, err
	}
	return f, nil
}

// SetContent replaces the file's content in place, choosing inline or
// external representation by size. Callers must have already run
// PrepareNextRevision on the owning node if clone-on-write semantics
// are wanted; SetContent itself performs no cloning.
func (f *PrivateFile) SetContent(content []byte, rng io.Reader) error {
	if len(content) <= MaxInlineContentSize {
		f.inline = append([]byte(nil), content...)
		f.external = nil
		return nil
	}

	key, err := crypto.NewAesKey(rng)
	if err != nil {
		return err
	}
	baseName, err := nameaccumulator.RandomNameSegment(rng)
	if err != nil {
		return err
	}

	blockCount := (uint64(len(content)) + MaxBlockContentSize - 1) / MaxBlockContentSize
	ext := &externalContent{
		Key:              key,
		BlockCount:       blockCount,
		BlockContentSize: MaxBlockContentSize,
		ContentSize:      uint64(len(content)),
		BaseName:         nameaccumulator.FromBytes(baseName.Bytes()),
	}
	f.external = ext
	f.inline = nil
	f.pendingContent = append([]byte(nil), content...)
	return nil
}

// chunkIndexSegment derives the NameSegment that, appended to a file's
// base name, fixes the forest label of chunk i.
func chunkIndexSegment(key crypto.AesKey, index uint64) nameaccumulator.NameSegment {
	seed := make([]byte, len(key)+8)
	copy(seed, key[:])
	for b := 0; b < 8; b++ {
		seed[len(key)+b] = byte(index >> (8 * b))
	}
	return nameaccumulator.DeriveNameSegment(chunkLabelDomain, seed)
}

// ChunkLabel returns the NameAccumulator chunk i of this file's
// content is stored under in the forest.
func (f *PrivateFile) ChunkLabel(setup *nameaccumulator.Setup, index uint64) nameaccumulator.NameAccumulator {
	segment := chunkIndexSegment(f.external.Key, index)
	label, _ := nameaccumulator.Accumulate(setup, f.external.BaseName, []nameaccumulator.NameSegment{segment})
	return label
}

// Size reports the file's logical content length.
func (f *PrivateFile) Size() uint64 {
	if f.external == nil {
		return uint64(len(f.inline))
	}
	return f.external.ContentSize
}

// Read returns the file's full content.
func (f *PrivateFile) Read(ctx context.Context, forest *Forest) ([]byte, error) {
	if f.external == nil {
		return append([]byte(nil), f.inline...), nil
	}

	out := make([]byte, 0, f.external.BlockCount*f.external.BlockContentSize)
	for i := uint64(0); i < f.external.BlockCount; i++ {
		chunk, err := f.readChunk(ctx, forest, i)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// ReadAt returns exactly length bytes of content starting at offset,
// fetching and decrypting only the chunks the range overlaps.
// A zero-length range, or one that runs past the end of the content,
// fails with ErrInvalidChunkRange.
func (f *PrivateFile) ReadAt(ctx context.Context, forest *Forest, offset, length uint64) ([]byte, error) {
	if length == 0 || offset > f.Size() || length > f.Size()-offset {
		return nil, ErrInvalidChunkRange
	}
	if f.external == nil {
		if offset > uint64(len(f.inline)) {
			return nil, ErrInvalidChunkRange
		}
		end := offset + length
		if end > uint64(len(f.inline)) {
			end = uint64(len(f.inline))
		}
		return append([]byte(nil), f.inline[offset:end]...), nil
	}

	out := make([]byte, 0, length)
	firstChunk := offset / f.external.BlockContentSize
	lastChunk := (offset + length - 1) / f.external.BlockContentSize
	for i := firstChunk; i <= lastChunk && i < f.external.BlockCount; i++ {
		chunk, err := f.readChunk(ctx, forest, i)
		if err != nil {
			return nil, err
		}
		chunkStart := i * f.external.BlockContentSize
		lo := uint64(0)
		if offset > chunkStart {
			lo = offset - chunkStart
		}
		hi := uint64(len(chunk))
		if chunkStart+hi > offset+length {
			hi = offset + length - chunkStart
		}
		if lo > hi || lo > uint64(len(chunk)) {
			continue
		}
		if hi > uint64(len(chunk)) {
			hi = uint64(len(chunk))
		}
		out = append(out, chunk[lo:hi]...)
	}
	return out, nil
}

func (f *PrivateFile) readChunk(ctx context.Context, forest *Forest, index uint64) ([]byte, error) {
	label := f.ChunkLabel(forest.Setup, index)
	cids, err := forest.getCids(ctx, label)
	if err != nil {
		return nil, err
	}
	if len(cids) == 0 {
		return nil, ErrNodeNotFound
	}
	ciphertext, err := forest.blockStore.Get(ctx, cids[0])
	if err != nil {
		return nil, err
	}
	plaintext, err := crypto.DecryptGCM(f.external.Key, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("private: decrypt chunk %d: %w", index, ErrDecryptionFailed)
	}
	return plaintext, nil
}

// wireFileBody is the file-specific portion of a content block's body.
type wireFileBody struct {
	Inline           []byte `cbor:"1,keyasint,omitempty"`
	ExternalKey      []byte `cbor:"2,keyasint,omitempty"`
	BlockCount       uint64 `cbor:"3,keyasint,omitempty"`
	BlockContentSize uint64 `cbor:"4,keyasint,omitempty"`
	ContentSize      uint64 `cbor:"5,keyasint,omitempty"`
	BaseName         []byte `cbor:"6,keyasint,omitempty"`
}

func (f *PrivateFile) wireBody() wireFileBody {
	if f.external == nil {
		return wireFileBody{Inline: f.inline}
	}
	return wireFileBody{
		ExternalKey:      f.external.Key[:],
		BlockCount:       f.external.BlockCount,
		BlockContentSize: f.external.BlockContentSize,
		ContentSize:      f.external.ContentSize,
		BaseName:         f.external.BaseName.Bytes(),
	}
}

func (f *PrivateFile) fromWireBody(w wireFileBody) error {
	if w.ExternalKey == nil {
		f.inline = w.Inline
		f.external = nil
		return nil
	}
	var key crypto.AesKey
	copy(key[:], w.ExternalKey)
	f.external = &externalContent{
		Key:              key,
		BlockCount:       w.BlockCount,
		BlockContentSize: w.BlockContentSize,
		ContentSize:      w.ContentSize,
		BaseName:         nameaccumulator.FromBytes(w.BaseName),
		stored:           true,
	}
	return nil
}
